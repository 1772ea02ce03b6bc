package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// SecretStrength represents the strength level of a secret
type SecretStrength int

const (
	SecretStrengthWeak SecretStrength = iota
	SecretStrengthMedium
	SecretStrengthStrong
)

// String returns a human-readable strength
func (s SecretStrength) String() string {
	switch s {
	case SecretStrengthWeak:
		return "weak"
	case SecretStrengthMedium:
		return "medium"
	case SecretStrengthStrong:
		return "strong"
	default:
		return "unknown"
	}
}

// Values that show up in sample configs and must never reach production
var commonPlaceholders = []string{
	"changeme",
	"please_change_me",
	"your_password",
	"password",
	"secret",
	"admin",
	"postgres",
	"rebalance",
	"example",
	"default",
	"test",
}

// SecretValidationResult contains the result of secret validation
type SecretValidationResult struct {
	IsValid  bool
	Strength SecretStrength
	Errors   []string
}

// ValidateSecret checks a password for placeholders, length and character
// variety. With requireStrong, weak secrets are rejected.
func ValidateSecret(secret, name string, minLength int, requireStrong bool) SecretValidationResult {
	result := SecretValidationResult{IsValid: true, Strength: SecretStrengthStrong}

	fail := func(msg string) SecretValidationResult {
		result.IsValid = false
		result.Strength = SecretStrengthWeak
		result.Errors = append(result.Errors, msg)
		return result
	}

	if secret == "" {
		return fail(fmt.Sprintf("%s cannot be empty", name))
	}

	lower := strings.ToLower(secret)
	for _, placeholder := range commonPlaceholders {
		if strings.Contains(lower, placeholder) {
			return fail(fmt.Sprintf("%s appears to be a placeholder value (%s)", name, placeholder))
		}
	}

	if len(secret) < minLength {
		return fail(fmt.Sprintf("%s must be at least %d characters (got %d)", name, minLength, len(secret)))
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range secret {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	types := 0
	for _, has := range []bool{hasUpper, hasLower, hasNumber, hasSpecial} {
		if has {
			types++
		}
	}

	switch {
	case len(secret) >= 16 && types >= 3:
		result.Strength = SecretStrengthStrong
	case len(secret) >= 12 && types >= 2:
		result.Strength = SecretStrengthMedium
	default:
		result.Strength = SecretStrengthWeak
	}

	if requireStrong && result.Strength == SecretStrengthWeak {
		result.IsValid = false
		result.Errors = append(result.Errors, fmt.Sprintf("%s is too weak for production use; mix at least 3 character types", name))
	}

	return result
}

// ValidateProductionSecrets validates database and Redis passwords
func ValidateProductionSecrets(cfg *Config) ValidationErrors {
	var errors ValidationErrors

	const minProductionLength = 12

	secrets := []struct {
		field, name, value string
		required           bool
	}{
		{"database.password", "Database password", cfg.Database.Password, true},
		{"redis.password", "Redis password", cfg.Redis.Password, false},
	}

	for _, s := range secrets {
		if s.value == "" && !s.required {
			continue
		}
		result := ValidateSecret(s.value, s.name, minProductionLength, true)
		for _, msg := range result.Errors {
			errors = append(errors, ValidationError{Field: s.field, Message: msg})
		}
	}

	return errors
}

// ================================================
// HashiCorp Vault Integration
// ================================================

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`       // Falls back to VAULT_TOKEN
	AuthMethod string `mapstructure:"auth_method"` // token or approle
	MountPath  string `mapstructure:"mount_path"`
	SecretPath string `mapstructure:"secret_path"`
	Namespace  string `mapstructure:"namespace"`
}

// SecretReader is the part of the Vault API the loader needs
type SecretReader interface {
	ReadWithContext(ctx context.Context, path string) (*vault.Secret, error)
}

// VaultClient reads KV secrets for the service
type VaultClient struct {
	logical SecretReader
	config  VaultConfig
}

// NewVaultClient creates and authenticates a Vault client
func NewVaultClient(cfg VaultConfig) (*VaultClient, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("vault is not enabled in configuration")
	}

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	switch cfg.AuthMethod {
	case "token", "":
		token := cfg.Token
		if token == "" {
			token = os.Getenv("VAULT_TOKEN")
		}
		if token == "" {
			return nil, fmt.Errorf("VAULT_TOKEN not set for token authentication")
		}
		client.SetToken(token)

	case "approle":
		if err := authenticateAppRole(client); err != nil {
			return nil, fmt.Errorf("AppRole authentication failed: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported Vault auth method: %s", cfg.AuthMethod)
	}

	log.Info().
		Str("address", cfg.Address).
		Str("auth_method", cfg.AuthMethod).
		Str("secret_path", cfg.SecretPath).
		Msg("Vault client initialized")

	return NewVaultClientWithReader(client.Logical(), cfg), nil
}

// NewVaultClientWithReader wraps an existing reader, mainly for tests
func NewVaultClientWithReader(reader SecretReader, cfg VaultConfig) *VaultClient {
	return &VaultClient{logical: reader, config: cfg}
}

// GetSecret reads a KV secret relative to the configured secret path
func (vc *VaultClient) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	fullPath := fmt.Sprintf("%s/data/%s/%s", vc.config.MountPath, vc.config.SecretPath, path)

	secret, err := vc.logical.ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("secret not found at path: %s", fullPath)
	}

	// KV v2 nests the payload under "data"
	if data, ok := secret.Data["data"].(map[string]interface{}); ok {
		return data, nil
	}
	return secret.Data, nil
}

// LoadSecretsFromVault overrides database and Redis credentials with the
// values stored in Vault. Missing secrets are logged and skipped.
func LoadSecretsFromVault(ctx context.Context, cfg *Config, vc *VaultClient) error {
	if vc == nil {
		return fmt.Errorf("vault client is nil")
	}

	if secrets, err := vc.GetSecret(ctx, "database"); err != nil {
		log.Warn().Err(err).Msg("Failed to load database secrets from Vault")
	} else {
		if user, ok := secrets["user"].(string); ok && user != "" {
			cfg.Database.User = user
		}
		if password, ok := secrets["password"].(string); ok && password != "" {
			cfg.Database.Password = password
			log.Info().Msg("Loaded database password from Vault")
		}
	}

	if secrets, err := vc.GetSecret(ctx, "redis"); err != nil {
		log.Warn().Err(err).Msg("Failed to load Redis secrets from Vault")
	} else if password, ok := secrets["password"].(string); ok && password != "" {
		cfg.Redis.Password = password
		log.Info().Msg("Loaded Redis password from Vault")
	}

	return nil
}

func authenticateAppRole(client *vault.Client) error {
	roleID := os.Getenv("VAULT_ROLE_ID")
	secretID := os.Getenv("VAULT_SECRET_ID")
	if roleID == "" || secretID == "" {
		return fmt.Errorf("VAULT_ROLE_ID and VAULT_SECRET_ID must be set for AppRole authentication")
	}

	secret, err := client.Logical().Write("auth/approle/login", map[string]interface{}{
		"role_id":   roleID,
		"secret_id": secretID,
	})
	if err != nil {
		return fmt.Errorf("failed to login with AppRole: %w", err)
	}
	if secret == nil || secret.Auth == nil {
		return fmt.Errorf("AppRole authentication returned no token")
	}

	client.SetToken(secret.Auth.ClientToken)
	return nil
}
