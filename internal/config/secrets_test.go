package config

import (
	"context"
	"errors"
	"testing"

	vault "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSecret(t *testing.T) {
	tests := []struct {
		name         string
		secret       string
		requireStr   bool
		wantValid    bool
		wantStrength SecretStrength
	}{
		{"empty", "", true, false, SecretStrengthWeak},
		{"placeholder", "CHANGEME_now_please1", true, false, SecretStrengthWeak},
		{"too short", "aB3$", true, false, SecretStrengthWeak},
		{"single character class", "qzxwvmnbhjkl", true, false, SecretStrengthWeak},
		{"medium", "h7j2p9k4m6q8", false, true, SecretStrengthMedium},
		{"strong", "Zq8!mT2#vL9@xR4$", true, true, SecretStrengthStrong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateSecret(tt.secret, "secret", 12, tt.requireStr)
			assert.Equal(t, tt.wantValid, result.IsValid)
			assert.Equal(t, tt.wantStrength, result.Strength)
			if !tt.wantValid {
				assert.NotEmpty(t, result.Errors)
			}
		})
	}
}

func TestValidateProductionSecrets(t *testing.T) {
	cfg := getValidConfig()
	cfg.Database.Password = "postgres"
	cfg.Redis.Password = ""

	errs := ValidateProductionSecrets(cfg)
	require.Len(t, errs, 1)
	assert.Equal(t, "database.password", errs[0].Field)

	cfg.Database.Password = "Zq8!mT2#vL9@xR4$"
	assert.Empty(t, ValidateProductionSecrets(cfg))
}

func TestSecretStrengthString(t *testing.T) {
	assert.Equal(t, "weak", SecretStrengthWeak.String())
	assert.Equal(t, "strong", SecretStrengthStrong.String())
	assert.Equal(t, "unknown", SecretStrength(9).String())
}

type fakeSecretReader struct {
	secrets map[string]*vault.Secret
}

func (f *fakeSecretReader) ReadWithContext(_ context.Context, path string) (*vault.Secret, error) {
	if s, ok := f.secrets[path]; ok {
		return s, nil
	}
	return nil, errors.New("permission denied")
}

func TestLoadSecretsFromVault(t *testing.T) {
	reader := &fakeSecretReader{secrets: map[string]*vault.Secret{
		"secret/data/rebalance/production/database": {
			Data: map[string]interface{}{
				"data": map[string]interface{}{"user": "svc", "password": "from-vault"},
			},
		},
	}}
	vc := NewVaultClientWithReader(reader, VaultConfig{MountPath: "secret", SecretPath: "rebalance/production"})

	cfg := getValidConfig()
	cfg.Redis.Password = "unchanged"
	require.NoError(t, LoadSecretsFromVault(context.Background(), cfg, vc))

	assert.Equal(t, "svc", cfg.Database.User)
	assert.Equal(t, "from-vault", cfg.Database.Password)
	assert.Equal(t, "unchanged", cfg.Redis.Password, "a missing redis secret leaves the config alone")
}

func TestGetSecretNotFound(t *testing.T) {
	vc := NewVaultClientWithReader(&fakeSecretReader{}, VaultConfig{MountPath: "secret", SecretPath: "x"})
	_, err := vc.GetSecret(context.Background(), "database")
	assert.Error(t, err)
}

func TestNewVaultClientDisabled(t *testing.T) {
	_, err := NewVaultClient(VaultConfig{Enabled: false})
	assert.Error(t, err)
}
