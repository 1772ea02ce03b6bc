package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. REBALANCE_BACKTEST_BENCHMARK
const EnvPrefix = "REBALANCE"

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Backtest   BacktestConfig   `mapstructure:"backtest"`
	Data       DataConfig       `mapstructure:"data"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Vault      VaultConfig      `mapstructure:"vault"`
	API        APIConfig        `mapstructure:"api"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // json or console
}

// BacktestConfig holds the defaults for a rebalancing run. Each field can be
// overridden per run by CLI flags or API request fields.
type BacktestConfig struct {
	Tickers                  []string  `mapstructure:"tickers"`
	Weights                  []float64 `mapstructure:"weights"`
	Benchmark                string    `mapstructure:"benchmark"`
	AllowAnyBenchmark        bool      `mapstructure:"allow_any_benchmark"`
	InitialValue             float64   `mapstructure:"initial_value"`
	Rebalance                string    `mapstructure:"rebalance"`
	StartDate                string    `mapstructure:"start_date"` // YYYY-MM-DD
	EndDate                  string    `mapstructure:"end_date"`   // YYYY-MM-DD, empty means today
	WeightTolerance          float64   `mapstructure:"weight_tolerance"`
	AllowUnnormalizedWeights bool      `mapstructure:"allow_unnormalized_weights"`
	Parallelism              int       `mapstructure:"parallelism"`
}

// DataConfig selects where price history comes from
type DataConfig struct {
	Source string `mapstructure:"source"` // csv, json or postgres
	Dir    string `mapstructure:"dir"`
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	ResultTTL int    `mapstructure:"result_ttl"` // seconds
}

// APIConfig contains REST API settings
type APIConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
	PersistRuns    bool     `mapstructure:"persist_runs"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file; defaults and environment only
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "Rebalance")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	// Backtest defaults
	v.SetDefault("backtest.tickers", []string{})
	v.SetDefault("backtest.weights", []float64{})
	v.SetDefault("backtest.benchmark", "SPY")
	v.SetDefault("backtest.allow_any_benchmark", false)
	v.SetDefault("backtest.initial_value", 10000.0)
	v.SetDefault("backtest.rebalance", "annually")
	v.SetDefault("backtest.start_date", "2000-01-01")
	v.SetDefault("backtest.end_date", "")
	v.SetDefault("backtest.weight_tolerance", 0.001)
	v.SetDefault("backtest.allow_unnormalized_weights", false)
	v.SetDefault("backtest.parallelism", 4)

	// Data defaults
	v.SetDefault("data.source", "csv")
	v.SetDefault("data.dir", "data")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", PostgresPort)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "rebalance")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", RedisPort)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.result_ttl", 3600)

	// Vault defaults
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", fmt.Sprintf("http://localhost:%d", VaultPort))
	v.SetDefault("vault.auth_method", "token")
	v.SetDefault("vault.mount_path", "secret")
	v.SetDefault("vault.secret_path", "rebalance/production")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", APIServerPort)
	v.SetDefault("api.rate_limit_rps", 10.0)
	v.SetDefault("api.rate_limit_burst", 20)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("api.persist_runs", false)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", MetricsPort)
	v.SetDefault("monitoring.enable_metrics", true)
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetURL returns the connection string in URL form, as lib/pq and
// golang-migrate style tools expect
func (c *DatabaseConfig) GetURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetResultTTL returns the result cache TTL as time.Duration
func (c *RedisConfig) GetResultTTL() time.Duration {
	return time.Duration(c.ResultTTL) * time.Second
}

// GetAPIAddr returns the API server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetStartDate parses the configured start date. An empty value means no
// lower bound.
func (c *BacktestConfig) GetStartDate() (*time.Time, error) {
	return parseOptionalDate(c.StartDate)
}

// GetEndDate parses the configured end date, defaulting to today
func (c *BacktestConfig) GetEndDate() (*time.Time, error) {
	if c.EndDate == "" {
		y, m, d := time.Now().UTC().Date()
		today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &today, nil
	}
	return parseOptionalDate(c.EndDate)
}

func parseOptionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return &t, nil
}
