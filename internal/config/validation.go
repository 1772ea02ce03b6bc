package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// SupportedBenchmarks are the benchmark tickers offered by default
var SupportedBenchmarks = []string{"SPY", "DIA", "QQQ", "IWM", "VTI"}

// Valid rebalance cadence names
var validCadences = []string{"annually", "semi-annually", "quarterly", "monthly", "none"}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateBacktest()...)
	errors = append(errors, c.validateData()...)
	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateAPI()...)
	errors = append(errors, c.validateEnvironmentRequirements()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	validEnvs := []string{"development", "staging", "production"}
	if !contains(validEnvs, c.App.Environment) {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvs),
		})
	}

	if c.App.LogLevel == "" {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: "Log level is required (debug, info, warn, error)",
		})
	}

	return errors
}

func (c *Config) validateBacktest() ValidationErrors {
	var errors ValidationErrors
	b := c.Backtest

	if b.InitialValue <= 0 || math.IsInf(b.InitialValue, 0) || math.IsNaN(b.InitialValue) {
		errors = append(errors, ValidationError{
			Field:   "backtest.initial_value",
			Message: fmt.Sprintf("Initial value must be positive (got %v)", b.InitialValue),
		})
	}

	if b.Benchmark == "" {
		errors = append(errors, ValidationError{
			Field:   "backtest.benchmark",
			Message: "Benchmark ticker is required",
		})
	} else if !b.AllowAnyBenchmark && !contains(SupportedBenchmarks, strings.ToUpper(b.Benchmark)) {
		errors = append(errors, ValidationError{
			Field:   "backtest.benchmark",
			Message: fmt.Sprintf("Unsupported benchmark '%s'. Must be one of: %v (or set allow_any_benchmark)", b.Benchmark, SupportedBenchmarks),
		})
	}

	if !contains(validCadences, strings.ToLower(b.Rebalance)) {
		errors = append(errors, ValidationError{
			Field:   "backtest.rebalance",
			Message: fmt.Sprintf("Invalid rebalance period '%s'. Must be one of: %v", b.Rebalance, validCadences),
		})
	}

	// Tickers and weights are optional defaults, but must agree when given
	if len(b.Weights) > 0 && len(b.Weights) != len(b.Tickers) {
		errors = append(errors, ValidationError{
			Field:   "backtest.weights",
			Message: fmt.Sprintf("Got %d weights for %d tickers", len(b.Weights), len(b.Tickers)),
		})
	}
	for i, w := range b.Weights {
		if w < 0 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("backtest.weights[%d]", i),
				Message: "Weights must be non-negative",
			})
		}
	}

	if b.WeightTolerance < 0 || b.WeightTolerance >= 1 {
		errors = append(errors, ValidationError{
			Field:   "backtest.weight_tolerance",
			Message: "Weight tolerance must be in [0, 1)",
		})
	}

	if b.Parallelism < 1 {
		errors = append(errors, ValidationError{
			Field:   "backtest.parallelism",
			Message: "Parallelism must be at least 1",
		})
	}

	start, startErr := b.GetStartDate()
	if startErr != nil {
		errors = append(errors, ValidationError{Field: "backtest.start_date", Message: startErr.Error()})
	}
	end, endErr := b.GetEndDate()
	if endErr != nil {
		errors = append(errors, ValidationError{Field: "backtest.end_date", Message: endErr.Error()})
	}
	if start != nil && end != nil && end.Before(*start) {
		errors = append(errors, ValidationError{
			Field:   "backtest.end_date",
			Message: fmt.Sprintf("End date %s is before start date %s", end.Format(time.DateOnly), start.Format(time.DateOnly)),
		})
	}

	return errors
}

func (c *Config) validateData() ValidationErrors {
	var errors ValidationErrors

	validSources := []string{"csv", "json", "postgres"}
	if !contains(validSources, c.Data.Source) {
		errors = append(errors, ValidationError{
			Field:   "data.source",
			Message: fmt.Sprintf("Invalid data source '%s'. Must be one of: %v", c.Data.Source, validSources),
		})
	}

	if c.Data.Source != "postgres" && c.Data.Dir == "" {
		errors = append(errors, ValidationError{
			Field:   "data.dir",
			Message: "Data directory is required for file sources",
		})
	}

	return errors
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	if c.Database.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "database.host",
			Message: "Database host is required",
		})
	}

	errors = append(errors, validatePort("database.port", c.Database.Port)...)

	if c.Database.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "database.database",
			Message: "Database name is required",
		})
	}

	if c.Database.PoolSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.pool_size",
			Message: "Pool size must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateRedis() ValidationErrors {
	if !c.Redis.Enabled {
		return nil
	}

	var errors ValidationErrors
	if c.Redis.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.host",
			Message: "Redis host is required when Redis is enabled",
		})
	}
	errors = append(errors, validatePort("redis.port", c.Redis.Port)...)

	if c.Redis.ResultTTL < 0 {
		errors = append(errors, ValidationError{
			Field:   "redis.result_ttl",
			Message: "Result TTL cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateAPI() ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, validatePort("api.port", c.API.Port)...)

	if c.API.RateLimitRPS < 0 {
		errors = append(errors, ValidationError{
			Field:   "api.rate_limit_rps",
			Message: "Rate limit cannot be negative (0 disables it)",
		})
	}
	if c.API.RateLimitRPS > 0 && c.API.RateLimitBurst < 1 {
		errors = append(errors, ValidationError{
			Field:   "api.rate_limit_burst",
			Message: "Burst must be at least 1 when rate limiting is enabled",
		})
	}

	return errors
}

func (c *Config) validateEnvironmentRequirements() ValidationErrors {
	if c.App.Environment != "production" {
		return nil
	}

	errors := ValidateProductionSecrets(c)

	if c.Database.SSLMode == "disable" {
		errors = append(errors, ValidationError{
			Field:   "database.ssl_mode",
			Message: "SSL must be enabled for database in production",
		})
	}

	return errors
}

func validatePort(field string, port int) ValidationErrors {
	if port == 0 {
		return ValidationErrors{{Field: field, Message: "Port is required"}}
	}
	if port < 1 || port > 65535 {
		return ValidationErrors{{Field: field, Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", port)}}
	}
	return nil
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
