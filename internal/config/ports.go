package config

// Default ports
const (
	// APIServerPort is the port for the REST API server.
	APIServerPort = 8080

	// MetricsPort serves Prometheus metrics for the API server and CLI runs.
	MetricsPort = 9100

	// PostgresPort is the default port for PostgreSQL.
	PostgresPort = 5432

	// RedisPort is the default port for Redis.
	RedisPort = 6379

	// VaultPort is the default port for HashiCorp Vault.
	VaultPort = 8200
)
