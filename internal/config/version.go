package config

// Version is the canonical version of Rebalance
const Version = "1.0.0"

// Set at build time with -ldflags "-X .../internal/config.GitCommit=..."
var (
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// GetVersion returns the current version
func GetVersion() string {
	return Version
}
