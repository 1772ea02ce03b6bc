package backtest

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/rebalance/internal/config"
	"github.com/ajitpratap0/rebalance/internal/db"
	btengine "github.com/ajitpratap0/rebalance/pkg/backtest"
)

// NewPriceSource returns the price source selected by cfg. The postgres
// source needs an open database.
func NewPriceSource(cfg config.DataConfig, database *db.DB) (btengine.PriceSource, error) {
	switch strings.ToLower(cfg.Source) {
	case "csv", "json":
		return btengine.NewDirectorySource(cfg.Dir), nil
	case "postgres":
		if database == nil {
			return nil, fmt.Errorf("data source postgres requires a database connection")
		}
		return database.Prices(), nil
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.Source)
	}
}
