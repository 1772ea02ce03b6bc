package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/rebalance/internal/config"
	"github.com/ajitpratap0/rebalance/internal/db"
	btengine "github.com/ajitpratap0/rebalance/pkg/backtest"
)

// symbolFromPath derives the ticker from a file name such as data/vti.csv
func symbolFromPath(path string) string {
	base := filepath.Base(path)
	return strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base)))
}

// loadFile reads a CSV or JSON price file
func loadFile(path string) (*btengine.PriceSeries, error) {
	symbol := symbolFromPath(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return btengine.LoadFromCSV(path, symbol)
	case ".json":
		return btengine.LoadFromJSON(path, symbol)
	default:
		return nil, fmt.Errorf("unsupported file type %q (want .csv or .json)", path)
	}
}

// runImport loads every file and upserts it into the prices table
func runImport(ctx context.Context, cfg *config.Config, paths []string) error {
	database, err := db.NewWithURL(ctx, cfg.DatabaseURL(), cfg.Database.PoolSize)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	prices := database.Prices()
	var total int64
	for _, path := range paths {
		series, err := loadFile(path)
		if err != nil {
			return err
		}
		if *replace {
			removed, err := prices.DeleteSymbol(ctx, series.Symbol)
			if err != nil {
				return err
			}
			log.Debug().Str("symbol", series.Symbol).Int64("rows", removed).Msg("Cleared stored prices")
		}
		n, err := prices.UpsertSeries(ctx, series)
		if err != nil {
			return err
		}
		total += n
	}

	symbols, err := prices.ListSymbols(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Int("files", len(paths)).
		Int64("rows", total).
		Strs("stored_symbols", symbols).
		Msg("Import complete")
	return nil
}
