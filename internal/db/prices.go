package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/rebalance/pkg/backtest"
)

// PriceRepository stores daily adjusted closes in the prices table and
// serves them to the engine as a backtest.PriceSource
type PriceRepository struct {
	pool PoolInterface
}

// NewPriceRepository creates a repository over pool
func NewPriceRepository(pool PoolInterface) *PriceRepository {
	return &PriceRepository{pool: pool}
}

var _ backtest.PriceSource = (*PriceRepository)(nil)

// LoadSeries returns the stored series for symbol within [start, end].
// Nil bounds are open.
func (r *PriceRepository) LoadSeries(ctx context.Context, symbol string, start, end *time.Time) (*backtest.PriceSeries, error) {
	query := `
		SELECT date, adj_close
		FROM prices
		WHERE symbol = $1
		  AND ($2::date IS NULL OR date >= $2::date)
		  AND ($3::date IS NULL OR date <= $3::date)
		ORDER BY date ASC
	`

	rows, err := r.pool.Query(ctx, query, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices for %s: %w", symbol, err)
	}
	defer rows.Close()

	points := make([]backtest.PricePoint, 0, 256)
	for rows.Next() {
		var p backtest.PricePoint
		if err := rows.Scan(&p.Date, &p.Price); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price rows: %w", err)
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("%s in database: %w", symbol, backtest.ErrSeriesNotFound)
	}

	return backtest.NewPriceSeries(symbol, points)
}

// UpsertSeries writes every point of series, replacing prices already
// stored for the same (symbol, date). Returns the number of rows written.
func (r *PriceRepository) UpsertSeries(ctx context.Context, series *backtest.PriceSeries) (int64, error) {
	if series == nil || series.Len() == 0 {
		return 0, backtest.ErrEmptySeries
	}

	dates := make([]time.Time, len(series.Points))
	prices := make([]float64, len(series.Points))
	for i, p := range series.Points {
		dates[i] = p.Date
		prices[i] = p.Price
	}

	query := `
		INSERT INTO prices (symbol, date, adj_close)
		SELECT $1, d, p
		FROM unnest($2::date[], $3::double precision[]) AS t(d, p)
		ON CONFLICT (symbol, date) DO UPDATE SET adj_close = EXCLUDED.adj_close
	`

	tag, err := r.pool.Exec(ctx, query, series.Symbol, dates, prices)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert prices for %s: %w", series.Symbol, err)
	}

	log.Info().
		Str("symbol", series.Symbol).
		Int64("rows", tag.RowsAffected()).
		Msg("Stored price series")

	return tag.RowsAffected(), nil
}

// ListSymbols returns every symbol with stored prices
func (r *PriceRepository) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT symbol FROM prices ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	defer rows.Close()

	symbols := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// DeleteSymbol removes all stored prices for symbol
func (r *PriceRepository) DeleteSymbol(ctx context.Context, symbol string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM prices WHERE symbol = $1`, symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to delete prices for %s: %w", symbol, err)
	}
	return tag.RowsAffected(), nil
}
