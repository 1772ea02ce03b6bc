package backtest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ============================================================================
// PRICE SOURCES
// ============================================================================

// PriceSource supplies adjusted close history for a symbol. Nil bounds mean
// no limit on that side.
type PriceSource interface {
	LoadSeries(ctx context.Context, symbol string, start, end *time.Time) (*PriceSeries, error)
}

// ErrSeriesNotFound is returned by a PriceSource that has no data for a symbol
var ErrSeriesNotFound = errors.New("price series not found")

// LoadAll fetches every symbol from source concurrently, preserving order
func LoadAll(ctx context.Context, source PriceSource, symbols []string, start, end *time.Time) ([]*PriceSeries, error) {
	series := make([]*PriceSeries, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, symbol := range symbols {
		g.Go(func() error {
			s, err := source.LoadSeries(gctx, symbol, start, end)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", symbol, err)
			}
			series[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return series, nil
}

// DirectorySource reads <Dir>/<SYMBOL>.csv, falling back to <SYMBOL>.json
type DirectorySource struct {
	Dir string
}

// NewDirectorySource creates a source rooted at dir
func NewDirectorySource(dir string) *DirectorySource {
	return &DirectorySource{Dir: dir}
}

// LoadSeries implements PriceSource
func (d *DirectorySource) LoadSeries(ctx context.Context, symbol string, start, end *time.Time) (*PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, ext := range []string{".csv", ".json"} {
		path := filepath.Join(d.Dir, symbol+ext)
		if _, err := os.Stat(path); err != nil {
			continue
		}

		var (
			series *PriceSeries
			err    error
		)
		if ext == ".csv" {
			series, err = LoadFromCSV(path, symbol)
		} else {
			series, err = LoadFromJSON(path, symbol)
		}
		if err != nil {
			return nil, err
		}
		return series.Window(start, end), nil
	}

	return nil, fmt.Errorf("%s in %s: %w", symbol, d.Dir, ErrSeriesNotFound)
}

// ============================================================================
// FILE LOADERS
// ============================================================================

// Price columns in order of preference
var priceColumns = []string{"adj close", "adj_close", "adjclose", "adjusted_close", "close", "price"}

// Date columns in order of preference
var dateColumns = []string{"date", "timestamp", "time"}

// LoadFromCSV loads a price series from a CSV file with a header row. The
// date column may be named date, timestamp or time; the price is taken from
// the adjusted close column when present, otherwise from close or price.
// Rows that cannot be parsed (such as the "null" rows some exports contain)
// are skipped.
func LoadFromCSV(path, symbol string) (*PriceSeries, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	series, err := ReadCSV(file, symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	log.Info().
		Str("file", path).
		Str("symbol", symbol).
		Int("points", series.Len()).
		Msg("Loaded price history from CSV")

	return series, nil
}

// ReadCSV parses CSV price data from r
func ReadCSV(r io.Reader, symbol string) (*PriceSeries, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	dateCol := findColumn(header, dateColumns)
	priceCol := findColumn(header, priceColumns)
	if dateCol < 0 || priceCol < 0 {
		return nil, fmt.Errorf("invalid CSV header %v: need a date column and a price column", header)
	}

	var points []PricePoint
	lineNum := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record at line %d: %w", lineNum, err)
		}
		lineNum++

		if len(record) <= dateCol || len(record) <= priceCol {
			log.Warn().Int("line", lineNum).Msg("Skipping incomplete CSV record")
			continue
		}

		date, err := parseTimestamp(record[dateCol])
		if err != nil {
			log.Warn().Int("line", lineNum).Str("date", record[dateCol]).Msg("Failed to parse date, skipping")
			continue
		}

		price, err := strconv.ParseFloat(strings.TrimSpace(record[priceCol]), 64)
		if err != nil {
			log.Warn().Int("line", lineNum).Str("price", record[priceCol]).Msg("Failed to parse price, skipping")
			continue
		}

		points = append(points, PricePoint{Date: date, Price: price})
	}

	return NewPriceSeries(symbol, points)
}

type jsonPricePoint struct {
	Date     string   `json:"date"`
	Price    *float64 `json:"price"`
	AdjClose *float64 `json:"adj_close"`
	Close    *float64 `json:"close"`
}

// LoadFromJSON loads a price series from a JSON file holding either an array
// of {"date", "price"} objects or an object with a "points" array
func LoadFromJSON(path, symbol string) (*PriceSeries, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON file: %w", err)
	}

	series, err := ParseJSON(data, symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	log.Info().
		Str("file", path).
		Str("symbol", symbol).
		Int("points", series.Len()).
		Msg("Loaded price history from JSON")

	return series, nil
}

// ParseJSON parses JSON price data in either supported layout
func ParseJSON(data []byte, symbol string) (*PriceSeries, error) {
	var raw []jsonPricePoint
	if err := json.Unmarshal(data, &raw); err != nil {
		var wrapper struct {
			Symbol string           `json:"symbol"`
			Points []jsonPricePoint `json:"points"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("failed to parse JSON (tried both array and object formats): %w", err)
		}
		raw = wrapper.Points
		if symbol == "" {
			symbol = wrapper.Symbol
		}
	}

	points := make([]PricePoint, 0, len(raw))
	for i, p := range raw {
		date, err := parseTimestamp(p.Date)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}

		var price *float64
		for _, candidate := range []*float64{p.AdjClose, p.Price, p.Close} {
			if candidate != nil {
				price = candidate
				break
			}
		}
		if price == nil {
			return nil, fmt.Errorf("point %d on %s has no price", i, p.Date)
		}

		points = append(points, PricePoint{Date: date, Price: *price})
	}

	return NewPriceSeries(symbol, points)
}

func findColumn(header []string, names []string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}

// parseTimestamp accepts YYYY-MM-DD, RFC3339 or Unix seconds
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
