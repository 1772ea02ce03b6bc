package backtest

import (
	"fmt"
	"strings"
	"time"

	"github.com/ajitpratap0/rebalance/internal/config"
	"github.com/ajitpratap0/rebalance/internal/validation"
	btengine "github.com/ajitpratap0/rebalance/pkg/backtest"
)

// SeriesPoint is one inline price observation in a request
type SeriesPoint struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// Request describes a single backtest. Empty fields take the service
// defaults; omitted weights mean equal weights.
type Request struct {
	Name         string    `json:"name,omitempty"`
	Tickers      []string  `json:"tickers"`
	Weights      []float64 `json:"weights,omitempty"`
	Benchmark    string    `json:"benchmark,omitempty"`
	Rebalance    string    `json:"rebalance,omitempty"`
	InitialValue float64   `json:"initial_value,omitempty"`
	StartDate    string    `json:"start_date,omitempty"`
	EndDate      string    `json:"end_date,omitempty"`

	// Series optionally supplies price history inline, keyed by symbol.
	// Symbols missing from it are loaded from the configured source.
	Series map[string][]SeriesPoint `json:"series,omitempty"`
}

// BatchRequest simulates several weight vectors over the same assets
type BatchRequest struct {
	Request
	WeightSets [][]float64 `json:"weight_sets"`
}

// Defaults fill in request fields the caller left empty
type Defaults struct {
	Benchmark    string
	Rebalance    string
	InitialValue float64
	StartDate    string
	EndDate      string
}

// DefaultsFromConfig builds request defaults from the backtest section
func DefaultsFromConfig(cfg config.BacktestConfig) Defaults {
	return Defaults{
		Benchmark:    cfg.Benchmark,
		Rebalance:    cfg.Rebalance,
		InitialValue: cfg.InitialValue,
		StartDate:    cfg.StartDate,
		EndDate:      cfg.EndDate,
	}
}

// normalize sanitizes req, applies defaults and validates the fields that
// do not need price data. The returned request is a copy.
func normalize(req Request, defaults Defaults, allowedBenchmarks []string) (Request, error) {
	out := req
	out.Name = validation.SanitizeInput(req.Name)
	out.Tickers = validation.SanitizeTickers(req.Tickers)
	out.Benchmark = validation.SanitizeTicker(req.Benchmark)
	out.Rebalance = strings.ToLower(strings.TrimSpace(req.Rebalance))
	out.StartDate = strings.TrimSpace(req.StartDate)
	out.EndDate = strings.TrimSpace(req.EndDate)

	if out.Benchmark == "" {
		out.Benchmark = validation.SanitizeTicker(defaults.Benchmark)
	}
	if out.Rebalance == "" {
		out.Rebalance = defaults.Rebalance
	}
	if out.InitialValue == 0 {
		out.InitialValue = defaults.InitialValue
	}
	if out.StartDate == "" {
		out.StartDate = defaults.StartDate
	}
	if out.EndDate == "" {
		out.EndDate = defaults.EndDate
	}
	if len(out.Weights) == 0 && len(out.Tickers) > 0 {
		out.Weights = btengine.EqualWeights(len(out.Tickers))
	}

	if len(req.Series) > 0 {
		out.Series = make(map[string][]SeriesPoint, len(req.Series))
		for symbol, points := range req.Series {
			out.Series[validation.SanitizeTicker(symbol)] = points
		}
	}

	v := validation.NewBacktestRequestValidator()
	v.MaxLength("name", out.Name, 200)
	v.ValidateTickers(out.Tickers)
	v.ValidateWeights(out.Weights, len(out.Tickers))
	v.ValidateBenchmark(out.Benchmark, allowedBenchmarks)
	v.ValidateInitialValue(out.InitialValue)
	v.ValidateDateRange(out.StartDate, out.EndDate)
	if _, err := btengine.ParseCadence(out.Rebalance); err != nil {
		v.AddError("rebalance", fmt.Sprintf("must be one of %v", btengine.Cadences))
	}

	return out, v.Err()
}

// dateBounds parses the request window; empty strings are open bounds
func (r Request) dateBounds() (start, end *time.Time, err error) {
	if r.StartDate != "" {
		t, err := btengine.ParseDate(r.StartDate)
		if err != nil {
			return nil, nil, err
		}
		start = &t
	}
	if r.EndDate != "" {
		t, err := btengine.ParseDate(r.EndDate)
		if err != nil {
			return nil, nil, err
		}
		end = &t
	}
	return start, end, nil
}

// inlineSeries converts the inline points for symbol, if any
func (r Request) inlineSeries(symbol string) (*btengine.PriceSeries, bool, error) {
	points, ok := r.Series[symbol]
	if !ok {
		return nil, false, nil
	}

	v := validation.NewValidator()
	converted := make([]btengine.PricePoint, 0, len(points))
	for i, p := range points {
		d, err := btengine.ParseDate(p.Date)
		if err != nil {
			v.AddError(fmt.Sprintf("series[%s][%d].date", symbol, i), "must be a date in YYYY-MM-DD format")
			continue
		}
		converted = append(converted, btengine.PricePoint{Date: d, Price: p.Price})
	}
	if err := v.Err(); err != nil {
		return nil, true, err
	}

	series, err := btengine.NewPriceSeries(symbol, converted)
	if err != nil {
		return nil, true, err
	}
	return series, true, nil
}

// withoutSeries drops inline prices so responses do not echo them back
func (r Request) withoutSeries() Request {
	r.Series = nil
	return r
}
