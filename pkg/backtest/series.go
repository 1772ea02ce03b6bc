package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// ============================================================================
// PRICE SERIES
// ============================================================================

// PricePoint is one adjusted close observation
type PricePoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// PriceSeries is a date-ordered sequence of adjusted close prices for one
// instrument. Points are strictly increasing by date once built through
// NewPriceSeries, which lets lookups use binary search.
type PriceSeries struct {
	Symbol string       `json:"symbol"`
	Points []PricePoint `json:"points"`
}

// NewPriceSeries validates and sorts points. Dates are truncated to the
// calendar day in UTC.
func NewPriceSeries(symbol string, points []PricePoint) (*PriceSeries, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrEmptySeries)
	}

	sorted := make([]PricePoint, len(points))
	for i, p := range points {
		if p.Price <= 0 || math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
			return nil, fmt.Errorf("%s on %s: %w", symbol, p.Date.Format(DateLayout), ErrInvalidPrice)
		}
		sorted[i] = PricePoint{Date: NormalizeDate(p.Date), Price: p.Price}
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Date.Equal(sorted[i-1].Date) {
			return nil, fmt.Errorf("%s on %s: %w", symbol, sorted[i].Date.Format(DateLayout), ErrDuplicateDate)
		}
	}

	return &PriceSeries{Symbol: symbol, Points: sorted}, nil
}

// Len returns the number of observations
func (s *PriceSeries) Len() int {
	return len(s.Points)
}

// PriceAt returns the price recorded exactly on date d
func (s *PriceSeries) PriceAt(d time.Time) (float64, bool) {
	d = NormalizeDate(d)
	i := sort.Search(len(s.Points), func(i int) bool {
		return !s.Points[i].Date.Before(d)
	})
	if i < len(s.Points) && s.Points[i].Date.Equal(d) {
		return s.Points[i].Price, true
	}
	return 0, false
}

// PriceBefore returns the most recent price strictly before date d
func (s *PriceSeries) PriceBefore(d time.Time) (float64, bool) {
	d = NormalizeDate(d)
	i := sort.Search(len(s.Points), func(i int) bool {
		return !s.Points[i].Date.Before(d)
	})
	if i == 0 {
		return 0, false
	}
	return s.Points[i-1].Price, true
}

// Window returns the points within [start, end] inclusive. Nil bounds are
// open.
func (s *PriceSeries) Window(start, end *time.Time) *PriceSeries {
	lo, hi := 0, len(s.Points)
	if start != nil {
		from := NormalizeDate(*start)
		lo = sort.Search(len(s.Points), func(i int) bool {
			return !s.Points[i].Date.Before(from)
		})
	}
	if end != nil {
		to := NormalizeDate(*end)
		hi = sort.Search(len(s.Points), func(i int) bool {
			return s.Points[i].Date.After(to)
		})
	}
	if hi < lo {
		hi = lo
	}

	points := make([]PricePoint, hi-lo)
	copy(points, s.Points[lo:hi])
	return &PriceSeries{Symbol: s.Symbol, Points: points}
}

// ============================================================================
// PRICE PANEL
// ============================================================================

// PricePanel holds asset and benchmark prices on their common dates. Every
// date in Dates has a price for every asset and for the benchmark. A panel is
// never modified after Align returns it, so it can be shared between
// concurrent simulations.
type PricePanel struct {
	Assets    []string    `json:"assets"`
	Benchmark string      `json:"benchmark"`
	Dates     []time.Time `json:"dates"`

	rows      [][]float64
	benchRow  []float64
	sources   []*PriceSeries
	benchmark *PriceSeries
}

// Len returns the number of aligned dates
func (p *PricePanel) Len() int {
	return len(p.Dates)
}

// AssetCount returns the number of asset columns (the benchmark excluded)
func (p *PricePanel) AssetCount() int {
	return len(p.Assets)
}

// Row returns the aligned asset prices for the i-th date
func (p *PricePanel) Row(i int) []float64 {
	return p.rows[i]
}

// BenchmarkAt returns the aligned benchmark price for the i-th date
func (p *PricePanel) BenchmarkAt(i int) float64 {
	return p.benchRow[i]
}

// AssetPriceBefore looks up the asset's own most recent price strictly before
// d. The source series is bounded by the alignment window.
func (p *PricePanel) AssetPriceBefore(asset int, d time.Time) (float64, bool) {
	return p.sources[asset].PriceBefore(d)
}

// BenchmarkPriceBefore is AssetPriceBefore for the benchmark
func (p *PricePanel) BenchmarkPriceBefore(d time.Time) (float64, bool) {
	return p.benchmark.PriceBefore(d)
}

// AssetIndex returns the column of symbol, or -1
func (p *PricePanel) AssetIndex(symbol string) int {
	for i, s := range p.Assets {
		if s == symbol {
			return i
		}
	}
	return -1
}

// Columns returns the aligned asset prices as one series per asset
func (p *PricePanel) Columns() []*PriceSeries {
	columns := make([]*PriceSeries, len(p.Assets))
	for a, symbol := range p.Assets {
		points := make([]PricePoint, len(p.Dates))
		for i, d := range p.Dates {
			points[i] = PricePoint{Date: d, Price: p.rows[i][a]}
		}
		columns[a] = &PriceSeries{Symbol: symbol, Points: points}
	}
	return columns
}

// BenchmarkColumn returns the aligned benchmark prices
func (p *PricePanel) BenchmarkColumn() *PriceSeries {
	points := make([]PricePoint, len(p.Dates))
	for i, d := range p.Dates {
		points[i] = PricePoint{Date: d, Price: p.benchRow[i]}
	}
	return &PriceSeries{Symbol: p.Benchmark, Points: points}
}

// ============================================================================
// ALIGNMENT
// ============================================================================

// Align reduces the asset series and the benchmark series to the dates they
// all share, bounded to [start, end] inclusive when bounds are given. It
// returns the panel and its first date, which seeds the simulation and has
// no return of its own.
//
// A window that leaves a single common date is not an error here; the
// simulation over such a panel simply produces empty output series.
func Align(assets []*PriceSeries, benchmark *PriceSeries, start, end *time.Time) (*PricePanel, time.Time, error) {
	if len(assets) == 0 {
		return nil, time.Time{}, fmt.Errorf("at least one asset series is required: %w", ErrEmptySeries)
	}
	if benchmark == nil || benchmark.Len() == 0 {
		return nil, time.Time{}, fmt.Errorf("benchmark: %w", ErrEmptySeries)
	}
	for _, s := range assets {
		if s == nil || s.Len() == 0 {
			symbol := ""
			if s != nil {
				symbol = s.Symbol
			}
			return nil, time.Time{}, fmt.Errorf("asset %q: %w", symbol, ErrEmptySeries)
		}
	}

	sources := make([]*PriceSeries, len(assets))
	for i, s := range assets {
		sources[i] = s.Window(start, end)
	}
	bench := benchmark.Window(start, end)

	// counts[d] is the number of leading sources that hold benchmark date d.
	// Source k only advances dates every earlier source had, and only once,
	// so repeated dates inside a series cannot inflate the count.
	counts := make(map[int64]int, bench.Len())
	for _, p := range bench.Points {
		counts[p.Date.Unix()] = 0
	}
	for k, s := range sources {
		for _, p := range s.Points {
			if c, ok := counts[p.Date.Unix()]; ok && c == k {
				counts[p.Date.Unix()] = k + 1
			}
		}
	}

	dates := make([]time.Time, 0, len(counts))
	for _, p := range bench.Points {
		if counts[p.Date.Unix()] == len(sources) {
			dates = append(dates, p.Date)
		}
	}
	if len(dates) == 0 {
		return nil, time.Time{}, ErrNoOverlappingData
	}

	panel := &PricePanel{
		Benchmark: benchmark.Symbol,
		Assets:    make([]string, len(assets)),
		Dates:     dates,
		rows:      make([][]float64, len(dates)),
		benchRow:  make([]float64, len(dates)),
		sources:   sources,
		benchmark: bench,
	}
	for i, s := range assets {
		panel.Assets[i] = s.Symbol
	}

	for i, d := range dates {
		row := make([]float64, len(sources))
		for a, s := range sources {
			// Present by construction of dates.
			row[a], _ = s.PriceAt(d)
		}
		panel.rows[i] = row
		panel.benchRow[i], _ = bench.PriceAt(d)
	}

	log.Debug().
		Strs("assets", panel.Assets).
		Str("benchmark", panel.Benchmark).
		Int("dates", len(dates)).
		Time("first", dates[0]).
		Time("last", dates[len(dates)-1]).
		Msg("Aligned price series")

	return panel, dates[0], nil
}

// ============================================================================
// DATES
// ============================================================================

// DateLayout is the calendar date format used for input and output
const DateLayout = "2006-01-02"

// NormalizeDate truncates t to midnight UTC of its calendar day
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}
