// Package backtest provides a rebalancing backtest engine for multi-asset portfolios
package backtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ============================================================================
// DATA STRUCTURES
// ============================================================================

// RebalanceCadence is the calendar interval at which holdings are reset to
// their target weights
type RebalanceCadence string

const (
	CadenceAnnually     RebalanceCadence = "annually"
	CadenceSemiAnnually RebalanceCadence = "semi-annually"
	CadenceQuarterly    RebalanceCadence = "quarterly"
	CadenceMonthly      RebalanceCadence = "monthly"
	CadenceNone         RebalanceCadence = "none"
)

// Cadences lists the supported cadences from least to most frequent
var Cadences = []RebalanceCadence{
	CadenceNone,
	CadenceAnnually,
	CadenceSemiAnnually,
	CadenceQuarterly,
	CadenceMonthly,
}

// ParseCadence parses a cadence name, case-insensitively
func ParseCadence(s string) (RebalanceCadence, error) {
	c := RebalanceCadence(strings.ToLower(strings.TrimSpace(s)))
	if _, _, ok := c.months(); !ok {
		return "", fmt.Errorf("%q: %w", s, ErrUnknownCadence)
	}
	return c, nil
}

// Months returns the number of calendar months between rebalances. The
// second value is false for CadenceNone, whose interval is unbounded.
func (c RebalanceCadence) Months() (int, bool) {
	months, bounded, _ := c.months()
	return months, bounded
}

func (c RebalanceCadence) months() (months int, bounded bool, known bool) {
	switch c {
	case CadenceAnnually:
		return 12, true, true
	case CadenceSemiAnnually:
		return 6, true, true
	case CadenceQuarterly:
		return 3, true, true
	case CadenceMonthly:
		return 1, true, true
	case CadenceNone:
		return 0, false, true
	default:
		return 0, false, false
	}
}

// Valid reports whether c is one of the supported cadences
func (c RebalanceCadence) Valid() bool {
	_, _, ok := c.months()
	return ok
}

// BalancePoint is the value of a holding on one date
type BalancePoint struct {
	Date    time.Time `json:"date"`
	Balance float64   `json:"balance"`
}

// BalanceSeries is a date-ordered sequence of balances
type BalanceSeries []BalancePoint

// Last returns the final point of the series
func (s BalanceSeries) Last() (BalancePoint, bool) {
	if len(s) == 0 {
		return BalancePoint{}, false
	}
	return s[len(s)-1], true
}

// Values returns the balances without dates
func (s BalanceSeries) Values() []float64 {
	values := make([]float64, len(s))
	for i, p := range s {
		values[i] = p.Balance
	}
	return values
}

// Returns computes period-over-period fractional returns. The result has one
// element fewer than the series.
func (s BalanceSeries) Returns() []float64 {
	if len(s) < 2 {
		return nil
	}
	returns := make([]float64, len(s)-1)
	for i := 1; i < len(s); i++ {
		returns[i-1] = (s[i].Balance - s[i-1].Balance) / s[i-1].Balance
	}
	return returns
}

// SimulationConfig holds the inputs of one rebalancing run
type SimulationConfig struct {
	InitialBalance float64          `json:"initial_balance"`
	Weights        []float64        `json:"weights"`
	Cadence        RebalanceCadence `json:"cadence"`
}

// SimulationResult is the output of a rebalancing run
type SimulationResult struct {
	Assets          []string         `json:"assets"`
	BenchmarkSymbol string           `json:"benchmark_symbol"`
	Weights         []float64        `json:"weights"`
	Cadence         RebalanceCadence `json:"cadence"`
	InitialBalance  float64          `json:"initial_balance"`
	StartDate       time.Time        `json:"start_date"`

	Portfolio      BalanceSeries `json:"portfolio"`
	Benchmark      BalanceSeries `json:"benchmark"`
	RebalanceDates []time.Time   `json:"rebalance_dates"`

	FinalAssetBalances    []float64 `json:"final_asset_balances"`
	FinalBalance          float64   `json:"final_balance"`
	FinalBenchmarkBalance float64   `json:"final_benchmark_balance"`
}

// ============================================================================
// REBALANCE ENGINE
// ============================================================================

// Engine walks an aligned price panel one date at a time, compounding each
// asset's balance by its daily price change and resetting balances to the
// target weights whenever the cadence interval has elapsed. An Engine owns
// its balance state and must not be shared between goroutines; the panel it
// reads from may be.
type Engine struct {
	// Configuration
	InitialBalance float64          `json:"initial_balance"`
	Weights        []float64        `json:"weights"`
	Cadence        RebalanceCadence `json:"cadence"`

	// State
	AssetBalances    []float64 `json:"asset_balances"`
	BenchmarkBalance float64   `json:"benchmark_balance"`
	PortfolioBalance float64   `json:"portfolio_balance"`
	LastRebalance    time.Time `json:"last_rebalance"`

	// Output
	Portfolio      BalanceSeries `json:"portfolio"`
	Benchmark      BalanceSeries `json:"benchmark"`
	RebalanceDates []time.Time   `json:"rebalance_dates"`

	panel  *PricePanel
	cursor int
}

// NewEngine prepares a run over panel. Weight normalization is the caller's
// concern (see WeightPolicy); only the weight count is checked here.
func NewEngine(panel *PricePanel, config SimulationConfig) (*Engine, error) {
	if panel == nil || panel.Len() == 0 {
		return nil, ErrEmptyPanel
	}
	if len(config.Weights) != panel.AssetCount() {
		return nil, fmt.Errorf("%d weights for %d assets: %w", len(config.Weights), panel.AssetCount(), ErrLengthMismatch)
	}
	if !config.Cadence.Valid() {
		return nil, fmt.Errorf("%q: %w", config.Cadence, ErrUnknownCadence)
	}

	weights := make([]float64, len(config.Weights))
	copy(weights, config.Weights)

	balances := make([]float64, len(weights))
	for i, w := range weights {
		balances[i] = w * config.InitialBalance
	}

	return &Engine{
		InitialBalance:   config.InitialBalance,
		Weights:          weights,
		Cadence:          config.Cadence,
		AssetBalances:    balances,
		BenchmarkBalance: config.InitialBalance,
		PortfolioBalance: config.InitialBalance,
		LastRebalance:    panel.Dates[0],
		Portfolio:        make(BalanceSeries, 0, panel.Len()-1),
		Benchmark:        make(BalanceSeries, 0, panel.Len()-1),
		RebalanceDates:   []time.Time{},
		panel:            panel,
		// The first aligned date only seeds the balances.
		cursor: 1,
	}, nil
}

// ============================================================================
// TIME-STEP SIMULATION
// ============================================================================

// Step advances the simulation by one aligned date. It returns false once
// every date has been processed.
func (e *Engine) Step() (bool, error) {
	if e.cursor >= e.panel.Len() {
		return false, nil
	}

	date := e.panel.Dates[e.cursor]
	row := e.panel.Row(e.cursor)

	for i := range e.AssetBalances {
		prev, ok := e.panel.AssetPriceBefore(i, date)
		if !ok {
			return false, fmt.Errorf("%s on %s: %w", e.panel.Assets[i], date.Format(DateLayout), ErrMissingPriorPrice)
		}
		e.AssetBalances[i] *= row[i] / prev
	}

	prev, ok := e.panel.BenchmarkPriceBefore(date)
	if !ok {
		return false, fmt.Errorf("%s on %s: %w", e.panel.Benchmark, date.Format(DateLayout), ErrMissingPriorPrice)
	}
	e.BenchmarkBalance *= e.panel.BenchmarkAt(e.cursor) / prev

	e.PortfolioBalance = 0
	for _, b := range e.AssetBalances {
		e.PortfolioBalance += b
	}

	e.Portfolio = append(e.Portfolio, BalancePoint{Date: date, Balance: e.PortfolioBalance})
	e.Benchmark = append(e.Benchmark, BalancePoint{Date: date, Balance: e.BenchmarkBalance})

	if e.rebalanceDue(date) {
		e.rebalance(date)
	}

	e.cursor++
	return true, nil
}

// rebalanceDue compares year and month only, so a rebalance can fire on the
// first trading day of a month even if the previous one was days earlier.
func (e *Engine) rebalanceDue(date time.Time) bool {
	interval, bounded := e.Cadence.Months()
	if !bounded {
		return false
	}
	return MonthsBetween(e.LastRebalance, date) >= interval
}

// rebalance redistributes the current portfolio total to the target weights
func (e *Engine) rebalance(date time.Time) {
	for i, w := range e.Weights {
		e.AssetBalances[i] = w * e.PortfolioBalance
	}
	e.LastRebalance = date
	e.RebalanceDates = append(e.RebalanceDates, date)

	log.Debug().
		Time("date", date).
		Float64("portfolio_balance", e.PortfolioBalance).
		Msg("Rebalanced portfolio")
}

// MonthsBetween returns the calendar month difference from one date to
// another, ignoring the day of month
func MonthsBetween(from, to time.Time) int {
	return 12*(to.Year()-from.Year()) + int(to.Month()) - int(from.Month())
}

// ============================================================================
// RUNNING A SIMULATION
// ============================================================================

// Run steps through every remaining date and returns the result
func (e *Engine) Run(ctx context.Context) (*SimulationResult, error) {
	log.Info().
		Strs("assets", e.panel.Assets).
		Str("benchmark", e.panel.Benchmark).
		Str("cadence", string(e.Cadence)).
		Float64("initial_balance", e.InitialBalance).
		Int("dates", e.panel.Len()).
		Msg("Starting rebalance simulation")

	stepCount := 0
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("simulation cancelled: %w", ctx.Err())
		default:
		}

		hasMore, err := e.Step()
		if err != nil {
			return nil, fmt.Errorf("step error: %w", err)
		}
		if !hasMore {
			break
		}
		stepCount++
	}

	result := e.Result()

	log.Info().
		Int("steps", stepCount).
		Int("rebalances", len(result.RebalanceDates)).
		Float64("final_balance", result.FinalBalance).
		Float64("final_benchmark_balance", result.FinalBenchmarkBalance).
		Msg("Rebalance simulation complete")

	return result, nil
}

// Result snapshots the engine's output so far
func (e *Engine) Result() *SimulationResult {
	balances := make([]float64, len(e.AssetBalances))
	copy(balances, e.AssetBalances)

	result := &SimulationResult{
		Assets:                e.panel.Assets,
		BenchmarkSymbol:       e.panel.Benchmark,
		Weights:               e.Weights,
		Cadence:               e.Cadence,
		InitialBalance:        e.InitialBalance,
		StartDate:             e.panel.Dates[0],
		Portfolio:             e.Portfolio,
		Benchmark:             e.Benchmark,
		RebalanceDates:        e.RebalanceDates,
		FinalAssetBalances:    balances,
		FinalBalance:          e.InitialBalance,
		FinalBenchmarkBalance: e.InitialBalance,
	}
	if last, ok := e.Portfolio.Last(); ok {
		result.FinalBalance = last.Balance
	}
	if last, ok := e.Benchmark.Last(); ok {
		result.FinalBenchmarkBalance = last.Balance
	}
	return result
}

// Simulate runs a complete rebalancing backtest over panel
func Simulate(panel *PricePanel, config SimulationConfig) (*SimulationResult, error) {
	engine, err := NewEngine(panel, config)
	if err != nil {
		return nil, err
	}
	return engine.Run(context.Background())
}
