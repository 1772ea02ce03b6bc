// Performance metrics calculation for balance series
package backtest

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear annualizes daily statistics
const TradingDaysPerYear = 252

// zeroVolatilityRatio bounds rounding noise: a deviation no larger than
// this fraction of the mean's magnitude is treated as zero and leaves the
// Sharpe ratio undefined
const zeroVolatilityRatio = 1e-9

// ============================================================================
// PERFORMANCE METRICS
// ============================================================================

// Metrics holds performance statistics for one balance series.
//
// MeanReturn, Volatility and SharpeRatio are annualized fractions computed
// from daily returns. When volatility is zero the Sharpe ratio is undefined:
// SharpeRatio is 0 and SharpeDefined is false.
type Metrics struct {
	// Annualized statistics
	MeanReturn    float64 `json:"mean_return"`
	Volatility    float64 `json:"volatility"`
	SharpeRatio   float64 `json:"sharpe_ratio"`
	SharpeDefined bool    `json:"sharpe_defined"`
	SortinoRatio  float64 `json:"sortino_ratio"`

	// Returns
	TotalReturn    float64 `json:"total_return"`     // Final minus initial balance
	TotalReturnPct float64 `json:"total_return_pct"` // Percent
	CAGR           float64 `json:"cagr"`             // Percent
	BestDay        float64 `json:"best_day"`
	WorstDay       float64 `json:"worst_day"`

	// Risk metrics
	MaxDrawdown    float64 `json:"max_drawdown"`     // In balance units
	MaxDrawdownPct float64 `json:"max_drawdown_pct"` // Percent
	CalmarRatio    float64 `json:"calmar_ratio"`     // CAGR / Max Drawdown

	// Series statistics
	InitialBalance float64   `json:"initial_balance"`
	FinalBalance   float64   `json:"final_balance"`
	PeakBalance    float64   `json:"peak_balance"`
	LowBalance     float64   `json:"low_balance"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	Periods        int       `json:"periods"`
}

// CalculateMetrics derives performance metrics from a balance series. Series
// shorter than two points yield ErrInsufficientData; a balance that is not
// positive and finite yields ErrNonPositiveBalance.
func CalculateMetrics(series BalanceSeries) (*Metrics, error) {
	if len(series) < 2 {
		return nil, fmt.Errorf("%d points: %w", len(series), ErrInsufficientData)
	}
	for _, p := range series {
		if !(p.Balance > 0) || math.IsInf(p.Balance, 0) {
			return nil, fmt.Errorf("%v on %s: %w", p.Balance, p.Date.Format(DateLayout), ErrNonPositiveBalance)
		}
	}

	returns := series.Returns()
	first, last := series[0], series[len(series)-1]

	metrics := &Metrics{
		InitialBalance: first.Balance,
		FinalBalance:   last.Balance,
		StartDate:      first.Date,
		EndDate:        last.Date,
		Periods:        len(returns),
		BestDay:        floats.Max(returns),
		WorstDay:       floats.Min(returns),
	}

	calculateReturnStatistics(metrics, returns)
	calculateGrowth(metrics)
	calculateDrawdown(metrics, series)

	if metrics.MaxDrawdownPct > 0 {
		metrics.CalmarRatio = metrics.CAGR / metrics.MaxDrawdownPct
	}

	return metrics, nil
}

// calculateReturnStatistics annualizes mean and sample standard deviation of
// daily returns
func calculateReturnStatistics(metrics *Metrics, returns []float64) {
	mean := stat.Mean(returns, nil)
	metrics.MeanReturn = mean * TradingDaysPerYear

	// A single return has no sample deviation.
	if len(returns) > 1 {
		metrics.Volatility = stat.StdDev(returns, nil) * math.Sqrt(TradingDaysPerYear)
	}

	if metrics.Volatility > zeroVolatilityRatio*math.Abs(metrics.MeanReturn) {
		metrics.SharpeRatio = metrics.MeanReturn / metrics.Volatility
		metrics.SharpeDefined = true
	} else {
		metrics.Volatility = 0
	}

	downside := make([]float64, len(returns))
	for i, r := range returns {
		downside[i] = math.Min(r, 0)
	}
	downsideDeviation := math.Sqrt(floats.Dot(downside, downside)/float64(len(downside))) * math.Sqrt(TradingDaysPerYear)
	if downsideDeviation > zeroVolatilityRatio*math.Abs(metrics.MeanReturn) {
		metrics.SortinoRatio = metrics.MeanReturn / downsideDeviation
	}
}

// calculateGrowth fills total return and CAGR
func calculateGrowth(metrics *Metrics) {
	if metrics.InitialBalance == 0 {
		return
	}

	metrics.TotalReturn = metrics.FinalBalance - metrics.InitialBalance
	metrics.TotalReturnPct = (metrics.TotalReturn / metrics.InitialBalance) * 100.0

	years := metrics.EndDate.Sub(metrics.StartDate).Hours() / 24.0 / 365.25
	if years > 0 && metrics.FinalBalance > 0 && metrics.InitialBalance > 0 {
		cagr := (math.Pow(metrics.FinalBalance/metrics.InitialBalance, 1.0/years) - 1.0) * 100.0
		// Very short windows can overflow; leave CAGR unset rather than Inf.
		if !math.IsInf(cagr, 0) && !math.IsNaN(cagr) {
			metrics.CAGR = cagr
		}
	}
}

// calculateDrawdown tracks the running peak to find the largest decline
func calculateDrawdown(metrics *Metrics, series BalanceSeries) {
	metrics.PeakBalance = series[0].Balance
	metrics.LowBalance = series[0].Balance

	peak := series[0].Balance
	for _, p := range series {
		if p.Balance > peak {
			peak = p.Balance
		}
		if p.Balance > metrics.PeakBalance {
			metrics.PeakBalance = p.Balance
		}
		if p.Balance < metrics.LowBalance {
			metrics.LowBalance = p.Balance
		}

		drawdown := peak - p.Balance
		if drawdown > metrics.MaxDrawdown {
			metrics.MaxDrawdown = drawdown
			if peak > 0 {
				metrics.MaxDrawdownPct = drawdown / peak * 100.0
			}
		}
	}
}
