package backtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ============================================================================
// REPORT
// ============================================================================

// Report bundles a simulation with the metrics of both of its series
type Report struct {
	GeneratedAt      time.Time         `json:"generated_at"`
	Simulation       *SimulationResult `json:"simulation"`
	PortfolioMetrics *Metrics          `json:"portfolio_metrics,omitempty"`
	BenchmarkMetrics *Metrics          `json:"benchmark_metrics,omitempty"`
}

// NewReport computes metrics for a simulation result. Metrics are left nil
// when the simulated period is too short to produce returns; any other
// error is returned.
func NewReport(result *SimulationResult) (*Report, error) {
	report := &Report{
		GeneratedAt: time.Now().UTC(),
		Simulation:  result,
	}

	portfolio, err := CalculateMetrics(result.Portfolio)
	if err != nil && !errors.Is(err, ErrInsufficientData) {
		return nil, fmt.Errorf("portfolio metrics: %w", err)
	}
	report.PortfolioMetrics = portfolio

	benchmark, err := CalculateMetrics(result.Benchmark)
	if err != nil && !errors.Is(err, ErrInsufficientData) {
		return nil, fmt.Errorf("benchmark metrics: %w", err)
	}
	report.BenchmarkMetrics = benchmark

	return report, nil
}

// GenerateReport renders a human-readable comparison of portfolio and
// benchmark
func GenerateReport(report *Report) string {
	sim := report.Simulation

	var b strings.Builder
	fmt.Fprintf(&b, `
================================================================================
REBALANCE BACKTEST REPORT
================================================================================

CONFIGURATION
-------------
Assets:           %s
Weights:          %s
Benchmark:        %s
Rebalance:        %s
Initial Value:    $%.2f
Start Date:       %s

FINAL BALANCES
--------------
Portfolio:        $%.2f
Benchmark:        $%.2f
`,
		strings.Join(sim.Assets, ", "),
		formatWeights(sim.Weights),
		sim.BenchmarkSymbol,
		sim.Cadence,
		sim.InitialBalance,
		sim.StartDate.Format(DateLayout),
		sim.FinalBalance,
		sim.FinalBenchmarkBalance,
	)

	writeMetricsSection(&b, "PORTFOLIO METRICS", report.PortfolioMetrics)
	writeMetricsSection(&b, "BENCHMARK METRICS", report.BenchmarkMetrics)

	fmt.Fprintf(&b, "\nREBALANCE DATES (%d)\n", len(sim.RebalanceDates))
	b.WriteString("-------------------\n")
	if len(sim.RebalanceDates) == 0 {
		b.WriteString("None\n")
	}
	for _, d := range sim.RebalanceDates {
		b.WriteString(d.Format(DateLayout))
		b.WriteString("\n")
	}

	b.WriteString("\n================================================================================\n")
	return b.String()
}

// GenerateMetricsReport renders a single metrics block under title
func GenerateMetricsReport(title string, metrics *Metrics) string {
	var b strings.Builder
	writeMetricsSection(&b, strings.ToUpper(title), metrics)
	return b.String()
}

func writeMetricsSection(b *strings.Builder, title string, m *Metrics) {
	fmt.Fprintf(b, "\n%s\n%s\n", title, strings.Repeat("-", len(title)))
	if m == nil {
		b.WriteString("Not enough data\n")
		return
	}

	sharpe := "undefined (zero volatility)"
	if m.SharpeDefined {
		sharpe = fmt.Sprintf("%.2f", m.SharpeRatio)
	}

	fmt.Fprintf(b, `Period:           %s to %s (%d trading days)
Mean Return:      %.2f%% (annualized)
Volatility:       %.2f%% (annualized)
Sharpe Ratio:     %s
Sortino Ratio:    %.2f
Total Return:     $%.2f (%.2f%%)
CAGR:             %.2f%%
Max Drawdown:     $%.2f (%.2f%%)
Calmar Ratio:     %.2f
Best Day:         %.2f%%
Worst Day:        %.2f%%
`,
		m.StartDate.Format(DateLayout),
		m.EndDate.Format(DateLayout),
		m.Periods,
		m.MeanReturn*100,
		m.Volatility*100,
		sharpe,
		m.SortinoRatio,
		m.TotalReturn,
		m.TotalReturnPct,
		m.CAGR,
		m.MaxDrawdown,
		m.MaxDrawdownPct,
		m.CalmarRatio,
		m.BestDay*100,
		m.WorstDay*100,
	)
}

func formatWeights(weights []float64) string {
	parts := make([]string, len(weights))
	for i, w := range weights {
		parts[i] = fmt.Sprintf("%.2f%%", w*100)
	}
	return strings.Join(parts, ", ")
}

// ============================================================================
// EXPORT
// ============================================================================

// ExportResults writes the report as indented JSON
func ExportResults(report *Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}

	log.Info().
		Str("file", path).
		Int("points", len(report.Simulation.Portfolio)).
		Int("rebalances", len(report.Simulation.RebalanceDates)).
		Float64("final_balance", report.Simulation.FinalBalance).
		Msg("Exported backtest results")

	return nil
}
