package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ============================================================================
// BATCH SIMULATION
// ============================================================================

// BatchResult is the outcome of one weight vector in a batch
type BatchResult struct {
	Index    int               `json:"index"`
	Weights  []float64         `json:"weights"`
	Result   *SimulationResult `json:"result"`
	Metrics  *Metrics          `json:"metrics,omitempty"`
	Rank     int               `json:"rank"`
	Duration time.Duration     `json:"duration"`
}

// BatchSummary collects the results of a batch, ranked by Sharpe ratio
type BatchSummary struct {
	TotalRuns  int            `json:"total_runs"`
	Duration   time.Duration  `json:"duration"`
	Results    []*BatchResult `json:"results"`
	BestResult *BatchResult   `json:"best_result"`
}

// BatchRunner simulates many weight vectors over one shared panel. Each run
// owns its own Engine; the panel is only read.
type BatchRunner struct {
	panel    *PricePanel
	base     SimulationConfig
	parallel int
}

// NewBatchRunner creates a runner that uses base for everything but the
// weights
func NewBatchRunner(panel *PricePanel, base SimulationConfig) *BatchRunner {
	return &BatchRunner{
		panel:    panel,
		base:     base,
		parallel: 4,
	}
}

// SetParallelism sets the number of parallel workers
func (b *BatchRunner) SetParallelism(n int) {
	if n > 0 {
		b.parallel = n
	}
}

// Run simulates every weight set. The first failing run cancels the rest.
func (b *BatchRunner) Run(ctx context.Context, weightSets [][]float64) (*BatchSummary, error) {
	if len(weightSets) == 0 {
		return nil, fmt.Errorf("no weight sets to simulate")
	}
	startTime := time.Now()

	log.Info().
		Int("runs", len(weightSets)).
		Int("parallel", b.parallel).
		Msg("Starting batch simulation")

	results := make([]*BatchResult, len(weightSets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallel)

	for i, weights := range weightSets {
		g.Go(func() error {
			runStart := time.Now()

			config := b.base
			config.Weights = weights

			engine, err := NewEngine(b.panel, config)
			if err != nil {
				return fmt.Errorf("weight set %d: %w", i, err)
			}
			result, err := engine.Run(gctx)
			if err != nil {
				return fmt.Errorf("weight set %d: %w", i, err)
			}

			br := &BatchResult{
				Index:    i,
				Weights:  weights,
				Result:   result,
				Duration: time.Since(runStart),
			}
			// Short runs still get a result, just no metrics.
			if m, err := CalculateMetrics(result.Portfolio); err == nil {
				br.Metrics = m
			}
			results[i] = br
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := make([]*BatchResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		return sharpeOf(ranked[i]) > sharpeOf(ranked[j])
	})
	for i, r := range ranked {
		r.Rank = i + 1
	}

	summary := &BatchSummary{
		TotalRuns:  len(results),
		Duration:   time.Since(startTime),
		Results:    results,
		BestResult: ranked[0],
	}

	log.Info().
		Int("total_runs", summary.TotalRuns).
		Int("best_index", summary.BestResult.Index).
		Dur("duration", summary.Duration).
		Msg("Batch simulation complete")

	return summary, nil
}

func sharpeOf(r *BatchResult) float64 {
	if r.Metrics == nil || !r.Metrics.SharpeDefined {
		return math.Inf(-1)
	}
	return r.Metrics.SharpeRatio
}
