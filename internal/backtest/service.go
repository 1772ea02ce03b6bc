package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/rebalance/internal/cache"
	"github.com/ajitpratap0/rebalance/internal/config"
	"github.com/ajitpratap0/rebalance/internal/metrics"
	btengine "github.com/ajitpratap0/rebalance/pkg/backtest"
)

// ResultCache stores computed responses keyed by request
type ResultCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
}

// RunRepository persists runs submitted through SubmitRun
type RunRepository interface {
	CreateRun(ctx context.Context, run *Run) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status RunStatus, errorMsg string) error
	SaveResults(ctx context.Context, id uuid.UUID, report *btengine.Report) error
}

// Options configures a Service
type Options struct {
	Policy            btengine.WeightPolicy
	Parallelism       int
	AllowedBenchmarks []string // empty allows any well-formed ticker
	Defaults          Defaults
	SourceName        string // metrics label for the price source
}

// OptionsFromConfig derives service options from configuration
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		Policy: btengine.WeightPolicy{
			Tolerance:         cfg.Backtest.WeightTolerance,
			AllowUnnormalized: cfg.Backtest.AllowUnnormalizedWeights,
		},
		Parallelism: cfg.Backtest.Parallelism,
		Defaults:    DefaultsFromConfig(cfg.Backtest),
		SourceName:  cfg.Data.Source,
	}
	if !cfg.Backtest.AllowAnyBenchmark {
		opts.AllowedBenchmarks = config.SupportedBenchmarks
	}
	return opts
}

// Service runs backtests for the API and the CLI: it validates requests,
// loads prices, drives the engine and records metrics
type Service struct {
	source btengine.PriceSource
	opts   Options
	cache  ResultCache
	store  RunRepository
	logger zerolog.Logger
}

// NewService creates a service reading prices from source. source may be
// nil when every request carries its series inline.
func NewService(source btengine.PriceSource, opts Options) *Service {
	if opts.Parallelism < 1 {
		opts.Parallelism = 4
	}
	if opts.SourceName == "" {
		opts.SourceName = "unknown"
	}
	if opts.Defaults.Rebalance == "" {
		opts.Defaults.Rebalance = string(btengine.CadenceAnnually)
	}
	if opts.Defaults.InitialValue == 0 {
		opts.Defaults.InitialValue = 10000
	}
	if opts.Defaults.Benchmark == "" {
		opts.Defaults.Benchmark = "SPY"
	}
	return &Service{
		source: source,
		opts:   opts,
		logger: config.NewLogger("backtest-service"),
	}
}

// WithCache enables result caching
func (s *Service) WithCache(c ResultCache) *Service {
	s.cache = c
	return s
}

// WithStore enables run persistence
func (s *Service) WithStore(store RunRepository) *Service {
	s.store = store
	return s
}

// HasStore reports whether runs can be persisted
func (s *Service) HasStore() bool {
	return s.store != nil
}

// Prepared is a validated request with its aligned price panel
type Prepared struct {
	Request   Request
	Cadence   btengine.RebalanceCadence
	Panel     *btengine.PricePanel
	FirstDate time.Time
}

// SimulationResponse is the outcome of Simulate
type SimulationResponse struct {
	RunID   string           `json:"run_id,omitempty"`
	Request Request          `json:"request"`
	Report  *btengine.Report `json:"report"`
	Cached  bool             `json:"cached"`
}

// Projection is the static-allocation view of a weight vector alongside
// the benchmark held on its own
type Projection struct {
	Request          Request                `json:"request"`
	Portfolio        btengine.BalanceSeries `json:"portfolio"`
	Benchmark        btengine.BalanceSeries `json:"benchmark"`
	PortfolioMetrics *btengine.Metrics      `json:"portfolio_metrics,omitempty"`
	BenchmarkMetrics *btengine.Metrics      `json:"benchmark_metrics,omitempty"`
	Cached           bool                   `json:"cached"`
}

// Prepare validates req, loads every series it names and aligns them
func (s *Service) Prepare(ctx context.Context, req Request) (*Prepared, error) {
	norm, err := normalize(req, s.opts.Defaults, s.opts.AllowedBenchmarks)
	if err != nil {
		return nil, err
	}
	return s.prepare(ctx, norm)
}

func (s *Service) prepare(ctx context.Context, req Request) (*Prepared, error) {
	cadence, err := btengine.ParseCadence(req.Rebalance)
	if err != nil {
		return nil, err
	}
	if err := s.opts.Policy.Validate(req.Weights, len(req.Tickers)); err != nil {
		return nil, err
	}

	start, end, err := req.dateBounds()
	if err != nil {
		return nil, err
	}

	assets, benchmark, err := s.loadSeries(ctx, req, start, end)
	if err != nil {
		return nil, err
	}

	panel, first, err := btengine.Align(assets, benchmark, start, end)
	if err != nil {
		return nil, err
	}

	return &Prepared{
		Request:   req,
		Cadence:   cadence,
		Panel:     panel,
		FirstDate: first,
	}, nil
}

// loadSeries resolves inline series first and fetches the rest from the
// source in one concurrent batch
func (s *Service) loadSeries(ctx context.Context, req Request, start, end *time.Time) ([]*btengine.PriceSeries, *btengine.PriceSeries, error) {
	symbols := append(append([]string{}, req.Tickers...), req.Benchmark)
	loaded := make([]*btengine.PriceSeries, len(symbols))

	var missing []string
	var missingIdx []int
	for i, symbol := range symbols {
		series, ok, err := req.inlineSeries(symbol)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			loaded[i] = series
			continue
		}
		missing = append(missing, symbol)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		if s.source == nil {
			return nil, nil, fmt.Errorf("no price source configured for %v: %w", missing, btengine.ErrSeriesNotFound)
		}

		loadStart := time.Now()
		fetched, err := btengine.LoadAll(ctx, s.source, missing, start, end)
		metrics.RecordPriceLoad(s.opts.SourceName, float64(time.Since(loadStart).Milliseconds()))
		if err != nil {
			return nil, nil, err
		}
		for j, series := range fetched {
			loaded[missingIdx[j]] = series
		}
	}

	n := len(req.Tickers)
	return loaded[:n], loaded[n], nil
}

// Simulate runs the rebalancing simulation for req and reports metrics for
// the portfolio and the benchmark
func (s *Service) Simulate(ctx context.Context, req Request) (*SimulationResponse, error) {
	norm, err := normalize(req, s.opts.Defaults, s.opts.AllowedBenchmarks)
	if err != nil {
		return nil, err
	}

	key := s.cacheKey("simulate", norm)
	var cached SimulationResponse
	if s.lookup(ctx, key, &cached) {
		cached.Cached = true
		return &cached, nil
	}

	prepared, err := s.prepare(ctx, norm)
	if err != nil {
		return nil, err
	}

	report, err := s.run(ctx, prepared)
	if err != nil {
		return nil, err
	}

	resp := &SimulationResponse{
		Request: norm.withoutSeries(),
		Report:  report,
	}
	s.remember(ctx, key, resp)
	return resp, nil
}

// run drives one engine over a prepared panel
func (s *Service) run(ctx context.Context, p *Prepared) (*btengine.Report, error) {
	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	start := time.Now()
	cadence := string(p.Cadence)

	engine, err := btengine.NewEngine(p.Panel, btengine.SimulationConfig{
		InitialBalance: p.Request.InitialValue,
		Weights:        p.Request.Weights,
		Cadence:        p.Cadence,
	})
	if err != nil {
		s.recordFailure(ctx, cadence, start, err)
		return nil, err
	}

	result, err := engine.Run(ctx)
	if err != nil {
		s.recordFailure(ctx, cadence, start, err)
		return nil, err
	}

	report, err := btengine.NewReport(result)
	if err != nil {
		s.recordFailure(ctx, cadence, start, err)
		return nil, err
	}

	metrics.RecordBacktest(cadence, metrics.StatusCompleted,
		float64(time.Since(start).Milliseconds()), len(result.Portfolio), len(result.RebalanceDates))
	if m := report.PortfolioMetrics; m != nil && m.SharpeDefined {
		metrics.LastSharpeRatio.Set(m.SharpeRatio)
	}

	s.logger.Debug().
		Strs("assets", result.Assets).
		Str("cadence", cadence).
		Dur("elapsed", time.Since(start)).
		Msg("Report ready")

	return report, nil
}

func (s *Service) recordFailure(ctx context.Context, cadence string, start time.Time, err error) {
	status := metrics.StatusFailed
	if ctx.Err() != nil {
		status = metrics.StatusCancelled
	}
	metrics.RecordBacktest(cadence, status, float64(time.Since(start).Milliseconds()), 0, 0)
	metrics.RecordError(metrics.NormalizeError(err), "backtest")
}

// Project computes the buy-and-hold cumulative value of req's weights held
// fixed, and of the benchmark alone
func (s *Service) Project(ctx context.Context, req Request) (*Projection, error) {
	norm, err := normalize(req, s.opts.Defaults, s.opts.AllowedBenchmarks)
	if err != nil {
		return nil, err
	}

	key := s.cacheKey("project", norm)
	var cached Projection
	if s.lookup(ctx, key, &cached) {
		cached.Cached = true
		return &cached, nil
	}

	p, err := s.prepare(ctx, norm)
	if err != nil {
		return nil, err
	}

	portfolio, err := btengine.Project(p.Panel, norm.Weights, norm.InitialValue)
	if err != nil {
		return nil, err
	}
	benchmark, err := btengine.ProjectBenchmark(p.Panel, norm.InitialValue)
	if err != nil {
		return nil, err
	}

	proj := &Projection{
		Request:   norm.withoutSeries(),
		Portfolio: portfolio,
		Benchmark: benchmark,
	}
	if proj.PortfolioMetrics, err = optionalMetrics(portfolio); err != nil {
		return nil, err
	}
	if proj.BenchmarkMetrics, err = optionalMetrics(benchmark); err != nil {
		return nil, err
	}

	s.remember(ctx, key, proj)
	return proj, nil
}

// optionalMetrics returns nil metrics for series too short to analyze
func optionalMetrics(series btengine.BalanceSeries) (*btengine.Metrics, error) {
	m, err := btengine.CalculateMetrics(series)
	if errors.Is(err, btengine.ErrInsufficientData) {
		return nil, nil
	}
	return m, err
}

// Batch simulates every weight set in req over one shared panel, ranking
// the results by Sharpe ratio
func (s *Service) Batch(ctx context.Context, req BatchRequest) (*btengine.BatchSummary, error) {
	if len(req.WeightSets) == 0 {
		return nil, fmt.Errorf("weight_sets: at least one weight set is required: %w", btengine.ErrLengthMismatch)
	}

	base := req.Request
	base.Weights = req.WeightSets[0]
	norm, err := normalize(base, s.opts.Defaults, s.opts.AllowedBenchmarks)
	if err != nil {
		return nil, err
	}
	for i, weights := range req.WeightSets {
		if err := s.opts.Policy.Validate(weights, len(norm.Tickers)); err != nil {
			return nil, fmt.Errorf("weight set %d: %w", i, err)
		}
	}

	p, err := s.prepare(ctx, norm)
	if err != nil {
		return nil, err
	}

	runner := btengine.NewBatchRunner(p.Panel, btengine.SimulationConfig{
		InitialBalance: norm.InitialValue,
		Cadence:        p.Cadence,
	})
	runner.SetParallelism(s.opts.Parallelism)

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	summary, err := runner.Run(ctx, req.WeightSets)
	if err != nil {
		metrics.RecordError(metrics.NormalizeError(err), "batch")
		return nil, err
	}
	metrics.RecordBatch(len(req.WeightSets))
	return summary, nil
}

// SubmitRun records req as a persisted run, simulates it and stores the
// report. A failed simulation is saved with its error and returned.
func (s *Service) SubmitRun(ctx context.Context, req Request) (*Run, error) {
	if s.store == nil {
		return nil, fmt.Errorf("run persistence is not configured")
	}

	norm, err := normalize(req, s.opts.Defaults, s.opts.AllowedBenchmarks)
	if err != nil {
		return nil, err
	}

	run := &Run{
		Name:         norm.Name,
		Tickers:      norm.Tickers,
		Weights:      norm.Weights,
		Benchmark:    norm.Benchmark,
		Rebalance:    norm.Rebalance,
		InitialValue: norm.InitialValue,
	}
	if run.Name == "" {
		run.Name = fmt.Sprintf("%v %s", norm.Tickers, norm.Rebalance)
	}
	if run.StartDate, run.EndDate, err = norm.dateBounds(); err != nil {
		return nil, err
	}

	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	logger := config.NewRunLogger(run.ID.String())

	if err := s.store.UpdateStatus(ctx, run.ID, RunStatusRunning, ""); err != nil {
		return nil, err
	}
	run.Status = RunStatusRunning

	report, runErr := s.execute(ctx, norm)
	if runErr != nil {
		logger.Error().Err(runErr).Msg("Backtest run failed")
		if err := s.store.UpdateStatus(context.WithoutCancel(ctx), run.ID, RunStatusFailed, runErr.Error()); err != nil {
			logger.Error().Err(err).Msg("Failed to mark run as failed")
		}
		run.Status = RunStatusFailed
		run.ErrorMessage = runErr.Error()
		return run, runErr
	}

	if err := s.store.SaveResults(ctx, run.ID, report); err != nil {
		return nil, err
	}
	run.Status = RunStatusCompleted
	run.Results = report
	if report.Simulation != nil {
		fb := report.Simulation.FinalBalance
		run.FinalBalance = &fb
	}
	if m := report.PortfolioMetrics; m != nil && m.SharpeDefined {
		sr := m.SharpeRatio
		run.SharpeRatio = &sr
	}

	logger.Info().Msg("Backtest run completed")
	return run, nil
}

func (s *Service) execute(ctx context.Context, norm Request) (*btengine.Report, error) {
	p, err := s.prepare(ctx, norm)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, p)
}

func (s *Service) cacheKey(kind string, req Request) string {
	if s.cache == nil {
		return ""
	}
	key, err := cache.Key(kind, req)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to build cache key")
		return ""
	}
	return key
}

func (s *Service) lookup(ctx context.Context, key string, dest interface{}) bool {
	if key == "" {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Result cache lookup failed")
		return false
	}
	return hit
}

func (s *Service) remember(ctx context.Context, key string, value interface{}) {
	if key == "" {
		return
	}
	if err := s.cache.Set(ctx, key, value); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to cache result")
	}
}
