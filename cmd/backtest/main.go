// Backtest Runner CLI
// Simulates a periodically rebalanced portfolio against a benchmark on
// historical prices and prints the comparison
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/rebalance/internal/backtest"
	"github.com/ajitpratap0/rebalance/internal/config"
	"github.com/ajitpratap0/rebalance/internal/db"
	btengine "github.com/ajitpratap0/rebalance/pkg/backtest"
)

// ============================================================================
// CLI FLAGS
// ============================================================================

var (
	configPath = flag.String("config", "", "Path to config file (default: configs/config.yaml)")

	// Portfolio
	tickers   = flag.String("tickers", "", "Comma-separated asset tickers, e.g. VTI,BND")
	weights   = flag.String("weights", "", "Comma-separated target weights (default: equal weights)")
	normalize = flag.Bool("normalize", false, "Scale the given weights so they sum to 1")
	benchmark = flag.String("benchmark", "", "Benchmark ticker (SPY, DIA, QQQ, IWM, VTI)")
	initial   = flag.Float64("initial", 0, "Initial portfolio value (default from config: 10000)")
	rebalance = flag.String("rebalance", "", "Rebalance cadence: annually, semi-annually, quarterly, monthly, none")

	// Date range
	startDate = flag.String("start", "", "Start date (YYYY-MM-DD)")
	endDate   = flag.String("end", "", "End date (YYYY-MM-DD, default: latest available)")

	// Data
	source  = flag.String("source", "", "Price source: csv, json or postgres")
	dataDir = flag.String("data-dir", "", "Directory holding <TICKER>.csv or <TICKER>.json files")
	imports = flag.String("import", "", "Comma-separated CSV/JSON files to load into the prices table, then exit")
	replace = flag.Bool("replace", false, "Delete a symbol's stored prices before importing it")

	// Modes
	compare = flag.Bool("compare", false, "Run every rebalance cadence and compare them")
	project = flag.Bool("project", false, "Also show the fixed-weight cumulative return projection")
	save    = flag.Bool("save", false, "Persist the run in the backtest_runs table")
	name    = flag.String("name", "", "Run name when saving")

	// Output
	outputFile = flag.String("output", "", "Write the full report as JSON to this file")
	reportFile = flag.String("report", "", "Write the text report to this file")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
)

// ============================================================================
// MAIN
// ============================================================================

func main() {
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	applyFlagOverrides(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *imports != "" {
		if err := runImport(ctx, cfg, splitList(*imports)); err != nil {
			log.Fatal().Err(err).Msg("Import failed")
		}
		return
	}

	req, err := buildRequest(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	if err := run(ctx, cfg, req); err != nil {
		log.Fatal().Err(err).Msg("Backtest failed")
	}
}

// applyFlagOverrides copies explicitly set flags over the config values
func applyFlagOverrides(cfg *config.Config) {
	if *source != "" {
		cfg.Data.Source = *source
	}
	if *dataDir != "" {
		cfg.Data.Dir = *dataDir
	}
	if *benchmark != "" {
		cfg.Backtest.Benchmark = *benchmark
	}
	if *rebalance != "" {
		cfg.Backtest.Rebalance = *rebalance
	}
	if *initial > 0 {
		cfg.Backtest.InitialValue = *initial
	}
	if *startDate != "" {
		cfg.Backtest.StartDate = *startDate
	}
	if *endDate != "" {
		cfg.Backtest.EndDate = *endDate
	}
}

// buildRequest assembles a request from flags, falling back to the
// configured tickers and weights
func buildRequest(cfg *config.Config) (backtest.Request, error) {
	req := backtest.Request{
		Name:         *name,
		Tickers:      cfg.Backtest.Tickers,
		Weights:      cfg.Backtest.Weights,
		Benchmark:    cfg.Backtest.Benchmark,
		Rebalance:    cfg.Backtest.Rebalance,
		InitialValue: cfg.Backtest.InitialValue,
		StartDate:    cfg.Backtest.StartDate,
		EndDate:      cfg.Backtest.EndDate,
	}

	if *tickers != "" {
		parsed, err := btengine.ParseTickers(*tickers)
		if err != nil {
			return req, err
		}
		req.Tickers = parsed
		req.Weights = nil
	}
	if *weights != "" {
		parsed, err := btengine.ParseWeights(*weights)
		if err != nil {
			return req, err
		}
		req.Weights = parsed
	}
	if *normalize && len(req.Weights) > 0 {
		scaled, err := btengine.Normalize(req.Weights)
		if err != nil {
			return req, err
		}
		req.Weights = scaled
	}

	if len(req.Tickers) == 0 {
		return req, fmt.Errorf("-tickers is required")
	}
	if len(req.Weights) > 0 && len(req.Weights) != len(req.Tickers) {
		return req, fmt.Errorf("got %d weights for %d tickers: %w", len(req.Weights), len(req.Tickers), btengine.ErrLengthMismatch)
	}
	return req, nil
}

// ============================================================================
// BACKTEST EXECUTION
// ============================================================================

func run(ctx context.Context, cfg *config.Config, req backtest.Request) error {
	var database *db.DB
	if cfg.Data.Source == "postgres" || *save {
		var err error
		database, err = db.NewWithURL(ctx, cfg.DatabaseURL(), cfg.Database.PoolSize)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
	}

	src, err := backtest.NewPriceSource(cfg.Data, database)
	if err != nil {
		return err
	}
	service := backtest.NewService(src, backtest.OptionsFromConfig(cfg))

	log.Info().
		Strs("tickers", req.Tickers).
		Str("benchmark", req.Benchmark).
		Str("rebalance", req.Rebalance).
		Str("source", cfg.Data.Source).
		Msg("Starting backtest")

	if *compare {
		return runComparison(ctx, service, req)
	}

	var report *btengine.Report
	if *save {
		service.WithStore(backtest.NewRunStore(database.Pool()))
		run, err := service.SubmitRun(ctx, req)
		if err != nil {
			return err
		}
		log.Info().Str("run_id", run.ID.String()).Msg("Run saved")
		report = run.Results
	} else {
		resp, err := service.Simulate(ctx, req)
		if err != nil {
			return err
		}
		report = resp.Report
	}

	text := btengine.GenerateReport(report)
	fmt.Println(text)

	if *project {
		proj, err := service.Project(ctx, req)
		if err != nil {
			return fmt.Errorf("projection failed: %w", err)
		}
		fmt.Println(btengine.GenerateMetricsReport("FIXED-WEIGHT PROJECTION", proj.PortfolioMetrics))
		fmt.Println(btengine.GenerateMetricsReport("BENCHMARK BUY AND HOLD", proj.BenchmarkMetrics))
	}

	if *reportFile != "" {
		if err := os.WriteFile(*reportFile, []byte(text), 0644); err != nil {
			log.Warn().Err(err).Str("file", *reportFile).Msg("Failed to write report file")
		} else {
			log.Info().Str("file", *reportFile).Msg("Report written to file")
		}
	}

	if *outputFile != "" {
		if err := btengine.ExportResults(report, *outputFile); err != nil {
			return err
		}
	}

	return nil
}

// runComparison aligns prices once and simulates every cadence over the
// shared panel, printing one line each
func runComparison(ctx context.Context, service *backtest.Service, req backtest.Request) error {
	prepared, err := service.Prepare(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("%-14s %14s %10s %10s %8s %11s\n", "CADENCE", "FINAL", "RETURN", "VOL", "SHARPE", "REBALANCES")
	fmt.Println(strings.Repeat("-", 72))

	for _, cadence := range btengine.Cadences {
		engine, err := btengine.NewEngine(prepared.Panel, btengine.SimulationConfig{
			InitialBalance: prepared.Request.InitialValue,
			Weights:        prepared.Request.Weights,
			Cadence:        cadence,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", cadence, err)
		}
		sim, err := engine.Run(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", cadence, err)
		}

		m, err := btengine.CalculateMetrics(sim.Portfolio)
		if err != nil {
			fmt.Printf("%-14s %14.2f %10s %10s %8s %11d\n", cadence, sim.FinalBalance, "n/a", "n/a", "n/a", len(sim.RebalanceDates))
			continue
		}
		sharpe := "n/a"
		if m.SharpeDefined {
			sharpe = fmt.Sprintf("%.3f", m.SharpeRatio)
		}
		fmt.Printf("%-14s %14.2f %9.2f%% %9.2f%% %8s %11d\n",
			cadence, sim.FinalBalance, m.MeanReturn*100, m.Volatility*100, sharpe, len(sim.RebalanceDates))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
