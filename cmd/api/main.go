package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/rebalance/internal/api"
	"github.com/ajitpratap0/rebalance/internal/backtest"
	"github.com/ajitpratap0/rebalance/internal/cache"
	"github.com/ajitpratap0/rebalance/internal/config"
	"github.com/ajitpratap0/rebalance/internal/db"
	"github.com/ajitpratap0/rebalance/internal/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: configs/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	log.Info().
		Str("version", config.GetVersion()).
		Str("commit", config.GitCommit).
		Str("built", config.BuildTime).
		Str("environment", cfg.App.Environment).
		Str("addr", cfg.API.GetAPIAddr()).
		Msg("Starting Rebalance API Server")

	// Create context that listens for interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if cfg.Vault.Enabled {
		vc, err := config.NewVaultClient(cfg.Vault)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Vault client")
		}
		if err := config.LoadSecretsFromVault(ctx, cfg, vc); err != nil {
			log.Fatal().Err(err).Msg("Failed to load secrets from Vault")
		}
	}
	if cfg.App.Environment == "production" {
		if errs := config.ValidateProductionSecrets(cfg); len(errs) > 0 {
			log.Fatal().Err(errs).Msg("Production secrets are not acceptable")
		}
	}

	validator := config.NewValidator(cfg, config.StartupValidatorOptions(cfg))
	if err := validator.ValidateStartup(ctx); err != nil {
		log.Fatal().Err(err).Msg("Startup validation failed")
	}

	// The database backs the postgres price source and run persistence.
	// Without it the API still serves file-backed and inline backtests.
	database, err := db.NewWithURL(ctx, cfg.DatabaseURL(), cfg.Database.PoolSize)
	if err != nil {
		if cfg.Data.Source == "postgres" {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		log.Warn().Err(err).Msg("Failed to initialize database, continuing without run persistence")
		database = nil
	}
	defer func() {
		if database != nil {
			database.Close()
		}
	}()

	source, err := backtest.NewPriceSource(cfg.Data, database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create price source")
	}

	service := backtest.NewService(source, backtest.OptionsFromConfig(cfg))
	apiConfig := api.Config{
		Host:           cfg.API.Host,
		Port:           cfg.API.Port,
		CORSOrigins:    cfg.API.CORSOrigins,
		RateLimitRPS:   cfg.API.RateLimitRPS,
		RateLimitBurst: cfg.API.RateLimitBurst,
		PersistRuns:    cfg.API.PersistRuns,
		Benchmarks:     config.SupportedBenchmarks,
		Version:        config.GetVersion(),
		Service:        service,
	}

	var runStore *backtest.RunStore
	if database != nil {
		runStore = backtest.NewRunStore(database.Pool())
		service.WithStore(runStore)
		apiConfig.Runs = runStore
		apiConfig.DB = database
	}

	if cfg.Redis.Enabled {
		resultCache, err := cache.NewFromConfig(ctx, cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Result cache unavailable, continuing without caching")
		} else {
			defer resultCache.Close()
			service.WithCache(resultCache)
			apiConfig.Cache = resultCache
		}
	}

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Monitoring.PrometheusPort, config.GetVersion(), log.Logger)
		if err := metricsServer.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start metrics server")
		}

		if database != nil {
			updater := metrics.NewUpdater(database, runStore, 15*time.Second)
			go updater.Start(ctx)
			defer updater.Stop()
		}
	}

	server := api.NewServer(apiConfig)
	server.StartCleanup(ctx, time.Minute)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	select {
	case err := <-serverErrors:
		log.Error().Err(err).Msg("Server error")
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to stop metrics server")
		}
	}

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to stop server gracefully")
		os.Exit(1)
	}

	log.Info().Msg("Server stopped successfully")
}
