// Package api serves the backtest engine over HTTP
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/rebalance/internal/backtest"
	"github.com/ajitpratap0/rebalance/internal/metrics"
)

// Pinger is a dependency whose availability is reported by /status
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunReader reads and deletes persisted runs
type RunReader interface {
	GetRun(ctx context.Context, id uuid.UUID) (*backtest.Run, error)
	ListRuns(ctx context.Context, status backtest.RunStatus, limit, offset int) ([]*backtest.Run, int, error)
	DeleteRun(ctx context.Context, id uuid.UUID) error
}

// Server represents the REST API server
type Server struct {
	router      *gin.Engine
	service     *backtest.Service
	runs        RunReader
	db          Pinger
	cache       Pinger
	benchmarks  []string
	persistRuns bool
	version     string
	limiter     *RateLimiterMiddleware
	addr        string
	server      *http.Server
}

// Config contains server configuration
type Config struct {
	Host           string
	Port           int
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	PersistRuns    bool
	Benchmarks     []string
	Version        string

	Service *backtest.Service
	Runs    RunReader // nil disables the /runs endpoints
	DB      Pinger
	Cache   Pinger
}

// NewServer creates a new API server
func NewServer(config Config) *Server {
	router := gin.New()

	limiter := NewRateLimiterMiddleware(&RateLimiterConfig{
		GlobalRPS:    config.RateLimitRPS,
		GlobalBurst:  config.RateLimitBurst,
		ComputeRPS:   config.RateLimitRPS / 4,
		ComputeBurst: max(config.RateLimitBurst/4, 1),
		Enabled:      config.RateLimitRPS > 0,
	})

	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(metrics.GinMiddleware())
	router.Use(cors.New(corsConfig(config.CORSOrigins)))
	router.Use(limiter.GlobalMiddleware())

	server := &Server{
		router:      router,
		service:     config.Service,
		runs:        config.Runs,
		db:          config.DB,
		cache:       config.Cache,
		benchmarks:  config.Benchmarks,
		persistRuns: config.PersistRuns,
		version:     config.Version,
		limiter:     limiter,
		addr:        fmt.Sprintf("%s:%d", config.Host, config.Port),
	}

	server.setupRoutes()

	return server
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// Router exposes the gin engine, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// StartCleanup prunes idle rate limiter entries until ctx is done
func (s *Server) StartCleanup(ctx context.Context, interval time.Duration) {
	s.limiter.StartCleanupWorker(ctx, interval)
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}

	return nil
}

// LoggerMiddleware is a custom logging middleware for Gin
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		logEvent := log.Info()
		if statusCode >= http.StatusInternalServerError {
			logEvent = log.Error()
		}
		logEvent = logEvent.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP())

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("API request")
	}
}
