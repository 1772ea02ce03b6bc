// Package metrics exposes Prometheus collectors for backtest runs, the API
// and the storage layers
package metrics

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ajitpratap0/rebalance/pkg/backtest"
)

// Bounded cardinality constants for metric labels.
const (
	// Run outcomes
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"

	// Error categories
	ErrorTypeInput     = "input"
	ErrorTypeData      = "data"
	ErrorTypeNotFound  = "not_found"
	ErrorTypeTimeout   = "timeout"
	ErrorTypeCancelled = "cancelled"
	ErrorTypeInternal  = "internal"

	// Cadence label for anything unrecognised
	CadenceOther = "other"
)

// NormalizeCadence maps a cadence string onto the known set so label
// values stay bounded
func NormalizeCadence(cadence string) string {
	c, err := backtest.ParseCadence(cadence)
	if err != nil {
		return CadenceOther
	}
	return string(c)
}

// NormalizeError maps an error to a bounded category
func NormalizeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, backtest.ErrSeriesNotFound):
		return ErrorTypeNotFound
	case errors.Is(err, backtest.ErrMissingPriorPrice):
		return ErrorTypeData
	case backtest.IsInputError(err):
		return ErrorTypeInput
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "deadline") || strings.Contains(lower, "timeout"):
		return ErrorTypeTimeout
	case strings.Contains(lower, "context canceled"):
		return ErrorTypeCancelled
	default:
		return ErrorTypeInternal
	}
}

// Backtest Metrics
var (
	BacktestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rebalance_backtest_runs_total",
		Help: "Total number of backtest simulations by cadence and outcome",
	}, []string{"cadence", "status"})

	BacktestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rebalance_backtest_duration_ms",
		Help:    "Backtest simulation duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	}, []string{"cadence"})

	RebalanceEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rebalance_events_total",
		Help: "Total number of portfolio rebalances performed across simulations",
	}, []string{"cadence"})

	SimulatedDays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rebalance_simulated_days_total",
		Help: "Total number of trading days stepped through",
	})

	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rebalance_active_runs",
		Help: "Number of simulations currently executing",
	})

	LastSharpeRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rebalance_last_sharpe_ratio",
		Help: "Annualized Sharpe ratio of the most recent completed simulation",
	})

	BatchRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rebalance_batch_runs_total",
		Help: "Total number of batch backtests",
	})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rebalance_batch_size",
		Help:    "Number of weight vectors per batch backtest",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
	})

	PriceLoadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rebalance_price_load_duration_ms",
		Help:    "Time to load price series by source",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"source"})

	StoredRuns = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rebalance_stored_runs",
		Help: "Persisted backtest runs by status",
	}, []string{"status"})
)

// System Metrics
var (
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rebalance_database_connections_active",
		Help: "Number of active database connections",
	})

	DatabaseConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rebalance_database_connections_idle",
		Help: "Number of idle database connections",
	})

	RedisCacheHitRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rebalance_redis_cache_hit_rate",
		Help: "Redis result cache hit rate (0.0 to 1.0)",
	})

	RedisOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rebalance_redis_operations_total",
		Help: "Total number of Redis operations by type",
	}, []string{"operation"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rebalance_api_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"method", "path", "status_code"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rebalance_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status_code"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rebalance_rate_limited_requests_total",
		Help: "Total number of requests rejected by the rate limiter",
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rebalance_errors_total",
		Help: "Total number of errors by type",
	}, []string{"type", "component"})

	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rebalance_database_query_duration_ms",
		Help:    "Database query duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"query_type"})
)

// RecordBacktest records one finished simulation
func RecordBacktest(cadence, status string, durationMs float64, days, rebalances int) {
	c := NormalizeCadence(cadence)
	BacktestRuns.WithLabelValues(c, status).Inc()
	BacktestDuration.WithLabelValues(c).Observe(durationMs)
	if days > 0 {
		SimulatedDays.Add(float64(days))
	}
	if rebalances > 0 {
		RebalanceEvents.WithLabelValues(c).Add(float64(rebalances))
	}
}

// RecordBatch records a batch backtest over size weight vectors
func RecordBatch(size int) {
	BatchRuns.Inc()
	BatchSize.Observe(float64(size))
}

// RecordPriceLoad records how long loading prices took
func RecordPriceLoad(source string, durationMs float64) {
	PriceLoadDuration.WithLabelValues(source).Observe(durationMs)
}

// UpdateStoredRuns replaces the stored-run gauges with counts by status
func UpdateStoredRuns(counts map[string]int) {
	StoredRuns.Reset()
	for status, n := range counts {
		StoredRuns.WithLabelValues(status).Set(float64(n))
	}
}

// UpdateDatabaseConnections updates database connection metrics
func UpdateDatabaseConnections(active, idle int) {
	DatabaseConnectionsActive.Set(float64(active))
	DatabaseConnectionsIdle.Set(float64(idle))
}

// RecordAPIRequest records an API request with duration
func RecordAPIRequest(method, path, statusCode string, durationMs float64) {
	APIRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationMs)
	HTTPRequests.WithLabelValues(method, path, statusCode).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	Errors.WithLabelValues(errorType, component).Inc()
}

// RecordDatabaseQuery records a database query
func RecordDatabaseQuery(queryType string, durationMs float64) {
	DatabaseQueryDuration.WithLabelValues(queryType).Observe(durationMs)
}

// RecordRedisOperation records a Redis operation
func RecordRedisOperation(operation string) {
	RedisOperations.WithLabelValues(operation).Inc()
}
