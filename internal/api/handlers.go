package api

import (
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/rebalance/internal/backtest"
	"github.com/ajitpratap0/rebalance/internal/validation"
	btengine "github.com/ajitpratap0/rebalance/pkg/backtest"
)

var startTime = time.Now()

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Root handler
func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "Rebalance API",
		"version": s.version,
		"status":  "running",
		"time":    time.Now().UTC(),
	})
}

// componentStatus pings p, reporting not_configured for a nil dependency
func componentStatus(c *gin.Context, name string, p Pinger) string {
	if p == nil {
		return "not_configured"
	}
	if err := p.Ping(c.Request.Context()); err != nil {
		log.Warn().Err(err).Str("component", name).Msg("Health check failed")
		return "unhealthy"
	}
	return "healthy"
}

// handleGetStatus returns comprehensive system status
func (s *Server) handleGetStatus(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbStatus := componentStatus(c, "database", s.db)
	cacheStatus := componentStatus(c, "cache", s.cache)

	systemStatus := "healthy"
	if dbStatus == "unhealthy" || cacheStatus == "unhealthy" {
		systemStatus = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    systemStatus,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(startTime).Seconds(),
		"version":   s.version,
		"components": gin.H{
			"database": gin.H{"status": dbStatus},
			"cache":    gin.H{"status": cacheStatus},
			"runs": gin.H{"status": func() string {
				if s.runs != nil {
					return "configured"
				}
				return "not_configured"
			}()},
		},
		"system": gin.H{
			"goroutines": runtime.NumGoroutine(),
			"memory": gin.H{
				"alloc_mb": memStats.Alloc / 1024 / 1024,
				"sys_mb":   memStats.Sys / 1024 / 1024,
				"num_gc":   memStats.NumGC,
			},
			"go_version": runtime.Version(),
		},
	})
}

// handleGetHealth returns a simple health check (for load balancers)
func (s *Server) handleGetHealth(c *gin.Context) {
	if componentStatus(c, "database", s.db) == "unhealthy" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "database unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleListBenchmarks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"benchmarks": s.benchmarks,
		"cadences":   btengine.Cadences,
	})
}

// simulateRequest adds persistence control to a backtest request
type simulateRequest struct {
	backtest.Request
	Persist *bool `json:"persist,omitempty"`
}

func (s *Server) handleSimulate(c *gin.Context) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	persist := s.persistRuns
	if req.Persist != nil {
		persist = *req.Persist
	}

	ctx := c.Request.Context()
	if persist && s.service.HasStore() {
		run, err := s.service.SubmitRun(ctx, req.Request)
		if err != nil {
			if run != nil {
				c.Header("X-Run-ID", run.ID.String())
			}
			respondError(c, err)
			return
		}
		echo := req.Request
		echo.Series = nil
		c.JSON(http.StatusCreated, backtest.SimulationResponse{
			RunID:   run.ID.String(),
			Request: echo,
			Report:  run.Results,
		})
		return
	}

	resp, err := s.service.Simulate(ctx, req.Request)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleProject(c *gin.Context) {
	var req backtest.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := s.service.Project(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleBatch(c *gin.Context) {
	var req backtest.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	summary, err := s.service.Batch(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	results := make([]gin.H, len(summary.Results))
	for i, r := range summary.Results {
		results[i] = gin.H{
			"index":         r.Index,
			"weights":       r.Weights,
			"rank":          r.Rank,
			"final_balance": r.Result.FinalBalance,
			"rebalances":    len(r.Result.RebalanceDates),
			"metrics":       r.Metrics,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_runs":  summary.TotalRuns,
		"duration_ms": summary.Duration.Milliseconds(),
		"best_index":  summary.BestResult.Index,
		"results":     results,
	})
}

type balanceInput struct {
	Date    string  `json:"date"`
	Balance float64 `json:"balance"`
}

type metricsRequest struct {
	Series []balanceInput `json:"series"`
}

// handleMetrics analyzes a caller-supplied balance series
func (s *Server) handleMetrics(c *gin.Context) {
	var req metricsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	v := validation.NewValidator()
	series := make(btengine.BalanceSeries, 0, len(req.Series))
	for i, p := range req.Series {
		field := fmt.Sprintf("series[%d]", i)
		d, err := btengine.ParseDate(p.Date)
		if err != nil {
			v.AddError(field+".date", "must be a date in YYYY-MM-DD format")
			continue
		}
		v.Positive(field+".balance", p.Balance)
		if n := len(series); n > 0 && !d.After(series[n-1].Date) {
			v.AddError(field+".date", "dates must be strictly increasing")
		}
		series = append(series, btengine.BalancePoint{Date: d, Balance: p.Balance})
	}
	if err := v.Err(); err != nil {
		respondError(c, err)
		return
	}

	m, err := btengine.CalculateMetrics(series)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) handleListRuns(c *gin.Context) {
	status := backtest.RunStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown status %q", status)})
		return
	}

	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil || limit < 1 || limit > maxPageSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("limit must be between 1 and %d", maxPageSize)})
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}

	runs, total, err := s.runs.ListRuns(c.Request.Context(), status, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":   runs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleGetRun(c *gin.Context) {
	id, ok := parseRunID(c)
	if !ok {
		return
	}

	run, err := s.runs.GetRun(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleDeleteRun(c *gin.Context) {
	id, ok := parseRunID(c)
	if !ok {
		return
	}

	if err := s.runs.DeleteRun(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseRunID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid run ID format",
			"details": "Expected UUID format",
		})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
