package api

import "github.com/ajitpratap0/rebalance/internal/metrics"

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/status", s.handleGetStatus)
		v1.GET("/health", s.handleGetHealth)
		v1.GET("/benchmarks", s.handleListBenchmarks)

		bt := v1.Group("/backtest")
		{
			compute := bt.Group("", s.limiter.ComputeMiddleware())
			compute.POST("/simulate", s.handleSimulate)
			compute.POST("/project", s.handleProject)
			compute.POST("/batch", s.handleBatch)
			bt.POST("/metrics", s.handleMetrics)

			if s.runs != nil {
				runs := bt.Group("/runs")
				runs.GET("", s.handleListRuns)
				runs.GET("/:id", s.handleGetRun)
				runs.DELETE("/:id", s.handleDeleteRun)
			}
		}
	}

	s.router.GET("/metrics", metrics.GinHandler())
	s.router.GET("/", s.handleRoot)
}
