package api

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/rebalance/internal/metrics"
)

// RateLimiterConfig defines rate limiting for the two endpoint classes
type RateLimiterConfig struct {
	// Global limits (applies to all endpoints)
	GlobalRPS   float64
	GlobalBurst int

	// Compute endpoints (simulate, project, batch)
	ComputeRPS   float64
	ComputeBurst int

	Enabled bool
}

// DefaultRateLimiterConfig returns the default rate limiter configuration
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		GlobalRPS:    10,
		GlobalBurst:  20,
		ComputeRPS:   2,
		ComputeBurst: 5,
		Enabled:      true,
	}
}

// clientLimiter is one client's token bucket
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// RateLimiter implements token bucket rate limiting per IP address
type RateLimiter struct {
	entries sync.Map // map[string]*clientLimiter
	limit   rate.Limit
	burst   int
	name    string
}

// NewRateLimiter creates a limiter allowing rps requests per second per IP
// with bursts up to burst
func NewRateLimiter(name string, rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit: rate.Limit(rps),
		burst: burst,
		name:  name,
	}
}

// allow checks if a request from the given IP is allowed
func (rl *RateLimiter) allow(ip string) bool {
	val, _ := rl.entries.LoadOrStore(ip, &clientLimiter{
		limiter: rate.NewLimiter(rl.limit, rl.burst),
	})
	entry := val.(*clientLimiter)
	entry.lastSeen.Store(time.Now().UnixNano())

	if entry.limiter.Allow() {
		return true
	}

	log.Warn().
		Str("ip", ip).
		Str("limiter", rl.name).
		Float64("rps", float64(rl.limit)).
		Int("burst", rl.burst).
		Msg("Rate limit exceeded")
	return false
}

// Middleware returns a Gin middleware that applies rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			metrics.RateLimited.Inc()
			retryAfter := 1.0
			if rl.limit > 0 {
				retryAfter = 1 / float64(rl.limit)
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}

// cleanup forgets clients idle for longer than maxIdle
func (rl *RateLimiter) cleanup(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle).UnixNano()
	removed := 0
	rl.entries.Range(func(key, value interface{}) bool {
		if value.(*clientLimiter).lastSeen.Load() < cutoff {
			rl.entries.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// RateLimiterMiddleware manages the global and compute limiters
type RateLimiterMiddleware struct {
	global  *RateLimiter
	compute *RateLimiter
	enabled bool
}

// NewRateLimiterMiddleware creates a new rate limiter middleware with the given config
func NewRateLimiterMiddleware(config *RateLimiterConfig) *RateLimiterMiddleware {
	if config == nil {
		config = DefaultRateLimiterConfig()
	}

	return &RateLimiterMiddleware{
		global:  NewRateLimiter("global", config.GlobalRPS, config.GlobalBurst),
		compute: NewRateLimiter("compute", config.ComputeRPS, config.ComputeBurst),
		enabled: config.Enabled,
	}
}

// GlobalMiddleware returns middleware that applies global rate limiting to all requests
func (rlm *RateLimiterMiddleware) GlobalMiddleware() gin.HandlerFunc {
	if !rlm.enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return rlm.global.Middleware()
}

// ComputeMiddleware returns middleware for endpoints that run simulations
func (rlm *RateLimiterMiddleware) ComputeMiddleware() gin.HandlerFunc {
	if !rlm.enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return rlm.compute.Middleware()
}

// CleanupOldEntries removes clients idle for longer than maxIdle
func (rlm *RateLimiterMiddleware) CleanupOldEntries(maxIdle time.Duration) int {
	return rlm.global.cleanup(maxIdle) + rlm.compute.cleanup(maxIdle)
}

// StartCleanupWorker periodically cleans up idle entries until ctx is done
func (rlm *RateLimiterMiddleware) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := rlm.CleanupOldEntries(2 * interval)
				log.Debug().Int("removed", removed).Msg("Rate limiter cleanup completed")
			}
		}
	}()
}
