package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// PoolStats reports connection pool usage as (total, idle, acquired)
type PoolStats interface {
	Stats() (int32, int32, int32)
}

// RunCounter counts persisted runs by status
type RunCounter interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// Updater periodically refreshes gauges that are derived from storage
type Updater struct {
	pool     PoolStats
	runs     RunCounter
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewUpdater creates a new metrics updater. Either source may be nil.
func NewUpdater(pool PoolStats, runs RunCounter, interval time.Duration) *Updater {
	return &Updater{
		pool:     pool,
		runs:     runs,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the metrics update loop and blocks until stopped
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.update(ctx)

	for {
		select {
		case <-ticker.C:
			u.update(ctx)
		case <-u.stopCh:
			log.Info().Msg("Metrics updater stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("Metrics updater context cancelled")
			return
		}
	}
}

// Stop stops the metrics updater. Safe to call more than once.
func (u *Updater) Stop() {
	u.stopOnce.Do(func() { close(u.stopCh) })
}

func (u *Updater) update(ctx context.Context) {
	if u.pool != nil {
		_, idle, acquired := u.pool.Stats()
		UpdateDatabaseConnections(int(acquired), int(idle))
	}

	if u.runs != nil {
		start := time.Now()
		counts, err := u.runs.CountByStatus(ctx)
		RecordDatabaseQuery("count_runs", float64(time.Since(start).Milliseconds()))
		if err != nil {
			log.Error().Err(err).Msg("Failed to count stored runs")
			RecordError(NormalizeError(err), "metrics_updater")
			return
		}
		UpdateStoredRuns(counts)
	}

	log.Debug().Msg("Metrics updated successfully")
}
