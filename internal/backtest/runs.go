// Package backtest runs rebalancing simulations on behalf of the API and
// CLI, persisting runs and caching results
package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/rebalance/internal/db"
	btengine "github.com/ajitpratap0/rebalance/pkg/backtest"
)

// RunStatus represents the lifecycle state of a persisted run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Valid reports whether s is a known status
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// ErrRunNotFound is returned when no run has the requested ID
var ErrRunNotFound = errors.New("backtest run not found")

// Run is a persisted backtest: its configuration, status and, once
// completed, its report
type Run struct {
	ID           uuid.UUID        `json:"id"`
	Name         string           `json:"name"`
	Status       RunStatus        `json:"status"`
	Tickers      []string         `json:"tickers"`
	Weights      []float64        `json:"weights"`
	Benchmark    string           `json:"benchmark"`
	Rebalance    string           `json:"rebalance"`
	InitialValue float64          `json:"initial_value"`
	StartDate    *time.Time       `json:"start_date,omitempty"`
	EndDate      *time.Time       `json:"end_date,omitempty"`
	Results      *btengine.Report `json:"results,omitempty"`
	FinalBalance *float64         `json:"final_balance,omitempty"`
	SharpeRatio  *float64         `json:"sharpe_ratio,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// RunStore persists runs in the backtest_runs table
type RunStore struct {
	pool db.PoolInterface
}

// NewRunStore creates a store over pool
func NewRunStore(pool db.PoolInterface) *RunStore {
	return &RunStore{pool: pool}
}

// CreateRun inserts run as pending, assigning an ID when it has none
func (s *RunStore) CreateRun(ctx context.Context, run *Run) error {
	if err := validateRun(run); err != nil {
		return fmt.Errorf("invalid run configuration: %w", err)
	}

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now
	run.Status = RunStatusPending

	query := `
		INSERT INTO backtest_runs (
			id, name, status, tickers, weights, benchmark, rebalance,
			initial_value, start_date, end_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
		run.ID, run.Name, string(run.Status), run.Tickers, run.Weights, run.Benchmark, run.Rebalance,
		run.InitialValue, run.StartDate, run.EndDate, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert backtest run: %w", err)
	}

	log.Info().
		Str("run_id", run.ID.String()).
		Str("name", run.Name).
		Msg("Created backtest run")

	return nil
}

func validateRun(run *Run) error {
	if run.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(run.Tickers) == 0 {
		return fmt.Errorf("at least one ticker is required")
	}
	if len(run.Weights) != len(run.Tickers) {
		return fmt.Errorf("%d weights for %d tickers", len(run.Weights), len(run.Tickers))
	}
	if run.InitialValue <= 0 {
		return fmt.Errorf("initial_value must be positive")
	}
	if _, err := btengine.ParseCadence(run.Rebalance); err != nil {
		return err
	}
	if run.StartDate != nil && run.EndDate != nil && run.EndDate.Before(*run.StartDate) {
		return fmt.Errorf("end_date must not be before start_date")
	}
	return nil
}

// GetRun retrieves a run and its results by ID
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	query := `
		SELECT id, name, status, tickers, weights, benchmark, rebalance,
		       initial_value, start_date, end_date, results,
		       final_balance, sharpe_ratio, error_message,
		       created_at, started_at, completed_at, updated_at
		FROM backtest_runs
		WHERE id = $1
	`

	var run Run
	var status string
	var resultsJSON []byte

	err := s.pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.Name, &status, &run.Tickers, &run.Weights, &run.Benchmark, &run.Rebalance,
		&run.InitialValue, &run.StartDate, &run.EndDate, &resultsJSON,
		&run.FinalBalance, &run.SharpeRatio, &run.ErrorMessage,
		&run.CreatedAt, &run.StartedAt, &run.CompletedAt, &run.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve backtest run: %w", err)
	}
	run.Status = RunStatus(status)

	if len(resultsJSON) > 0 {
		var report btengine.Report
		if err := json.Unmarshal(resultsJSON, &report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal results: %w", err)
		}
		run.Results = &report
	}

	return &run, nil
}

// ListRuns returns a page of runs, newest first, without their full
// results. An empty status lists every run.
func (s *RunStore) ListRuns(ctx context.Context, status RunStatus, limit, offset int) ([]*Run, int, error) {
	whereClause := ""
	args := []interface{}{}
	argPos := 1

	if status != "" {
		whereClause = fmt.Sprintf("WHERE status = $%d", argPos)
		args = append(args, string(status))
		argPos++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM backtest_runs %s", whereClause)
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count backtest runs: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT id, name, status, tickers, weights, benchmark, rebalance,
		       initial_value, start_date, end_date,
		       final_balance, sharpe_ratio, error_message,
		       created_at, started_at, completed_at, updated_at
		FROM backtest_runs
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query backtest runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*Run, 0)
	for rows.Next() {
		var run Run
		var st string
		err := rows.Scan(
			&run.ID, &run.Name, &st, &run.Tickers, &run.Weights, &run.Benchmark, &run.Rebalance,
			&run.InitialValue, &run.StartDate, &run.EndDate,
			&run.FinalBalance, &run.SharpeRatio, &run.ErrorMessage,
			&run.CreatedAt, &run.StartedAt, &run.CompletedAt, &run.UpdatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan backtest run: %w", err)
		}
		run.Status = RunStatus(st)
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating backtest runs: %w", err)
	}

	return runs, total, nil
}

// UpdateStatus moves a run to status, stamping started_at or
// completed_at as appropriate
func (s *RunStore) UpdateStatus(ctx context.Context, id uuid.UUID, status RunStatus, errorMsg string) error {
	if !status.Valid() {
		return fmt.Errorf("unknown run status %q", status)
	}

	now := time.Now().UTC()
	var startedAt, completedAt *time.Time
	switch status {
	case RunStatusRunning:
		startedAt = &now
	case RunStatusCompleted, RunStatusFailed:
		completedAt = &now
	}

	query := `
		UPDATE backtest_runs
		SET status = $1,
		    started_at = COALESCE($2, started_at),
		    completed_at = COALESCE($3, completed_at),
		    error_message = $4,
		    updated_at = $5
		WHERE id = $6
	`

	tag, err := s.pool.Exec(ctx, query, string(status), startedAt, completedAt, errorMsg, now, id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	return nil
}

// SaveResults stores report on the run and marks it completed
func (s *RunStore) SaveResults(ctx context.Context, id uuid.UUID, report *btengine.Report) error {
	resultsJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	var finalBalance, sharpe *float64
	if report.Simulation != nil {
		fb := report.Simulation.FinalBalance
		finalBalance = &fb
	}
	if m := report.PortfolioMetrics; m != nil && m.SharpeDefined {
		sr := m.SharpeRatio
		sharpe = &sr
	}

	now := time.Now().UTC()
	query := `
		UPDATE backtest_runs
		SET results = $1,
		    final_balance = $2,
		    sharpe_ratio = $3,
		    status = $4,
		    completed_at = $5,
		    updated_at = $6
		WHERE id = $7
	`

	tag, err := s.pool.Exec(ctx, query,
		resultsJSON, finalBalance, sharpe, string(RunStatusCompleted), now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}

	event := log.Info().Str("run_id", id.String())
	if finalBalance != nil {
		event = event.Float64("final_balance", *finalBalance)
	}
	event.Msg("Saved backtest results")

	return nil
}

// DeleteRun deletes a run
func (s *RunStore) DeleteRun(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM backtest_runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete backtest run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}

	log.Info().Str("run_id", id.String()).Msg("Deleted backtest run")
	return nil
}

// CountByStatus returns the number of runs in each status
func (s *RunStore) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM backtest_runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan run count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
