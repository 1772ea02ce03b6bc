package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/rebalance/pkg/backtest"
)

func TestNormalizeCadence(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"annually", "annually"},
		{"Quarterly", "quarterly"},
		{" monthly ", "monthly"},
		{"semi-annually", "semi-annually"},
		{"none", "none"},
		{"weekly", CadenceOther},
		{"", CadenceOther},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCadence(tt.in))
		})
	}
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"no overlap", fmt.Errorf("align: %w", backtest.ErrNoOverlappingData), ErrorTypeInput},
		{"bad weights", backtest.ErrUnnormalizedWeights, ErrorTypeInput},
		{"missing prior price", fmt.Errorf("step: %w", backtest.ErrMissingPriorPrice), ErrorTypeData},
		{"unknown symbol", fmt.Errorf("XYZ: %w", backtest.ErrSeriesNotFound), ErrorTypeNotFound},
		{"deadline", context.DeadlineExceeded, ErrorTypeTimeout},
		{"cancel", context.Canceled, ErrorTypeCancelled},
		{"other", errors.New("boom"), ErrorTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeError(tt.err))
		})
	}
}

func TestRecordBacktest(t *testing.T) {
	runs := BacktestRuns.WithLabelValues("quarterly", StatusCompleted)
	events := RebalanceEvents.WithLabelValues("quarterly")
	runsBefore := testutil.ToFloat64(runs)
	eventsBefore := testutil.ToFloat64(events)
	daysBefore := testutil.ToFloat64(SimulatedDays)

	RecordBacktest("Quarterly", StatusCompleted, 3.5, 500, 7)

	assert.Equal(t, runsBefore+1, testutil.ToFloat64(runs))
	assert.Equal(t, eventsBefore+7, testutil.ToFloat64(events))
	assert.Equal(t, daysBefore+500, testutil.ToFloat64(SimulatedDays))
}

func TestRecordBacktest_UnknownCadenceIsBounded(t *testing.T) {
	other := BacktestRuns.WithLabelValues(CadenceOther, StatusFailed)
	before := testutil.ToFloat64(other)

	RecordBacktest("fortnightly", StatusFailed, 1, 0, 0)
	RecordBacktest("hourly", StatusFailed, 1, 0, 0)

	assert.Equal(t, before+2, testutil.ToFloat64(other))
}

func TestRecordBatch(t *testing.T) {
	before := testutil.ToFloat64(BatchRuns)
	RecordBatch(12)
	assert.Equal(t, before+1, testutil.ToFloat64(BatchRuns))
}

func TestUpdateStoredRuns(t *testing.T) {
	UpdateStoredRuns(map[string]int{"completed": 4, "failed": 1})
	assert.Equal(t, 4.0, testutil.ToFloat64(StoredRuns.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(StoredRuns.WithLabelValues("failed")))

	// A later snapshot replaces the previous one
	UpdateStoredRuns(map[string]int{"completed": 5})
	assert.Equal(t, 1, testutil.CollectAndCount(StoredRuns))
}

func TestUpdateDatabaseConnections(t *testing.T) {
	UpdateDatabaseConnections(5, 2)
	assert.Equal(t, 5.0, testutil.ToFloat64(DatabaseConnectionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(DatabaseConnectionsIdle))
}

func TestRecordAPIRequest(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		statusCode string
		durationMs float64
	}{
		{"simulate success", "POST", "/api/v1/backtest/simulate", "200", 45.5},
		{"bad request", "POST", "/api/v1/backtest/simulate", "400", 3.1},
		{"not found", "GET", "/api/v1/backtest/runs/:id", "404", 5.2},
		{"zero duration", "GET", "/api/v1/health", "200", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := HTTPRequests.WithLabelValues(tt.method, tt.path, tt.statusCode)
			before := testutil.ToFloat64(counter)
			RecordAPIRequest(tt.method, tt.path, tt.statusCode, tt.durationMs)
			assert.Equal(t, before+1, testutil.ToFloat64(counter))
		})
	}
}

func TestRecordErrorAndQuery(t *testing.T) {
	counter := Errors.WithLabelValues(ErrorTypeInput, "api")
	before := testutil.ToFloat64(counter)

	assert.NotPanics(t, func() {
		RecordError(ErrorTypeInput, "api")
		RecordDatabaseQuery("load_prices", 12)
		RecordPriceLoad("csv", 4)
		RecordRedisOperation("get")
	})
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
