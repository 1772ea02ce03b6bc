// Performance Metrics Unit Tests
package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func balances(start time.Time, values ...float64) BalanceSeries {
	series := make(BalanceSeries, len(values))
	for i, v := range values {
		series[i] = BalancePoint{Date: start.AddDate(0, 0, i), Balance: v}
	}
	return series
}

func TestCalculateMetricsSymmetricReturns(t *testing.T) {
	series := balances(day(2024, 1, 1), 10000, 10100, 9999)

	assert.InDeltaSlice(t, []float64{0.01, -0.01}, series.Returns(), 1e-12)

	metrics, err := CalculateMetrics(series)
	require.NoError(t, err)

	assert.InDelta(t, 0, metrics.MeanReturn, 1e-9)
	assert.InDelta(t, 0.01*math.Sqrt2*math.Sqrt(252), metrics.Volatility, 1e-9)
	assert.Greater(t, metrics.Volatility, 0.0)
	assert.True(t, metrics.SharpeDefined)
	assert.False(t, math.IsNaN(metrics.SharpeRatio))
	assert.False(t, math.IsInf(metrics.SharpeRatio, 0))
	assert.InDelta(t, 0, metrics.SharpeRatio, 1e-6)
}

func TestCalculateMetricsSign(t *testing.T) {
	up, err := CalculateMetrics(balances(day(2024, 1, 1), 100, 101, 103, 106, 110))
	require.NoError(t, err)
	assert.Greater(t, up.MeanReturn, 0.0)
	assert.Greater(t, up.SharpeRatio, 0.0)
	assert.Equal(t, 0.0, up.MaxDrawdown)

	down, err := CalculateMetrics(balances(day(2024, 1, 1), 110, 106, 103, 101, 100))
	require.NoError(t, err)
	assert.Less(t, down.MeanReturn, 0.0)
	assert.Less(t, down.SharpeRatio, 0.0)
}

func TestCalculateMetricsZeroVolatility(t *testing.T) {
	tests := []struct {
		name   string
		series BalanceSeries
	}{
		{"constant", balances(day(2024, 1, 1), 100, 100, 100, 100)},
		{"single return", balances(day(2024, 1, 1), 100, 105)},
		{"constant growth", balances(day(2024, 1, 1), 100, 101, 102.01, 103.0301)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics, err := CalculateMetrics(tt.series)
			require.NoError(t, err)

			assert.Equal(t, 0.0, metrics.Volatility)
			assert.False(t, metrics.SharpeDefined)
			assert.Equal(t, 0.0, metrics.SharpeRatio)
		})
	}
}

func TestCalculateMetricsInsufficientData(t *testing.T) {
	_, err := CalculateMetrics(nil)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = CalculateMetrics(balances(day(2024, 1, 1), 100))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestCalculateMetricsTinyVolatility(t *testing.T) {
	metrics, err := CalculateMetrics(balances(day(2024, 1, 1), 1, 1+1e-14, 1, 1+1e-14))
	require.NoError(t, err)

	assert.Greater(t, metrics.Volatility, 0.0)
	assert.Less(t, metrics.Volatility, 1e-12)
	assert.True(t, metrics.SharpeDefined)
	assert.Greater(t, metrics.SharpeRatio, 0.0)
}

func TestCalculateMetricsNonPositiveBalance(t *testing.T) {
	tests := []struct {
		name   string
		series BalanceSeries
	}{
		{"all zero", balances(day(2024, 1, 1), 0, 0, 0)},
		{"drops to zero", balances(day(2024, 1, 1), 100, 0, 50)},
		{"negative", balances(day(2024, 1, 1), 100, -5, 50)},
		{"nan", balances(day(2024, 1, 1), 100, math.NaN(), 50)},
		{"inf", balances(day(2024, 1, 1), 100, math.Inf(1), 50)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics, err := CalculateMetrics(tt.series)
			assert.ErrorIs(t, err, ErrNonPositiveBalance)
			assert.True(t, IsInputError(err))
			assert.Nil(t, metrics)
		})
	}
}

func TestCalculateMetricsDrawdownAndGrowth(t *testing.T) {
	series := balances(day(2024, 1, 1), 100, 120, 90, 110, 130)

	metrics, err := CalculateMetrics(series)
	require.NoError(t, err)

	assert.Equal(t, 100.0, metrics.InitialBalance)
	assert.Equal(t, 130.0, metrics.FinalBalance)
	assert.Equal(t, 130.0, metrics.PeakBalance)
	assert.Equal(t, 90.0, metrics.LowBalance)
	assert.InDelta(t, 30, metrics.TotalReturn, 1e-9)
	assert.InDelta(t, 30, metrics.TotalReturnPct, 1e-9)
	assert.InDelta(t, 30, metrics.MaxDrawdown, 1e-9)
	assert.InDelta(t, 25, metrics.MaxDrawdownPct, 1e-9)
	assert.Greater(t, metrics.CAGR, 0.0)
	assert.InEpsilon(t, metrics.CAGR/metrics.MaxDrawdownPct, metrics.CalmarRatio, 1e-12)
	assert.InDelta(t, 20.0/90.0, metrics.BestDay, 1e-9)
	assert.InDelta(t, -0.25, metrics.WorstDay, 1e-9)
	assert.Equal(t, 4, metrics.Periods)
	assert.Equal(t, day(2024, 1, 1), metrics.StartDate)
	assert.Equal(t, day(2024, 1, 5), metrics.EndDate)
	assert.Greater(t, metrics.SortinoRatio, 0.0)
}

func TestCalculateMetricsDoesNotMutateSeries(t *testing.T) {
	series := balances(day(2024, 1, 1), 100, 120, 90)
	before := make(BalanceSeries, len(series))
	copy(before, series)

	_, err := CalculateMetrics(series)
	require.NoError(t, err)
	assert.Equal(t, before, series)
}
