package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject(t *testing.T) {
	dates := []time.Time{day(2024, 1, 2), day(2024, 1, 3), day(2024, 1, 4)}
	panel := threeDayPanel(t, dates)

	series, err := Project(panel, []float64{0.5, 0.5}, 10000)
	require.NoError(t, err)

	require.Len(t, series, 2)
	assert.Equal(t, dates[1], series[0].Date)
	// Each day A returns 10% and B 0%, so the blend returns 5%.
	assert.InDelta(t, 10500, series[0].Balance, 1e-9)
	assert.InDelta(t, 11025, series[1].Balance, 1e-9)
}

func TestProjectDiffersFromDrift(t *testing.T) {
	dates := []time.Time{day(2024, 1, 2), day(2024, 1, 3), day(2024, 1, 4)}
	panel := threeDayPanel(t, dates)

	projected, err := Project(panel, []float64{0.5, 0.5}, 10000)
	require.NoError(t, err)
	drifted, err := Simulate(panel, SimulationConfig{InitialBalance: 10000, Weights: []float64{0.5, 0.5}, Cadence: CadenceNone})
	require.NoError(t, err)

	assert.InDelta(t, projected[0].Balance, drifted.Portfolio[0].Balance, 1e-9)
	assert.Less(t, projected[1].Balance, drifted.Portfolio[1].Balance, "held weights give up the winner's drift")
}

func TestProjectErrors(t *testing.T) {
	panel := threeDayPanel(t, []time.Time{day(2024, 1, 2), day(2024, 1, 3), day(2024, 1, 4)})

	_, err := Project(panel, []float64{1}, 100)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = Project(nil, []float64{1}, 100)
	assert.ErrorIs(t, err, ErrEmptyPanel)
}

func TestProjectBenchmarkUsesFullHistory(t *testing.T) {
	a := mustSeries(t, "A",
		[]time.Time{day(2024, 1, 2), day(2024, 1, 4)},
		[]float64{10, 10},
	)
	bench := mustSeries(t, "SPY",
		[]time.Time{day(2024, 1, 2), day(2024, 1, 3), day(2024, 1, 4)},
		[]float64{100, 110, 99},
	)
	panel := mustPanel(t, bench, a)

	series, err := ProjectBenchmark(panel, 1000)
	require.NoError(t, err)

	require.Len(t, series, 2)
	assert.InDelta(t, 1100, series[0].Balance, 1e-9)
	assert.InDelta(t, 990, series[1].Balance, 1e-9)
}

func TestProjectSeriesEmpty(t *testing.T) {
	_, err := ProjectSeries(nil, 1)
	assert.ErrorIs(t, err, ErrEmptySeries)
}
