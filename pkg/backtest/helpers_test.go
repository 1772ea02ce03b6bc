package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// mustSeries builds a series from parallel date and price slices
func mustSeries(t *testing.T, symbol string, dates []time.Time, prices []float64) *PriceSeries {
	t.Helper()
	require.Equal(t, len(dates), len(prices), "dates and prices must be the same length")

	points := make([]PricePoint, len(dates))
	for i := range dates {
		points[i] = PricePoint{Date: dates[i], Price: prices[i]}
	}
	s, err := NewPriceSeries(symbol, points)
	require.NoError(t, err)
	return s
}

// mustPanel aligns the series with no date bounds
func mustPanel(t *testing.T, benchmark *PriceSeries, assets ...*PriceSeries) *PricePanel {
	t.Helper()
	panel, _, err := Align(assets, benchmark, nil, nil)
	require.NoError(t, err)
	return panel
}

// threeDayPanel is the two-asset panel A=[100,110,121], B=[100,100,100]
func threeDayPanel(t *testing.T, dates []time.Time) *PricePanel {
	t.Helper()
	a := mustSeries(t, "A", dates, []float64{100, 110, 121})
	b := mustSeries(t, "B", dates, []float64{100, 100, 100})
	bench := mustSeries(t, "SPY", dates, []float64{400, 404, 402})
	return mustPanel(t, bench, a, b)
}
