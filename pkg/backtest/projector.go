package backtest

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Project compounds the weighted daily return of the panel's assets with the
// weights held fixed at every step, as a static target allocation would be.
// The first aligned date only provides the base prices, so the output starts
// on the second date.
func Project(panel *PricePanel, weights []float64, initialBalance float64) (BalanceSeries, error) {
	if panel == nil || panel.Len() == 0 {
		return nil, ErrEmptyPanel
	}
	if len(weights) != panel.AssetCount() {
		return nil, fmt.Errorf("%d weights for %d assets: %w", len(weights), panel.AssetCount(), ErrLengthMismatch)
	}

	series := make(BalanceSeries, 0, panel.Len()-1)
	returns := make([]float64, panel.AssetCount())
	value := initialBalance

	for i := 1; i < panel.Len(); i++ {
		prev, cur := panel.Row(i-1), panel.Row(i)
		for a := range returns {
			returns[a] = cur[a]/prev[a] - 1
		}
		value *= 1 + floats.Dot(returns, weights)
		series = append(series, BalancePoint{Date: panel.Dates[i], Balance: value})
	}

	return series, nil
}

// ProjectSeries is the buy-and-hold value of a single instrument
func ProjectSeries(prices *PriceSeries, initialBalance float64) (BalanceSeries, error) {
	if prices == nil || prices.Len() == 0 {
		return nil, ErrEmptySeries
	}

	series := make(BalanceSeries, 0, prices.Len()-1)
	value := initialBalance
	for i := 1; i < prices.Len(); i++ {
		value *= prices.Points[i].Price / prices.Points[i-1].Price
		series = append(series, BalancePoint{Date: prices.Points[i].Date, Balance: value})
	}
	return series, nil
}

// ProjectBenchmark is the buy-and-hold value of the panel's benchmark over
// every date the benchmark traded inside the alignment window, not only the
// dates shared with the assets
func ProjectBenchmark(panel *PricePanel, initialBalance float64) (BalanceSeries, error) {
	if panel == nil || panel.Len() == 0 {
		return nil, ErrEmptyPanel
	}
	return ProjectSeries(panel.benchmark, initialBalance)
}
