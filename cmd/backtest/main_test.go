package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/rebalance/internal/config"
	btengine "github.com/ajitpratap0/rebalance/pkg/backtest"
)

func TestBuildRequest(t *testing.T) {
	cfg := &config.Config{Backtest: config.BacktestConfig{
		Tickers:      []string{"VTI"},
		Benchmark:    "SPY",
		Rebalance:    "annually",
		InitialValue: 10000,
	}}

	req, err := buildRequest(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"VTI"}, req.Tickers)

	*tickers = "vti, bnd"
	*weights = "0.6,0.4"
	t.Cleanup(func() { *tickers, *weights = "", "" })

	req, err = buildRequest(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"VTI", "BND"}, req.Tickers)
	assert.Equal(t, []float64{0.6, 0.4}, req.Weights)

	*weights = "1"
	_, err = buildRequest(cfg)
	assert.ErrorIs(t, err, btengine.ErrLengthMismatch)
}

func TestBuildRequestNormalize(t *testing.T) {
	*tickers = "VTI,BND"
	*weights = "3,1"
	*normalize = true
	t.Cleanup(func() { *tickers, *weights, *normalize = "", "", false })

	req, err := buildRequest(&config.Config{})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.75, 0.25}, req.Weights, 1e-12)

	*weights = "0,0"
	_, err = buildRequest(&config.Config{})
	assert.ErrorIs(t, err, btengine.ErrUnnormalizedWeights)
}

func TestBuildRequestRequiresTickers(t *testing.T) {
	_, err := buildRequest(&config.Config{})
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a.csv", "b.json"}, splitList(" a.csv, ,b.json "))
	assert.Nil(t, splitList(""))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vti.csv")
	require.NoError(t, os.WriteFile(path, []byte("Date,Adj Close\n2021-01-04,100\n2021-01-05,101\n"), 0o600))

	series, err := loadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "VTI", series.Symbol)
	assert.Equal(t, 2, series.Len())

	_, err = loadFile(filepath.Join(dir, "vti.txt"))
	assert.Error(t, err)
}
