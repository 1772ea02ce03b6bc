package backtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/rebalance/internal/config"
	btengine "github.com/ajitpratap0/rebalance/pkg/backtest"
)

func TestNewPriceSourceDirectory(t *testing.T) {
	dir := t.TempDir()
	csv := "Date,Adj Close\n2021-01-04,100\n2021-01-05,101\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SPY.csv"), []byte(csv), 0o600))

	source, err := NewPriceSource(config.DataConfig{Source: "CSV", Dir: dir}, nil)
	require.NoError(t, err)

	series, err := source.LoadSeries(context.Background(), "SPY", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, series.Len())

	_, err = source.LoadSeries(context.Background(), "QQQ", nil, nil)
	assert.ErrorIs(t, err, btengine.ErrSeriesNotFound)
}

func TestNewPriceSourceErrors(t *testing.T) {
	_, err := NewPriceSource(config.DataConfig{Source: "postgres"}, nil)
	assert.Error(t, err)

	_, err = NewPriceSource(config.DataConfig{Source: "parquet"}, nil)
	assert.Error(t, err)
}
