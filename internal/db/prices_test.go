package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/rebalance/pkg/backtest"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestLoadSeries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPriceRepository(mock)

	rows := pgxmock.NewRows([]string{"date", "adj_close"}).
		AddRow(day(2020, 1, 2), 100.0).
		AddRow(day(2020, 1, 3), 101.5).
		AddRow(day(2020, 1, 6), 99.25)

	mock.ExpectQuery("SELECT date, adj_close FROM prices").
		WithArgs("SPY", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(rows)

	start := day(2020, 1, 1)
	series, err := repo.LoadSeries(context.Background(), "SPY", &start, nil)
	require.NoError(t, err)

	assert.Equal(t, "SPY", series.Symbol)
	assert.Equal(t, 3, series.Len())
	assert.Equal(t, 99.25, series.Points[2].Price)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSeries_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT date, adj_close FROM prices").
		WithArgs("NOPE", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"date", "adj_close"}))

	_, err = NewPriceRepository(mock).LoadSeries(context.Background(), "NOPE", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, backtest.ErrSeriesNotFound)
}

func TestLoadSeries_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT date, adj_close FROM prices").
		WithArgs("SPY", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	_, err = NewPriceRepository(mock).LoadSeries(context.Background(), "SPY", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestLoadSeries_RejectsBadStoredPrice(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"date", "adj_close"}).
		AddRow(day(2020, 1, 2), 100.0).
		AddRow(day(2020, 1, 3), 0.0)

	mock.ExpectQuery("SELECT date, adj_close FROM prices").
		WithArgs("SPY", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(rows)

	_, err = NewPriceRepository(mock).LoadSeries(context.Background(), "SPY", nil, nil)
	assert.ErrorIs(t, err, backtest.ErrInvalidPrice)
}

func TestUpsertSeries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	series, err := backtest.NewPriceSeries("QQQ", []backtest.PricePoint{
		{Date: day(2021, 3, 1), Price: 320},
		{Date: day(2021, 3, 2), Price: 318},
	})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO prices").
		WithArgs("QQQ",
			[]time.Time{day(2021, 3, 1), day(2021, 3, 2)},
			[]float64{320, 318}).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	n, err := NewPriceRepository(mock).UpsertSeries(context.Background(), series)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSeries_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPriceRepository(mock).UpsertSeries(context.Background(), nil)
	assert.ErrorIs(t, err, backtest.ErrEmptySeries)
}

func TestListSymbols(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT DISTINCT symbol FROM prices").
		WillReturnRows(pgxmock.NewRows([]string{"symbol"}).AddRow("AAPL").AddRow("SPY"))

	symbols, err := NewPriceRepository(mock).ListSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "SPY"}, symbols)
}

func TestDeleteSymbol(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM prices").
		WithArgs("AAPL").
		WillReturnResult(pgxmock.NewResult("DELETE", 250))

	n, err := NewPriceRepository(mock).DeleteSymbol(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(250), n)
}
