package data_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stratforge/backtest/internal/data"
	"github.com/stratforge/backtest/pkg/types"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, err := data.NewStore(zap.NewNop(), t.TempDir())
	require.NoError(t, err)

	bars := data.GenerateSampleBars("BTCUSDT", day("2023-01-02"), day("2023-01-31"), 1)
	require.NotEmpty(t, bars)
	require.NoError(t, store.SaveBars("BTCUSDT", bars))

	// Drop the cache so the next read goes through the file.
	store.ClearCache()

	loaded, err := store.GetBars(context.Background(), "BTCUSDT", day("2023-01-01"), day("2023-02-01"))
	require.NoError(t, err)
	require.Len(t, loaded, len(bars))
	assert.True(t, loaded[0].Close.Equal(bars[0].Close))
	assert.True(t, loaded[0].Date.Equal(bars[0].Date))
}

func TestGetBarsMissingSymbol(t *testing.T) {
	store, err := data.NewStore(zap.NewNop(), t.TempDir())
	require.NoError(t, err)

	_, err = store.GetBars(context.Background(), "UNKNOWN", day("2023-01-01"), day("2023-02-01"))
	assert.ErrorContains(t, err, "no bar data for symbol UNKNOWN")
}

func TestGetBarsFiltersRange(t *testing.T) {
	store, err := data.NewStore(zap.NewNop(), t.TempDir())
	require.NoError(t, err)

	store.Preload("ETHUSDT", data.GenerateSampleBars("ETHUSDT", day("2023-01-02"), day("2023-03-31"), 2))

	bars, err := store.GetBars(context.Background(), "ETHUSDT", day("2023-02-01"), day("2023-02-28"))
	require.NoError(t, err)
	require.NotEmpty(t, bars)
	for _, b := range bars {
		assert.False(t, b.Date.Before(day("2023-02-01")))
		assert.False(t, b.Date.After(day("2023-02-28")))
	}
}

func TestPreloadSortsBars(t *testing.T) {
	store, err := data.NewStore(zap.NewNop(), t.TempDir())
	require.NoError(t, err)

	unsorted := []types.OHLCV{
		{Date: day("2023-01-05")},
		{Date: day("2023-01-03")},
		{Date: day("2023-01-04")},
	}
	store.Preload("SOLUSDT", unsorted)

	bars, err := store.GetBars(context.Background(), "SOLUSDT", day("2023-01-01"), day("2023-01-31"))
	require.NoError(t, err)
	require.Len(t, bars, 3)
	for i := 1; i < len(bars); i++ {
		assert.True(t, bars[i-1].Date.Before(bars[i].Date))
	}
}

func TestGenerateSampleBarsDeterministic(t *testing.T) {
	first := data.GenerateSampleBars("BTCUSDT", day("2023-01-02"), day("2023-02-28"), 42)
	second := data.GenerateSampleBars("BTCUSDT", day("2023-01-02"), day("2023-02-28"), 42)
	assert.Equal(t, first, second)

	other := data.GenerateSampleBars("BTCUSDT", day("2023-01-02"), day("2023-02-28"), 43)
	assert.NotEqual(t, first, other)
}

func TestGenerateSampleBarsSkipsWeekends(t *testing.T) {
	bars := data.GenerateSampleBars("BTCUSDT", day("2023-01-02"), day("2023-01-15"), 1)
	require.NotEmpty(t, bars)
	for _, b := range bars {
		wd := b.Date.Weekday()
		assert.NotEqual(t, time.Saturday, wd)
		assert.NotEqual(t, time.Sunday, wd)
	}
}
