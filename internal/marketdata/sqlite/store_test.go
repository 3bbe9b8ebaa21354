package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bterrors "github.com/meridianquant/meridian/internal/backtest/errors"
	"github.com/meridianquant/meridian/internal/testutils"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "candles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_RoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	original := testutils.SeriesFromCloses("BTC-USD", []float64{10, 11, 9, 8, 12})
	require.NoError(t, store.SaveSeries(ctx, original))

	loaded, err := store.Candles(ctx, "BTC-USD", "1h")
	require.NoError(t, err)
	require.Equal(t, original.Len(), loaded.Len())
	require.NoError(t, loaded.Validate())

	for i := range original.Candles {
		want, got := original.Candles[i], loaded.Candles[i]
		assert.True(t, want.Timestamp.Equal(got.Timestamp), "candle %d timestamp", i)
		assert.True(t, want.Open.Equal(got.Open), "candle %d open", i)
		assert.True(t, want.High.Equal(got.High), "candle %d high", i)
		assert.True(t, want.Low.Equal(got.Low), "candle %d low", i)
		assert.True(t, want.Close.Equal(got.Close), "candle %d close", i)
		assert.True(t, want.Volume.Equal(got.Volume), "candle %d volume", i)
	}
}

func TestStore_UpsertReplacesDuplicates(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSeries(ctx, testutils.SeriesFromCloses("BTC-USD", []float64{10, 11, 12})))
	require.NoError(t, store.SaveSeries(ctx, testutils.SeriesFromCloses("BTC-USD", []float64{20, 21, 22})))

	loaded, err := store.Candles(ctx, "BTC-USD", "1h")
	require.NoError(t, err)
	require.Equal(t, 3, loaded.Len())
	assert.Equal(t, "20", loaded.Candles[0].Close.String())
}

func TestStore_MissingSymbol(t *testing.T) {
	store := openStore(t)

	_, err := store.Candles(context.Background(), "DOGE-USD", "1h")
	require.Error(t, err)
	assert.True(t, errors.Is(err, bterrors.ErrNoMarketData))
}

func TestStore_SeparateIntervals(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	hourly := testutils.SeriesFromCloses("BTC-USD", []float64{10, 11, 12})
	require.NoError(t, store.SaveSeries(ctx, hourly))

	_, err := store.Candles(ctx, "BTC-USD", "4h")
	require.Error(t, err)
}

func TestStore_Symbols(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSeries(ctx, testutils.SeriesFromCloses("BTC-USD", []float64{10, 11})))
	require.NoError(t, store.SaveSeries(ctx, testutils.SeriesFromCloses("ETH-USD", []float64{20, 21})))

	symbols, err := store.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"BTC-USD": {"1h"},
		"ETH-USD": {"1h"},
	}, symbols)
}
