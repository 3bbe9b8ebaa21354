package indicator

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bterrors "github.com/meridianquant/meridian/internal/backtest/errors"
	"github.com/meridianquant/meridian/internal/testutils"
)

// Fixture candles derived from closes [10,11,9,8,12]:
// highs [11,12,12,10,13], lows [9,9,8,7,7].
var ichimokuFixture = []float64{10, 11, 9, 8, 12}

func testParams() IchimokuParams {
	return IchimokuParams{TenkanPeriod: 2, KijunPeriod: 3, SenkouBPeriod: 4, Displacement: 2}
}

func assertLine(t *testing.T, line []decimal.NullDecimal, want []float64) {
	t.Helper()
	require.Len(t, line, len(want))
	for i, w := range want {
		if w == 0 {
			assert.False(t, line[i].Valid, "index %d should be undefined", i)
			continue
		}
		require.True(t, line[i].Valid, "index %d should be defined", i)
		assert.True(t, line[i].Decimal.Equal(decimal.NewFromFloat(w)),
			"index %d: want %v, got %s", i, w, line[i].Decimal)
	}
}

func TestIchimoku_Lines(t *testing.T) {
	series := testutils.SeriesFromCloses("BTC-USD", ichimokuFixture)

	lines, err := Ichimoku(series, testParams())
	require.NoError(t, err)

	// 0 marks "undefined" in the expectations below. The Senkou spans are
	// displaced forward: the value at index 4 derives from index 2.
	assertLine(t, lines.Tenkan, []float64{0, 10.5, 10, 9.5, 10})
	assertLine(t, lines.Kijun, []float64{0, 0, 10, 9.5, 10})
	assertLine(t, lines.SenkouA, []float64{0, 0, 0, 0, 10})
	assertLine(t, lines.SenkouB, []float64{0, 0, 0, 0, 0})
	assertLine(t, lines.Chikou, []float64{9, 8, 12, 0, 0})
}

func TestIchimoku_SenkouBDisplaced(t *testing.T) {
	series := testutils.SeriesFromCloses("BTC-USD", ichimokuFixture)
	params := IchimokuParams{TenkanPeriod: 2, KijunPeriod: 3, SenkouBPeriod: 2, Displacement: 1}

	lines, err := Ichimoku(series, params)
	require.NoError(t, err)

	// Highs [11,12,12,10,13], lows [9,9,8,7,7]: the span at i is the
	// two-candle midpoint ending one candle earlier.
	assertLine(t, lines.SenkouB, []float64{0, 0, 10.5, 10, 9.5})
}

// Chikou uses future data relative to its own index. The last displacement
// entries must stay undefined rather than being fabricated.
func TestIchimoku_ChikouRequiresFutureCandle(t *testing.T) {
	series := testutils.SeriesFromCloses("BTC-USD", ichimokuFixture)
	params := testParams()

	lines, err := Ichimoku(series, params)
	require.NoError(t, err)

	for i := series.Len() - params.Displacement; i < series.Len(); i++ {
		assert.False(t, lines.Chikou[i].Valid, "chikou at %d has no future candle", i)
	}
	require.True(t, lines.Chikou[0].Valid)
	assert.True(t, lines.Chikou[0].Decimal.Equal(series.CloseAt(params.Displacement)))
}

func TestIchimoku_InvalidParams(t *testing.T) {
	series := testutils.SeriesFromCloses("BTC-USD", ichimokuFixture)

	bad := []IchimokuParams{
		{TenkanPeriod: 0, KijunPeriod: 26, SenkouBPeriod: 52, Displacement: 26},
		{TenkanPeriod: 9, KijunPeriod: -1, SenkouBPeriod: 52, Displacement: 26},
		{TenkanPeriod: 9, KijunPeriod: 26, SenkouBPeriod: 52, Displacement: 0},
	}
	for _, params := range bad {
		_, err := Ichimoku(series, params)
		require.Error(t, err)
		assert.True(t, errors.Is(err, bterrors.ErrInvalidParameter))
	}
}

func TestIchimoku_ShortSeries(t *testing.T) {
	series := testutils.SeriesFromCloses("BTC-USD", []float64{10, 11})

	lines, err := Ichimoku(series, DefaultIchimokuParams())
	require.NoError(t, err)

	for i := 0; i < series.Len(); i++ {
		assert.False(t, lines.Kijun[i].Valid)
		assert.False(t, lines.SenkouA[i].Valid)
		assert.False(t, lines.SenkouB[i].Valid)
		assert.False(t, lines.Chikou[i].Valid)
	}
}
