// Package testutils provides shared fixtures for testing.
package testutils

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianquant/meridian/internal/market"
)

// BaseTime is the timestamp of the first candle in every generated series.
// Fixed so that fixtures and cache fingerprints are deterministic.
var BaseTime = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// SeriesFromCloses builds an hourly candle series whose closes follow the
// given values. Opens carry over the previous close; highs and lows pad the
// body by one so the OHLC invariant always holds.
func SeriesFromCloses(symbol string, closes []float64) *market.Series {
	candles := make([]market.Candle, len(closes))
	prev := closes[0]

	for i, c := range closes {
		open := decimal.NewFromFloat(prev)
		close := decimal.NewFromFloat(c)
		candles[i] = market.Candle{
			Symbol:    symbol,
			Timestamp: BaseTime.Add(time.Duration(i) * time.Hour),
			Open:      open,
			High:      decimal.Max(open, close).Add(decimal.NewFromInt(1)),
			Low:       decimal.Min(open, close).Sub(decimal.NewFromInt(1)),
			Close:     close,
			Volume:    decimal.NewFromInt(1000),
		}
		prev = c
	}

	return market.NewSeries(symbol, "1h", candles)
}

// TrendingSeries builds an hourly series of n candles whose closes rise by
// step from start. Useful when a test only needs "enough data".
func TrendingSeries(symbol string, n int, start, step float64) *market.Series {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + float64(i)*step
	}
	return SeriesFromCloses(symbol, closes)
}
