// Package indicator derives technical values from a candle series. All
// functions are pure: the same series and parameters always produce the
// same output. Values are aligned 1:1 with the series; an entry with
// Valid=false means the lookback is not yet satisfied and must be treated
// as "no value", never as zero.
package indicator

import (
	"fmt"

	"github.com/shopspring/decimal"

	bterrors "github.com/meridianquant/meridian/internal/backtest/errors"
	"github.com/meridianquant/meridian/internal/market"
)

// SMA calculates the simple moving average of closes. The value at index i
// is the arithmetic mean of the period most recent closes ending at i, and
// is undefined for i < period-1. A series shorter than the period yields
// all-undefined values, not an error.
func SMA(series *market.Series, period int) ([]decimal.NullDecimal, error) {
	if period <= 0 {
		return nil, bterrors.New(bterrors.OperationIndicator, "sma",
			fmt.Errorf("%w: period must be positive, got %d", bterrors.ErrInvalidParameter, period))
	}

	result := make([]decimal.NullDecimal, series.Len())
	if series.Len() < period {
		return result, nil
	}

	divisor := decimal.NewFromInt(int64(period))
	sum := decimal.Zero
	for i, candle := range series.Candles {
		sum = sum.Add(candle.Close)
		if i >= period {
			sum = sum.Sub(series.Candles[i-period].Close)
		}
		if i >= period-1 {
			result[i] = decimal.NullDecimal{Decimal: sum.Div(divisor), Valid: true}
		}
	}

	return result, nil
}
