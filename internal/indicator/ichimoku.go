package indicator

import (
	"fmt"

	"github.com/shopspring/decimal"

	bterrors "github.com/meridianquant/meridian/internal/backtest/errors"
	"github.com/meridianquant/meridian/internal/market"
)

var two = decimal.NewFromInt(2)

// IchimokuParams holds the lookback configuration for the Ichimoku cloud.
type IchimokuParams struct {
	TenkanPeriod  int
	KijunPeriod   int
	SenkouBPeriod int
	Displacement  int
}

// DefaultIchimokuParams returns the conventional 9/26/52/26 configuration.
func DefaultIchimokuParams() IchimokuParams {
	return IchimokuParams{
		TenkanPeriod:  9,
		KijunPeriod:   26,
		SenkouBPeriod: 52,
		Displacement:  26,
	}
}

// Validate checks that every period and the displacement are positive.
func (p IchimokuParams) Validate() error {
	if p.TenkanPeriod <= 0 || p.KijunPeriod <= 0 || p.SenkouBPeriod <= 0 || p.Displacement <= 0 {
		return bterrors.New(bterrors.OperationIndicator, "ichimoku",
			fmt.Errorf("%w: periods and displacement must be positive, got %+v", bterrors.ErrInvalidParameter, p))
	}
	return nil
}

// Key returns a stable cache-key fragment for the parameter set.
func (p IchimokuParams) Key() string {
	return fmt.Sprintf("%d/%d/%d/%d", p.TenkanPeriod, p.KijunPeriod, p.SenkouBPeriod, p.Displacement)
}

// IchimokuLines holds the five computed lines, each aligned 1:1 with the
// source series.
//
// Chikou is the close shifted backward by Displacement: the value at index
// i equals the close at i+Displacement and is only defined once that future
// candle exists in the series. During replay at candle i, consumers must
// read Chikou at i-Displacement (which equals the close at i) so that no
// future data leaks into the decision at i.
type IchimokuLines struct {
	Tenkan  []decimal.NullDecimal
	Kijun   []decimal.NullDecimal
	SenkouA []decimal.NullDecimal
	SenkouB []decimal.NullDecimal
	Chikou  []decimal.NullDecimal
}

// Ichimoku calculates the Ichimoku cloud lines for the series.
// Tenkan and Kijun are midpoints of the highest high and lowest low over
// their lookbacks. The Senkou spans are displaced forward: the cloud at
// index i is derived from data ending at i-Displacement, so a span is only
// defined once i >= Displacement and its lookback is satisfied there. The
// first SenkouBPeriod+Displacement candles therefore carry no Senkou B
// value at all.
func Ichimoku(series *market.Series, params IchimokuParams) (*IchimokuLines, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	n := series.Len()
	lines := &IchimokuLines{
		Tenkan:  make([]decimal.NullDecimal, n),
		Kijun:   make([]decimal.NullDecimal, n),
		SenkouA: make([]decimal.NullDecimal, n),
		SenkouB: make([]decimal.NullDecimal, n),
		Chikou:  make([]decimal.NullDecimal, n),
	}

	for i := 0; i < n; i++ {
		lines.Tenkan[i] = midpoint(series.Candles, i, params.TenkanPeriod)
		lines.Kijun[i] = midpoint(series.Candles, i, params.KijunPeriod)

		if i >= params.Displacement {
			base := i - params.Displacement
			if lines.Tenkan[base].Valid && lines.Kijun[base].Valid {
				lines.SenkouA[i] = decimal.NullDecimal{
					Decimal: lines.Tenkan[base].Decimal.Add(lines.Kijun[base].Decimal).Div(two),
					Valid:   true,
				}
			}
			lines.SenkouB[i] = midpoint(series.Candles, base, params.SenkouBPeriod)
		}

		if i+params.Displacement < n {
			lines.Chikou[i] = decimal.NullDecimal{
				Decimal: series.Candles[i+params.Displacement].Close,
				Valid:   true,
			}
		}
	}

	return lines, nil
}

// midpoint returns (highest high + lowest low) / 2 over the period most
// recent candles ending at i, or an undefined value when fewer candles exist.
func midpoint(candles []market.Candle, i, period int) decimal.NullDecimal {
	if i < period-1 {
		return decimal.NullDecimal{}
	}

	highest := candles[i-period+1].High
	lowest := candles[i-period+1].Low
	for j := i - period + 2; j <= i; j++ {
		if candles[j].High.GreaterThan(highest) {
			highest = candles[j].High
		}
		if candles[j].Low.LessThan(lowest) {
			lowest = candles[j].Low
		}
	}

	return decimal.NullDecimal{Decimal: highest.Add(lowest).Div(two), Valid: true}
}
