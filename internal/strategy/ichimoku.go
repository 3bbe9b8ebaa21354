package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	bterrors "github.com/meridianquant/meridian/internal/backtest/errors"
	"github.com/meridianquant/meridian/internal/indicator"
	"github.com/meridianquant/meridian/internal/market"
)

// IchimokuCloud emits a buy when price breaks out above the cloud with a
// Tenkan/Kijun cross-above on the current candle and a bullish Chikou
// confirmation, and a sell on the exact mirror. No signal is emitted while
// any required line is still undefined.
//
// The Chikou confirmation compares the current close against the close
// Displacement candles ago, which is exactly the Chikou line read at
// i-Displacement. The forward-shifted line is never consulted at its own
// index, so no future data leaks into the decision.
type IchimokuCloud struct {
	Params   indicator.IchimokuParams
	Quantity decimal.Decimal

	cache *indicator.Cache
}

// NewIchimokuCloud creates an Ichimoku cloud strategy.
func NewIchimokuCloud(params indicator.IchimokuParams, quantity decimal.Decimal) *IchimokuCloud {
	return &IchimokuCloud{Params: params, Quantity: quantity}
}

// SetCache attaches a shared indicator cache.
func (s *IchimokuCloud) SetCache(cache *indicator.Cache) {
	s.cache = cache
}

// Name identifies the strategy variant and its parameters.
func (s *IchimokuCloud) Name() string {
	return fmt.Sprintf("ichimoku_%s", s.Params.Key())
}

// Validate checks the parameter constraints before any simulation starts.
func (s *IchimokuCloud) Validate() error {
	if err := s.Params.Validate(); err != nil {
		return err
	}
	if !s.Quantity.IsPositive() {
		return bterrors.New(bterrors.OperationValidate, s.Name(),
			fmt.Errorf("%w: quantity must be positive, got %s", bterrors.ErrInvalidParameter, s.Quantity))
	}
	return nil
}

// CalculateSignals replays the series once and emits cloud breakout signals.
func (s *IchimokuCloud) CalculateSignals(series *market.Series) ([]Signal, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	lines, err := s.ichimoku(series)
	if err != nil {
		return nil, err
	}

	var signals []Signal

	for i := 1; i < series.Len(); i++ {
		// Span validity implies i >= Displacement, so the Chikou lookback
		// below never underflows.
		if !lines.Tenkan[i].Valid || !lines.Kijun[i].Valid ||
			!lines.Tenkan[i-1].Valid || !lines.Kijun[i-1].Valid ||
			!lines.SenkouA[i].Valid || !lines.SenkouB[i].Valid {
			continue
		}

		candle := series.Candles[i]
		close := candle.Close
		pastClose := series.CloseAt(i - s.Params.Displacement)

		tenkan, kijun := lines.Tenkan[i].Decimal, lines.Kijun[i].Decimal
		prevTenkan, prevKijun := lines.Tenkan[i-1].Decimal, lines.Kijun[i-1].Decimal
		aboveCloud := close.GreaterThan(lines.SenkouA[i].Decimal) && close.GreaterThan(lines.SenkouB[i].Decimal)
		belowCloud := close.LessThan(lines.SenkouA[i].Decimal) && close.LessThan(lines.SenkouB[i].Decimal)

		bullish := aboveCloud &&
			tenkan.GreaterThan(kijun) &&
			prevTenkan.LessThanOrEqual(prevKijun) &&
			close.GreaterThan(pastClose)
		bearish := belowCloud &&
			tenkan.LessThan(kijun) &&
			prevTenkan.GreaterThanOrEqual(prevKijun) &&
			close.LessThan(pastClose)

		// One signal per candle; the buy and sell conditions are mutually
		// exclusive but buy is checked first regardless.
		switch {
		case bullish:
			signals = append(signals, Signal{
				Timestamp: candle.Timestamp,
				Action:    ActionBuy,
				Price:     close,
				Quantity:  s.Quantity,
			})
		case bearish:
			signals = append(signals, Signal{
				Timestamp: candle.Timestamp,
				Action:    ActionSell,
				Price:     close,
				Quantity:  s.Quantity,
			})
		}
	}

	return signals, nil
}

func (s *IchimokuCloud) ichimoku(series *market.Series) (*indicator.IchimokuLines, error) {
	if s.cache != nil {
		return s.cache.Ichimoku(series, s.Params)
	}
	return indicator.Ichimoku(series, s.Params)
}
