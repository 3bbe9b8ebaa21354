package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	bterrors "github.com/meridianquant/meridian/internal/backtest/errors"
	"github.com/meridianquant/meridian/internal/indicator"
	"github.com/meridianquant/meridian/internal/market"
)

// signal-pass position flag, separate from the engine's Position
type passState int

const (
	passFlat passState = iota
	passLong
	passShort
)

// MACrossover emits a buy when the fast moving average crosses above the
// slow one and a sell on the mirror crossover. Crossing is decided from the
// immediately preceding candle's values against the current ones, so both
// averages must be defined on both candles.
type MACrossover struct {
	FastPeriod int
	SlowPeriod int
	Quantity   decimal.Decimal

	cache *indicator.Cache
}

// NewMACrossover creates a moving-average crossover strategy.
func NewMACrossover(fastPeriod, slowPeriod int, quantity decimal.Decimal) *MACrossover {
	return &MACrossover{
		FastPeriod: fastPeriod,
		SlowPeriod: slowPeriod,
		Quantity:   quantity,
	}
}

// SetCache attaches a shared indicator cache, used when many runs replay
// the same series with overlapping parameters.
func (s *MACrossover) SetCache(cache *indicator.Cache) {
	s.cache = cache
}

// Name identifies the strategy variant and its parameters.
func (s *MACrossover) Name() string {
	return fmt.Sprintf("ma_crossover_%d_%d", s.FastPeriod, s.SlowPeriod)
}

// Validate checks the parameter constraints before any simulation starts.
func (s *MACrossover) Validate() error {
	if s.FastPeriod <= 0 || s.SlowPeriod <= 0 {
		return bterrors.New(bterrors.OperationValidate, s.Name(),
			fmt.Errorf("%w: periods must be positive, got fast=%d slow=%d",
				bterrors.ErrInvalidParameter, s.FastPeriod, s.SlowPeriod))
	}
	if s.FastPeriod >= s.SlowPeriod {
		return bterrors.New(bterrors.OperationValidate, s.Name(),
			fmt.Errorf("%w: fast period %d must be shorter than slow period %d",
				bterrors.ErrInvalidParameter, s.FastPeriod, s.SlowPeriod))
	}
	if !s.Quantity.IsPositive() {
		return bterrors.New(bterrors.OperationValidate, s.Name(),
			fmt.Errorf("%w: quantity must be positive, got %s", bterrors.ErrInvalidParameter, s.Quantity))
	}
	return nil
}

// CalculateSignals replays the series once and emits crossover signals.
func (s *MACrossover) CalculateSignals(series *market.Series) ([]Signal, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	fast, err := s.sma(series, s.FastPeriod)
	if err != nil {
		return nil, err
	}
	slow, err := s.sma(series, s.SlowPeriod)
	if err != nil {
		return nil, err
	}

	var signals []Signal
	state := passFlat

	for i := 1; i < series.Len(); i++ {
		if !fast[i-1].Valid || !slow[i-1].Valid || !fast[i].Valid || !slow[i].Valid {
			continue
		}

		crossedAbove := fast[i-1].Decimal.LessThanOrEqual(slow[i-1].Decimal) &&
			fast[i].Decimal.GreaterThan(slow[i].Decimal)
		crossedBelow := fast[i-1].Decimal.GreaterThanOrEqual(slow[i-1].Decimal) &&
			fast[i].Decimal.LessThan(slow[i].Decimal)

		candle := series.Candles[i]
		switch {
		case crossedAbove && state != passLong:
			signals = append(signals, Signal{
				Timestamp: candle.Timestamp,
				Action:    ActionBuy,
				Price:     candle.Close,
				Quantity:  s.Quantity,
			})
			state = passLong
		case crossedBelow && state != passShort:
			signals = append(signals, Signal{
				Timestamp: candle.Timestamp,
				Action:    ActionSell,
				Price:     candle.Close,
				Quantity:  s.Quantity,
			})
			state = passShort
		}
	}

	return signals, nil
}

func (s *MACrossover) sma(series *market.Series, period int) ([]decimal.NullDecimal, error) {
	if s.cache != nil {
		return s.cache.SMA(series, period)
	}
	return indicator.SMA(series, period)
}
