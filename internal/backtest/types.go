// Package backtest replays a candle series through a strategy, maintains
// position state, realizes trades and computes performance statistics.
package backtest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	bterrors "github.com/meridianquant/meridian/internal/backtest/errors"
)

// Direction represents the side of an open position or a closed trade.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionFlat  Direction = "flat"
)

// Exit reasons recorded on a trade.
const (
	ExitReasonSignal    = "signal"
	ExitReasonEndOfData = "end_of_data"
)

// Config holds the run configuration. It is caller-owned and never mutated
// by the engine.
type Config struct {
	InitialCapital decimal.Decimal
	Commission     decimal.Decimal // rate on notional, charged per leg
	Slippage       decimal.Decimal // rate applied against the fill
	Leverage       decimal.Decimal // bounds required margin, >= 1

	// Optional period restriction; zero values mean the full series.
	Start time.Time
	End   time.Time
}

// DefaultConfig returns a conservative run configuration.
func DefaultConfig() Config {
	return Config{
		InitialCapital: decimal.NewFromInt(10000),
		Commission:     decimal.NewFromFloat(0.001),  // 0.1%
		Slippage:       decimal.NewFromFloat(0.0005), // 0.05%
		Leverage:       decimal.NewFromInt(1),
	}
}

// Validate checks the configuration constraints.
func (c Config) Validate() error {
	if !c.InitialCapital.IsPositive() {
		return bterrors.New(bterrors.OperationValidate, "config",
			fmt.Errorf("%w: initial capital must be positive, got %s", bterrors.ErrInvalidParameter, c.InitialCapital))
	}
	if c.Commission.IsNegative() {
		return bterrors.New(bterrors.OperationValidate, "config",
			fmt.Errorf("%w: commission must not be negative, got %s", bterrors.ErrInvalidParameter, c.Commission))
	}
	if c.Slippage.IsNegative() {
		return bterrors.New(bterrors.OperationValidate, "config",
			fmt.Errorf("%w: slippage must not be negative, got %s", bterrors.ErrInvalidParameter, c.Slippage))
	}
	if c.Leverage.LessThan(decimal.NewFromInt(1)) {
		return bterrors.New(bterrors.OperationValidate, "config",
			fmt.Errorf("%w: leverage must be at least 1, got %s", bterrors.ErrInvalidParameter, c.Leverage))
	}
	return nil
}

// Position is the engine's transient state for the currently held
// exposure. At most one position is open at any simulated time.
type Position struct {
	Direction       Direction
	EntryPrice      decimal.Decimal
	EntryTime       time.Time
	Quantity        decimal.Decimal
	entryCommission decimal.Decimal
}

// Trade is a closed round-trip. Immutable once appended to the ledger.
type Trade struct {
	ID         string
	Symbol     string
	Side       Direction
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	Quantity   decimal.Decimal
	PnL        decimal.Decimal // net of commission on both legs
	Commission decimal.Decimal
	ExitReason string
}

// EquityPoint is the portfolio value marked at one candle's close.
type EquityPoint struct {
	Timestamp time.Time
	Equity    decimal.Decimal
}

// Result is the outcome of a single run. Produced once, never mutated.
type Result struct {
	Symbol   string
	Strategy string

	InitialCapital decimal.Decimal
	FinalCapital   decimal.Decimal
	TotalReturn    decimal.Decimal // fraction of initial capital
	MaxDrawdown    decimal.Decimal // fraction of peak equity, in [0, 1]
	SharpeRatio    decimal.Decimal
	WinRate        decimal.Decimal // fraction of trades, in [0, 1]
	ProfitFactor   decimal.Decimal

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	GrossProfit   decimal.Decimal
	GrossLoss     decimal.Decimal
	LargestWin    decimal.Decimal
	LargestLoss   decimal.Decimal

	Trades      []Trade
	EquityCurve []EquityPoint
}
