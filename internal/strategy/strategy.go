// Package strategy converts a candle series into an ordered sequence of
// trading signals. Each strategy is a pure function of the series plus its
// own fixed parameters; the simulation engine owns all position state.
package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianquant/meridian/internal/market"
)

// Action represents the direction of a signal.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Signal is an instruction to enter or exit at a given candle.
// The timestamp always equals the timestamp of some candle in the series
// the signal was derived from.
type Signal struct {
	Timestamp time.Time
	Action    Action
	Price     decimal.Decimal
	Quantity  decimal.Decimal
}

// Strategy is the contract every variant implements. CalculateSignals
// returns signals in ascending timestamp order, at most one per candle.
// Adding a new strategy means adding a new implementation; the engine
// never changes.
type Strategy interface {
	Name() string
	Validate() error
	CalculateSignals(series *market.Series) ([]Signal, error)
}
