// Package errors defines the failure taxonomy shared by the indicator,
// strategy and simulation packages.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the three fatal failure classes. Callers branch on
// these with errors.Is.
var (
	// ErrInvalidParameter marks malformed strategy or indicator
	// configuration (non-positive periods, fast >= slow). Detected before
	// any simulation starts.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNoMarketData marks an empty candle series for the requested run.
	ErrNoMarketData = errors.New("no market data")

	// ErrConfiguration marks a strategy defect, such as a signal whose
	// timestamp does not exist in the candle series.
	ErrConfiguration = errors.New("configuration error")
)

// Operation identifies the stage that produced an error.
type Operation string

const (
	OperationValidate  Operation = "validate"
	OperationIndicator Operation = "indicator"
	OperationSignals   Operation = "calculate_signals"
	OperationRun       Operation = "run"
	OperationSweep     Operation = "sweep"
)

// RunError provides additional context for backtest failures.
type RunError struct {
	Op     Operation
	Target string
	Err    error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e == nil {
		return ""
	}
	if e.Target != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the wrapped error.
func (e *RunError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New constructs a new RunError. It returns err unchanged when it already
// carries run context, so wrapping is idempotent across call layers.
func New(op Operation, target string, err error) error {
	if err == nil {
		return nil
	}
	var re *RunError
	if errors.As(err, &re) {
		return err
	}
	return &RunError{Op: op, Target: target, Err: err}
}
