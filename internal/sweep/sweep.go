// Package sweep runs many independent backtests across a parameter grid
// using a bounded worker pool. Runs never share mutable state, so the
// outcome of each cell is identical to running it alone.
package sweep

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/meridianquant/meridian/internal/backtest"
	bterrors "github.com/meridianquant/meridian/internal/backtest/errors"
	"github.com/meridianquant/meridian/internal/logger"
	"github.com/meridianquant/meridian/internal/market"
	"github.com/meridianquant/meridian/internal/strategy"
	"github.com/meridianquant/meridian/internal/telemetry"
)

// DataSource supplies the candle series for a cell. Implementations must
// be safe for concurrent use; the runner calls it from every worker.
type DataSource interface {
	Candles(ctx context.Context, symbol, interval string) (*market.Series, error)
}

// Cell is one point of a sweep: a symbol, a strategy and a run
// configuration.
type Cell struct {
	Symbol   string
	Interval string
	Strategy strategy.Strategy
	Config   backtest.Config
}

// Grid describes the axes of a sweep. Cells expands it into the full
// Cartesian product.
type Grid struct {
	Symbols    []string
	Interval   string
	Strategies []strategy.Strategy
	Configs    []backtest.Config
}

// Cells expands the grid. An empty Configs axis defaults to a single
// default configuration.
func (g Grid) Cells() []Cell {
	configs := g.Configs
	if len(configs) == 0 {
		configs = []backtest.Config{backtest.DefaultConfig()}
	}

	cells := make([]Cell, 0, len(g.Symbols)*len(g.Strategies)*len(configs))
	for _, symbol := range g.Symbols {
		for _, strat := range g.Strategies {
			for _, config := range configs {
				cells = append(cells, Cell{
					Symbol:   symbol,
					Interval: g.Interval,
					Strategy: strat,
					Config:   config,
				})
			}
		}
	}
	return cells
}

// Outcome is the result of one cell. Exactly one of Result and Err is
// set; cells never scheduled due to cancellation carry the context
// error in Err.
type Outcome struct {
	Cell     Cell
	Result   *backtest.Result
	Err      error
	Duration time.Duration
}

// Runner executes sweep cells on a fixed number of workers.
type Runner struct {
	source  DataSource
	workers int
	metrics *telemetry.Metrics
	log     *logger.Logger

	onOutcome func(Outcome)
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers sets the worker count. Values below one are ignored.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithMetrics attaches Prometheus metrics to the runner.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(r *Runner) {
		r.metrics = metrics
	}
}

// WithOnOutcome sets a callback invoked after each finished cell. The
// callback is serialized; it never runs concurrently with itself.
func WithOnOutcome(callback func(Outcome)) Option {
	return func(r *Runner) {
		r.onOutcome = callback
	}
}

// NewRunner creates a sweep runner over the given data source.
func NewRunner(source DataSource, opts ...Option) *Runner {
	r := &Runner{
		source:  source,
		workers: 4,
		log:     logger.Component("sweep"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every cell and returns one outcome per cell, in cell
// order. A failing cell records its error in its outcome slot and never
// affects the others. Cancelling the context stops scheduling new cells;
// cells already running finish, unscheduled cells carry the context
// error, and Run reports it.
func (r *Runner) Run(ctx context.Context, cells []Cell) ([]Outcome, error) {
	outcomes := make([]Outcome, len(cells))
	for i := range outcomes {
		outcomes[i].Cell = cells[i]
	}

	if r.metrics != nil {
		r.metrics.SweepsTotal.Inc()
		r.metrics.SweepCells.Set(float64(len(cells)))
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	var callbackMu sync.Mutex

	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = r.runCell(ctx, cells[i])
				if r.onOutcome != nil {
					callbackMu.Lock()
					r.onOutcome(outcomes[i])
					callbackMu.Unlock()
				}
			}
		}()
	}

	var cancelled error
dispatch:
	for i := range cells {
		select {
		case jobs <- i:
		case <-ctx.Done():
			cancelled = ctx.Err()
			for j := i; j < len(cells); j++ {
				outcomes[j].Err = cancelled
			}
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	return outcomes, cancelled
}

// runCell executes one cell on a fresh engine.
func (r *Runner) runCell(ctx context.Context, cell Cell) Outcome {
	outcome := Outcome{Cell: cell}
	started := time.Now()

	if r.metrics != nil {
		r.metrics.ActiveWorkers.Inc()
		defer r.metrics.ActiveWorkers.Dec()
	}

	defer func() {
		outcome.Duration = time.Since(started)
		r.observe(outcome)
	}()

	series, err := r.source.Candles(ctx, cell.Symbol, cell.Interval)
	if err != nil {
		outcome.Err = bterrors.New(bterrors.OperationSweep, cell.Symbol, err)
		return outcome
	}

	engine := backtest.New(cell.Config, series, cell.Strategy)
	outcome.Result, outcome.Err = engine.Run()
	return outcome
}

func (r *Runner) observe(outcome Outcome) {
	if outcome.Err != nil {
		r.log.WithError(outcome.Err).Warn("sweep cell failed",
			"symbol", outcome.Cell.Symbol,
			"strategy", outcome.Cell.Strategy.Name())
		if r.metrics != nil {
			r.metrics.RunFailures.WithLabelValues(failureReason(outcome.Err)).Inc()
		}
		return
	}

	if r.metrics != nil {
		r.metrics.RunsTotal.Inc()
		r.metrics.RunDuration.Observe(outcome.Duration.Seconds())
		r.metrics.TradesTotal.
			WithLabelValues(outcome.Result.Symbol, outcome.Result.Strategy).
			Add(float64(outcome.Result.TotalTrades))
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, bterrors.ErrNoMarketData):
		return "no_market_data"
	case errors.Is(err, bterrors.ErrInvalidParameter):
		return "invalid_parameter"
	case errors.Is(err, bterrors.ErrConfiguration):
		return "configuration"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}
