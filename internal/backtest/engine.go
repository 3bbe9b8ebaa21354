package backtest

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	bterrors "github.com/meridianquant/meridian/internal/backtest/errors"
	"github.com/meridianquant/meridian/internal/logger"
	"github.com/meridianquant/meridian/internal/market"
	"github.com/meridianquant/meridian/internal/strategy"
)

var one = decimal.NewFromInt(1)

// Engine replays a candle series and a strategy's signals in lockstep,
// exactly once, in ascending timestamp order. A single run is strictly
// sequential; parallelism lives in the sweep package, one engine per run.
type Engine struct {
	config   Config
	series   *market.Series
	strategy strategy.Strategy

	capital     decimal.Decimal
	position    *Position
	trades      []Trade
	equityCurve []EquityPoint

	onTrade func(*Trade)
}

// New creates an engine for one run.
func New(config Config, series *market.Series, strat strategy.Strategy) *Engine {
	return &Engine{
		config:   config,
		series:   series,
		strategy: strat,
	}
}

// SetOnTrade sets a callback invoked after each closed trade.
func (e *Engine) SetOnTrade(callback func(*Trade)) {
	e.onTrade = callback
}

// Run executes the backtest and returns its result. The engine resets its
// state first, so repeated runs over the same inputs are byte-identical.
func (e *Engine) Run() (*Result, error) {
	if err := e.config.Validate(); err != nil {
		return nil, err
	}
	if err := e.strategy.Validate(); err != nil {
		return nil, err
	}

	series := e.applyPeriod()
	if series.Len() == 0 {
		return nil, bterrors.New(bterrors.OperationRun, series.Symbol,
			fmt.Errorf("%w: empty candle series", bterrors.ErrNoMarketData))
	}

	e.capital = e.config.InitialCapital
	e.position = nil
	e.trades = make([]Trade, 0)
	e.equityCurve = make([]EquityPoint, 0, series.Len())

	signals, err := e.strategy.CalculateSignals(series)
	if err != nil {
		return nil, bterrors.New(bterrors.OperationSignals, e.strategy.Name(), err)
	}

	signalsByIndex, err := e.indexSignals(series, signals)
	if err != nil {
		return nil, err
	}

	last := series.Len() - 1
	for i, candle := range series.Candles {
		for _, sig := range signalsByIndex[i] {
			e.applySignal(sig, candle)
		}

		// Every run ends flat: any exposure left at the final candle is
		// closed at its raw close before the last equity point is marked.
		if i == last && e.position != nil {
			e.closePosition(candle, candle.Close, ExitReasonEndOfData)
		}

		e.recordEquity(candle)
	}

	return e.buildResult(series), nil
}

// applyPeriod restricts the series to the configured time range.
func (e *Engine) applyPeriod() *market.Series {
	if e.config.Start.IsZero() && e.config.End.IsZero() {
		return e.series
	}

	candles := make([]market.Candle, 0, e.series.Len())
	for _, c := range e.series.Candles {
		if !e.config.Start.IsZero() && c.Timestamp.Before(e.config.Start) {
			continue
		}
		if !e.config.End.IsZero() && c.Timestamp.After(e.config.End) {
			continue
		}
		candles = append(candles, c)
	}

	return market.NewSeries(e.series.Symbol, e.series.Interval, candles)
}

// indexSignals maps each signal to its candle index. A signal whose
// timestamp has no matching candle marks a defective strategy and aborts
// the run rather than being silently skipped.
func (e *Engine) indexSignals(series *market.Series, signals []strategy.Signal) (map[int][]strategy.Signal, error) {
	index := series.IndexByTimestamp()
	byIndex := make(map[int][]strategy.Signal, len(signals))

	for _, sig := range signals {
		i, ok := index[sig.Timestamp.UnixNano()]
		if !ok {
			return nil, bterrors.New(bterrors.OperationRun, e.strategy.Name(),
				fmt.Errorf("%w: signal at %s has no matching candle", bterrors.ErrConfiguration, sig.Timestamp))
		}
		byIndex[i] = append(byIndex[i], sig)
	}

	return byIndex, nil
}

// applySignal advances the position state machine by one signal.
// A buy while long or a sell while short is tolerated as a no-op.
func (e *Engine) applySignal(sig strategy.Signal, candle market.Candle) {
	switch sig.Action {
	case strategy.ActionBuy:
		switch {
		case e.position == nil:
			e.openPosition(DirectionLong, sig, candle)
		case e.position.Direction == DirectionShort:
			e.closePosition(candle, e.fillPrice(sig.Price, DirectionLong), ExitReasonSignal)
		default:
			logger.Component("backtest").Debug("ignoring buy while already long",
				"symbol", candle.Symbol, "timestamp", sig.Timestamp)
		}
	case strategy.ActionSell:
		switch {
		case e.position == nil:
			e.openPosition(DirectionShort, sig, candle)
		case e.position.Direction == DirectionLong:
			e.closePosition(candle, e.fillPrice(sig.Price, DirectionShort), ExitReasonSignal)
		default:
			logger.Component("backtest").Debug("ignoring sell while already short",
				"symbol", candle.Symbol, "timestamp", sig.Timestamp)
		}
	}
}

// fillPrice applies slippage against the fill: buys fill higher, sells
// fill lower.
func (e *Engine) fillPrice(price decimal.Decimal, side Direction) decimal.Decimal {
	if side == DirectionLong {
		return price.Mul(one.Add(e.config.Slippage))
	}
	return price.Mul(one.Sub(e.config.Slippage))
}

func (e *Engine) openPosition(direction Direction, sig strategy.Signal, candle market.Candle) {
	entryPrice := e.fillPrice(sig.Price, direction)
	notional := entryPrice.Mul(sig.Quantity)
	commission := notional.Mul(e.config.Commission)

	margin := notional.Div(e.config.Leverage)
	if margin.Add(commission).GreaterThan(e.capital) {
		logger.Component("backtest").Warn("insufficient capital for entry",
			"symbol", candle.Symbol,
			"required", margin.Add(commission).StringFixed(2),
			"available", e.capital.StringFixed(2))
		return
	}

	e.capital = e.capital.Sub(commission)
	e.position = &Position{
		Direction:       direction,
		EntryPrice:      entryPrice,
		EntryTime:       candle.Timestamp,
		Quantity:        sig.Quantity,
		entryCommission: commission,
	}
}

func (e *Engine) closePosition(candle market.Candle, exitPrice decimal.Decimal, reason string) {
	pos := e.position

	gross := exitPrice.Sub(pos.EntryPrice).Mul(pos.Quantity)
	if pos.Direction == DirectionShort {
		gross = gross.Neg()
	}
	exitCommission := exitPrice.Mul(pos.Quantity).Mul(e.config.Commission)

	// Name-based UUID keeps repeated runs over the same inputs
	// byte-identical.
	tradeKey := fmt.Sprintf("%s|%s|%d|%d|%d",
		candle.Symbol, pos.Direction, pos.EntryTime.UnixNano(), candle.Timestamp.UnixNano(), len(e.trades))

	trade := Trade{
		ID:         uuid.NewSHA1(uuid.NameSpaceOID, []byte(tradeKey)).String(),
		Symbol:     candle.Symbol,
		Side:       pos.Direction,
		EntryTime:  pos.EntryTime,
		ExitTime:   candle.Timestamp,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Quantity:   pos.Quantity,
		PnL:        gross.Sub(pos.entryCommission).Sub(exitCommission),
		Commission: pos.entryCommission.Add(exitCommission),
		ExitReason: reason,
	}

	e.trades = append(e.trades, trade)
	e.capital = e.capital.Add(gross).Sub(exitCommission)
	e.position = nil

	if e.onTrade != nil {
		e.onTrade(&trade)
	}
}

// recordEquity marks realized capital plus the unrealized value of any
// open position at the candle's close.
func (e *Engine) recordEquity(candle market.Candle) {
	equity := e.capital

	if e.position != nil {
		unrealized := candle.Close.Sub(e.position.EntryPrice).Mul(e.position.Quantity)
		if e.position.Direction == DirectionShort {
			unrealized = unrealized.Neg()
		}
		equity = equity.Add(unrealized)
	}

	e.equityCurve = append(e.equityCurve, EquityPoint{
		Timestamp: candle.Timestamp,
		Equity:    equity,
	})
}

func (e *Engine) buildResult(series *market.Series) *Result {
	stats := Analyze(e.config.InitialCapital, e.trades, e.equityCurve)

	return &Result{
		Symbol:         series.Symbol,
		Strategy:       e.strategy.Name(),
		InitialCapital: e.config.InitialCapital,
		FinalCapital:   e.capital,
		TotalReturn:    stats.TotalReturn,
		MaxDrawdown:    stats.MaxDrawdown,
		SharpeRatio:    stats.SharpeRatio,
		WinRate:        stats.WinRate,
		ProfitFactor:   stats.ProfitFactor,
		TotalTrades:    len(e.trades),
		WinningTrades:  stats.WinningTrades,
		LosingTrades:   stats.LosingTrades,
		GrossProfit:    stats.GrossProfit,
		GrossLoss:      stats.GrossLoss,
		LargestWin:     stats.LargestWin,
		LargestLoss:    stats.LargestLoss,
		Trades:         e.trades,
		EquityCurve:    e.equityCurve,
	}
}
