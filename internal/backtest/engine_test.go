package backtest

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bterrors "github.com/meridianquant/meridian/internal/backtest/errors"
	"github.com/meridianquant/meridian/internal/market"
	"github.com/meridianquant/meridian/internal/strategy"
	"github.com/meridianquant/meridian/internal/testutils"
)

// stubStrategy emits a fixed signal list, bypassing indicator math.
type stubStrategy struct {
	signals []strategy.Signal
}

func (s *stubStrategy) Name() string    { return "stub" }
func (s *stubStrategy) Validate() error { return nil }
func (s *stubStrategy) CalculateSignals(*market.Series) ([]strategy.Signal, error) {
	return s.signals, nil
}

func frictionlessConfig(capital int64) Config {
	return Config{
		InitialCapital: decimal.NewFromInt(capital),
		Commission:     decimal.Zero,
		Slippage:       decimal.Zero,
		Leverage:       decimal.NewFromInt(1),
	}
}

func TestEngineRun_MACrossoverRoundTrip(t *testing.T) {
	// Fast MA (2) crosses below slow MA (3) on the fourth candle and back
	// above on the fifth: one short round-trip closed by signal.
	series := testutils.SeriesFromCloses("BTC-USD", []float64{10, 11, 9, 8, 12})
	strat := strategy.NewMACrossover(2, 3, decimal.NewFromInt(1))

	engine := New(frictionlessConfig(1000), series, strat)
	result, err := engine.Run()
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, DirectionShort, trade.Side)
	assert.Equal(t, ExitReasonSignal, trade.ExitReason)
	assert.True(t, trade.EntryPrice.Equal(decimal.NewFromInt(8)), "entry price: %s", trade.EntryPrice)
	assert.True(t, trade.ExitPrice.Equal(decimal.NewFromInt(12)), "exit price: %s", trade.ExitPrice)
	// Short from 8 to 12 loses 4 with no friction.
	assert.True(t, trade.PnL.Equal(decimal.NewFromInt(-4)), "pnl: %s", trade.PnL)

	assert.True(t, result.FinalCapital.Equal(decimal.NewFromInt(996)), "final capital: %s", result.FinalCapital)
	assert.True(t, result.TotalReturn.Equal(decimal.NewFromFloat(-0.004)), "total return: %s", result.TotalReturn)
	assert.Len(t, result.EquityCurve, series.Len())
}

func TestEngineRun_ForceCloseAtEndOfData(t *testing.T) {
	series := testutils.SeriesFromCloses("ETH-USD", []float64{10, 11, 12})
	strat := &stubStrategy{signals: []strategy.Signal{{
		Timestamp: testutils.BaseTime,
		Action:    strategy.ActionBuy,
		Price:     decimal.NewFromInt(10),
		Quantity:  decimal.NewFromInt(1),
	}}}

	engine := New(frictionlessConfig(1000), series, strat)
	result, err := engine.Run()
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, ExitReasonEndOfData, trade.ExitReason)
	assert.Equal(t, DirectionLong, trade.Side)
	assert.True(t, trade.ExitPrice.Equal(decimal.NewFromInt(12)))
	assert.True(t, trade.PnL.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, testutils.BaseTime.Add(2*time.Hour), trade.ExitTime)

	// The run ends flat and the last equity point matches realized capital.
	finalEquity := result.EquityCurve[len(result.EquityCurve)-1].Equity
	assert.True(t, finalEquity.Equal(result.FinalCapital))
	assert.True(t, result.FinalCapital.Equal(decimal.NewFromInt(1002)))
}

func TestEngineRun_SlippageOnEntryRawCloseOnForceClose(t *testing.T) {
	series := testutils.SeriesFromCloses("ETH-USD", []float64{10, 11, 12})
	strat := &stubStrategy{signals: []strategy.Signal{{
		Timestamp: testutils.BaseTime,
		Action:    strategy.ActionBuy,
		Price:     decimal.NewFromInt(10),
		Quantity:  decimal.NewFromInt(1),
	}}}

	config := frictionlessConfig(1000)
	config.Slippage = decimal.NewFromFloat(0.01)

	engine := New(config, series, strat)
	result, err := engine.Run()
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	// Buys fill above the signal price; the end-of-data close does not
	// slip because no order crosses the book.
	assert.True(t, trade.EntryPrice.Equal(decimal.NewFromFloat(10.1)), "entry price: %s", trade.EntryPrice)
	assert.True(t, trade.ExitPrice.Equal(decimal.NewFromInt(12)), "exit price: %s", trade.ExitPrice)
}

func TestEngineRun_CommissionChargedPerLeg(t *testing.T) {
	series := testutils.SeriesFromCloses("ETH-USD", []float64{10, 12})
	strat := &stubStrategy{signals: []strategy.Signal{{
		Timestamp: testutils.BaseTime,
		Action:    strategy.ActionBuy,
		Price:     decimal.NewFromInt(10),
		Quantity:  decimal.NewFromInt(1),
	}}}

	config := frictionlessConfig(1000)
	config.Commission = decimal.NewFromFloat(0.01)

	engine := New(config, series, strat)
	result, err := engine.Run()
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	// Entry leg 10*0.01 plus exit leg 12*0.01.
	assert.True(t, trade.Commission.Equal(decimal.NewFromFloat(0.22)), "commission: %s", trade.Commission)
	assert.True(t, trade.PnL.Equal(decimal.NewFromFloat(1.78)), "pnl: %s", trade.PnL)
	assert.True(t, result.FinalCapital.Equal(decimal.NewFromFloat(1001.78)), "final capital: %s", result.FinalCapital)
}

func TestEngineRun_Determinism(t *testing.T) {
	series := testutils.SeriesFromCloses("BTC-USD",
		[]float64{10, 11, 9, 8, 12, 13, 9, 8, 14, 15, 9, 8, 16})

	run := func() *Result {
		engine := New(DefaultConfig(), series, strategy.NewMACrossover(2, 3, decimal.NewFromInt(1)))
		result, err := engine.Run()
		require.NoError(t, err)
		return result
	}

	first := run()
	second := run()

	assert.Equal(t, first, second)
	for i := range first.Trades {
		assert.Equal(t, first.Trades[i].ID, second.Trades[i].ID)
	}
}

func TestEngineRun_LedgerInvariants(t *testing.T) {
	series := testutils.SeriesFromCloses("BTC-USD",
		[]float64{10, 11, 9, 8, 12, 13, 9, 8, 14, 15, 9, 8, 16})

	config := DefaultConfig()
	engine := New(config, series, strategy.NewMACrossover(2, 3, decimal.NewFromInt(1)))
	result, err := engine.Run()
	require.NoError(t, err)

	require.NotEmpty(t, result.Trades)
	assert.Len(t, result.EquityCurve, series.Len())

	// Trades never overlap in simulated time.
	for i, trade := range result.Trades {
		assert.True(t, trade.ExitTime.After(trade.EntryTime), "trade %d", i)
		if i > 0 {
			assert.False(t, trade.EntryTime.Before(result.Trades[i-1].ExitTime), "trade %d", i)
		}
	}

	// Capital reconciles with the trade ledger.
	sum := config.InitialCapital
	for _, trade := range result.Trades {
		sum = sum.Add(trade.PnL)
	}
	assert.True(t, sum.Equal(result.FinalCapital),
		"ledger sum %s, final capital %s", sum, result.FinalCapital)

	expectedReturn := result.FinalCapital.Sub(config.InitialCapital).Div(config.InitialCapital)
	assert.True(t, expectedReturn.Equal(result.TotalReturn))
}

func TestEngineRun_SameDirectionSignalIsNoOp(t *testing.T) {
	series := testutils.SeriesFromCloses("ETH-USD", []float64{10, 11, 12})
	strat := &stubStrategy{signals: []strategy.Signal{
		{Timestamp: testutils.BaseTime, Action: strategy.ActionBuy, Price: decimal.NewFromInt(10), Quantity: decimal.NewFromInt(1)},
		{Timestamp: testutils.BaseTime.Add(time.Hour), Action: strategy.ActionBuy, Price: decimal.NewFromInt(11), Quantity: decimal.NewFromInt(1)},
	}}

	engine := New(frictionlessConfig(1000), series, strat)
	result, err := engine.Run()
	require.NoError(t, err)

	// Only the first buy opens; the run still ends flat with one trade.
	require.Len(t, result.Trades, 1)
	assert.True(t, result.Trades[0].EntryPrice.Equal(decimal.NewFromInt(10)))
}

func TestEngineRun_SignalWithoutMatchingCandle(t *testing.T) {
	series := testutils.SeriesFromCloses("ETH-USD", []float64{10, 11, 12})
	strat := &stubStrategy{signals: []strategy.Signal{{
		Timestamp: testutils.BaseTime.Add(30 * time.Minute),
		Action:    strategy.ActionBuy,
		Price:     decimal.NewFromInt(10),
		Quantity:  decimal.NewFromInt(1),
	}}}

	engine := New(frictionlessConfig(1000), series, strat)
	result, err := engine.Run()
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, bterrors.ErrConfiguration))
}

func TestEngineRun_InsufficientCapitalSkipsEntry(t *testing.T) {
	series := testutils.SeriesFromCloses("ETH-USD", []float64{10, 11, 12})
	strat := &stubStrategy{signals: []strategy.Signal{{
		Timestamp: testutils.BaseTime,
		Action:    strategy.ActionBuy,
		Price:     decimal.NewFromInt(10),
		Quantity:  decimal.NewFromInt(1),
	}}}

	engine := New(frictionlessConfig(5), series, strat)
	result, err := engine.Run()
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	assert.True(t, result.FinalCapital.Equal(decimal.NewFromInt(5)))
}

func TestEngineRun_LeverageBoundsMargin(t *testing.T) {
	series := testutils.SeriesFromCloses("ETH-USD", []float64{10, 11, 12})
	strat := &stubStrategy{signals: []strategy.Signal{{
		Timestamp: testutils.BaseTime,
		Action:    strategy.ActionBuy,
		Price:     decimal.NewFromInt(10),
		Quantity:  decimal.NewFromInt(1),
	}}}

	config := frictionlessConfig(5)
	config.Leverage = decimal.NewFromInt(2)

	engine := New(config, series, strat)
	result, err := engine.Run()
	require.NoError(t, err)

	// The same entry fits once margin is notional over leverage.
	require.Len(t, result.Trades, 1)
}

func TestEngineRun_PeriodRestriction(t *testing.T) {
	series := testutils.SeriesFromCloses("BTC-USD", []float64{10, 11, 9, 8, 12, 13})

	config := frictionlessConfig(1000)
	config.Start = testutils.BaseTime.Add(time.Hour)
	config.End = testutils.BaseTime.Add(3 * time.Hour)

	engine := New(config, series, &stubStrategy{})
	result, err := engine.Run()
	require.NoError(t, err)

	assert.Len(t, result.EquityCurve, 3)
	assert.Equal(t, config.Start, result.EquityCurve[0].Timestamp)
}

func TestEngineRun_EmptySeries(t *testing.T) {
	series := market.NewSeries("BTC-USD", "1h", nil)

	engine := New(frictionlessConfig(1000), series, &stubStrategy{})
	result, err := engine.Run()
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, bterrors.ErrNoMarketData))
}

func TestEngineRun_EmptyPeriod(t *testing.T) {
	series := testutils.SeriesFromCloses("BTC-USD", []float64{10, 11, 12})

	config := frictionlessConfig(1000)
	config.Start = testutils.BaseTime.Add(240 * time.Hour)

	engine := New(config, series, &stubStrategy{})
	_, err := engine.Run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, bterrors.ErrNoMarketData))
}

func TestEngineRun_InvalidConfig(t *testing.T) {
	series := testutils.SeriesFromCloses("BTC-USD", []float64{10, 11, 12})

	config := DefaultConfig()
	config.InitialCapital = decimal.Zero

	engine := New(config, series, &stubStrategy{})
	_, err := engine.Run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, bterrors.ErrInvalidParameter))
}

func TestEngineRun_OnTradeCallback(t *testing.T) {
	series := testutils.SeriesFromCloses("ETH-USD", []float64{10, 11, 12})
	strat := &stubStrategy{signals: []strategy.Signal{{
		Timestamp: testutils.BaseTime,
		Action:    strategy.ActionBuy,
		Price:     decimal.NewFromInt(10),
		Quantity:  decimal.NewFromInt(1),
	}}}

	engine := New(frictionlessConfig(1000), series, strat)

	var seen []string
	engine.SetOnTrade(func(trade *Trade) {
		seen = append(seen, trade.ID)
	})

	result, err := engine.Run()
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, result.Trades[0].ID, seen[0])
}
