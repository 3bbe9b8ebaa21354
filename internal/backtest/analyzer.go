package backtest

import (
	"github.com/shopspring/decimal"

	"github.com/meridianquant/meridian/pkg/utils"
)

// profitFactorSentinel is reported when there are profits but no losses.
// The ratio is unbounded in that case; a large finite value keeps results
// serializable and comparable.
var profitFactorSentinel = decimal.NewFromInt(999)

// Stats holds the aggregate statistics derived from one run.
type Stats struct {
	TotalReturn  decimal.Decimal
	MaxDrawdown  decimal.Decimal
	SharpeRatio  decimal.Decimal
	WinRate      decimal.Decimal
	ProfitFactor decimal.Decimal

	WinningTrades int
	LosingTrades  int
	GrossProfit   decimal.Decimal
	GrossLoss     decimal.Decimal
	LargestWin    decimal.Decimal
	LargestLoss   decimal.Decimal
}

// Analyze turns a trade ledger and equity curve into summary statistics.
// Numeric edge cases (no trades, flat equity, zero gross loss) resolve to
// defined zero or sentinel values, never NaN or infinity.
func Analyze(initialCapital decimal.Decimal, trades []Trade, curve []EquityPoint) Stats {
	stats := Stats{}

	if len(curve) > 0 && initialCapital.IsPositive() {
		finalEquity := curve[len(curve)-1].Equity
		stats.TotalReturn = finalEquity.Sub(initialCapital).Div(initialCapital)
	}
	stats.MaxDrawdown = maxDrawdown(curve)
	stats.SharpeRatio = sharpeRatio(curve)

	for _, trade := range trades {
		if trade.PnL.IsPositive() {
			stats.WinningTrades++
			stats.GrossProfit = stats.GrossProfit.Add(trade.PnL)
			if trade.PnL.GreaterThan(stats.LargestWin) {
				stats.LargestWin = trade.PnL
			}
		} else {
			stats.LosingTrades++
			loss := trade.PnL.Abs()
			stats.GrossLoss = stats.GrossLoss.Add(loss)
			if loss.GreaterThan(stats.LargestLoss) {
				stats.LargestLoss = loss
			}
		}
	}

	if len(trades) > 0 {
		stats.WinRate = decimal.NewFromInt(int64(stats.WinningTrades)).
			Div(decimal.NewFromInt(int64(len(trades))))
	}

	switch {
	case stats.GrossLoss.IsPositive():
		stats.ProfitFactor = stats.GrossProfit.Div(stats.GrossLoss)
	case stats.GrossProfit.IsPositive():
		stats.ProfitFactor = profitFactorSentinel
	}

	return stats
}

// maxDrawdown scans the equity curve tracking a running peak and returns
// the largest fractional decline from it.
func maxDrawdown(curve []EquityPoint) decimal.Decimal {
	if len(curve) == 0 {
		return decimal.Zero
	}

	peak := curve[0].Equity
	worst := decimal.Zero

	for _, point := range curve {
		if point.Equity.GreaterThan(peak) {
			peak = point.Equity
		}
		if !peak.IsPositive() {
			continue
		}
		drawdown := peak.Sub(point.Equity).Div(peak)
		if drawdown.GreaterThan(worst) {
			worst = drawdown
		}
	}

	return worst
}

// sharpeRatio computes mean over standard deviation of the per-period
// returns between consecutive equity points. Fewer than two returns or a
// flat curve yield exactly zero.
func sharpeRatio(curve []EquityPoint) decimal.Decimal {
	if len(curve) < 3 {
		return decimal.Zero
	}

	returns := make([]decimal.Decimal, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev.IsZero() {
			returns = append(returns, decimal.Zero)
			continue
		}
		returns = append(returns, curve[i].Equity.Sub(prev).Div(prev))
	}

	stddev := utils.StandardDeviation(returns)
	if stddev.IsZero() {
		return decimal.Zero
	}

	return utils.Mean(returns).Div(stddev)
}
