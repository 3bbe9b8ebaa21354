package backtest

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

var (
	reportTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	reportSectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	reportLossStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	reportWinStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("40"))
)

// Reporter renders run results for terminal display.
type Reporter struct{}

// NewReporter creates a new reporter.
func NewReporter() *Reporter {
	return &Reporter{}
}

// GenerateReport generates a formatted text report for one run.
func (r *Reporter) GenerateReport(result *Result) string {
	var sb strings.Builder

	sb.WriteString(reportTitleStyle.Render("BACKTEST REPORT"))
	sb.WriteString(fmt.Sprintf("\n%s | %s\n\n", result.Symbol, result.Strategy))

	sb.WriteString(reportSectionStyle.Render("PERFORMANCE"))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Initial Capital:      $%s\n", result.InitialCapital.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Final Capital:        $%s\n", result.FinalCapital.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Total Return:         %.2f%%\n", pct(result.TotalReturn)))
	sb.WriteString(fmt.Sprintf("Max Drawdown:         %.2f%%\n", pct(result.MaxDrawdown)))
	sb.WriteString(fmt.Sprintf("Sharpe Ratio:         %.4f\n\n", result.SharpeRatio.InexactFloat64()))

	sb.WriteString(reportSectionStyle.Render("TRADES"))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Total Trades:         %d\n", result.TotalTrades))
	sb.WriteString(fmt.Sprintf("Winning / Losing:     %d / %d\n", result.WinningTrades, result.LosingTrades))
	sb.WriteString(fmt.Sprintf("Win Rate:             %.2f%%\n", pct(result.WinRate)))
	sb.WriteString(fmt.Sprintf("Profit Factor:        %.2f\n", result.ProfitFactor.InexactFloat64()))
	sb.WriteString(fmt.Sprintf("Gross Profit:         $%s\n", result.GrossProfit.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Gross Loss:           $%s\n", result.GrossLoss.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Largest Win:          $%s\n", result.LargestWin.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Largest Loss:         $%s\n", result.LargestLoss.StringFixed(2)))

	if len(result.Trades) > 0 {
		sb.WriteString("\n")
		sb.WriteString(reportSectionStyle.Render("RECENT TRADES (last 10)"))
		sb.WriteString("\n")

		start := len(result.Trades) - 10
		if start < 0 {
			start = 0
		}
		for i := start; i < len(result.Trades); i++ {
			trade := result.Trades[i]
			line := fmt.Sprintf("%s %-5s Entry=$%s Exit=$%s PnL=$%s %s",
				trade.EntryTime.Format("01-02 15:04"),
				trade.Side,
				trade.EntryPrice.StringFixed(2),
				trade.ExitPrice.StringFixed(2),
				trade.PnL.StringFixed(2),
				trade.ExitReason,
			)
			if trade.PnL.LessThan(decimal.Zero) {
				line = reportLossStyle.Render(line)
			} else {
				line = reportWinStyle.Render(line)
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// GenerateSummary generates a one-line summary for sweep output.
func (r *Reporter) GenerateSummary(result *Result) string {
	return fmt.Sprintf(
		"%s %s: Return %.2f%% | Trades %d | Win Rate %.2f%% | Max DD %.2f%% | PF %.2f",
		result.Symbol,
		result.Strategy,
		pct(result.TotalReturn),
		result.TotalTrades,
		pct(result.WinRate),
		pct(result.MaxDrawdown),
		result.ProfitFactor.InexactFloat64(),
	)
}

// GenerateTradeLog generates a detailed trade-by-trade log.
func (r *Reporter) GenerateTradeLog(result *Result) string {
	var sb strings.Builder

	sb.WriteString(reportTitleStyle.Render("TRADE LOG"))
	sb.WriteString("\n\n")

	for i, trade := range result.Trades {
		sb.WriteString(fmt.Sprintf("Trade #%d (%s)\n", i+1, trade.ID))
		sb.WriteString(fmt.Sprintf("  Side:        %s\n", trade.Side))
		sb.WriteString(fmt.Sprintf("  Entry:       %s @ $%s\n", trade.EntryTime.Format(time.RFC3339), trade.EntryPrice.StringFixed(2)))
		sb.WriteString(fmt.Sprintf("  Exit:        %s @ $%s\n", trade.ExitTime.Format(time.RFC3339), trade.ExitPrice.StringFixed(2)))
		sb.WriteString(fmt.Sprintf("  Quantity:    %s\n", trade.Quantity.StringFixed(4)))
		sb.WriteString(fmt.Sprintf("  Commission:  $%s\n", trade.Commission.StringFixed(2)))
		sb.WriteString(fmt.Sprintf("  Exit Reason: %s\n", trade.ExitReason))
		sb.WriteString(fmt.Sprintf("  PnL:         $%s\n\n", trade.PnL.StringFixed(2)))
	}

	return sb.String()
}

func pct(fraction decimal.Decimal) float64 {
	return fraction.Mul(decimal.NewFromInt(100)).InexactFloat64()
}
