package telegram

import (
	"errors"
	"fmt"
	"math"
	"paper_trading/internal/models"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
)

var errUsage = errors.New("usage")

// formatUSD renders an amount as dollars with an explicit sign.
func formatUSD(v float64) string {
	m := money.NewFromFloat(math.Abs(v), money.USD)
	switch {
	case v > 0:
		return "+" + m.Display()
	case v < 0:
		return "-" + m.Display()
	default:
		return m.Display()
	}
}

func pnlEmoji(v float64) string {
	switch {
	case v > 0:
		return "🟢"
	case v < 0:
		return "🔴"
	default:
		return "🟡"
	}
}

func sideEmoji(s models.Side) string {
	if s == models.SideBuy {
		return "📈"
	}
	return "📉"
}

// parseOrderArgs reads "<symbol> <quantity>".
func parseOrderArgs(args []string) (string, float64, error) {
	if len(args) != 2 {
		return "", 0, errUsage
	}
	qty, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid quantity %q", args[1])
	}
	return args[0], qty, nil
}

func formatPositions(views []models.PositionView, total float64) string {
	if len(views) == 0 {
		return "📋 No open positions"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 *Open positions (%d)*\n\n", len(views))
	for _, v := range views {
		fmt.Fprintf(&sb, "%s *%s %s* %g\n", sideEmoji(v.Side), strings.ToUpper(string(v.Side)), v.Symbol, v.Quantity)
		if v.CurrentPrice > 0 {
			fmt.Fprintf(&sb, "   📊 %.4f → %.4f (%+.2f%%)\n", v.EntryPrice, v.CurrentPrice, v.Percent)
			fmt.Fprintf(&sb, "   %s P&L: %s\n", pnlEmoji(v.PnL.PnL), formatUSD(v.PnL.PnL))
		} else {
			fmt.Fprintf(&sb, "   📊 %.4f → n/a\n", v.EntryPrice)
		}
		fmt.Fprintf(&sb, "   🆔 `%s`\n\n", v.ID)
	}
	fmt.Fprintf(&sb, "💎 Unrealized P&L: %s", formatUSD(total))
	return sb.String()
}

func formatAggregated(views []models.AggregatedView) string {
	if len(views) == 0 {
		return "📋 No exposure"
	}

	var sb strings.Builder
	sb.WriteString("📊 *Net exposure*\n\n")
	for _, v := range views {
		dir := "FLAT"
		switch {
		case v.IsLong():
			dir = "LONG"
		case v.IsShort():
			dir = "SHORT"
		}
		fmt.Fprintf(&sb, "*%s* %s %g", v.Symbol, dir, math.Abs(v.NetQuantity))
		if v.CurrentPrice > 0 && v.NetQuantity != 0 {
			fmt.Fprintf(&sb, " | %s %s (%+.2f%%)", pnlEmoji(v.PnL.PnL), formatUSD(v.PnL.PnL), v.Percent)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatTrades(trades []models.Trade) string {
	if len(trades) == 0 {
		return "📅 No trades yet"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 *Last %d trades*\n\n", len(trades))
	for _, t := range trades {
		fmt.Fprintf(&sb, "%s %s %s %g @ %.4f (%s)\n",
			time.UnixMilli(t.Timestamp).Format("01-02 15:04:05"),
			sideEmoji(t.Side), t.Symbol, t.Quantity, t.Price, t.Type)
	}
	return sb.String()
}

func formatExecution(exec *models.Execution) string {
	o := exec.Order
	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ *%s %g %s* @ %.4f\n", strings.ToUpper(string(o.Side)), o.Quantity, o.Symbol, o.Price)

	if exec.ShortSell {
		sb.WriteString("📉 Short position opened\n")
	}
	if n := len(exec.Closed); n > 0 {
		fmt.Fprintf(&sb, "🔒 Closed %d lot(s)\n", n)
	}
	if n := len(exec.Reduced); n > 0 {
		fmt.Fprintf(&sb, "✂️ Reduced %d lot(s)\n", n)
	}
	if exec.Unfilled > 0 {
		fmt.Fprintf(&sb, "⚠️ %g not filled: long exposure exhausted\n", exec.Unfilled)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatClose(t models.Trade) string {
	return fmt.Sprintf("🎯 *Position closed*\n\n%s %s %g @ %.4f\n🆔 `%s`",
		sideEmoji(t.Side), t.Symbol, t.Quantity, t.Price, t.PositionID)
}

func formatStats(s *models.Stats, uptime time.Duration) string {
	priced := "n/a"
	if s.PricedAt > 0 {
		priced = time.UnixMilli(s.PricedAt).Format("15:04:05")
	}
	return fmt.Sprintf(`📊 *Paper trading*

📋 Open positions: %d
📁 Closed positions: %d
🪙 Symbols: %d
📅 Trades: %d
%s Unrealized P&L: %s

🕐 Uptime: %s
🕐 Prices at: %s`,
		s.OpenPositions,
		s.ClosedPositions,
		s.Symbols,
		s.TotalTrades,
		pnlEmoji(s.UnrealizedPL),
		formatUSD(s.UnrealizedPL),
		formatUptime(uptime),
		priced,
	)
}

func formatUptime(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
