package cli

import (
	"fmt"
	"math"
	"paper_trading/internal/analysis"
	"paper_trading/internal/models"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
)

const timeLayout = "2006-01-02 15:04:05"

func formatUSD(v float64) string {
	m := money.NewFromFloat(math.Abs(v), money.USD)
	if v < 0 {
		return "-" + m.Display()
	}
	return m.Display()
}

func formatTime(ms int64) string {
	return time.UnixMilli(ms).Format(timeLayout)
}

func priceCell(v float64) string {
	if v <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%g", v)
}

func positionsMarkdown(views []models.PositionView, total float64) string {
	if len(views) == 0 {
		return "No open positions.\n"
	}
	var b strings.Builder
	b.WriteString("# Open positions\n\n")
	b.WriteString("| ID | Symbol | Side | Quantity | Entry | Mid | PnL | % |\n")
	b.WriteString("|---|---|---|---:|---:|---:|---:|---:|\n")
	for _, v := range views {
		pnl, pct := "n/a", "n/a"
		if v.CurrentPrice > 0 {
			pnl = formatUSD(v.PnL.PnL)
			pct = fmt.Sprintf("%.2f", v.Percent)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %g | %g | %s | %s | %s |\n",
			v.ID, v.Symbol, v.Side, v.Quantity, v.EntryPrice, priceCell(v.CurrentPrice), pnl, pct)
	}
	fmt.Fprintf(&b, "\n**Unrealized PnL:** %s\n", formatUSD(total))
	return b.String()
}

func lotsMarkdown(positions []models.Position) string {
	if len(positions) == 0 {
		return "No positions.\n"
	}
	var b strings.Builder
	b.WriteString("# Positions\n\n")
	b.WriteString("| ID | Symbol | Side | Quantity | Entry | Opened | Status | Exit |\n")
	b.WriteString("|---|---|---|---:|---:|---|---|---:|\n")
	for _, p := range positions {
		exit := ""
		if !p.IsOpen() {
			exit = fmt.Sprintf("%g", p.ExitPrice)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %g | %g | %s | %s | %s |\n",
			p.ID, p.Symbol, p.Side, p.Quantity, p.EntryPrice, formatTime(p.Timestamp), p.Status, exit)
	}
	return b.String()
}

func aggregateMarkdown(views []models.AggregatedView) string {
	if len(views) == 0 {
		return "No exposure.\n"
	}
	var b strings.Builder
	b.WriteString("# Net exposure\n\n")
	b.WriteString("| Symbol | Bought | Sold | Net | Avg buy | Avg sell | Mid | PnL |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|---:|---:|\n")
	for _, v := range views {
		pnl := "n/a"
		if v.CurrentPrice > 0 {
			pnl = formatUSD(v.PnL.PnL)
		}
		fmt.Fprintf(&b, "| %s | %g | %g | %g | %g | %g | %s | %s |\n",
			v.Symbol, v.BuyQuantity, v.SellQuantity, v.NetQuantity,
			v.AvgBuyPrice, v.AvgSellPrice, priceCell(v.CurrentPrice), pnl)
	}
	return b.String()
}

func tradesMarkdown(trades []models.Trade) string {
	if len(trades) == 0 {
		return "No trades.\n"
	}
	var b strings.Builder
	b.WriteString("# Trades\n\n")
	b.WriteString("| Time | Symbol | Side | Type | Quantity | Price | Position |\n")
	b.WriteString("|---|---|---|---|---:|---:|---|\n")
	for _, t := range trades {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %g | %g | %s |\n",
			formatTime(t.Timestamp), t.Symbol, t.Side, t.Type, t.Quantity, t.Price, t.PositionID)
	}
	return b.String()
}

func executionMarkdown(exec *models.Execution) string {
	var b strings.Builder
	o := exec.Order
	fmt.Fprintf(&b, "**%s %g %s** @ %g\n\n", strings.ToUpper(string(o.Side)), o.Quantity, o.Symbol, o.Price)
	if exec.Opened != nil {
		fmt.Fprintf(&b, "- opened `%s` (%s %g)\n", exec.Opened.ID, exec.Opened.Side, exec.Opened.Quantity)
	}
	for _, id := range exec.Closed {
		fmt.Fprintf(&b, "- closed `%s`\n", id)
	}
	for _, id := range exec.Reduced {
		fmt.Fprintf(&b, "- reduced `%s`\n", id)
	}
	if exec.Unfilled > 0 {
		fmt.Fprintf(&b, "- %g not filled\n", exec.Unfilled)
	}
	return b.String()
}

func pricesMarkdown(coins []string, prices map[string]string) string {
	var b strings.Builder
	b.WriteString("| Coin | Mid |\n|---|---:|\n")
	for _, c := range coins {
		p, ok := prices[c]
		if !ok {
			p, ok = prices[strings.ToUpper(c)]
		}
		if !ok {
			p = "n/a"
		}
		fmt.Fprintf(&b, "| %s | %s |\n", c, p)
	}
	return b.String()
}

func summaryMarkdown(s *analysis.Summary) string {
	if s == nil {
		return "No candles.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s %s\n\n", s.Symbol, s.Interval)
	fmt.Fprintf(&b, "%d candles from %s to %s\n\n", s.Candles, formatTime(s.From), formatTime(s.To))
	b.WriteString("| | |\n|---|---:|\n")
	rows := []struct {
		name  string
		value string
	}{
		{"Open", fmt.Sprintf("%g", s.Open)},
		{"Close", fmt.Sprintf("%g", s.Close)},
		{"High", fmt.Sprintf("%g", s.High)},
		{"Low", fmt.Sprintf("%g", s.Low)},
		{"Change", fmt.Sprintf("%g (%.2f%%)", s.Change, s.ChangePercent)},
		{"Volume", fmt.Sprintf("%g", s.Volume)},
		{"EMA20", fmt.Sprintf("%.4f", s.EMA20)},
		{"RSI", fmt.Sprintf("%.1f", s.RSI)},
		{"ATR", fmt.Sprintf("%.4f", s.ATR)},
		{"Support", fmt.Sprintf("%g", s.Support)},
		{"Resistance", fmt.Sprintf("%g", s.Resistance)},
		{"Trend", s.Trend},
		{"Structure", s.Structure},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "| %s | %s |\n", r.name, r.value)
	}
	return b.String()
}
