package ledger

import (
	"math"
	"paper_trading/internal/models"
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice converts a supplier price string into a float.
// Anything that is not a finite positive number yields 0, which callers
// treat as "price unavailable".
func ParsePrice(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	if !usable(f) {
		return 0
	}
	return f
}

// usable reports whether v can serve as a price or a quantity.
func usable(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// PositionPnL computes unrealized PnL of a single lot at price.
func PositionPnL(p models.Position, price float64) models.PnL {
	return pnl(p.Side, p.EntryPrice, p.Quantity, price)
}

// AggregatePnL computes unrealized PnL of a symbol's net exposure at price,
// using the average entry price of the dominant side. Flat symbols yield zero.
func AggregatePnL(a models.AggregatedPosition, price float64) models.PnL {
	switch {
	case a.NetQuantity > 0:
		return pnl(models.SideBuy, a.AvgBuyPrice, a.NetQuantity, price)
	case a.NetQuantity < 0:
		return pnl(models.SideSell, a.AvgSellPrice, -a.NetQuantity, price)
	default:
		return models.PnL{}
	}
}

func pnl(side models.Side, entry, qty, price float64) models.PnL {
	if !usable(price) {
		return models.PnL{}
	}

	var value float64
	if side == models.SideBuy {
		value = (price - entry) * qty
	} else {
		value = (entry - price) * qty
	}

	cost := entry * qty
	if cost == 0 {
		return models.PnL{PnL: value}
	}
	return models.PnL{PnL: value, Percent: value / cost * 100}
}
