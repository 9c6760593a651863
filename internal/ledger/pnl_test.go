package ledger

import (
	"paper_trading/internal/models"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"50000", 50000},
		{" 3120.5 ", 3120.5},
		{"0.000012", 0.000012},
		{"", 0},
		{"0", 0},
		{"-1", 0},
		{"abc", 0},
		{"NaN", 0},
		{"1e400", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePrice(tt.in))
		})
	}
}

func TestPositionPnL(t *testing.T) {
	tests := []struct {
		name    string
		pos     models.Position
		price   float64
		pnl     float64
		percent float64
	}{
		{
			name:    "LongProfit",
			pos:     models.Position{Side: models.SideBuy, Quantity: 1, EntryPrice: 45000},
			price:   50000,
			pnl:     5000,
			percent: 11.111111,
		},
		{
			name:    "LongLoss",
			pos:     models.Position{Side: models.SideBuy, Quantity: 2, EntryPrice: 100},
			price:   90,
			pnl:     -20,
			percent: -10,
		},
		{
			name:    "ShortProfit",
			pos:     models.Position{Side: models.SideSell, Quantity: 2, EntryPrice: 3000},
			price:   2700,
			pnl:     600,
			percent: 10,
		},
		{
			name:    "ShortLoss",
			pos:     models.Position{Side: models.SideSell, Quantity: 1, EntryPrice: 100},
			price:   125,
			pnl:     -25,
			percent: -25,
		},
		{
			name:  "NoPrice",
			pos:   models.Position{Side: models.SideBuy, Quantity: 1, EntryPrice: 100},
			price: 0,
		},
		{
			name:  "ZeroCost",
			pos:   models.Position{Side: models.SideBuy, Quantity: 1, EntryPrice: 0},
			price: 10,
			pnl:   10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PositionPnL(tt.pos, tt.price)
			assert.InDelta(t, tt.pnl, got.PnL, 1e-9)
			assert.InDelta(t, tt.percent, got.Percent, 1e-6)
		})
	}
}

func TestAggregatePnL(t *testing.T) {
	long := models.AggregatedPosition{
		Symbol:       "BTC",
		BuyQuantity:  3,
		SellQuantity: 1,
		NetQuantity:  2,
		AvgBuyPrice:  40000,
		AvgSellPrice: 42000,
	}
	got := AggregatePnL(long, 41000)
	assert.InDelta(t, 2000.0, got.PnL, 1e-9)
	assert.InDelta(t, 2.5, got.Percent, 1e-9)

	short := models.AggregatedPosition{
		Symbol:       "ETH",
		SellQuantity: 4,
		NetQuantity:  -4,
		AvgSellPrice: 3100,
	}
	got = AggregatePnL(short, 3000)
	assert.InDelta(t, 400.0, got.PnL, 1e-9)

	flat := models.AggregatedPosition{Symbol: "SOL", BuyQuantity: 1, SellQuantity: 1, AvgBuyPrice: 100, AvgSellPrice: 110}
	assert.Equal(t, models.PnL{}, AggregatePnL(flat, 120))
}
