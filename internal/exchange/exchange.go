package exchange

import (
	"context"
	"errors"
	"fmt"
	"paper_trading/internal/models"
	"strings"

	"github.com/shopspring/decimal"
)

// Supported price sources.
const (
	SourceHyperliquid = "hyperliquid"
	SourceBinance     = "binance"
)

// Candle request defaults.
const (
	DefaultInterval  = "1h"
	DefaultHoursBack = 24
)

var ErrNoData = errors.New("no market data")

// MarketData supplies mid prices, the tradable universe and candles.
// Prices are decimal strings keyed by coin symbol ("BTC", "ETH").
type MarketData interface {
	GetPrices(ctx context.Context) (map[string]string, error)
	GetAssets(ctx context.Context) ([]models.Asset, error)
	GetCandles(ctx context.Context, coin, interval string, hoursBack int) ([]models.Candle, error)
}

// New builds the MarketData for source. apiURL overrides the default
// endpoint when non-empty.
func New(source, apiURL string) (MarketData, error) {
	switch strings.ToLower(source) {
	case SourceHyperliquid, "":
		var opts []HyperliquidOption
		if apiURL != "" {
			opts = append(opts, WithBaseURL(apiURL))
		}
		return NewHyperliquidClient(opts...), nil
	case SourceBinance:
		c := NewBinanceClient("", "")
		if apiURL != "" {
			c.SetBaseURL(apiURL)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown price source: %s", source)
	}
}

func parseFloat(s string) float64 {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

// normalizeCandleRequest applies the defaults used by the chart view.
func normalizeCandleRequest(coin, interval string, hoursBack int) (string, string, int, error) {
	coin = strings.TrimSpace(coin)
	if coin == "" {
		return "", "", 0, fmt.Errorf("candles: empty coin")
	}
	if interval == "" {
		interval = DefaultInterval
	}
	if hoursBack <= 0 {
		hoursBack = DefaultHoursBack
	}
	return coin, interval, hoursBack, nil
}
