package exchange

import (
	"context"
	"fmt"
	"paper_trading/internal/models"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
)

// quoteAsset is the quote currency prices are taken against.
const quoteAsset = "USDT"

// BinanceClient - Binance Spot market data, keyed by base asset so it can
// stand in for the Hyperliquid mids.
type BinanceClient struct {
	client *binance.Client
	now    func() time.Time
}

func NewBinanceClient(apiKey, secretKey string) *BinanceClient {
	return &BinanceClient{
		client: binance.NewClient(apiKey, secretKey),
		now:    time.Now,
	}
}

// SetBaseURL overrides the REST endpoint.
func (b *BinanceClient) SetBaseURL(u string) {
	b.client.BaseURL = strings.TrimRight(u, "/")
}

// Compile-time interface check.
var _ MarketData = (*BinanceClient)(nil)

func (b *BinanceClient) GetPrices(ctx context.Context) (map[string]string, error) {
	prices, err := b.client.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}

	result := make(map[string]string, len(prices))
	for _, p := range prices {
		base, ok := strings.CutSuffix(p.Symbol, quoteAsset)
		if !ok || base == "" {
			continue
		}
		result[base] = p.Price
	}
	return result, nil
}

func (b *BinanceClient) GetAssets(ctx context.Context) ([]models.Asset, error) {
	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange info: %w", err)
	}

	var assets []models.Asset
	for _, sym := range info.Symbols {
		if sym.QuoteAsset == quoteAsset && sym.Status == "TRADING" && sym.IsSpotTradingAllowed {
			assets = append(assets, models.Asset{
				Name:       sym.BaseAsset,
				SzDecimals: sym.BaseAssetPrecision,
			})
		}
	}
	return assets, nil
}

func (b *BinanceClient) GetCandles(ctx context.Context, coin, interval string, hoursBack int) ([]models.Candle, error) {
	coin, interval, hoursBack, err := normalizeCandleRequest(coin, interval, hoursBack)
	if err != nil {
		return nil, err
	}

	start := b.now().Add(-time.Duration(hoursBack) * time.Hour).UnixMilli()
	klines, err := b.client.NewKlinesService().
		Symbol(strings.ToUpper(coin) + quoteAsset).
		Interval(interval).
		StartTime(start).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("klines %s: %w", coin, err)
	}

	result := make([]models.Candle, len(klines))
	for i, k := range klines {
		result[i] = models.Candle{
			OpenTime:  k.OpenTime,
			CloseTime: k.CloseTime,
			Symbol:    coin,
			Interval:  interval,
			Open:      parseFloat(k.Open),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Close:     parseFloat(k.Close),
			Volume:    parseFloat(k.Volume),
			Trades:    k.TradeNum,
		}
	}
	return result, nil
}
