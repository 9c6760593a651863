package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"paper_trading/internal/models"
	"strings"
	"time"

	"github.com/bitly/go-simplejson"
	"github.com/jpillora/backoff"
)

const (
	DefaultHyperliquidURL = "https://api.hyperliquid.xyz"
	DefaultTimeout        = 10 * time.Second
	DefaultMaxAttempts    = 3
	DefaultRetryMin       = 1 * time.Second
	DefaultRetryMax       = 30 * time.Second
)

// HyperliquidClient reads public market data from the Hyperliquid info
// endpoint.
type HyperliquidClient struct {
	baseURL     string
	client      *http.Client
	maxAttempts int
	retryMin    time.Duration
	retryMax    time.Duration
	now         func() time.Time
	log         *slog.Logger
}

// HyperliquidOption configures HyperliquidClient.
type HyperliquidOption func(*HyperliquidClient)

// WithBaseURL points the client at another API host.
func WithBaseURL(u string) HyperliquidOption {
	return func(c *HyperliquidClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) HyperliquidOption {
	return func(c *HyperliquidClient) {
		c.client = client
	}
}

// WithRetry sets the attempt count and the backoff bounds.
func WithRetry(attempts int, minDelay, maxDelay time.Duration) HyperliquidOption {
	return func(c *HyperliquidClient) {
		c.maxAttempts = attempts
		c.retryMin = minDelay
		c.retryMax = maxDelay
	}
}

// WithNow replaces time.Now for candle window computation.
func WithNow(f func() time.Time) HyperliquidOption {
	return func(c *HyperliquidClient) {
		c.now = f
	}
}

func NewHyperliquidClient(opts ...HyperliquidOption) *HyperliquidClient {
	c := &HyperliquidClient{
		baseURL:     DefaultHyperliquidURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxAttempts: DefaultMaxAttempts,
		retryMin:    DefaultRetryMin,
		retryMax:    DefaultRetryMax,
		now:         time.Now,
		log:         slog.With("component", "hyperliquid"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	return c
}

// Compile-time interface check.
var _ MarketData = (*HyperliquidClient)(nil)

// GetPrices returns the mid price of every listed coin.
func (c *HyperliquidClient) GetPrices(ctx context.Context) (map[string]string, error) {
	j, err := c.info(ctx, map[string]any{"type": "allMids"})
	if err != nil {
		return nil, fmt.Errorf("allMids: %w", err)
	}

	raw, err := j.Map()
	if err != nil {
		return nil, fmt.Errorf("allMids: unexpected payload: %w", err)
	}

	prices := make(map[string]string, len(raw))
	for coin, v := range raw {
		switch p := v.(type) {
		case string:
			prices[coin] = p
		case json.Number:
			prices[coin] = p.String()
		}
	}
	return prices, nil
}

// GetAssets returns the perp universe, skipping delisted coins.
func (c *HyperliquidClient) GetAssets(ctx context.Context) ([]models.Asset, error) {
	j, err := c.info(ctx, map[string]any{"type": "meta"})
	if err != nil {
		return nil, fmt.Errorf("meta: %w", err)
	}

	universe := j.Get("universe")
	items, err := universe.Array()
	if err != nil {
		return nil, fmt.Errorf("meta: missing universe: %w", err)
	}

	assets := make([]models.Asset, 0, len(items))
	for i := range items {
		a := universe.GetIndex(i)
		name := a.Get("name").MustString()
		if name == "" || a.Get("isDelisted").MustBool(false) {
			continue
		}
		assets = append(assets, models.Asset{
			Name:       name,
			SzDecimals: a.Get("szDecimals").MustInt(),
		})
	}
	return assets, nil
}

// GetCandles returns the candles of coin covering the last hoursBack hours.
func (c *HyperliquidClient) GetCandles(ctx context.Context, coin, interval string, hoursBack int) ([]models.Candle, error) {
	coin, interval, hoursBack, err := normalizeCandleRequest(coin, interval, hoursBack)
	if err != nil {
		return nil, err
	}

	start := c.now().Add(-time.Duration(hoursBack) * time.Hour).UnixMilli()
	j, err := c.info(ctx, map[string]any{
		"type": "candleSnapshot",
		"req": map[string]any{
			"coin":      coin,
			"interval":  interval,
			"startTime": start,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("candleSnapshot %s: %w", coin, err)
	}

	items, err := j.Array()
	if err != nil {
		return nil, fmt.Errorf("candleSnapshot %s: unexpected payload: %w", coin, err)
	}

	candles := make([]models.Candle, 0, len(items))
	for i := range items {
		k := j.GetIndex(i)
		candles = append(candles, models.Candle{
			OpenTime:  k.Get("t").MustInt64(),
			CloseTime: k.Get("T").MustInt64(),
			Symbol:    k.Get("s").MustString(coin),
			Interval:  k.Get("i").MustString(interval),
			Open:      number(k.Get("o")),
			Close:     number(k.Get("c")),
			High:      number(k.Get("h")),
			Low:       number(k.Get("l")),
			Volume:    number(k.Get("v")),
			Trades:    k.Get("n").MustInt64(),
		})
	}
	return candles, nil
}

// number reads a field that the API encodes either as a decimal string or
// as a JSON number.
func number(j *simplejson.Json) float64 {
	if s, err := j.String(); err == nil {
		return parseFloat(s)
	}
	return j.MustFloat64()
}

// info posts body to /info, retrying transport failures, 429 and 5xx
// responses with exponential backoff.
func (c *HyperliquidClient) info(ctx context.Context, body any) (*simplejson.Json, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	b := &backoff.Backoff{Min: c.retryMin, Max: c.retryMax, Factor: 2, Jitter: true}
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := b.Duration()
			c.log.Debug("Retrying info request", slog.Int("attempt", attempt+1), slog.Duration("delay", delay), slog.Any("err", lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}

		j, err := simplejson.NewJson(respBody)
		if err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return j, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
