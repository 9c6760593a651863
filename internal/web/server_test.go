package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"paper_trading/internal/engine"
	"paper_trading/internal/ledger"
	"paper_trading/internal/models"
	"paper_trading/internal/storage"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMarket struct {
	prices map[string]string
}

func (m *stubMarket) GetPrices(ctx context.Context) (map[string]string, error) {
	return m.prices, nil
}

func (m *stubMarket) GetAssets(ctx context.Context) ([]models.Asset, error) {
	return []models.Asset{{Name: "ETH", SzDecimals: 4}, {Name: "BTC", SzDecimals: 5}}, nil
}

func (m *stubMarket) GetCandles(ctx context.Context, coin, interval string, hoursBack int) ([]models.Candle, error) {
	return []models.Candle{
		{Symbol: coin, Interval: interval, Open: 100, Close: 105, High: 106, Low: 99},
	}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *engine.TradingEngine) {
	t.Helper()
	market := &stubMarket{prices: map[string]string{"BTC": "45000", "ETH": "3000"}}
	e := engine.NewTradingEngine(ledger.New(storage.NewMemoryStore()), market, engine.Options{})
	require.NoError(t, e.RefreshPrices(context.Background()))

	ts := httptest.NewServer(NewServer(e, "0").Handler())
	t.Cleanup(ts.Close)
	return ts, e
}

func postTrade(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/trade", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestTradeFlow(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postTrade(t, ts, `{"symbol":"BTC","side":"BUY","quantity":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	buy := decode[tradeResponse](t, resp)
	require.NotNil(t, buy.Opened)
	assert.Equal(t, 45000.0, buy.Price)
	assert.False(t, buy.ShortSell)

	resp = postTrade(t, ts, `{"symbol":"ETH","side":"sell","quantity":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	short := decode[tradeResponse](t, resp)
	assert.True(t, short.ShortSell)

	resp, err := http.Get(ts.URL + "/api/positions/")
	require.NoError(t, err)
	defer resp.Body.Close()
	views := decode[[]models.PositionView](t, resp)
	require.Len(t, views, 2)
	assert.Equal(t, "BTC", views[0].Symbol)
	assert.Equal(t, 45000.0, views[0].CurrentPrice)

	resp2, err := http.Get(ts.URL + "/api/trades")
	require.NoError(t, err)
	defer resp2.Body.Close()
	trades := decode[[]models.Trade](t, resp2)
	assert.Len(t, trades, 2)
	assert.Equal(t, "ETH", trades[0].Symbol)
}

func TestTradeErrors(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"BadJSON", `{`, http.StatusBadRequest},
		{"ZeroQuantity", `{"symbol":"BTC","side":"buy","quantity":0}`, http.StatusBadRequest},
		{"BadSide", `{"symbol":"BTC","side":"hold","quantity":1}`, http.StatusBadRequest},
		{"NoPrice", `{"symbol":"DOGE","side":"buy","quantity":1}`, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postTrade(t, ts, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			body := decode[map[string]string](t, resp)
			assert.NotEmpty(t, body["error"])
		})
	}

	resp, err := http.Get(ts.URL + "/api/trade")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestClosePosition(t *testing.T) {
	ts, e := newTestServer(t)

	exec, err := e.SubmitTrade(context.Background(), "BTC", models.SideBuy, 1)
	require.NoError(t, err)

	del := func(id string) *http.Response {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/positions/"+id, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := del(exec.Opened.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	trade := decode[models.Trade](t, resp)
	assert.Equal(t, models.TradeClose, trade.Type)

	assert.Equal(t, http.StatusConflict, del(exec.Opened.ID).StatusCode)
	assert.Equal(t, http.StatusNotFound, del("nope").StatusCode)
	assert.Equal(t, http.StatusBadRequest, del("").StatusCode)
}

func TestAggregatedAndPreview(t *testing.T) {
	ts, e := newTestServer(t)
	ctx := context.Background()
	_, err := e.SubmitTrade(ctx, "BTC", models.SideBuy, 1)
	require.NoError(t, err)
	_, err = e.SubmitTrade(ctx, "BTC", models.SideBuy, 1)
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/positions/aggregated")
	require.NoError(t, err)
	defer resp.Body.Close()
	var agg struct {
		Positions []models.AggregatedView `json:"positions"`
		TotalPnL  float64                 `json:"total_pnl"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&agg))
	require.Len(t, agg.Positions, 1)
	assert.Equal(t, 2.0, agg.Positions[0].NetQuantity)
	assert.Zero(t, agg.TotalPnL)

	resp2, err := http.Get(ts.URL + "/api/sell-preview?symbol=BTC&quantity=3")
	require.NoError(t, err)
	defer resp2.Body.Close()
	preview := decode[models.SellPreview](t, resp2)
	assert.True(t, preview.IsShortSell)
	assert.Equal(t, 1.0, preview.ShortQuantity)
	assert.True(t, preview.InsufficientFunds)

	resp3, err := http.Get(ts.URL + "/api/sell-preview?symbol=BTC&quantity=abc")
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp3.StatusCode)
}

func TestSellPreviewRejectsBadQuantity(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, qty := range []string{"", "abc", "NaN", "Inf", "-Inf", "0", "-1"} {
		t.Run(qty, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/api/sell-preview?symbol=BTC&quantity=" + url.QueryEscape(qty))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decode[map[string]string](t, resp)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestReadEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/markets?q=b")
	require.NoError(t, err)
	defer resp.Body.Close()
	markets := decode[[]models.Market](t, resp)
	require.Len(t, markets, 1)
	assert.Equal(t, "BTC", markets[0].Name)
	assert.Equal(t, "45000", markets[0].Price)

	resp2, err := http.Get(ts.URL + "/api/prices")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var prices struct {
		Prices map[string]string `json:"prices"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&prices))
	assert.Equal(t, "3000", prices.Prices["ETH"])

	resp3, err := http.Get(ts.URL + "/api/candles?coin=BTC&interval=15m&hours=4")
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusOK, resp3.StatusCode)

	resp4, err := http.Get(ts.URL + "/api/candles")
	require.NoError(t, err)
	resp4.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp4.StatusCode)

	resp5, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp5.Body.Close()
	health := decode[map[string]any](t, resp5)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, true, health["prices_fresh"])

	resp6, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	defer resp6.Body.Close()
	assert.Equal(t, http.StatusOK, resp6.StatusCode)

	resp7, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp7.Body.Close()
	assert.Contains(t, resp7.Header.Get("Content-Type"), "text/html")
}
