package exchange

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// infoServer answers /info requests by their "type" field.
func infoServer(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/info", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req map[string]any
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &req))

		resp, ok := responses[req["type"].(string)]
		if !ok {
			http.Error(w, "unknown type", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHyperliquid_GetPrices(t *testing.T) {
	server := infoServer(t, map[string]string{
		"allMids": `{"BTC":"50123.5","ETH":"3012.25","@107":"1.01"}`,
	})
	c := NewHyperliquidClient(WithBaseURL(server.URL))

	prices, err := c.GetPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "50123.5", prices["BTC"])
	assert.Equal(t, "3012.25", prices["ETH"])
}

func TestHyperliquid_GetAssets(t *testing.T) {
	server := infoServer(t, map[string]string{
		"meta": `{"universe":[
			{"name":"BTC","szDecimals":5,"maxLeverage":50},
			{"name":"ETH","szDecimals":4,"maxLeverage":50},
			{"name":"OLD","szDecimals":0,"isDelisted":true}
		]}`,
	})
	c := NewHyperliquidClient(WithBaseURL(server.URL))

	assets, err := c.GetAssets(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "BTC", assets[0].Name)
	assert.Equal(t, 5, assets[0].SzDecimals)
	assert.Equal(t, "ETH", assets[1].Name)
}

func TestHyperliquid_GetCandles(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	var gotReq map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &gotReq))
		io.WriteString(w, `[
			{"t":1699996400000,"T":1699999999999,"s":"BTC","i":"1h","o":"49000","c":"49500.5","h":"49800","l":"48900","v":"12.5","n":321},
			{"t":1700000000000,"T":1700003599999,"s":"BTC","i":"1h","o":"49500.5","c":"50100","h":"50200","l":"49400","v":"8.25","n":200}
		]`)
	}))
	defer server.Close()

	c := NewHyperliquidClient(WithBaseURL(server.URL), WithNow(func() time.Time { return now }))

	candles, err := c.GetCandles(context.Background(), " BTC ", "", 0)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, "candleSnapshot", gotReq["type"])
	req := gotReq["req"].(map[string]any)
	assert.Equal(t, "BTC", req["coin"])
	assert.Equal(t, DefaultInterval, req["interval"])
	assert.Equal(t, float64(now.Add(-24*time.Hour).UnixMilli()), req["startTime"])

	assert.Equal(t, int64(1699996400000), candles[0].OpenTime)
	assert.Equal(t, 49500.5, candles[0].Close)
	assert.Equal(t, 12.5, candles[0].Volume)
	assert.Equal(t, int64(321), candles[0].Trades)
	assert.Equal(t, 50200.0, candles[1].High)
}

func TestHyperliquid_GetCandlesEmptyCoin(t *testing.T) {
	c := NewHyperliquidClient(WithBaseURL("http://127.0.0.1:0"))
	_, err := c.GetCandles(context.Background(), "  ", "1h", 24)
	assert.Error(t, err)
}

func TestHyperliquid_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"BTC":"1"}`)
	}))
	defer server.Close()

	c := NewHyperliquidClient(WithBaseURL(server.URL), WithRetry(3, time.Millisecond, 2*time.Millisecond))

	prices, err := c.GetPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", prices["BTC"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestHyperliquid_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewHyperliquidClient(WithBaseURL(server.URL), WithRetry(3, time.Millisecond, 2*time.Millisecond))

	_, err := c.GetPrices(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), calls.Load())
}

func TestHyperliquid_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	c := NewHyperliquidClient(WithBaseURL(server.URL), WithRetry(3, time.Millisecond, 2*time.Millisecond))

	_, err := c.GetAssets(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBinance_GetPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		io.WriteString(w, `[
			{"symbol":"BTCUSDT","price":"50000.00000000"},
			{"symbol":"ETHUSDT","price":"3000.10000000"},
			{"symbol":"ETHBTC","price":"0.06000000"}
		]`)
	}))
	defer server.Close()

	c := NewBinanceClient("", "")
	c.SetBaseURL(server.URL)

	prices, err := c.GetPrices(context.Background())
	require.NoError(t, err)
	assert.Len(t, prices, 2)
	assert.Equal(t, "50000.00000000", prices["BTC"])
	assert.Equal(t, "3000.10000000", prices["ETH"])
}

func TestNew(t *testing.T) {
	md, err := New("", "")
	require.NoError(t, err)
	assert.IsType(t, &HyperliquidClient{}, md)

	md, err = New("Binance", "")
	require.NoError(t, err)
	assert.IsType(t, &BinanceClient{}, md)

	_, err = New("kraken", "")
	assert.Error(t, err)
}

func TestParseFloat(t *testing.T) {
	assert.Equal(t, 50000.5, parseFloat("50000.5"))
	assert.Equal(t, 0.0, parseFloat("garbage"))
	assert.Equal(t, 0.0, parseFloat(""))
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func TestMidStream_ReceivesMids(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var sub wsSubscribe
		if err := json.Unmarshal(msg, &sub); err != nil {
			t.Errorf("unmarshal subscribe: %v", err)
			return
		}
		assert.Equal(t, "subscribe", sub.Method)
		assert.Equal(t, "allMids", sub.Subscription["type"])

		c.WriteMessage(websocket.TextMessage, []byte(`{"channel":"subscriptionResponse","data":{}}`))
		c.WriteMessage(websocket.TextMessage, []byte(`{"channel":"allMids","data":{"mids":{"BTC":"50001","ETH":"3001","@1":"0.5"}}}`))

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	got := make(chan map[string]string, 1)
	stream := NewMidStream("ws"+strings.TrimPrefix(server.URL, "http"), func(m map[string]string) {
		select {
		case got <- m:
		default:
		}
	})
	stream.Start(context.Background())
	defer stream.Stop()

	select {
	case mids := <-got:
		assert.Equal(t, map[string]string{"BTC": "50001", "ETH": "3001"}, mids)
	case <-time.After(2 * time.Second):
		t.Fatal("no mids received")
	}
}

func TestMidStream_IgnoresMalformed(t *testing.T) {
	called := false
	s := NewMidStream("", func(map[string]string) { called = true })

	s.onMessage([]byte(`not json`))
	s.onMessage([]byte(`{"channel":"pong"}`))
	s.onMessage([]byte(`{"channel":"allMids","data":"oops"}`))
	s.onMessage([]byte(`{"channel":"allMids","data":{"mids":{}}}`))

	assert.False(t, called)
}
