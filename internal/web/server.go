package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"paper_trading/internal/engine"
	"paper_trading/internal/ledger"
	"paper_trading/internal/models"
	"strconv"
	"strings"
	"time"
)

type Server struct {
	engine *engine.TradingEngine
	port   string
	srv    *http.Server
	log    *slog.Logger
}

func NewServer(engine *engine.TradingEngine, port string) *Server {
	s := &Server{
		engine: engine,
		port:   port,
		log:    slog.With("component", "web"),
	}
	s.srv = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/prices", s.handlePrices)
	mux.HandleFunc("/api/markets", s.handleMarkets)
	mux.HandleFunc("/api/candles", s.handleCandles)
	mux.HandleFunc("/api/positions/", s.handlePositions) // Trailing slash to match /api/positions/{id}
	mux.HandleFunc("/api/positions/aggregated", s.handleAggregated)
	mux.HandleFunc("/api/trades", s.handleTrades)
	mux.HandleFunc("/api/trade", s.handleTrade)
	mux.HandleFunc("/api/sell-preview", s.handleSellPreview)
	return mux
}

func (s *Server) Start() {
	s.log.Info("🌐 Web server starting", slog.String("url", "http://localhost:"+s.port))
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Web server error", slog.Any("err", err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", slog.Any("err", err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps ledger errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrPositionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrPositionClosed):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrPriceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, ledger.ErrInvalidSide),
		errors.Is(err, ledger.ErrInvalidSymbol):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	prices, _ := s.engine.Prices()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"running":      s.engine.IsRunning(),
		"prices_fresh": len(prices) > 0,
		"timestamp":    time.Now().Unix(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetStats())
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	prices, at := s.engine.Prices()
	resp := map[string]interface{}{"prices": prices}
	if !at.IsZero() {
		resp["updated_at"] = at.UnixMilli()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.engine.Markets(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.log.Warn("Markets unavailable", slog.Any("err", err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, markets)
}

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	coin := q.Get("coin")
	if coin == "" {
		writeError(w, http.StatusBadRequest, "coin is required")
		return
	}
	hours := 0
	if v := q.Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}

	candles, summary, err := s.engine.Candles(r.Context(), coin, q.Get("interval"), hours)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"candles": candles,
		"summary": summary,
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/positions/")

	switch r.Method {
	case http.MethodDelete:
		if id == "" {
			writeError(w, http.StatusBadRequest, "Position ID required")
			return
		}
		s.log.Info("🔄 Closing position via API", slog.String("id", id))
		trade, err := s.engine.ClosePositionByID(r.Context(), id)
		if err != nil {
			s.log.Warn("Failed to close position", slog.String("id", id), slog.Any("err", err))
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, trade)

	case http.MethodGet:
		if id != "" {
			pos, ok := s.engine.Ledger().Position(id)
			if !ok {
				writeError(w, http.StatusNotFound, "position not found")
				return
			}
			writeJSON(w, http.StatusOK, pos)
			return
		}
		if r.URL.Query().Get("status") == "all" {
			writeJSON(w, http.StatusOK, s.engine.Ledger().Positions())
			return
		}
		writeJSON(w, http.StatusOK, s.engine.PositionViews())

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleAggregated(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions": s.engine.AggregatedViews(),
		"total_pnl": s.engine.TotalPnL(),
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.engine.TradeHistory(limit))
}

type tradeRequest struct {
	Symbol   string      `json:"symbol"`
	Side     models.Side `json:"side"`
	Quantity float64     `json:"quantity"`
}

type tradeResponse struct {
	Trades    []models.Trade   `json:"trades"`
	Opened    *models.Position `json:"opened,omitempty"`
	Closed    []string         `json:"closed,omitempty"`
	Reduced   []string         `json:"reduced,omitempty"`
	Unfilled  float64          `json:"unfilled,omitempty"`
	ShortSell bool             `json:"short_sell"`
	Price     float64          `json:"price"`
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	side := models.Side(strings.ToLower(strings.TrimSpace(string(req.Side))))
	exec, err := s.engine.SubmitTrade(r.Context(), req.Symbol, side, req.Quantity)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, tradeResponse{
		Trades:    exec.Trades,
		Opened:    exec.Opened,
		Closed:    exec.Closed,
		Reduced:   exec.Reduced,
		Unfilled:  exec.Unfilled,
		ShortSell: exec.ShortSell,
		Price:     exec.Order.Price,
	})
}

func (s *Server) handleSellPreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := q.Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	qty, err := strconv.ParseFloat(q.Get("quantity"), 64)
	if err != nil || math.IsNaN(qty) || math.IsInf(qty, 0) || qty <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be a positive number")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.SellPreview(symbol, qty))
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Paper Trading</title>
<style>
body { font-family: -apple-system, sans-serif; background: #0f1115; color: #e6e6e6; margin: 2rem; }
table { border-collapse: collapse; width: 100%; margin-bottom: 2rem; }
th, td { padding: .4rem .8rem; border-bottom: 1px solid #2a2d35; text-align: right; }
th:first-child, td:first-child { text-align: left; }
.pos { color: #2ebd85; } .neg { color: #f6465d; }
</style>
</head>
<body>
<h1>Paper Trading</h1>
<p>Unrealized PnL: <span id="pnl">-</span></p>
<h2>Positions</h2>
<table id="positions"><thead><tr><th>Symbol</th><th>Side</th><th>Qty</th><th>Entry</th><th>Price</th><th>PnL</th><th>%</th></tr></thead><tbody></tbody></table>
<h2>Trades</h2>
<table id="trades"><thead><tr><th>Time</th><th>Symbol</th><th>Side</th><th>Type</th><th>Qty</th><th>Price</th></tr></thead><tbody></tbody></table>
<script>
const cls = v => v >= 0 ? 'pos' : 'neg';
async function refresh() {
  const [views, agg, trades] = await Promise.all([
    fetch('/api/positions/').then(r => r.json()),
    fetch('/api/positions/aggregated').then(r => r.json()),
    fetch('/api/trades?limit=50').then(r => r.json()),
  ]);
  document.getElementById('pnl').textContent = agg.total_pnl.toFixed(2);
  document.getElementById('pnl').className = cls(agg.total_pnl);
  document.querySelector('#positions tbody').innerHTML = views.map(p =>
    '<tr><td>' + p.symbol + '</td><td>' + p.side + '</td><td>' + p.quantity + '</td><td>' + p.entryPrice +
    '</td><td>' + p.currentPrice + '</td><td class="' + cls(p.pnl) + '">' + p.pnl.toFixed(2) +
    '</td><td class="' + cls(p.pnl) + '">' + p.pnlPercent.toFixed(2) + '</td></tr>').join('');
  document.querySelector('#trades tbody').innerHTML = trades.map(t =>
    '<tr><td>' + new Date(t.timestamp).toLocaleString() + '</td><td>' + t.symbol + '</td><td>' + t.side +
    '</td><td>' + t.type + '</td><td>' + t.quantity + '</td><td>' + t.price + '</td></tr>').join('');
}
refresh();
setInterval(refresh, 3000);
</script>
</body>
</html>`
