package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"paper_trading/internal/analysis"
	"paper_trading/internal/exchange"
	"paper_trading/internal/ledger"
	"paper_trading/internal/models"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultMaxPriceAge  = 30 * time.Second
	assetsTTL           = 10 * time.Minute
)

// Options tunes the refresh loop.
type Options struct {
	PollInterval time.Duration
	MaxPriceAge  time.Duration
	// StreamURL enables the allMids websocket next to polling when set.
	StreamURL string
	Now       func() time.Time
}

// TradingEngine connects the ledger to live market data: it keeps the price
// book fresh, executes orders at the current mid and values the book.
type TradingEngine struct {
	ledger *ledger.Ledger
	market exchange.MarketData
	book   *PriceBook
	stream *exchange.MidStream

	pollInterval time.Duration
	now          func() time.Time

	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	wg        sync.WaitGroup

	assetsMu sync.Mutex
	assets   []models.Asset
	assetsAt time.Time

	onExecution func(*models.Execution)
	onClose     func(models.Trade)

	log *slog.Logger
}

func NewTradingEngine(l *ledger.Ledger, market exchange.MarketData, opts Options) *TradingEngine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxPriceAge == 0 {
		opts.MaxPriceAge = DefaultMaxPriceAge
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &TradingEngine{
		ledger:       l,
		market:       market,
		book:         NewPriceBook(opts.MaxPriceAge, opts.Now),
		pollInterval: opts.PollInterval,
		now:          opts.Now,
		stopChan:     make(chan struct{}),
		log:          slog.With("component", "engine"),
	}
	if opts.StreamURL != "" {
		e.stream = exchange.NewMidStream(opts.StreamURL, e.book.Update)
	}
	return e
}

// SetCallbacks registers notifications for executed orders and manual closes.
func (e *TradingEngine) SetCallbacks(
	onExecution func(*models.Execution),
	onClose func(models.Trade),
) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onExecution = onExecution
	e.onClose = onClose
}

func (e *TradingEngine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.isRunning {
		e.mu.Unlock()
		return
	}
	e.isRunning = true
	e.stopChan = make(chan struct{})
	stop := e.stopChan
	e.mu.Unlock()

	e.log.Info("🚀 Trading engine started", slog.Duration("poll", e.pollInterval))

	if e.stream != nil {
		e.stream.Start(ctx)
	}

	e.wg.Add(1)
	go e.pollPrices(ctx, stop)
}

func (e *TradingEngine) Stop() {
	e.mu.Lock()
	if !e.isRunning {
		e.mu.Unlock()
		return
	}
	e.isRunning = false
	close(e.stopChan)
	e.mu.Unlock()

	if e.stream != nil {
		e.stream.Stop()
	}
	e.wg.Wait()
	e.log.Info("⏸️ Trading engine stopped")
}

func (e *TradingEngine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isRunning
}

// Ledger exposes the underlying ledger for read-only front ends.
func (e *TradingEngine) Ledger() *ledger.Ledger {
	return e.ledger
}

func (e *TradingEngine) pollPrices(ctx context.Context, stop <-chan struct{}) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	// Run immediately on start
	if err := e.RefreshPrices(ctx); err != nil {
		e.log.Warn("Price refresh failed", slog.Any("err", err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := e.RefreshPrices(ctx); err != nil {
				e.log.Warn("Price refresh failed", slog.Any("err", err))
			}
		}
	}
}

// RefreshPrices pulls a fresh mid snapshot into the price book.
func (e *TradingEngine) RefreshPrices(ctx context.Context) error {
	prices, err := e.market.GetPrices(ctx)
	if err != nil {
		return err
	}
	if len(prices) == 0 {
		return exchange.ErrNoData
	}
	e.book.Update(prices)
	return nil
}

// Prices returns the current mid snapshot; empty when stale.
func (e *TradingEngine) Prices() (map[string]string, time.Time) {
	return e.book.Snapshot()
}

// Price returns the current mid of symbol, refreshing the book when it is
// stale.
func (e *TradingEngine) Price(ctx context.Context, symbol string) (float64, error) {
	if p, ok := e.book.Price(symbol); ok {
		return p, nil
	}
	if !e.book.Fresh() {
		if err := e.RefreshPrices(ctx); err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ledger.ErrPriceUnavailable, symbol, err)
		}
		if p, ok := e.book.Price(symbol); ok {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ledger.ErrPriceUnavailable, symbol)
}

// SubmitTrade executes a market order at the current mid.
func (e *TradingEngine) SubmitTrade(ctx context.Context, symbol string, side models.Side, quantity float64) (*models.Execution, error) {
	symbol = e.resolveSymbol(symbol)
	if symbol == "" {
		return nil, ledger.ErrInvalidSymbol
	}
	if !side.Valid() {
		return nil, fmt.Errorf("%w: %q", ledger.ErrInvalidSide, side)
	}
	price, err := e.Price(ctx, symbol)
	if err != nil {
		return nil, err
	}

	exec, err := e.ledger.Submit(ctx, models.Order{
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
		Price:    price,
	})
	if err != nil {
		return nil, err
	}

	if exec.ShortSell {
		e.log.Info("📉 Short sell", slog.String("symbol", symbol), slog.Float64("qty", quantity))
	}
	if exec.Unfilled > 0 {
		e.log.Warn("Sell exceeded long exposure", slog.String("symbol", symbol), slog.Float64("unfilled", exec.Unfilled))
	}

	e.mu.RLock()
	cb := e.onExecution
	e.mu.RUnlock()
	if cb != nil {
		cb(exec)
	}
	return exec, nil
}

// ClosePositionByID closes one open lot at the current mid of its symbol.
func (e *TradingEngine) ClosePositionByID(ctx context.Context, id string) (models.Trade, error) {
	pos, ok := e.ledger.Position(id)
	if !ok {
		return models.Trade{}, fmt.Errorf("%w: %s", ledger.ErrPositionNotFound, id)
	}
	if !pos.IsOpen() {
		return models.Trade{}, fmt.Errorf("%w: %s", ledger.ErrPositionClosed, id)
	}

	price, err := e.Price(ctx, pos.Symbol)
	if err != nil {
		return models.Trade{}, err
	}

	trade, err := e.ledger.ClosePosition(ctx, id, price)
	if err != nil {
		return models.Trade{}, err
	}

	pnl := ledger.PositionPnL(pos, price)
	e.log.Info("🎯 Closed position",
		slog.String("id", id),
		slog.String("symbol", pos.Symbol),
		slog.String("side", string(pos.Side)),
		slog.Float64("entry", pos.EntryPrice),
		slog.Float64("exit", price),
		slog.Float64("pnl", pnl.PnL))

	e.mu.RLock()
	cb := e.onClose
	e.mu.RUnlock()
	if cb != nil {
		cb(trade)
	}
	return trade, nil
}

// CloseAllPositions closes every open lot. Lots whose symbol has no price
// stay open; their errors are joined into the result.
func (e *TradingEngine) CloseAllPositions(ctx context.Context) ([]models.Trade, error) {
	var (
		trades []models.Trade
		errs   []error
	)
	for _, p := range e.ledger.OpenPositions() {
		trade, err := e.ClosePositionByID(ctx, p.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		trades = append(trades, trade)
	}
	return trades, errors.Join(errs...)
}

// SellPreview describes a prospective sell against current exposure.
func (e *TradingEngine) SellPreview(symbol string, quantity float64) models.SellPreview {
	return e.ledger.SellPreview(e.resolveSymbol(symbol), quantity)
}

// PositionViews values every open lot at the current mids.
func (e *TradingEngine) PositionViews() []models.PositionView {
	open := e.ledger.OpenPositions()
	views := make([]models.PositionView, 0, len(open))
	for _, p := range open {
		price, _ := e.book.Price(p.Symbol)
		views = append(views, models.PositionView{
			Position:     p,
			CurrentPrice: price,
			PnL:          ledger.PositionPnL(p, price),
		})
	}
	return views
}

// AggregatedViews values the net exposure of each symbol.
func (e *TradingEngine) AggregatedViews() []models.AggregatedView {
	aggs := e.ledger.AggregatedPositions()
	views := make([]models.AggregatedView, 0, len(aggs))
	for _, a := range aggs {
		price, _ := e.book.Price(a.Symbol)
		views = append(views, models.AggregatedView{
			AggregatedPosition: a,
			CurrentPrice:       price,
			PnL:                ledger.AggregatePnL(a, price),
		})
	}
	return views
}

// TotalPnL is the unrealized PnL of all open lots at the current mids.
func (e *TradingEngine) TotalPnL() float64 {
	prices, _ := e.book.Snapshot()
	return e.ledger.TotalPnL(prices)
}

// TradeHistory returns up to limit trades, newest first. A limit <= 0
// returns all of them.
func (e *TradingEngine) TradeHistory(limit int) []models.Trade {
	trades := e.ledger.Trades()
	slices.Reverse(trades)
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp > trades[j].Timestamp
	})
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}
	return trades
}

func (e *TradingEngine) GetStats() *models.Stats {
	stats := &models.Stats{}

	positions := e.ledger.Positions()
	symbols := make(map[string]struct{})
	for _, p := range positions {
		if p.IsOpen() {
			stats.OpenPositions++
			symbols[p.Symbol] = struct{}{}
		} else {
			stats.ClosedPositions++
		}
	}
	stats.Symbols = len(symbols)
	stats.TotalTrades = len(e.ledger.Trades())

	prices, at := e.book.Snapshot()
	stats.UnrealizedPL = e.ledger.TotalPnL(prices)
	if len(prices) > 0 {
		stats.PricedAt = at.UnixMilli()
	}
	return stats
}

// Markets lists the tradable assets with their mids, filtered by a
// case-insensitive substring of the name and sorted by price, highest first.
// Assets without a price sort last.
func (e *TradingEngine) Markets(ctx context.Context, query string) ([]models.Market, error) {
	assets, err := e.Assets(ctx)
	if err != nil {
		return nil, err
	}
	prices, _ := e.book.Snapshot()
	query = strings.ToLower(strings.TrimSpace(query))

	markets := make([]models.Market, 0, len(assets))
	for _, a := range assets {
		if query != "" && !strings.Contains(strings.ToLower(a.Name), query) {
			continue
		}
		markets = append(markets, models.Market{Asset: a, Price: prices[a.Name]})
	}

	sort.SliceStable(markets, func(i, j int) bool {
		return ledger.ParsePrice(markets[i].Price) > ledger.ParsePrice(markets[j].Price)
	})
	return markets, nil
}

// Assets returns the market universe, cached for a few minutes.
func (e *TradingEngine) Assets(ctx context.Context) ([]models.Asset, error) {
	e.assetsMu.Lock()
	defer e.assetsMu.Unlock()

	if e.assets != nil && e.now().Sub(e.assetsAt) < assetsTTL {
		return e.assets, nil
	}
	assets, err := e.market.GetAssets(ctx)
	if err != nil {
		if e.assets != nil {
			e.log.Warn("Asset refresh failed, serving cached list", slog.Any("err", err))
			return e.assets, nil
		}
		return nil, err
	}
	e.assets = assets
	e.assetsAt = e.now()
	return assets, nil
}

// Candles fetches a candle window and its summary.
func (e *TradingEngine) Candles(ctx context.Context, coin, interval string, hoursBack int) ([]models.Candle, *analysis.Summary, error) {
	candles, err := e.market.GetCandles(ctx, e.resolveSymbol(coin), interval, hoursBack)
	if err != nil {
		return nil, nil, err
	}
	return candles, analysis.Summarize(candles), nil
}

func normalizeSymbol(s string) string {
	return strings.TrimSpace(s)
}

// resolveSymbol maps user input to a listed coin. Input is matched as typed
// first ("kPEPE"), then upper-cased ("btc").
func (e *TradingEngine) resolveSymbol(s string) string {
	s = normalizeSymbol(s)
	if _, ok := e.book.Price(s); ok {
		return s
	}
	return strings.ToUpper(s)
}
