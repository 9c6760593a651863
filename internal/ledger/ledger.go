// Package ledger holds the paper-trading position ledger: the lot
// collection, the append-only trade log and the accounting rules that
// connect them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"paper_trading/internal/models"
	"paper_trading/internal/storage"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrInvalidSide      = errors.New("invalid side")
	ErrInvalidSymbol    = errors.New("invalid symbol")
	ErrPositionNotFound = errors.New("position not found")
	ErrPositionClosed   = errors.New("position already closed")
)

// dustQuantity is the float residue below which a lot or an order remainder
// counts as zero (0.1+0.2 sold as 0.3).
const dustQuantity = 1e-9

// ShortPolicy decides what a sell does once the open long lots of a symbol
// are used up.
type ShortPolicy string

const (
	// ShortStopAtLongs closes long lots and stops; the rest of the order
	// is reported as unfilled. A short lot is only opened when the symbol
	// has no open long lot at all.
	ShortStopAtLongs ShortPolicy = "stop"
	// ShortRemainder closes every long lot and opens one short lot for
	// whatever quantity is left.
	ShortRemainder ShortPolicy = "remainder"
)

// ParseShortPolicy maps a config value to a ShortPolicy.
func ParseShortPolicy(s string) (ShortPolicy, error) {
	switch ShortPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case ShortStopAtLongs, "":
		return ShortStopAtLongs, nil
	case ShortRemainder:
		return ShortRemainder, nil
	default:
		return "", fmt.Errorf("unknown short policy: %s", s)
	}
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithIDGenerator replaces the uuid based id generator.
func WithIDGenerator(f func() string) Option {
	return func(l *Ledger) { l.newID = f }
}

// WithClock replaces time.Now.
func WithClock(f func() time.Time) Option {
	return func(l *Ledger) { l.now = f }
}

// WithShortPolicy selects the sell behaviour past the long lots.
func WithShortPolicy(p ShortPolicy) Option {
	return func(l *Ledger) { l.policy = p }
}

// Ledger owns the lots and the trade log. Every mutation is persisted to
// the store before the call returns.
type Ledger struct {
	mu        sync.RWMutex
	positions []models.Position
	trades    []models.Trade
	store     storage.Store
	newID     func() string
	now       func() time.Time
	lastTs    int64
	policy    ShortPolicy
	log       *slog.Logger
}

// New creates an empty ledger backed by store. Call Load to restore
// previously saved state.
func New(store storage.Store, opts ...Option) *Ledger {
	l := &Ledger{
		positions: make([]models.Position, 0),
		trades:    make([]models.Trade, 0),
		store:     store,
		newID:     uuid.NewString,
		now:       time.Now,
		policy:    ShortStopAtLongs,
		log:       slog.With("component", "ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policy returns the configured short-sell policy.
func (l *Ledger) Policy() ShortPolicy {
	return l.policy
}

// tick returns the timestamp for the next record. Timestamps never go
// backwards even if the clock does.
func (l *Ledger) tick() int64 {
	ts := l.now().UnixMilli()
	if ts < l.lastTs {
		ts = l.lastTs
	}
	l.lastTs = ts
	return ts
}

// OpenPositions returns the open lots in insertion order.
func (l *Ledger) OpenPositions() []models.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	open := make([]models.Position, 0, len(l.positions))
	for _, p := range l.positions {
		if p.IsOpen() {
			open = append(open, p)
		}
	}
	return open
}

// Positions returns every lot, open and closed, in insertion order.
func (l *Ledger) Positions() []models.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Position, len(l.positions))
	copy(out, l.positions)
	return out
}

// Position looks a lot up by id.
func (l *Ledger) Position(id string) (models.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := l.indexOf(id)
	if i < 0 {
		return models.Position{}, false
	}
	return l.positions[i], true
}

// Trades returns the trade log in execution order.
func (l *Ledger) Trades() []models.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// AggregatedPositions nets the open lots of each symbol. The result is
// sorted by symbol.
func (l *Ledger) AggregatedPositions() []models.AggregatedPosition {
	l.mu.RLock()
	defer l.mu.RUnlock()

	type sums struct {
		buyQty, sellQty, buyValue, sellValue float64
	}
	bySymbol := make(map[string]*sums)

	for _, p := range l.positions {
		if !p.IsOpen() {
			continue
		}
		s, ok := bySymbol[p.Symbol]
		if !ok {
			s = &sums{}
			bySymbol[p.Symbol] = s
		}
		if p.IsLong() {
			s.buyQty += p.Quantity
			s.buyValue += p.Quantity * p.EntryPrice
		} else {
			s.sellQty += p.Quantity
			s.sellValue += p.Quantity * p.EntryPrice
		}
	}

	result := make([]models.AggregatedPosition, 0, len(bySymbol))
	for symbol, s := range bySymbol {
		agg := models.AggregatedPosition{
			Symbol:       symbol,
			BuyQuantity:  s.buyQty,
			SellQuantity: s.sellQty,
			NetQuantity:  s.buyQty - s.sellQty,
		}
		if s.buyQty > 0 {
			agg.AvgBuyPrice = s.buyValue / s.buyQty
		}
		if s.sellQty > 0 {
			agg.AvgSellPrice = s.sellValue / s.sellQty
		}
		result = append(result, agg)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result
}

// AvailableQuantity is the net long quantity of symbol that can be sold
// without going short. It is negative when short exposure dominates.
func (l *Ledger) AvailableQuantity(symbol string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.available(symbol)
}

func (l *Ledger) available(symbol string) float64 {
	var buy, sell float64
	for _, p := range l.positions {
		if !p.IsOpen() || p.Symbol != symbol {
			continue
		}
		if p.IsLong() {
			buy += p.Quantity
		} else {
			sell += p.Quantity
		}
	}
	return buy - sell
}

// CanSell reports whether quantity is covered by long exposure. It is
// advisory; Submit never refuses a sell because of it.
func (l *Ledger) CanSell(symbol string, quantity float64) bool {
	return l.AvailableQuantity(symbol) >= quantity
}

// SellPreview describes a prospective sell of quantity against the current
// exposure of symbol.
func (l *Ledger) SellPreview(symbol string, quantity float64) models.SellPreview {
	available := l.AvailableQuantity(symbol)

	preview := models.SellPreview{
		Symbol:    symbol,
		Quantity:  quantity,
		Available: available,
	}
	if quantity > available {
		preview.IsShortSell = true
		preview.ShortQuantity = quantity - math.Max(available, 0)
	}
	preview.InsufficientFunds = quantity > 0 && available > 0 && quantity > available
	return preview
}

// TotalPnL sums the unrealized PnL of all open lots. Lots whose symbol has
// no usable price in prices contribute nothing.
func (l *Ledger) TotalPnL(prices map[string]string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := 0.0
	for _, p := range l.positions {
		if !p.IsOpen() {
			continue
		}
		price := ParsePrice(prices[p.Symbol])
		if price == 0 {
			continue
		}
		total += PositionPnL(p, price).PnL
	}
	return total
}

// Submit executes an order at o.Price. Invalid quantities and unusable
// prices are rejected before anything changes.
//
// A buy always opens a new long lot. A sell closes open long lots of the
// symbol oldest first; when there are none it opens a short lot for the
// full quantity. What happens once the long lots run out is governed by
// the ledger's ShortPolicy.
func (l *Ledger) Submit(ctx context.Context, o models.Order) (*models.Execution, error) {
	if !usable(o.Quantity) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuantity, o.Quantity)
	}
	if !usable(o.Price) {
		return nil, fmt.Errorf("%w: %s", ErrPriceUnavailable, o.Symbol)
	}
	if !o.Side.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSide, o.Side)
	}
	if strings.TrimSpace(o.Symbol) == "" {
		return nil, ErrInvalidSymbol
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.tick()
	exec := &models.Execution{Order: o}

	if o.Side == models.SideBuy {
		l.openLot(exec, o.Symbol, models.SideBuy, o.Quantity, o.Price, ts)
	} else {
		l.sell(exec, o, ts)
	}

	l.log.Info("Order executed",
		slog.String("symbol", o.Symbol),
		slog.String("side", string(o.Side)),
		slog.Float64("qty", o.Quantity),
		slog.Float64("price", o.Price),
		slog.Int("trades", len(exec.Trades)),
		slog.Float64("unfilled", exec.Unfilled))

	l.persist(ctx)
	return exec, nil
}

func (l *Ledger) sell(exec *models.Execution, o models.Order, ts int64) {
	var longs []int
	for i := range l.positions {
		p := &l.positions[i]
		if p.IsOpen() && p.IsLong() && p.Symbol == o.Symbol {
			longs = append(longs, i)
		}
	}

	if len(longs) == 0 {
		exec.ShortSell = true
		l.openLot(exec, o.Symbol, models.SideSell, o.Quantity, o.Price, ts)
		return
	}

	remaining := o.Quantity
	for _, i := range longs {
		if remaining <= dustQuantity {
			break
		}
		lot := &l.positions[i]
		closeQty := math.Min(remaining, lot.Quantity)
		if lot.Quantity-closeQty <= dustQuantity {
			closeQty = lot.Quantity
		}

		l.appendTrade(exec, models.Trade{
			ID:         l.newID(),
			Symbol:     o.Symbol,
			Side:       models.SideSell,
			Quantity:   closeQty,
			Price:      o.Price,
			Timestamp:  ts,
			Type:       models.TradeClose,
			PositionID: lot.ID,
		})

		if closeQty == lot.Quantity {
			lot.Status = models.StatusClosed
			lot.ExitPrice = o.Price
			lot.ExitTimestamp = ts
			exec.Closed = append(exec.Closed, lot.ID)
		} else {
			lot.Quantity -= closeQty
			exec.Reduced = append(exec.Reduced, lot.ID)
		}
		remaining -= closeQty
	}

	if remaining <= dustQuantity {
		return
	}
	if l.policy == ShortRemainder {
		exec.ShortSell = true
		l.openLot(exec, o.Symbol, models.SideSell, remaining, o.Price, ts)
		return
	}
	exec.Unfilled = remaining
}

func (l *Ledger) openLot(exec *models.Execution, symbol string, side models.Side, qty, price float64, ts int64) {
	pos := models.Position{
		ID:         l.newID(),
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		EntryPrice: price,
		Timestamp:  ts,
		Status:     models.StatusOpen,
	}
	l.positions = append(l.positions, pos)

	l.appendTrade(exec, models.Trade{
		ID:         l.newID(),
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		Price:      price,
		Timestamp:  ts,
		Type:       models.TradeOpen,
		PositionID: pos.ID,
	})
	exec.Opened = &pos
}

func (l *Ledger) appendTrade(exec *models.Execution, t models.Trade) {
	l.trades = append(l.trades, t)
	exec.Trades = append(exec.Trades, t)
}

// ClosePosition closes one open lot in full at price and records a close
// trade on the opposite side.
func (l *Ledger) ClosePosition(ctx context.Context, id string, price float64) (models.Trade, error) {
	if !usable(price) {
		return models.Trade{}, ErrPriceUnavailable
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOf(id)
	if i < 0 {
		return models.Trade{}, fmt.Errorf("%w: %s", ErrPositionNotFound, id)
	}
	lot := &l.positions[i]
	if !lot.IsOpen() {
		return models.Trade{}, fmt.Errorf("%w: %s", ErrPositionClosed, id)
	}

	ts := l.tick()
	trade := models.Trade{
		ID:         l.newID(),
		Symbol:     lot.Symbol,
		Side:       lot.Side.Opposite(),
		Quantity:   lot.Quantity,
		Price:      price,
		Timestamp:  ts,
		Type:       models.TradeClose,
		PositionID: lot.ID,
	}
	lot.Status = models.StatusClosed
	lot.ExitPrice = price
	lot.ExitTimestamp = ts
	l.trades = append(l.trades, trade)

	l.log.Info("Position closed",
		slog.String("id", id),
		slog.String("symbol", lot.Symbol),
		slog.Float64("qty", lot.Quantity),
		slog.Float64("exit", price))

	l.persist(ctx)
	return trade, nil
}

func (l *Ledger) indexOf(id string) int {
	for i := range l.positions {
		if l.positions[i].ID == id {
			return i
		}
	}
	return -1
}
