package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"paper_trading/internal/models"
	"time"
)

// Storage keys, versioned so a format change can live next to old data.
const (
	StorageVersion = "v1"
	PositionsKey   = "paper-positions-" + StorageVersion
	TradesKey      = "paper-trades-" + StorageVersion
)

const saveTimeout = 10 * time.Second

// Load replaces the in-memory state with what the store holds. Unreadable
// or malformed collections are logged and treated as empty.
func (l *Ledger) Load(ctx context.Context) {
	positions := loadCollection[models.Position](ctx, l, PositionsKey)
	trades := loadCollection[models.Trade](ctx, l, TradesKey)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.positions = make([]models.Position, 0, len(positions))
	for _, p := range positions {
		if !validPosition(p) {
			l.log.Warn("Dropping malformed position", slog.String("id", p.ID))
			continue
		}
		l.positions = append(l.positions, p)
		if p.Timestamp > l.lastTs {
			l.lastTs = p.Timestamp
		}
		if p.ExitTimestamp > l.lastTs {
			l.lastTs = p.ExitTimestamp
		}
	}

	l.trades = make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if !validTrade(t) {
			l.log.Warn("Dropping malformed trade", slog.String("id", t.ID))
			continue
		}
		l.trades = append(l.trades, t)
		if t.Timestamp > l.lastTs {
			l.lastTs = t.Timestamp
		}
	}

	l.log.Info("Ledger loaded",
		slog.Int("positions", len(l.positions)),
		slog.Int("trades", len(l.trades)))
}

func loadCollection[T any](ctx context.Context, l *Ledger, key string) []T {
	if l.store == nil {
		return nil
	}
	data, err := l.store.Load(ctx, key)
	if err != nil {
		l.log.Warn("Failed to load collection", slog.String("key", key), slog.Any("err", err))
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		l.log.Warn("Malformed collection, starting empty", slog.String("key", key), slog.Any("err", err))
		return nil
	}
	return items
}

func validPosition(p models.Position) bool {
	if p.ID == "" || p.Symbol == "" || !p.Side.Valid() {
		return false
	}
	if p.Status != models.StatusOpen && p.Status != models.StatusClosed {
		return false
	}
	return usable(p.Quantity) && usable(p.EntryPrice)
}

func validTrade(t models.Trade) bool {
	if t.ID == "" || t.Symbol == "" || !t.Side.Valid() {
		return false
	}
	if t.Type != models.TradeOpen && t.Type != models.TradeClose {
		return false
	}
	return usable(t.Quantity) && usable(t.Price)
}

// persist writes both collections. Failures are logged; the in-memory
// ledger stays authoritative. Must be called with l.mu held.
// Saves ignore the caller's cancellation so memory and store stay in step.
func (l *Ledger) persist(ctx context.Context) {
	if l.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	l.save(ctx, PositionsKey, l.positions)
	l.save(ctx, TradesKey, l.trades)
}

func (l *Ledger) save(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		l.log.Error("Failed to encode collection", slog.String("key", key), slog.Any("err", err))
		return
	}
	if err := l.store.Save(ctx, key, data); err != nil {
		l.log.Error("Failed to save collection", slog.String("key", key), slog.Any("err", err))
	}
}
