package engine

import (
	"maps"
	"paper_trading/internal/ledger"
	"sync"
	"time"
)

// PriceBook holds the latest mid snapshot. A snapshot older than maxAge is
// stale and yields no prices.
type PriceBook struct {
	mu        sync.RWMutex
	prices    map[string]string
	updatedAt time.Time
	maxAge    time.Duration
	now       func() time.Time
}

func NewPriceBook(maxAge time.Duration, now func() time.Time) *PriceBook {
	if now == nil {
		now = time.Now
	}
	return &PriceBook{
		prices: make(map[string]string),
		maxAge: maxAge,
		now:    now,
	}
}

// Update replaces the snapshot. Empty snapshots are ignored.
func (b *PriceBook) Update(prices map[string]string) {
	if len(prices) == 0 {
		return
	}
	snapshot := maps.Clone(prices)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices = snapshot
	b.updatedAt = b.now()
}

// Fresh reports whether the snapshot may still be used.
func (b *PriceBook) Fresh() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fresh()
}

func (b *PriceBook) fresh() bool {
	if b.updatedAt.IsZero() {
		return false
	}
	return b.maxAge <= 0 || b.now().Sub(b.updatedAt) <= b.maxAge
}

// Snapshot returns a copy of the prices and when they were taken. A stale
// book returns an empty map.
func (b *PriceBook) Snapshot() (map[string]string, time.Time) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.fresh() {
		return map[string]string{}, b.updatedAt
	}
	return maps.Clone(b.prices), b.updatedAt
}

// Price returns the usable mid of symbol.
func (b *PriceBook) Price(symbol string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.fresh() {
		return 0, false
	}
	p := ledger.ParsePrice(b.prices[symbol])
	return p, p > 0
}
