// Package livecache holds the in-memory snapshot of the most recent known
// price per symbol. It is the only structure written by the updater and read
// by the synchronizer, so every mutation replaces a whole quote at once.
package livecache

import (
	"sync"
	"time"

	"github.com/Vestika/portfolio-sub001/internal/domain/models"
)

// Cache is a concurrency-safe symbol -> LiveQuote map. It never performs I/O
// and has no teardown requirement beyond process exit.
type Cache struct {
	mu     sync.RWMutex
	quotes map[string]models.LiveQuote
	now    func() time.Time
}

func New() *Cache {
	return &Cache{
		quotes: make(map[string]models.LiveQuote),
		now:    time.Now,
	}
}

// Get returns the cached quote for symbol, if any.
func (c *Cache) Get(symbol string) (models.LiveQuote, bool) {
	c.mu.RLock()
	q, ok := c.quotes[symbol]
	c.mu.RUnlock()
	return q, ok
}

// Set overwrites the snapshot for symbol and stamps LastUpdate.
func (c *Cache) Set(symbol string, price float64, currency string, market models.Market, changePercent *float64) {
	q := models.LiveQuote{
		Symbol:        symbol,
		Price:         price,
		Currency:      currency,
		Market:        market,
		ChangePercent: changePercent,
		LastUpdate:    c.now(),
	}
	c.mu.Lock()
	c.quotes[symbol] = q
	c.mu.Unlock()
}

// UpdateBatch applies many quotes as one logical operation and returns how
// many were written. Malformed entries (empty symbol, non-positive price) are
// skipped, not fatal.
func (c *Cache) UpdateBatch(quotes []models.LiveQuote) int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	applied := 0
	for _, q := range quotes {
		if q.Symbol == "" || q.Price <= 0 {
			continue
		}
		if q.LastUpdate.IsZero() {
			q.LastUpdate = now
		}
		c.quotes[q.Symbol] = q
		applied++
	}
	return applied
}

// Remove deletes the snapshot for symbol, reporting whether it existed.
func (c *Cache) Remove(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.quotes[symbol]; !ok {
		return false
	}
	delete(c.quotes, symbol)
	return true
}

// Clear drops all snapshots.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.quotes = make(map[string]models.LiveQuote)
	c.mu.Unlock()
}

// GetAll returns a copy of the current snapshot map.
func (c *Cache) GetAll() map[string]models.LiveQuote {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]models.LiveQuote, len(c.quotes))
	for k, v := range c.quotes {
		out[k] = v
	}
	return out
}

// Symbols returns the set of cached symbol keys.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.quotes))
	for k := range c.quotes {
		out = append(out, k)
	}
	return out
}

// Size returns the number of cached symbols.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.quotes)
}

// Stats summarizes the cache contents by market and update recency.
func (c *Cache) Stats() models.CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := models.CacheStats{
		TotalSymbols: len(c.quotes),
		Markets:      make(map[models.Market]int),
	}
	for _, q := range c.quotes {
		stats.Markets[q.Market]++
		if stats.OldestUpdate == nil || q.LastUpdate.Before(*stats.OldestUpdate) {
			u := q.LastUpdate
			stats.OldestUpdate = &u
		}
		if stats.NewestUpdate == nil || q.LastUpdate.After(*stats.NewestUpdate) {
			u := q.LastUpdate
			stats.NewestUpdate = &u
		}
	}
	return stats
}
