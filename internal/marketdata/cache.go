// Package marketdata provides quote ingestion and caching for the exit
// monitor and execution pipeline.
package marketdata

import (
	"sync"
	"time"

	"algo-trader/internal/models"
)

// PriceCache is a bounded, TTL-evicting quote store. Readers never see a
// quote older than the TTL; consumers that need freshness guarantees get a
// miss instead of a stale price.
type PriceCache struct {
	mu       sync.RWMutex
	quotes   map[string]models.Quote
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// NewPriceCache creates a cache holding at most capacity symbols, each
// valid for ttl after its quote timestamp.
func NewPriceCache(capacity int, ttl time.Duration) *PriceCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &PriceCache{
		quotes:   make(map[string]models.Quote, capacity),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (c *PriceCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Put stores a quote, evicting the oldest entry when at capacity.
func (c *PriceCache) Put(q models.Quote) {
	if q.Symbol == "" || q.Price <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.quotes[q.Symbol]; !ok && len(c.quotes) >= c.capacity {
		c.evictOldestLocked()
	}
	// Out-of-order delivery: never replace a quote with an older one.
	if cur, ok := c.quotes[q.Symbol]; ok && q.Timestamp.Before(cur.Timestamp) {
		return
	}
	c.quotes[q.Symbol] = q
}

func (c *PriceCache) evictOldestLocked() {
	var oldest string
	var oldestTime time.Time
	for symbol, q := range c.quotes {
		if oldest == "" || q.Timestamp.Before(oldestTime) {
			oldest = symbol
			oldestTime = q.Timestamp
		}
	}
	if oldest != "" {
		delete(c.quotes, oldest)
	}
}

// Quote returns the cached quote for symbol. Expired quotes are a miss.
func (c *PriceCache) Quote(symbol string) (models.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q, ok := c.quotes[symbol]
	if !ok {
		return models.Quote{}, false
	}
	if c.ttl > 0 && c.now().Sub(q.Timestamp) > c.ttl {
		return models.Quote{}, false
	}
	return q, true
}

// Len returns the number of cached symbols, including expired ones not yet
// overwritten or evicted.
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.quotes)
}
