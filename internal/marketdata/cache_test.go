package marketdata

import (
	"fmt"
	"testing"
	"time"

	"algo-trader/internal/models"
)

func TestPriceCachePutAndQuote(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	c := NewPriceCache(10, 2*time.Minute)
	c.SetClock(func() time.Time { return now })

	c.Put(models.Quote{Symbol: "RELIANCE", Price: 2500, Timestamp: now})

	q, ok := c.Quote("RELIANCE")
	if !ok || q.Price != 2500 {
		t.Errorf("Quote = %+v, %v", q, ok)
	}
	if _, ok := c.Quote("MISSING"); ok {
		t.Error("unknown symbol should miss")
	}
}

func TestPriceCacheTTLExpiry(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	clock := now
	c := NewPriceCache(10, 2*time.Minute)
	c.SetClock(func() time.Time { return clock })

	c.Put(models.Quote{Symbol: "INFY", Price: 1500, Timestamp: now})

	clock = now.Add(time.Minute)
	if _, ok := c.Quote("INFY"); !ok {
		t.Error("quote inside TTL should hit")
	}

	clock = now.Add(3 * time.Minute)
	if _, ok := c.Quote("INFY"); ok {
		t.Error("expired quote should miss")
	}
}

func TestPriceCacheRejectsOutOfOrderTicks(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	c := NewPriceCache(10, time.Hour)
	c.SetClock(func() time.Time { return now })

	c.Put(models.Quote{Symbol: "TCS", Price: 3400, Timestamp: now})
	c.Put(models.Quote{Symbol: "TCS", Price: 3000, Timestamp: now.Add(-time.Minute)})

	q, _ := c.Quote("TCS")
	if q.Price != 3400 {
		t.Errorf("older tick overwrote newer quote: %.2f", q.Price)
	}
}

func TestPriceCacheCapacityEviction(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	c := NewPriceCache(3, time.Hour)
	c.SetClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		c.Put(models.Quote{
			Symbol:    fmt.Sprintf("SYM%d", i),
			Price:     100,
			Timestamp: now.Add(time.Duration(i) * time.Second),
		})
	}
	// A fourth symbol evicts the oldest entry, SYM0.
	c.Put(models.Quote{Symbol: "SYM3", Price: 100, Timestamp: now.Add(3 * time.Second)})

	if c.Len() != 3 {
		t.Errorf("len = %d, want capacity 3", c.Len())
	}
	if _, ok := c.Quote("SYM0"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.Quote("SYM3"); !ok {
		t.Error("new entry missing after eviction")
	}
}

func TestPriceCacheIgnoresJunk(t *testing.T) {
	c := NewPriceCache(10, time.Hour)

	c.Put(models.Quote{Symbol: "", Price: 100, Timestamp: time.Now()})
	c.Put(models.Quote{Symbol: "X", Price: 0, Timestamp: time.Now()})
	c.Put(models.Quote{Symbol: "Y", Price: -5, Timestamp: time.Now()})

	if c.Len() != 0 {
		t.Errorf("junk quotes stored: %d", c.Len())
	}
}

func TestSignalBoard(t *testing.T) {
	b := NewSignalBoard()

	// Unknown symbol reads neutral.
	ctx := b.Context("RELIANCE")
	if ctx.Bias != models.BiasNeutral || ctx.TrendStrength != 0 {
		t.Errorf("default = %+v, want neutral", ctx)
	}

	b.Post("RELIANCE", models.MarketContext{Bias: models.BiasBearish, TrendStrength: 1.7})
	ctx = b.Context("RELIANCE")
	if ctx.Bias != models.BiasBearish {
		t.Errorf("bias = %s", ctx.Bias)
	}
	if ctx.TrendStrength != 1.0 {
		t.Errorf("trend strength = %.2f, want clamped 1.0", ctx.TrendStrength)
	}

	// Empty bias normalizes to neutral.
	b.Post("INFY", models.MarketContext{TrendStrength: 0.5})
	if b.Context("INFY").Bias != models.BiasNeutral {
		t.Error("empty bias should read neutral")
	}

	b.Clear("RELIANCE")
	if b.Context("RELIANCE").Bias != models.BiasNeutral {
		t.Error("cleared symbol should read neutral")
	}
}
