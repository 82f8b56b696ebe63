package marketdata

import (
	"strings"
	"sync"

	"algo-trader/internal/models"
)

// SignalBoard is a concurrency-safe store of externally supplied market
// context, one entry per symbol. Symbols without a posted signal read as
// neutral with zero trend strength.
type SignalBoard struct {
	mu       sync.RWMutex
	contexts map[string]models.MarketContext
}

// NewSignalBoard creates an empty signal board.
func NewSignalBoard() *SignalBoard {
	return &SignalBoard{contexts: make(map[string]models.MarketContext)}
}

// Post records the latest market context for symbol, replacing any prior
// entry. Bias is matched case-insensitively and unknown values read as
// neutral; trend strength is clamped to 0..1.
func (b *SignalBoard) Post(symbol string, ctx models.MarketContext) {
	switch models.MarketBias(strings.ToUpper(string(ctx.Bias))) {
	case models.BiasBullish:
		ctx.Bias = models.BiasBullish
	case models.BiasBearish:
		ctx.Bias = models.BiasBearish
	default:
		ctx.Bias = models.BiasNeutral
	}
	if ctx.TrendStrength < 0 {
		ctx.TrendStrength = 0
	} else if ctx.TrendStrength > 1 {
		ctx.TrendStrength = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contexts[symbol] = ctx
}

// Context returns the current market context for symbol.
func (b *SignalBoard) Context(symbol string) models.MarketContext {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if ctx, ok := b.contexts[symbol]; ok {
		return ctx
	}
	return models.MarketContext{Bias: models.BiasNeutral}
}

// Clear removes the posted signal for symbol.
func (b *SignalBoard) Clear(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.contexts, symbol)
}
