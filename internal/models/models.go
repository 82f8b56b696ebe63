// Package models defines the core data types shared across the trading engine.
package models

import "time"

// Position represents an open position owned by the ledger.
// Quantity is signed: positive for long, negative for short. A position whose
// quantity reaches zero is removed from the ledger, never retained at zero size.
type Position struct {
	Symbol        string    `json:"symbol"`
	Quantity      int       `json:"quantity"`
	AveragePrice  float64   `json:"average_price"`
	InvestedValue float64   `json:"invested_value"`
	EntryTime     time.Time `json:"entry_time"`
	LastAddTime   time.Time `json:"last_add_time"`
	Strategy      string    `json:"strategy"`
	Sector        string    `json:"sector"`
	Confidence    float64   `json:"confidence"`
	StopLoss      float64   `json:"stop_loss,omitempty"`
	TakeProfit    float64   `json:"take_profit,omitempty"`

	// FeesPaid accumulates entry-leg fees so realized P&L on closing
	// fills can account for both legs.
	FeesPaid float64 `json:"fees_paid"`
}

// IsLong returns true for a long position.
func (p *Position) IsLong() bool {
	return p.Quantity > 0
}

// AbsQuantity returns the unsigned position size.
func (p *Position) AbsQuantity() int {
	if p.Quantity < 0 {
		return -p.Quantity
	}
	return p.Quantity
}

// UnrealizedPnL computes the open profit at the given price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	return (price - p.AveragePrice) * float64(p.Quantity)
}

// MarketBias is the directional hint supplied by the signal source.
type MarketBias string

const (
	BiasBullish MarketBias = "BULLISH"
	BiasBearish MarketBias = "BEARISH"
	BiasNeutral MarketBias = "NEUTRAL"
)

// MarketContext is the per-symbol hint the exit evaluator consumes.
// TrendStrength is normalized to 0..1.
type MarketContext struct {
	Bias          MarketBias
	TrendStrength float64
}

// VolatilityRegime classifies current volatility for position sizing.
type VolatilityRegime string

const (
	RegimeLow     VolatilityRegime = "LOW"
	RegimeNormal  VolatilityRegime = "NORMAL"
	RegimeHigh    VolatilityRegime = "HIGH"
	RegimeExtreme VolatilityRegime = "EXTREME"
)

// Quote is a point-in-time price observation.
type Quote struct {
	Symbol    string
	Price     float64
	Timestamp time.Time
}
