package risk

import (
	"algo-trader/internal/config"
	"algo-trader/internal/models"
)

// ClassifyRegime maps annualized volatility to a sizing regime. Thresholds
// are checked in strictly descending order so every tier is reachable.
func ClassifyRegime(cfg config.RiskConfig, annualizedVol float64) models.VolatilityRegime {
	switch {
	case annualizedVol >= cfg.VolExtremeThreshold:
		return models.RegimeExtreme
	case annualizedVol >= cfg.VolHighThreshold:
		return models.RegimeHigh
	case annualizedVol >= cfg.VolNormalThreshold:
		return models.RegimeNormal
	default:
		return models.RegimeLow
	}
}

// CorrelationTable holds pairwise correlations between instruments.
// Lookup is symmetric; absent pairs are treated as uncorrelated.
type CorrelationTable struct {
	pairs map[pairKey]float64
}

type pairKey struct {
	a, b string
}

func normalizePair(a, b string) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

// NewCorrelationTable builds a table from symbol-pair entries.
func NewCorrelationTable() CorrelationTable {
	return CorrelationTable{pairs: make(map[pairKey]float64)}
}

// Set records the correlation between two symbols.
func (t CorrelationTable) Set(a, b string, corr float64) {
	t.pairs[normalizePair(a, b)] = corr
}

// Lookup returns the correlation for a pair and whether it is known.
func (t CorrelationTable) Lookup(a, b string) (float64, bool) {
	if t.pairs == nil || a == b {
		return 0, false
	}
	corr, ok := t.pairs[normalizePair(a, b)]
	return corr, ok
}
