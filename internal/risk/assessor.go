// Package risk provides pre-trade risk assessment and position sizing.
package risk

import (
	"fmt"
	"math"

	"algo-trader/internal/config"
	"algo-trader/internal/models"
)

// SectorUnknown is the catch-all bucket for symbols without a sector tag.
// It is subject to the sector ceiling like any named sector.
const SectorUnknown = "UNCLASSIFIED"

// Proposal describes a trade the caller wants assessed.
type Proposal struct {
	Symbol     string
	Sector     string
	Side       models.OrderSide
	Entry      float64
	Stop       float64
	Target     float64
	LotSize    int
	Confidence float64

	// Regime is optional; empty means no volatility classification is
	// available and no multiplier is applied.
	Regime models.VolatilityRegime
}

// Exposure is the invested notional currently held in one symbol.
type Exposure struct {
	Notional float64
	Sector   string
}

// Profile is the transient result of assessing a single proposal.
// Exactly one of the two shapes holds: IsValid with populated sizing
// fields, or !IsValid with a human-readable Reason.
type Profile struct {
	IsValid        bool
	Reason         string
	RiskReward     float64
	MaxLots        int
	Quantity       int
	RequiredMargin float64
}

// Assessor applies the capital-preservation and concentration rules.
// It is a pure component: no I/O, deterministic for identical inputs.
type Assessor struct {
	cfg          config.RiskConfig
	correlations CorrelationTable
}

// NewAssessor creates a new risk assessor.
func NewAssessor(cfg config.RiskConfig, correlations CorrelationTable) *Assessor {
	return &Assessor{cfg: cfg, correlations: correlations}
}

// Assess gates and sizes a proposed trade against current exposure.
// currentExposure maps symbol to invested notional for every open position.
func (a *Assessor) Assess(p Proposal, currentExposure map[string]Exposure) *Profile {
	if p.Entry <= 0 || p.Stop <= 0 || p.Target <= 0 {
		return reject("all price levels must be strictly positive")
	}
	if p.LotSize <= 0 {
		return reject("lot size must be strictly positive")
	}

	riskDist := math.Abs(p.Entry - p.Stop)
	if riskDist == 0 {
		return reject("invalid risk: entry equals stop")
	}

	rrr := math.Abs(p.Target-p.Entry) / riskDist
	if rrr < a.cfg.MinRiskReward {
		return reject(fmt.Sprintf("risk-reward %.2f below minimum %.2f", rrr, a.cfg.MinRiskReward))
	}

	riskBudget := a.cfg.TotalCapital * a.cfg.RiskPerTradePct / 100
	maxLots := int(math.Floor(riskBudget / (riskDist * float64(p.LotSize))))
	if p.Regime != "" {
		maxLots = int(math.Floor(float64(maxLots) * a.regimeMultiplier(p.Regime)))
	}
	if maxLots == 0 {
		return reject("capital preservation rule allows zero lots")
	}

	quantity := maxLots * p.LotSize
	notional := p.Entry * float64(quantity)

	sector := p.Sector
	if sector == "" {
		sector = SectorUnknown
	}
	sectorNotional := notional
	totalNotional := notional
	for _, e := range currentExposure {
		totalNotional += e.Notional
		s := e.Sector
		if s == "" {
			s = SectorUnknown
		}
		if s == sector {
			sectorNotional += e.Notional
		}
	}

	sectorCeiling := a.cfg.TotalCapital * a.cfg.MaxSectorExposurePct / 100
	if sectorNotional > sectorCeiling {
		return reject(fmt.Sprintf("sector %s exposure %.0f would exceed ceiling %.0f",
			sector, sectorNotional, sectorCeiling))
	}

	// Unknown correlation pairs are treated as uncorrelated and skipped.
	correlatedNotional := notional
	correlated := false
	for symbol, e := range currentExposure {
		if corr, ok := a.correlations.Lookup(p.Symbol, symbol); ok && corr > a.cfg.CorrelationThreshold {
			correlatedNotional += e.Notional
			correlated = true
		}
	}
	if correlated {
		corrCeiling := a.cfg.TotalCapital * a.cfg.MaxCorrelatedExposurePct / 100
		if correlatedNotional > corrCeiling {
			return reject(fmt.Sprintf("correlated exposure %.0f would exceed ceiling %.0f",
				correlatedNotional, corrCeiling))
		}
	}

	if totalNotional > a.cfg.TotalCapital {
		return reject(fmt.Sprintf("total exposure %.0f would exceed capital %.0f",
			totalNotional, a.cfg.TotalCapital))
	}

	return &Profile{
		IsValid:        true,
		RiskReward:     rrr,
		MaxLots:        maxLots,
		Quantity:       quantity,
		RequiredMargin: notional,
	}
}

func (a *Assessor) regimeMultiplier(regime models.VolatilityRegime) float64 {
	switch regime {
	case models.RegimeLow:
		return a.cfg.RegimeMultiplierLow
	case models.RegimeNormal:
		return a.cfg.RegimeMultiplierNormal
	case models.RegimeHigh:
		return a.cfg.RegimeMultiplierHigh
	case models.RegimeExtreme:
		return a.cfg.RegimeMultiplierExtreme
	default:
		return 1.0
	}
}

func reject(reason string) *Profile {
	return &Profile{IsValid: false, Reason: reason}
}
