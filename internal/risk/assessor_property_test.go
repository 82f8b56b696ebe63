package risk

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"algo-trader/internal/models"
)

// Property: a proposal whose entry equals its stop is always rejected,
// regardless of the other levels. The risk distance would be zero and any
// position size would carry unbounded risk per unit.
func TestProperty_EntryEqualsStopAlwaysRejected(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("entry == stop is never sized", prop.ForAll(
		func(level, target float64, lotSize int) bool {
			a := NewAssessor(testRiskConfig(), NewCorrelationTable())
			profile := a.Assess(Proposal{
				Symbol:  "SYM",
				Side:    models.OrderSideBuy,
				Entry:   level,
				Stop:    level,
				Target:  target,
				LotSize: lotSize,
			}, nil)
			return !profile.IsValid
		},
		gen.Float64Range(0.01, 100000),
		gen.Float64Range(0.01, 100000),
		gen.IntRange(1, 500),
	))

	properties.TestingRun(t)
}

// Property: whenever a proposal is accepted, the worst-case loss implied by
// the sized quantity never exceeds the configured per-trade risk budget.
func TestProperty_SizedRiskNeverExceedsBudget(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	cfg := testRiskConfig()
	budget := cfg.TotalCapital * cfg.RiskPerTradePct / 100

	properties.Property("quantity x risk distance <= budget", prop.ForAll(
		func(entry, riskDist, rewardMult float64, lotSize int) bool {
			a := NewAssessor(cfg, NewCorrelationTable())
			stop := entry - riskDist
			if stop <= 0 {
				return true
			}
			target := entry + riskDist*rewardMult

			profile := a.Assess(Proposal{
				Symbol:  "SYM",
				Side:    models.OrderSideBuy,
				Entry:   entry,
				Stop:    stop,
				Target:  target,
				LotSize: lotSize,
			}, nil)
			if !profile.IsValid {
				return true
			}
			worstCase := float64(profile.Quantity) * riskDist
			return worstCase <= budget+1e-6
		},
		gen.Float64Range(10, 5000),
		gen.Float64Range(0.5, 500),
		gen.Float64Range(1.5, 5),
		gen.IntRange(1, 100),
	))

	properties.TestingRun(t)
}

// Property: quantity is always a whole number of lots.
func TestProperty_QuantityIsWholeLots(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("quantity is a whole number of lots", prop.ForAll(
		func(entry, riskDist float64, lotSize int) bool {
			a := NewAssessor(testRiskConfig(), NewCorrelationTable())
			stop := entry - riskDist
			if stop <= 0 {
				return true
			}
			profile := a.Assess(Proposal{
				Symbol:  "SYM",
				Side:    models.OrderSideBuy,
				Entry:   entry,
				Stop:    stop,
				Target:  entry + 2*riskDist,
				LotSize: lotSize,
			}, nil)
			if !profile.IsValid {
				return true
			}
			return profile.Quantity%lotSize == 0 &&
				profile.Quantity == profile.MaxLots*lotSize &&
				math.Abs(profile.RiskReward-2.0) < 1e-6
		},
		gen.Float64Range(10, 5000),
		gen.Float64Range(0.5, 500),
		gen.IntRange(1, 100),
	))

	properties.TestingRun(t)
}
