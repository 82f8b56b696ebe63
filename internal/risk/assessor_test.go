package risk

import (
	"strings"
	"testing"

	"algo-trader/internal/config"
	"algo-trader/internal/models"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		TotalCapital:             1000000,
		RiskPerTradePct:          1.0,
		MinRiskReward:            1.5,
		MaxSectorExposurePct:     30,
		CorrelationThreshold:     0.70,
		MaxCorrelatedExposurePct: 40,
		RegimeMultiplierLow:      1.0,
		RegimeMultiplierNormal:   1.0,
		RegimeMultiplierHigh:     0.6,
		RegimeMultiplierExtreme:  0.4,
		VolExtremeThreshold:      0.40,
		VolHighThreshold:         0.25,
		VolNormalThreshold:       0.12,
	}
}

func TestAssessSizing(t *testing.T) {
	a := NewAssessor(testRiskConfig(), NewCorrelationTable())

	// Risk budget 10000, risk distance 10, lot size 1: 1000 lots.
	profile := a.Assess(Proposal{
		Symbol:  "RELIANCE",
		Side:    models.OrderSideBuy,
		Entry:   100,
		Stop:    90,
		Target:  120,
		LotSize: 1,
	}, nil)

	if !profile.IsValid {
		t.Fatalf("expected valid profile, got rejection: %s", profile.Reason)
	}
	if profile.MaxLots != 1000 {
		t.Errorf("MaxLots = %d, want 1000", profile.MaxLots)
	}
	if profile.Quantity != 1000 {
		t.Errorf("Quantity = %d, want 1000", profile.Quantity)
	}
	if profile.RiskReward != 2.0 {
		t.Errorf("RiskReward = %.2f, want 2.0", profile.RiskReward)
	}
}

func TestAssessEntryEqualsStop(t *testing.T) {
	a := NewAssessor(testRiskConfig(), NewCorrelationTable())

	profile := a.Assess(Proposal{
		Symbol:  "RELIANCE",
		Side:    models.OrderSideBuy,
		Entry:   100,
		Stop:    100,
		Target:  120,
		LotSize: 1,
	}, nil)

	if profile.IsValid {
		t.Fatal("expected rejection for entry == stop")
	}
	if !strings.Contains(profile.Reason, "invalid risk") {
		t.Errorf("Reason = %q, want invalid risk", profile.Reason)
	}
}

func TestAssessRiskRewardBelowMinimum(t *testing.T) {
	a := NewAssessor(testRiskConfig(), NewCorrelationTable())

	// RRR = 10/10 = 1.0 < 1.5.
	profile := a.Assess(Proposal{
		Symbol:  "INFY",
		Side:    models.OrderSideBuy,
		Entry:   100,
		Stop:    90,
		Target:  110,
		LotSize: 1,
	}, nil)

	if profile.IsValid {
		t.Fatal("expected rejection for insufficient risk-reward")
	}
}

func TestAssessRegimeMultiplier(t *testing.T) {
	a := NewAssessor(testRiskConfig(), NewCorrelationTable())

	tests := []struct {
		regime   models.VolatilityRegime
		wantLots int
	}{
		{models.RegimeLow, 1000},
		{models.RegimeNormal, 1000},
		{models.RegimeHigh, 600},
		{models.RegimeExtreme, 400},
		{"", 1000},
	}

	for _, tt := range tests {
		profile := a.Assess(Proposal{
			Symbol:  "TCS",
			Side:    models.OrderSideBuy,
			Entry:   100,
			Stop:    90,
			Target:  120,
			LotSize: 1,
			Regime:  tt.regime,
		}, nil)
		if !profile.IsValid {
			t.Fatalf("regime %q: unexpected rejection: %s", tt.regime, profile.Reason)
		}
		if profile.MaxLots != tt.wantLots {
			t.Errorf("regime %q: MaxLots = %d, want %d", tt.regime, profile.MaxLots, tt.wantLots)
		}
	}
}

func TestAssessSectorCeiling(t *testing.T) {
	cfg := testRiskConfig()
	a := NewAssessor(cfg, NewCorrelationTable())

	// Proposal notional: entry 100 x 1000 = 100000. Sector ceiling is 300000.
	proposal := Proposal{
		Symbol:  "HDFC",
		Sector:  "BANKING",
		Side:    models.OrderSideBuy,
		Entry:   100,
		Stop:    90,
		Target:  120,
		LotSize: 1,
	}

	// Existing 190000 in the sector: total 290000, under the ceiling.
	under := map[string]Exposure{
		"ICICI": {Notional: 190000, Sector: "BANKING"},
	}
	if profile := a.Assess(proposal, under); !profile.IsValid {
		t.Errorf("expected acceptance under sector ceiling, got: %s", profile.Reason)
	}

	// Existing 210000: total 310000, over the ceiling.
	over := map[string]Exposure{
		"ICICI": {Notional: 210000, Sector: "BANKING"},
	}
	if profile := a.Assess(proposal, over); profile.IsValid {
		t.Error("expected rejection over sector ceiling")
	}

	// Same exposure in a different sector does not count.
	other := map[string]Exposure{
		"TCS": {Notional: 210000, Sector: "IT"},
	}
	if profile := a.Assess(proposal, other); !profile.IsValid {
		t.Errorf("cross-sector exposure should not trip the ceiling: %s", profile.Reason)
	}
}

func TestAssessUnclassifiedSector(t *testing.T) {
	a := NewAssessor(testRiskConfig(), NewCorrelationTable())

	// Untagged symbols pool into one bucket subject to the same ceiling.
	existing := map[string]Exposure{
		"XYZ": {Notional: 250000, Sector: ""},
	}
	profile := a.Assess(Proposal{
		Symbol:  "ABC",
		Side:    models.OrderSideBuy,
		Entry:   100,
		Stop:    90,
		Target:  120,
		LotSize: 1,
	}, existing)

	if profile.IsValid {
		t.Error("expected rejection: pooled unclassified exposure exceeds ceiling")
	}
}

func TestAssessCorrelatedCeiling(t *testing.T) {
	table := NewCorrelationTable()
	table.Set("HDFC", "ICICI", 0.85)
	table.Set("HDFC", "TCS", 0.30)
	a := NewAssessor(testRiskConfig(), table)

	proposal := Proposal{
		Symbol:  "HDFC",
		Sector:  "BANKING",
		Side:    models.OrderSideBuy,
		Entry:   100,
		Stop:    90,
		Target:  120,
		LotSize: 1,
	}

	// Correlated ceiling is 400000. 100000 new + 350000 correlated breaches
	// it. Sector stays under its own ceiling because ICICI is tagged IT here.
	exposure := map[string]Exposure{
		"ICICI": {Notional: 350000, Sector: "IT"},
	}

	if profile := a.Assess(proposal, exposure); profile.IsValid {
		t.Error("expected rejection over correlated ceiling")
	}

	// Below the threshold, correlation is ignored entirely.
	table2 := NewCorrelationTable()
	table2.Set("HDFC", "ICICI", 0.50)
	a2 := NewAssessor(testRiskConfig(), table2)
	if profile := a2.Assess(proposal, exposure); !profile.IsValid {
		t.Errorf("sub-threshold correlation should not trip the ceiling: %s", profile.Reason)
	}
}

func TestAssessTotalExposureCap(t *testing.T) {
	a := NewAssessor(testRiskConfig(), NewCorrelationTable())

	exposure := map[string]Exposure{
		"AAA": {Notional: 500000, Sector: "A"},
		"BBB": {Notional: 290000, Sector: "B"},
		"CCC": {Notional: 150000, Sector: "C"},
	}
	profile := a.Assess(Proposal{
		Symbol:  "DDD",
		Sector:  "D",
		Side:    models.OrderSideBuy,
		Entry:   100,
		Stop:    90,
		Target:  120,
		LotSize: 1,
	}, exposure)

	if profile.IsValid {
		t.Error("expected rejection: total exposure would exceed capital")
	}
}

func TestClassifyRegime(t *testing.T) {
	cfg := testRiskConfig()

	tests := []struct {
		vol  float64
		want models.VolatilityRegime
	}{
		{0.50, models.RegimeExtreme},
		{0.40, models.RegimeExtreme},
		{0.30, models.RegimeHigh},
		{0.25, models.RegimeHigh},
		{0.15, models.RegimeNormal},
		{0.12, models.RegimeNormal},
		{0.05, models.RegimeLow},
	}
	for _, tt := range tests {
		if got := ClassifyRegime(cfg, tt.vol); got != tt.want {
			t.Errorf("ClassifyRegime(%.2f) = %s, want %s", tt.vol, got, tt.want)
		}
	}
}

func TestCorrelationTableSymmetry(t *testing.T) {
	table := NewCorrelationTable()
	table.Set("A", "B", 0.9)

	if corr, ok := table.Lookup("B", "A"); !ok || corr != 0.9 {
		t.Errorf("Lookup(B, A) = %.2f, %v; want 0.9, true", corr, ok)
	}
	if _, ok := table.Lookup("A", "A"); ok {
		t.Error("self-correlation should not be reported")
	}
	if _, ok := table.Lookup("A", "C"); ok {
		t.Error("unknown pair should be a miss")
	}
}
