// Package exits provides scoring of open positions for exit and the
// background monitor that routes flagged positions back into execution.
package exits

import (
	"fmt"
	"sort"
	"time"

	"algo-trader/internal/config"
	"algo-trader/internal/models"
)

// RuleCategory identifies which rule family triggered an exit.
type RuleCategory string

const (
	RuleStopLoss      RuleCategory = "stop_loss"
	RuleTarget        RuleCategory = "target"
	RuleTimeBased     RuleCategory = "time_based"
	RuleTrendReversal RuleCategory = "trend_reversal"
)

// Reason is one contributing factor in an exit decision.
type Reason struct {
	Category RuleCategory
	Text     string
	Weight   float64
}

// Decision is the transient per-position, per-cycle evaluation result.
// It is advisory: the caller decides whether to act on it.
type Decision struct {
	Symbol        string
	Skip          bool
	SkipReason    string
	ShouldExit    bool
	Forced        bool
	Urgency       float64
	Trigger       RuleCategory
	Reasons       []Reason
	UnrealizedPnL float64
	PnLPercent    float64
}

// ReasonTexts returns the ranked reason strings.
func (d Decision) ReasonTexts() []string {
	out := make([]string, len(d.Reasons))
	for i, r := range d.Reasons {
		out[i] = r.Text
	}
	return out
}

// Evaluator scores open positions for exit.
type Evaluator struct {
	cfg config.ExitConfig
	now func() time.Time
}

// NewEvaluator creates an exit evaluator.
func NewEvaluator(cfg config.ExitConfig) *Evaluator {
	return &Evaluator{cfg: cfg, now: time.Now}
}

// NewEvaluatorWithClock creates an evaluator with an injected time source.
func NewEvaluatorWithClock(cfg config.ExitConfig, now func() time.Time) *Evaluator {
	return &Evaluator{cfg: cfg, now: now}
}

// Evaluate scores one position against the current price and market context.
// Stale or non-positive prices yield a skip decision rather than a verdict
// built on fabricated data.
func (e *Evaluator) Evaluate(pos models.Position, price float64, priceTime time.Time, mctx models.MarketContext) Decision {
	d := Decision{Symbol: pos.Symbol}

	if price <= 0 {
		d.Skip = true
		d.SkipReason = fmt.Sprintf("non-positive price %.2f", price)
		return d
	}
	if age := e.now().Sub(priceTime); age > e.cfg.PriceFreshness {
		d.Skip = true
		d.SkipReason = fmt.Sprintf("price is %s old, freshness window %s", age.Round(time.Second), e.cfg.PriceFreshness)
		return d
	}

	d.UnrealizedPnL = pos.UnrealizedPnL(price)
	if pos.InvestedValue > 0 {
		d.PnLPercent = d.UnrealizedPnL / pos.InvestedValue * 100
	}

	var reasons []Reason
	hard := false

	// Hard stop: explicit level crossed, or the percentage floor breached.
	if stopHit(pos, price) {
		hard = true
		reasons = append(reasons, Reason{RuleStopLoss, fmt.Sprintf("stop-loss %.2f hit at %.2f", pos.StopLoss, price), 100})
	} else if d.PnLPercent <= -e.cfg.StopLossPct {
		hard = true
		reasons = append(reasons, Reason{RuleStopLoss, fmt.Sprintf("loss %.1f%% beyond stop threshold %.1f%%", -d.PnLPercent, e.cfg.StopLossPct), 100})
	}

	// Hard target.
	if targetHit(pos, price) {
		hard = true
		reasons = append(reasons, Reason{RuleTarget, fmt.Sprintf("take-profit %.2f hit at %.2f", pos.TakeProfit, price), 100})
	} else if d.PnLPercent >= e.cfg.TargetPct {
		hard = true
		reasons = append(reasons, Reason{RuleTarget, fmt.Sprintf("gain %.1f%% beyond target threshold %.1f%%", d.PnLPercent, e.cfg.TargetPct), 100})
	}

	// Holding duration.
	held := e.now().Sub(pos.EntryTime)
	if e.cfg.MaxHoldingTime > 0 {
		switch ratio := float64(held) / float64(e.cfg.MaxHoldingTime); {
		case ratio >= 1:
			reasons = append(reasons, Reason{RuleTimeBased, fmt.Sprintf("held %s beyond limit %s", held.Round(time.Minute), e.cfg.MaxHoldingTime), 45})
		case ratio >= 0.75:
			reasons = append(reasons, Reason{RuleTimeBased, fmt.Sprintf("held %s approaching limit %s", held.Round(time.Minute), e.cfg.MaxHoldingTime), 15})
		}
	}

	// Market context: an adverse trend adds urgency scaled by its strength,
	// more so when the position is already losing.
	if adverse(pos, mctx.Bias) {
		w := 35 * clamp01(mctx.TrendStrength)
		if d.UnrealizedPnL < 0 {
			w += 15 * clamp01(mctx.TrendStrength)
		}
		if w > 0 {
			reasons = append(reasons, Reason{RuleTrendReversal, fmt.Sprintf("trend turned %s against position (strength %.2f)", mctx.Bias, mctx.TrendStrength), w})
		}
	}

	sort.SliceStable(reasons, func(i, j int) bool { return reasons[i].Weight > reasons[j].Weight })
	d.Reasons = reasons

	var total float64
	for _, r := range reasons {
		total += r.Weight
	}
	if total > 100 {
		total = 100
	}
	d.Urgency = total

	if hard {
		d.ShouldExit = true
		d.Forced = true
		d.Urgency = 100
	} else if total >= e.cfg.ExitUrgencyFloor {
		d.ShouldExit = true
	}
	if len(reasons) > 0 {
		d.Trigger = reasons[0].Category
	}

	return d
}

func stopHit(pos models.Position, price float64) bool {
	if pos.StopLoss <= 0 {
		return false
	}
	if pos.IsLong() {
		return price <= pos.StopLoss
	}
	return price >= pos.StopLoss
}

func targetHit(pos models.Position, price float64) bool {
	if pos.TakeProfit <= 0 {
		return false
	}
	if pos.IsLong() {
		return price >= pos.TakeProfit
	}
	return price <= pos.TakeProfit
}

func adverse(pos models.Position, bias models.MarketBias) bool {
	if pos.IsLong() {
		return bias == models.BiasBearish
	}
	return bias == models.BiasBullish
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
