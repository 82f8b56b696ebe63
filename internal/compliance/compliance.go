// Package compliance provides pre-trade regulatory rule checks.
package compliance

import (
	"fmt"
	"strings"

	"algo-trader/internal/config"
	"algo-trader/internal/models"
)

// Result is the outcome of a compliance check. A non-compliant result lists
// every rule that failed, not just the first.
type Result struct {
	Compliant bool
	Errors    []string
}

// Checker validates a proposed trade against the regulatory rule table.
// The coordinator calls this on the sized order before any ledger or
// broker interaction.
type Checker interface {
	CheckTrade(symbol string, qty int, price float64, side models.OrderSide) Result
}

// RuleChecker implements Checker from the configured rule table.
type RuleChecker struct {
	banned        map[string]struct{}
	maxOrderQty   int
	maxOrderValue float64
	lotSizes      map[string]int
	priceBands    map[string]config.PriceBand
}

// NewRuleChecker creates a rule checker from configuration. Symbol keys are
// normalized to upper case so config files can use either case.
func NewRuleChecker(cfg config.ComplianceConfig) *RuleChecker {
	banned := make(map[string]struct{}, len(cfg.BannedSymbols))
	for _, s := range cfg.BannedSymbols {
		banned[strings.ToUpper(s)] = struct{}{}
	}
	lots := make(map[string]int, len(cfg.LotSizes))
	for s, lot := range cfg.LotSizes {
		lots[strings.ToUpper(s)] = lot
	}
	bands := make(map[string]config.PriceBand, len(cfg.PriceBands))
	for s, band := range cfg.PriceBands {
		bands[strings.ToUpper(s)] = band
	}
	return &RuleChecker{
		banned:        banned,
		maxOrderQty:   cfg.MaxOrderQty,
		maxOrderValue: cfg.MaxOrderValue,
		lotSizes:      lots,
		priceBands:    bands,
	}
}

// CheckTrade runs every rule and collects the violations.
func (c *RuleChecker) CheckTrade(symbol string, qty int, price float64, side models.OrderSide) Result {
	var errs []string

	if symbol == "" {
		errs = append(errs, "symbol is required")
	}
	if _, ok := c.banned[strings.ToUpper(symbol)]; ok {
		errs = append(errs, fmt.Sprintf("%s is on the ban list", symbol))
	}
	if qty <= 0 {
		errs = append(errs, "quantity must be positive")
	}
	if price <= 0 {
		errs = append(errs, "price must be positive")
	}
	if c.maxOrderQty > 0 && qty > c.maxOrderQty {
		errs = append(errs, fmt.Sprintf("quantity %d exceeds limit %d", qty, c.maxOrderQty))
	}
	if c.maxOrderValue > 0 && price*float64(qty) > c.maxOrderValue {
		errs = append(errs, fmt.Sprintf("order value %.0f exceeds limit %.0f", price*float64(qty), c.maxOrderValue))
	}
	if lot, ok := c.lotSizes[strings.ToUpper(symbol)]; ok && lot > 0 && qty%lot != 0 {
		errs = append(errs, fmt.Sprintf("quantity %d is not a multiple of lot size %d", qty, lot))
	}
	if band, ok := c.priceBands[strings.ToUpper(symbol)]; ok {
		if (band.Min > 0 && price < band.Min) || (band.Max > 0 && price > band.Max) {
			errs = append(errs, fmt.Sprintf("price %.2f outside band %.2f-%.2f for %s",
				price, band.Min, band.Max, symbol))
		}
	}
	if side != models.OrderSideBuy && side != models.OrderSideSell {
		errs = append(errs, fmt.Sprintf("unknown side %q", side))
	}

	return Result{Compliant: len(errs) == 0, Errors: errs}
}

var _ Checker = (*RuleChecker)(nil)
