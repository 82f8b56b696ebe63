package broker

import (
	"context"

	"algo-trader/internal/models"
	"algo-trader/internal/resilience"
)

// GuardedGateway wraps a Gateway with a circuit breaker so a flapping broker
// link fails fast instead of stalling every attempt behind timeouts.
type GuardedGateway struct {
	inner   Gateway
	breaker *resilience.CircuitBreaker
}

// NewGuardedGateway wraps gw with the given circuit breaker.
func NewGuardedGateway(gw Gateway, breaker *resilience.CircuitBreaker) *GuardedGateway {
	return &GuardedGateway{inner: gw, breaker: breaker}
}

// Breaker exposes the underlying circuit breaker for status reporting.
func (g *GuardedGateway) Breaker() *resilience.CircuitBreaker {
	return g.breaker
}

// PlaceOrder places an order through the circuit breaker.
func (g *GuardedGateway) PlaceOrder(ctx context.Context, order *models.Order) (string, error) {
	var orderID string
	err := g.breaker.Execute(func() error {
		var err error
		orderID, err = g.inner.PlaceOrder(ctx, order)
		return err
	})
	return orderID, err
}

// PollStatus polls an order's status through the circuit breaker.
func (g *GuardedGateway) PollStatus(ctx context.Context, orderID string) (models.OrderStatus, error) {
	var status models.OrderStatus
	err := g.breaker.Execute(func() error {
		var err error
		status, err = g.inner.PollStatus(ctx, orderID)
		return err
	})
	return status, err
}

// CancelOrder cancels an order through the circuit breaker.
func (g *GuardedGateway) CancelOrder(ctx context.Context, orderID string) error {
	return g.breaker.Execute(func() error {
		return g.inner.CancelOrder(ctx, orderID)
	})
}

// GetMargin fetches the margin requirement through the circuit breaker.
func (g *GuardedGateway) GetMargin(ctx context.Context, order *models.Order) (float64, error) {
	var margin float64
	err := g.breaker.Execute(func() error {
		var err error
		margin, err = g.inner.GetMargin(ctx, order)
		return err
	})
	return margin, err
}

// GetAvailableCash fetches available cash through the circuit breaker.
func (g *GuardedGateway) GetAvailableCash(ctx context.Context) (float64, error) {
	var cash float64
	err := g.breaker.Execute(func() error {
		var err error
		cash, err = g.inner.GetAvailableCash(ctx)
		return err
	})
	return cash, err
}

// PlaceProtectiveOrder places a protective stop through the circuit breaker.
func (g *GuardedGateway) PlaceProtectiveOrder(ctx context.Context, symbol string, qty int, triggerPrice float64) error {
	return g.breaker.Execute(func() error {
		return g.inner.PlaceProtectiveOrder(ctx, symbol, qty, triggerPrice)
	})
}

// CancelProtectiveOrder cancels a protective stop through the circuit breaker.
func (g *GuardedGateway) CancelProtectiveOrder(ctx context.Context, symbol string) error {
	return g.breaker.Execute(func() error {
		return g.inner.CancelProtectiveOrder(ctx, symbol)
	})
}

var _ Gateway = (*GuardedGateway)(nil)
