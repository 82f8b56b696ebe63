// Package broker defines the gateway contract the execution engine consumes
// and a paper-trading implementation of it.
package broker

import (
	"context"

	"algo-trader/internal/models"
)

// Gateway is the broker-side contract for order placement, status polling,
// margin queries, and protective orders. Wire protocol and authentication
// live behind implementations of this interface.
type Gateway interface {
	// PlaceOrder submits an order and returns the broker order ID.
	PlaceOrder(ctx context.Context, order *models.Order) (string, error)

	// PollStatus returns the current broker-reported state of an order.
	PollStatus(ctx context.Context, orderID string) (models.OrderStatus, error)

	// CancelOrder asks the broker to cancel an outstanding order.
	CancelOrder(ctx context.Context, orderID string) error

	// GetMargin returns the margin required for the exact order parameters.
	GetMargin(ctx context.Context, order *models.Order) (float64, error)

	// GetAvailableCash returns cash currently available at the broker.
	GetAvailableCash(ctx context.Context) (float64, error)

	// PlaceProtectiveOrder places a broker-side contingent order that
	// fires when price crosses triggerPrice.
	PlaceProtectiveOrder(ctx context.Context, symbol string, qty int, triggerPrice float64) error

	// CancelProtectiveOrder removes any standing protective order for symbol.
	CancelProtectiveOrder(ctx context.Context, symbol string) error
}
