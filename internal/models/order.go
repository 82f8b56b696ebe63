package models

import "time"

// OrderSide represents the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Opposite returns the closing side for this side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType represents the pricing mode of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Order represents an order request sent to the broker gateway.
type Order struct {
	Symbol   string
	Side     OrderSide
	Type     OrderType
	Quantity int
	Price    float64
	Tag      string
	PlacedAt time.Time
}

// OrderState is the broker-reported lifecycle state of an order.
// Broker responses are mapped onto this tagged set rather than inspected
// as ad-hoc status strings.
type OrderState string

const (
	OrderPending         OrderState = "PENDING"
	OrderFilled          OrderState = "FILLED"
	OrderPartiallyFilled OrderState = "PARTIALLY_FILLED"
	OrderRejected        OrderState = "REJECTED"
	OrderCancelled       OrderState = "CANCELLED"
)

// Terminal reports whether the broker will make no further progress on
// an order in this state.
func (s OrderState) Terminal() bool {
	return s == OrderFilled || s == OrderRejected || s == OrderCancelled
}

// OrderStatus is a broker status poll result.
type OrderStatus struct {
	OrderID   string
	State     OrderState
	FilledQty int
	AvgPrice  float64
	Message   string
}
