package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"algo-trader/internal/errors"
	"algo-trader/internal/models"
)

// PaperGateway implements Gateway as an in-process simulation. Orders fill
// against a price cache after a configurable number of status polls, which
// keeps the coordinator's polling path honest in paper mode and in tests.
type PaperGateway struct {
	mu sync.RWMutex

	cash       float64
	leverage   float64
	slippage   float64 // fraction applied against the order's direction
	fillAfter  int     // polls before an order reports filled
	partialQty int     // when >0, fill only this many and stop

	prices      map[string]float64
	orders      map[string]*paperOrder
	protective  map[string]float64 // symbol -> trigger price
	orderSerial int
	cancels     int
}

type paperOrder struct {
	order     models.Order
	state     models.OrderState
	polls     int
	filledQty int
	avgPrice  float64
}

// PaperConfig holds configuration for the paper gateway.
type PaperConfig struct {
	InitialCash float64
	Leverage    float64 // margin divisor; 1.0 means full notional
	Slippage    float64
	FillAfter   int
}

// NewPaperGateway creates a paper gateway.
func NewPaperGateway(cfg PaperConfig) *PaperGateway {
	if cfg.InitialCash == 0 {
		cfg.InitialCash = 1000000
	}
	if cfg.Leverage <= 0 {
		cfg.Leverage = 1.0
	}
	return &PaperGateway{
		cash:       cfg.InitialCash,
		leverage:   cfg.Leverage,
		slippage:   cfg.Slippage,
		fillAfter:  cfg.FillAfter,
		prices:     make(map[string]float64),
		orders:     make(map[string]*paperOrder),
		protective: make(map[string]float64),
	}
}

// UpdatePrice sets the simulated market price for a symbol.
func (g *PaperGateway) UpdatePrice(symbol string, price float64) {
	g.mu.Lock()
	g.prices[symbol] = price
	g.mu.Unlock()
}

// SetPartialFill makes the next fills stop at qty, leaving the rest open.
func (g *PaperGateway) SetPartialFill(qty int) {
	g.mu.Lock()
	g.partialQty = qty
	g.mu.Unlock()
}

// PlaceOrder simulates order placement.
func (g *PaperGateway) PlaceOrder(ctx context.Context, order *models.Order) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	price, ok := g.prices[order.Symbol]
	if !ok && order.Type == models.OrderTypeMarket {
		return "", errors.NewBrokerError("place", "", fmt.Errorf("no price for %s", order.Symbol))
	}

	exec := price
	if order.Type == models.OrderTypeLimit {
		exec = order.Price
	}
	// Slippage moves the fill against the taker.
	if order.Side == models.OrderSideBuy {
		exec *= 1 + g.slippage
	} else {
		exec *= 1 - g.slippage
	}

	g.orderSerial++
	orderID := fmt.Sprintf("PAPER_%d_%d", time.Now().Unix(), g.orderSerial)
	g.orders[orderID] = &paperOrder{
		order:    *order,
		state:    models.OrderPending,
		avgPrice: exec,
	}
	return orderID, nil
}

// PollStatus simulates broker status polling. Orders stay pending for the
// configured number of polls, then report filled (or partially filled).
func (g *PaperGateway) PollStatus(ctx context.Context, orderID string) (models.OrderStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	po, ok := g.orders[orderID]
	if !ok {
		return models.OrderStatus{}, errors.ErrOrderNotFound
	}

	if po.state == models.OrderPending {
		po.polls++
		if po.polls > g.fillAfter {
			if g.partialQty > 0 && g.partialQty < po.order.Quantity {
				po.state = models.OrderPartiallyFilled
				po.filledQty = g.partialQty
			} else {
				po.state = models.OrderFilled
				po.filledQty = po.order.Quantity
			}
			if po.order.Side == models.OrderSideBuy {
				g.cash -= po.avgPrice * float64(po.filledQty)
			} else {
				g.cash += po.avgPrice * float64(po.filledQty)
			}
		}
	}

	return models.OrderStatus{
		OrderID:   orderID,
		State:     po.state,
		FilledQty: po.filledQty,
		AvgPrice:  po.avgPrice,
	}, nil
}

// CancelOrder simulates order cancellation. Confirmed fills survive the
// cancel; only the unfilled remainder is cancelled.
func (g *PaperGateway) CancelOrder(ctx context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	po, ok := g.orders[orderID]
	if !ok {
		return errors.ErrOrderNotFound
	}
	if po.state == models.OrderFilled {
		return errors.NewBrokerError("cancel", orderID, fmt.Errorf("order already filled"))
	}
	po.state = models.OrderCancelled
	g.cancels++
	return nil
}

// CancelCount returns how many orders were cancelled at the gateway.
func (g *PaperGateway) CancelCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cancels
}

// GetMargin returns the simulated margin requirement for an order.
func (g *PaperGateway) GetMargin(ctx context.Context, order *models.Order) (float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	price := order.Price
	if price == 0 {
		price = g.prices[order.Symbol]
	}
	if price <= 0 {
		return 0, errors.NewBrokerError("margin", "", fmt.Errorf("no price for %s", order.Symbol))
	}
	return price * float64(order.Quantity) / g.leverage, nil
}

// GetAvailableCash returns simulated broker cash.
func (g *PaperGateway) GetAvailableCash(ctx context.Context) (float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cash, nil
}

// PlaceProtectiveOrder records a simulated protective trigger.
func (g *PaperGateway) PlaceProtectiveOrder(ctx context.Context, symbol string, qty int, triggerPrice float64) error {
	if triggerPrice <= 0 {
		return errors.NewBrokerError("protective", "", fmt.Errorf("invalid trigger price %.2f", triggerPrice))
	}
	g.mu.Lock()
	g.protective[symbol] = triggerPrice
	g.mu.Unlock()
	return nil
}

// CancelProtectiveOrder removes a simulated protective trigger.
func (g *PaperGateway) CancelProtectiveOrder(ctx context.Context, symbol string) error {
	g.mu.Lock()
	delete(g.protective, symbol)
	g.mu.Unlock()
	return nil
}

// ProtectiveOrders returns a copy of the standing protective trigger book.
func (g *PaperGateway) ProtectiveOrders() map[string]float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]float64, len(g.protective))
	for symbol, trigger := range g.protective {
		out[symbol] = trigger
	}
	return out
}

var _ Gateway = (*PaperGateway)(nil)
