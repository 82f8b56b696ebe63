package broker

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"algo-trader/internal/errors"
	"algo-trader/internal/models"
	"algo-trader/internal/resilience"
)

// downGateway fails every call and counts how many reached it.
type downGateway struct {
	calls int
}

var errLinkDown = stderrors.New("link down")

func (d *downGateway) PlaceOrder(ctx context.Context, order *models.Order) (string, error) {
	d.calls++
	return "", errLinkDown
}

func (d *downGateway) PollStatus(ctx context.Context, orderID string) (models.OrderStatus, error) {
	d.calls++
	return models.OrderStatus{}, errLinkDown
}

func (d *downGateway) CancelOrder(ctx context.Context, orderID string) error {
	d.calls++
	return errLinkDown
}

func (d *downGateway) GetMargin(ctx context.Context, order *models.Order) (float64, error) {
	d.calls++
	return 0, errLinkDown
}

func (d *downGateway) GetAvailableCash(ctx context.Context) (float64, error) {
	d.calls++
	return 0, errLinkDown
}

func (d *downGateway) PlaceProtectiveOrder(ctx context.Context, symbol string, qty int, triggerPrice float64) error {
	d.calls++
	return errLinkDown
}

func (d *downGateway) CancelProtectiveOrder(ctx context.Context, symbol string) error {
	d.calls++
	return errLinkDown
}

func TestGuardedGatewayPassesThrough(t *testing.T) {
	paper := NewPaperGateway(PaperConfig{InitialCash: 50000})
	paper.UpdatePrice("RELIANCE", 100)
	gw := NewGuardedGateway(paper, resilience.NewCircuitBreaker("test", resilience.DefaultCircuitBreakerConfig()))

	orderID, err := gw.PlaceOrder(context.Background(), marketBuy("RELIANCE", 10))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	status, err := gw.PollStatus(context.Background(), orderID)
	if err != nil {
		t.Fatalf("PollStatus: %v", err)
	}
	if status.State != models.OrderFilled {
		t.Errorf("state = %s, want FILLED", status.State)
	}
	cash, err := gw.GetAvailableCash(context.Background())
	if err != nil {
		t.Fatalf("GetAvailableCash: %v", err)
	}
	if cash != 49000 {
		t.Errorf("cash = %.2f, want 49000", cash)
	}
	if gw.Breaker().State() != resilience.CircuitClosed {
		t.Errorf("breaker = %s after clean calls, want CLOSED", gw.Breaker().State())
	}
}

func TestGuardedGatewayFailsFastWhenOpen(t *testing.T) {
	down := &downGateway{}
	breaker := resilience.NewCircuitBreaker("test", resilience.CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Cooldown:         time.Hour,
	})
	gw := NewGuardedGateway(down, breaker)

	for i := 0; i < 3; i++ {
		if _, err := gw.GetAvailableCash(context.Background()); !errors.Is(err, errLinkDown) {
			t.Fatalf("call %d: err = %v, want link down", i, err)
		}
	}
	if breaker.State() != resilience.CircuitOpen {
		t.Fatalf("breaker = %s after 3 failures, want OPEN", breaker.State())
	}

	before := down.calls
	if _, err := gw.PollStatus(context.Background(), "OID1"); !errors.Is(err, errors.ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if err := gw.CancelOrder(context.Background(), "OID1"); !errors.Is(err, errors.ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if down.calls != before {
		t.Errorf("open circuit let %d calls through to the broker", down.calls-before)
	}
}
