package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"algo-trader/internal/broker"
	"algo-trader/internal/compliance"
	"algo-trader/internal/config"
	"algo-trader/internal/errors"
	"algo-trader/internal/ledger"
	"algo-trader/internal/models"
	"algo-trader/internal/risk"
)

func testExecConfig() config.ExecutionConfig {
	return config.ExecutionConfig{
		ReserveAttempts:  3,
		ReserveBackoff:   time.Millisecond,
		PollMinInterval:  time.Millisecond,
		PollMaxInterval:  5 * time.Millisecond,
		PollTimeout:      100 * time.Millisecond,
		MinHoldingPeriod: time.Minute,
		ProtectiveOrders: true,
		FeesPerOrder:     20,
	}
}

type testRig struct {
	ledger      *ledger.Ledger
	paper       *broker.PaperGateway
	coordinator *Coordinator
}

func testAssessor() *risk.Assessor {
	return risk.NewAssessor(config.RiskConfig{
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
	}, risk.NewCorrelationTable())
}

func newTestRig(t *testing.T, paperCfg broker.PaperConfig) *testRig {
	t.Helper()

	l := ledger.New(1000000, ledger.WithMinHolding(time.Minute))
	paper := broker.NewPaperGateway(paperCfg)
	checker := compliance.NewRuleChecker(config.ComplianceConfig{
		BannedSymbols: []string{"BANNED"},
	})

	coordinator := NewCoordinator(testExecConfig(), l, paper, testAssessor(), checker, nil, zerolog.Nop())
	return &testRig{ledger: l, paper: paper, coordinator: coordinator}
}

func openRequest(symbol string) TradeRequest {
	return TradeRequest{
		Symbol:  symbol,
		Sector:  "TEST",
		Side:    models.OrderSideBuy,
		Entry:   100,
		Stop:    90,
		Target:  120,
		LotSize: 10,
	}
}

func TestExecuteHappyPath(t *testing.T) {
	rig := newTestRig(t, broker.PaperConfig{InitialCash: 1000000})
	rig.paper.UpdatePrice("RELIANCE", 100)

	outcome := rig.coordinator.Execute(context.Background(), openRequest("RELIANCE"))
	if outcome.Err != nil {
		t.Fatalf("execute: %v (%s)", outcome.Err, outcome.Reason)
	}
	if outcome.Final != StatePersisted {
		t.Errorf("final = %s, want PERSISTED", outcome.Final)
	}
	// Budget 10000 / risk 10 = 1000, floored to 100 lots of 10.
	if outcome.FilledQty != 1000 {
		t.Errorf("filled = %d, want 1000", outcome.FilledQty)
	}
	if outcome.Record == nil || outcome.Record.AttemptID != outcome.AttemptID {
		t.Error("trade record missing or not tagged with the attempt ID")
	}

	pos, ok := rig.ledger.Get("RELIANCE")
	if !ok {
		t.Fatal("position not opened")
	}
	if pos.Quantity != 1000 {
		t.Errorf("position quantity = %d, want 1000", pos.Quantity)
	}
	if pos.StopLoss != 90 || pos.TakeProfit != 120 {
		t.Errorf("protective levels = %.2f/%.2f, want 90/120", pos.StopLoss, pos.TakeProfit)
	}
	if rig.ledger.InFlight("RELIANCE") {
		t.Error("reservation not resolved")
	}

	// Protective stop placed at the broker.
	if trigger, ok := rig.paper.ProtectiveOrders()["RELIANCE"]; !ok || trigger != 90 {
		t.Errorf("protective trigger = %.2f, %v; want 90, true", trigger, ok)
	}
}

func TestExecuteRiskRejection(t *testing.T) {
	rig := newTestRig(t, broker.PaperConfig{})
	rig.paper.UpdatePrice("INFY", 100)

	req := openRequest("INFY")
	req.Stop = req.Entry // zero risk distance
	outcome := rig.coordinator.Execute(context.Background(), req)

	if outcome.Final != StateRejected {
		t.Errorf("final = %s, want REJECTED", outcome.Final)
	}
	if errors.ClassOf(outcome.Err) != errors.ClassRejection {
		t.Errorf("error class = %v, want rejection", errors.ClassOf(outcome.Err))
	}
	if rig.ledger.InFlight("INFY") {
		t.Error("rejected trade left a reservation")
	}
}

func TestExecuteComplianceRejection(t *testing.T) {
	rig := newTestRig(t, broker.PaperConfig{})
	rig.paper.UpdatePrice("BANNED", 100)

	outcome := rig.coordinator.Execute(context.Background(), openRequest("BANNED"))
	if outcome.Final != StateRejected {
		t.Errorf("final = %s, want REJECTED", outcome.Final)
	}
	if outcome.Err == nil {
		t.Error("expected a compliance error")
	}
}

func TestExecuteInsufficientMargin(t *testing.T) {
	// Broker reports almost no cash even though the ledger is funded.
	rig := newTestRig(t, broker.PaperConfig{InitialCash: 50})
	rig.paper.UpdatePrice("TCS", 100)

	outcome := rig.coordinator.Execute(context.Background(), openRequest("TCS"))
	if outcome.Final != StateRolledBack {
		t.Errorf("final = %s, want ROLLED_BACK", outcome.Final)
	}
	if !errors.Is(outcome.Err, errors.ErrInsufficientMargin) {
		t.Errorf("err = %v, want ErrInsufficientMargin", outcome.Err)
	}
	if rig.ledger.InFlight("TCS") {
		t.Error("margin abort left a reservation")
	}
	if _, ok := rig.ledger.Get("TCS"); ok {
		t.Error("margin abort opened a position")
	}
}

func TestExecutePlacementFailureRollsBack(t *testing.T) {
	rig := newTestRig(t, broker.PaperConfig{InitialCash: 1000000})
	// No price published: market order placement fails.

	outcome := rig.coordinator.Execute(context.Background(), openRequest("NOPRICE"))
	if outcome.Final != StateRolledBack {
		t.Errorf("final = %s, want ROLLED_BACK", outcome.Final)
	}
	if rig.ledger.InFlight("NOPRICE") {
		t.Error("placement failure left a reservation")
	}
}

func TestExecuteTimeoutCancelsAndRollsBack(t *testing.T) {
	// Order never fills inside the poll window.
	rig := newTestRig(t, broker.PaperConfig{InitialCash: 1000000, FillAfter: 100000})
	rig.paper.UpdatePrice("SLOW", 100)

	outcome := rig.coordinator.Execute(context.Background(), openRequest("SLOW"))
	if outcome.Final != StateRolledBack {
		t.Errorf("final = %s, want ROLLED_BACK", outcome.Final)
	}
	if !errors.Is(outcome.Err, errors.ErrBrokerTimeout) {
		t.Errorf("err = %v, want ErrBrokerTimeout", outcome.Err)
	}
	if rig.ledger.InFlight("SLOW") {
		t.Error("timeout left a reservation")
	}
	if _, ok := rig.ledger.Get("SLOW"); ok {
		t.Error("cancelled order opened a position")
	}
}

func TestExecutePartialFillCommitsConfirmedQuantity(t *testing.T) {
	rig := newTestRig(t, broker.PaperConfig{InitialCash: 1000000})
	rig.paper.UpdatePrice("PART", 100)
	rig.paper.SetPartialFill(300)

	outcome := rig.coordinator.Execute(context.Background(), openRequest("PART"))
	if outcome.Err != nil {
		t.Fatalf("execute: %v (%s)", outcome.Err, outcome.Reason)
	}
	if outcome.Final != StatePersisted {
		t.Errorf("final = %s, want PERSISTED", outcome.Final)
	}
	if outcome.FilledQty != 300 {
		t.Errorf("filled = %d, want the confirmed 300", outcome.FilledQty)
	}

	// The unfilled remainder must not stay working at the broker: the poll
	// deadline cancels it before the confirmed quantity is committed.
	if rig.paper.CancelCount() != 1 {
		t.Errorf("broker cancels = %d, want the order remainder cancelled", rig.paper.CancelCount())
	}

	pos, ok := rig.ledger.Get("PART")
	if !ok || pos.Quantity != 300 {
		t.Errorf("position = %+v, ok=%v; want quantity 300", pos, ok)
	}
	if rig.ledger.InFlight("PART") {
		t.Error("partial commit left a reservation")
	}
}

// zeroPriceGateway confirms fills with a zero average price, figures the
// ledger must refuse to commit.
type zeroPriceGateway struct {
	qty int
}

func (g *zeroPriceGateway) PlaceOrder(ctx context.Context, order *models.Order) (string, error) {
	g.qty = order.Quantity
	return "ZP-1", nil
}

func (g *zeroPriceGateway) PollStatus(ctx context.Context, orderID string) (models.OrderStatus, error) {
	return models.OrderStatus{OrderID: orderID, State: models.OrderFilled, FilledQty: g.qty}, nil
}

func (g *zeroPriceGateway) CancelOrder(ctx context.Context, orderID string) error { return nil }

func (g *zeroPriceGateway) GetMargin(ctx context.Context, order *models.Order) (float64, error) {
	return 0, nil
}

func (g *zeroPriceGateway) GetAvailableCash(ctx context.Context) (float64, error) {
	return 1000000, nil
}

func (g *zeroPriceGateway) PlaceProtectiveOrder(ctx context.Context, symbol string, qty int, triggerPrice float64) error {
	return nil
}

func (g *zeroPriceGateway) CancelProtectiveOrder(ctx context.Context, symbol string) error {
	return nil
}

func TestExecuteCommitRefusalReleasesReservation(t *testing.T) {
	l := ledger.New(1000000, ledger.WithMinHolding(time.Minute))
	checker := compliance.NewRuleChecker(config.ComplianceConfig{})
	coordinator := NewCoordinator(testExecConfig(), l, &zeroPriceGateway{}, testAssessor(), checker, nil, zerolog.Nop())

	outcome := coordinator.Execute(context.Background(), openRequest("GLITCH"))
	if outcome.Err == nil {
		t.Fatal("expected the refused commit to surface an error")
	}
	if outcome.Final != StateRolledBack {
		t.Errorf("final = %s, want ROLLED_BACK", outcome.Final)
	}
	if l.InFlight("GLITCH") {
		t.Error("refused commit left the reservation held")
	}
	if _, ok := l.Get("GLITCH"); ok {
		t.Error("refused commit opened a position")
	}
}

func TestClosePositionRoundTrip(t *testing.T) {
	rig := newTestRig(t, broker.PaperConfig{InitialCash: 1000000})
	rig.paper.UpdatePrice("HDFC", 100)

	outcome := rig.coordinator.Execute(context.Background(), openRequest("HDFC"))
	if outcome.Err != nil {
		t.Fatalf("open: %v", outcome.Err)
	}

	// Price moves up; forced close bypasses the holding window.
	rig.paper.UpdatePrice("HDFC", 110)
	if err := rig.coordinator.ClosePosition(context.Background(), "HDFC", 0, true, "test exit"); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, ok := rig.ledger.Get("HDFC"); ok {
		t.Error("position still open after close")
	}
	stats := rig.ledger.Stats()
	if stats.TotalTrades != 1 || stats.Wins != 1 {
		t.Errorf("stats = %+v, want one winning closed trade", stats)
	}
	// Protective stop cleared with the position.
	if _, ok := rig.paper.ProtectiveOrders()["HDFC"]; ok {
		t.Error("protective order not cancelled after close")
	}
}

func TestClosePositionUnknownSymbol(t *testing.T) {
	rig := newTestRig(t, broker.PaperConfig{})

	err := rig.coordinator.ClosePosition(context.Background(), "GHOST", 0, false, "test")
	if !errors.Is(err, errors.ErrUnknownSymbol) {
		t.Errorf("err = %v, want ErrUnknownSymbol", err)
	}
}

func TestExecuteConcurrentSameSymbol(t *testing.T) {
	rig := newTestRig(t, broker.PaperConfig{InitialCash: 1000000, FillAfter: 3})
	rig.paper.UpdatePrice("RACE", 100)

	done := make(chan Outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			done <- rig.coordinator.Execute(context.Background(), openRequest("RACE"))
		}()
	}

	first, second := <-done, <-done
	wins := 0
	for _, outcome := range []Outcome{first, second} {
		if outcome.Err == nil && outcome.Final == StatePersisted {
			wins++
		}
	}
	// The loser either lost the reservation race on every retry, or its
	// sizing was rejected because the winner had already consumed exposure.
	if wins == 0 {
		t.Error("expected at least one attempt to complete")
	}
	if rig.ledger.InFlight("RACE") {
		t.Error("race left a dangling reservation")
	}
}

func TestAttemptIDsAreUnique(t *testing.T) {
	rig := newTestRig(t, broker.PaperConfig{InitialCash: 1000000})

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := rig.coordinator.newAttemptID()
		if seen[id] {
			t.Fatalf("duplicate attempt ID %s", id)
		}
		seen[id] = true
	}
}
