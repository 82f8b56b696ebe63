package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"algo-trader/internal/broker"
	"algo-trader/internal/compliance"
	"algo-trader/internal/config"
	"algo-trader/internal/errors"
	"algo-trader/internal/ledger"
	"algo-trader/internal/logging"
	"algo-trader/internal/models"
	"algo-trader/internal/risk"
	"algo-trader/pkg/utils"
)

// TradeRequest describes one trade the coordinator should attempt.
// Opening trades leave Quantity zero and are sized by the risk assessor;
// closing trades set Quantity and Closing explicitly.
type TradeRequest struct {
	Symbol     string
	Sector     string
	Side       models.OrderSide
	Entry      float64
	Stop       float64
	Target     float64
	LotSize    int
	Confidence float64
	Strategy   string
	Regime     models.VolatilityRegime

	// Quantity overrides risk sizing when Closing is set.
	Quantity int
	Closing  bool
	Force    bool
	Reason   string
}

// Outcome is the terminal result of one trade attempt.
type Outcome struct {
	AttemptID string
	Final     State
	History   []State
	FilledQty int
	AvgPrice  float64
	Record    *models.TradeRecord
	Reason    string
	Err       error
}

// Journal persists committed trade records off the hot path.
type Journal interface {
	LogTrade(ctx context.Context, rec models.TradeRecord) error
}

// QuoteFunc returns the latest known quote for a symbol.
type QuoteFunc func(symbol string) (models.Quote, bool)

var attemptSeq atomic.Uint64

// Coordinator drives a trade attempt through compliance, risk gating,
// ledger reservation, broker placement and polling, and commit or rollback.
// Every attempt resolves its reservation exactly once before returning.
type Coordinator struct {
	cfg       config.ExecutionConfig
	ledger    *ledger.Ledger
	gateway   broker.Gateway
	assessor  *risk.Assessor
	checker   compliance.Checker
	snapshots *ledger.Snapshotter
	journal   Journal
	quote     QuoteFunc
	logger    zerolog.Logger
	now       func() time.Time
}

// CoordinatorOption configures optional collaborators.
type CoordinatorOption func(*Coordinator)

// WithJournal wires a durable trade journal.
func WithJournal(j Journal) CoordinatorOption {
	return func(c *Coordinator) { c.journal = j }
}

// WithQuotes wires a price source used to estimate closing-order cash needs.
func WithQuotes(q QuoteFunc) CoordinatorOption {
	return func(c *Coordinator) { c.quote = q }
}

// WithCoordinatorClock overrides the time source.
func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a trade execution coordinator.
func NewCoordinator(
	cfg config.ExecutionConfig,
	l *ledger.Ledger,
	gw broker.Gateway,
	assessor *risk.Assessor,
	checker compliance.Checker,
	snapshots *ledger.Snapshotter,
	logger zerolog.Logger,
	opts ...CoordinatorOption,
) *Coordinator {
	c := &Coordinator{
		cfg:       cfg,
		ledger:    l,
		gateway:   gw,
		assessor:  assessor,
		checker:   checker,
		snapshots: snapshots,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newAttemptID generates a process-unique attempt identifier. The same ID
// tags the reservation, the broker order, and the trade record so a crash
// can be reconciled across all three.
func (c *Coordinator) newAttemptID() string {
	return fmt.Sprintf("T%s-%06d", c.now().UTC().Format("20060102T150405"), attemptSeq.Add(1))
}

// apply advances the lifecycle machine. An illegal transition is a
// coordinator bug, not a runtime condition, so it is logged loudly instead
// of silently dropped.
func (c *Coordinator) apply(m *Machine, ev Event, log zerolog.Logger) {
	if err := m.Apply(ev); err != nil {
		log.Error().Err(err).
			Str("state", string(m.State())).
			Str("event", string(ev)).
			Msg("Illegal lifecycle transition")
	}
}

// Execute runs one trade attempt to a terminal state. It never returns with
// a reservation still held.
func (c *Coordinator) Execute(ctx context.Context, req TradeRequest) Outcome {
	attemptID := c.newAttemptID()
	m := NewMachine()
	log := logging.WithAttempt(logging.WithSymbol(c.logger, req.Symbol), attemptID)

	out := func(reason string, err error) Outcome {
		return Outcome{
			AttemptID: attemptID,
			Final:     m.State(),
			History:   m.History(),
			Reason:    reason,
			Err:       err,
		}
	}

	// Sizing: closing trades carry their quantity, opening trades are
	// sized by the assessor against live exposure.
	quantity := req.Quantity
	if !req.Closing {
		profile := c.assessor.Assess(risk.Proposal{
			Symbol:     req.Symbol,
			Sector:     req.Sector,
			Side:       req.Side,
			Entry:      req.Entry,
			Stop:       req.Stop,
			Target:     req.Target,
			LotSize:    req.LotSize,
			Confidence: req.Confidence,
			Regime:     req.Regime,
		}, c.ledger.Exposure())
		if !profile.IsValid {
			c.apply(m, EventRejected, log)
			log.Info().Str("reason", profile.Reason).Msg("Trade rejected by risk assessment")
			return out(profile.Reason, errors.NewRejectionError("risk", profile.Reason))
		}
		quantity = profile.Quantity
		log.Debug().
			Int("quantity", quantity).
			Int("max_lots", profile.MaxLots).
			Float64("risk_reward", profile.RiskReward).
			Msg("Risk assessment approved")
	}

	price := c.orderPrice(req)

	// Compliance runs on the sized order. Forced exits skip it so a
	// mid-session ban cannot trap an open position.
	if !req.Force {
		if res := c.checker.CheckTrade(req.Symbol, quantity, price, req.Side); !res.Compliant {
			c.apply(m, EventRejected, log)
			reason := fmt.Sprintf("compliance: %v", res.Errors)
			log.Info().Strs("violations", res.Errors).Msg("Trade rejected by compliance")
			return out(reason, errors.NewRejectionError("compliance", reason))
		}
	}
	c.apply(m, EventRiskApproved, log)

	// Reserve the ledger slot. Only contention is worth retrying;
	// rejection-class failures are final.
	reserveCfg := utils.RetryConfig{
		MaxAttempts:   c.cfg.ReserveAttempts,
		InitialDelay:  c.cfg.ReserveBackoff,
		MaxDelay:      c.cfg.PollMaxInterval,
		BackoffFactor: 2.0,
	}
	err := utils.Retry(ctx, reserveCfg, func() error {
		return c.ledger.Reserve(req.Symbol, ledger.Reservation{
			AttemptID:  attemptID,
			Side:       req.Side,
			Quantity:   quantity,
			Price:      price,
			EstFees:    c.cfg.FeesPerOrder,
			Strategy:   req.Strategy,
			Sector:     req.Sector,
			Confidence: req.Confidence,
			StopLoss:   req.Stop,
			TakeProfit: req.Target,
			Force:      req.Force,
		})
	}, func(err error) bool {
		return errors.Is(err, errors.ErrConcurrentMutation)
	})
	if err != nil {
		c.apply(m, EventRejected, log)
		log.Info().Err(err).Msg("Ledger reservation failed")
		return out("reservation failed", err)
	}
	c.apply(m, EventReserved, log)

	// The reservation must resolve exactly once. The flag flips on both
	// commit and rollback; the defer catches every early return between.
	resolved := false
	rollback := func() {
		if resolved {
			return
		}
		resolved = true
		if rbErr := c.ledger.Rollback(req.Symbol); rbErr != nil {
			log.Error().Err(rbErr).Msg("Rollback failed, ledger state suspect")
		}
	}
	defer rollback()

	order := &models.Order{
		Symbol:   req.Symbol,
		Side:     req.Side,
		Type:     models.OrderTypeMarket,
		Quantity: quantity,
		Price:    price,
		Tag:      attemptID,
		PlacedAt: c.now(),
	}

	// Margin pre-check for opening trades: the broker's view of free
	// margin beats the ledger's cash estimate.
	if !req.Closing {
		margin, mErr := c.gateway.GetMargin(ctx, order)
		if mErr != nil {
			c.apply(m, EventRejected, log)
			rollback()
			log.Warn().Err(mErr).Msg("Margin query failed")
			return out("margin query failed", errors.NewBrokerError("margin", "", mErr))
		}
		avail, cErr := c.gateway.GetAvailableCash(ctx)
		if cErr != nil {
			c.apply(m, EventRejected, log)
			rollback()
			log.Warn().Err(cErr).Msg("Cash query failed")
			return out("cash query failed", errors.NewBrokerError("margin", "", cErr))
		}
		if margin > avail {
			c.apply(m, EventRejected, log)
			rollback()
			log.Info().
				Float64("required", margin).
				Float64("available", avail).
				Msg("Insufficient margin at broker")
			return out("insufficient margin", errors.ErrInsufficientMargin)
		}
	}

	orderID, err := c.gateway.PlaceOrder(ctx, order)
	if err != nil {
		c.apply(m, EventPlaceFailed, log)
		rollback()
		log.Warn().Err(err).Msg("Order placement failed")
		return out("placement failed", errors.NewBrokerError("place", "", err))
	}
	c.apply(m, EventPlaced, log)
	logging.LogOrder(log, orderID, req.Symbol, string(req.Side), string(models.OrderPending))

	c.apply(m, EventPollStarted, log)
	status, err := c.pollUntilTerminal(ctx, orderID, log)
	if err != nil {
		// Poll window elapsed with the order still working, possibly with a
		// partial fill. Cancel the remainder first; only broker-confirmed
		// post-cancel quantities are committed.
		c.apply(m, EventTimedOut, log)
		return c.resolveTimeout(ctx, m, req, orderID, attemptID, &resolved, log, out)
	}

	if status.State == models.OrderRejected || status.State == models.OrderCancelled {
		c.apply(m, EventBrokerRejected, log)
		rollback()
		log.Info().Str("message", status.Message).Msg("Order rejected by broker")
		return out("broker rejected: "+status.Message,
			errors.NewBrokerError("poll", orderID, fmt.Errorf("order %s: %s", status.State, status.Message)))
	}

	c.apply(m, EventFilled, log)
	return c.commit(ctx, m, req, status, attemptID, &resolved, log, out)
}

// orderPrice picks the working price for estimates and limit checks.
// Closing orders without an explicit price fall back to the latest quote,
// then the position's average entry.
func (c *Coordinator) orderPrice(req TradeRequest) float64 {
	if req.Entry > 0 {
		return req.Entry
	}
	if c.quote != nil {
		if q, ok := c.quote(req.Symbol); ok && q.Price > 0 {
			return q.Price
		}
	}
	if pos, ok := c.ledger.Get(req.Symbol); ok {
		return pos.AveragePrice
	}
	return 0
}

// pollUntilTerminal polls the broker with exponential backoff until the
// order reaches a terminal state or the poll window closes. A partial fill
// is not terminal: the remainder is still working and must be cancelled by
// the timeout path before anything is committed. Transient poll errors are
// absorbed; the deadline is the backstop.
func (c *Coordinator) pollUntilTerminal(ctx context.Context, orderID string, log zerolog.Logger) (models.OrderStatus, error) {
	deadline := c.now().Add(c.cfg.PollTimeout)

	for attempt := 0; ; attempt++ {
		status, err := c.gateway.PollStatus(ctx, orderID)
		if err != nil {
			log.Debug().Err(err).Int("attempt", attempt).Msg("Status poll failed")
		} else if status.State.Terminal() {
			return status, nil
		}

		if c.now().After(deadline) {
			return models.OrderStatus{}, errors.ErrBrokerTimeout
		}

		delay := utils.CalculateBackoff(attempt, c.cfg.PollMinInterval, c.cfg.PollMaxInterval, 2.0)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return models.OrderStatus{}, ctx.Err()
		case <-timer.C:
		}
	}
}

// resolveTimeout handles the poll window closing without a terminal state:
// cancel the order, take one final poll, and commit whatever filled before
// the cancel landed. A failed cancel means the order's fate is unknown and
// a human has to reconcile; the reservation is rolled back so the ledger
// never absorbs an unconfirmed fill.
func (c *Coordinator) resolveTimeout(
	ctx context.Context,
	m *Machine,
	req TradeRequest,
	orderID, attemptID string,
	resolved *bool,
	log zerolog.Logger,
	out func(string, error) Outcome,
) Outcome {
	if err := c.gateway.CancelOrder(ctx, orderID); err != nil {
		c.apply(m, EventRolledBack, log)
		log.Error().Err(err).Str("order_id", orderID).
			Msg("Cancel after timeout failed, order fate unknown")
		return out("cancel failed after timeout",
			errors.Wrapf(errors.ErrManualIntervention, "order %s cancel failed: %v", orderID, err))
	}

	status, err := c.gateway.PollStatus(ctx, orderID)
	if err == nil && status.FilledQty > 0 {
		c.apply(m, EventPartialFill, log)
		return c.commitTimedOut(ctx, m, req, status, attemptID, resolved, log, out)
	}

	c.apply(m, EventRolledBack, log)
	log.Info().Str("order_id", orderID).Msg("Order cancelled after timeout, nothing filled")
	return out("timed out, order cancelled", errors.ErrBrokerTimeout)
}

// commit finalizes a filled or partially filled order into the ledger and
// runs the persistence tail.
func (c *Coordinator) commit(
	ctx context.Context,
	m *Machine,
	req TradeRequest,
	status models.OrderStatus,
	attemptID string,
	resolved *bool,
	log zerolog.Logger,
	out func(string, error) Outcome,
) Outcome {
	rec, err := c.ledger.Commit(req.Symbol, status.AvgPrice, status.FilledQty, c.cfg.FeesPerOrder)
	if err != nil {
		// A refused commit leaves the reservation in place; resolved stays
		// false so the deferred rollback releases it. The exception is a
		// commit with no reservation at all, where there is nothing left to
		// release and a rollback would only report a second fault.
		if errors.Is(err, errors.ErrCommitWithoutReserve) {
			*resolved = true
		}
		c.apply(m, EventRolledBack, log)
		log.Error().Err(err).Msg("Ledger commit failed for confirmed fill")
		return out("commit failed", err)
	}
	*resolved = true
	c.apply(m, EventCommitted, log)
	logging.LogFill(log, req.Symbol, string(req.Side), status.FilledQty, status.AvgPrice, c.cfg.FeesPerOrder)

	c.persistTail(ctx, m, req, rec, status, log)

	o := out("", nil)
	o.FilledQty = status.FilledQty
	o.AvgPrice = status.AvgPrice
	o.Record = &rec
	return o
}

// commitTimedOut is the commit path reached from a timeout with a partial
// fill confirmed after cancel. The machine already moved through TIMED_OUT
// into PARTIALLY_FILLED, so only the commit and persistence work remain.
func (c *Coordinator) commitTimedOut(
	ctx context.Context,
	m *Machine,
	req TradeRequest,
	status models.OrderStatus,
	attemptID string,
	resolved *bool,
	log zerolog.Logger,
	out func(string, error) Outcome,
) Outcome {
	rec, err := c.ledger.Commit(req.Symbol, status.AvgPrice, status.FilledQty, c.cfg.FeesPerOrder)
	if err != nil {
		if errors.Is(err, errors.ErrCommitWithoutReserve) {
			*resolved = true
		}
		c.apply(m, EventRolledBack, log)
		log.Error().Err(err).Msg("Ledger commit failed for post-cancel fill")
		return out("commit failed", err)
	}
	*resolved = true
	c.apply(m, EventCommitted, log)
	log.Info().Int("filled", status.FilledQty).Msg("Partial fill committed after timeout cancel")

	c.persistTail(ctx, m, req, rec, status, log)

	o := out("partial fill after timeout", nil)
	o.FilledQty = status.FilledQty
	o.AvgPrice = status.AvgPrice
	o.Record = &rec
	return o
}

// persistTail runs the post-commit effects: snapshot, journal, protective
// orders. Failures here degrade the attempt but never undo the fill.
func (c *Coordinator) persistTail(ctx context.Context, m *Machine, req TradeRequest, rec models.TradeRecord, status models.OrderStatus, log zerolog.Logger) {
	if c.snapshots != nil {
		c.snapshots.MarkDirty()
		if _, err := c.snapshots.SaveIfNeeded(false); err != nil {
			log.Warn().Err(err).Msg("Snapshot save failed after commit")
		}
	}

	if c.journal != nil {
		if err := c.journal.LogTrade(ctx, rec); err != nil {
			log.Warn().Err(err).Msg("Trade journal write failed")
		}
	}

	if c.cfg.ProtectiveOrders {
		c.manageProtectiveOrders(ctx, req, status, log)
	}

	c.apply(m, EventPersisted, log)
}

// manageProtectiveOrders places a broker-side stop for new exposure and
// clears it when the position is gone. Failures are compensated by the
// local exit monitor, which keeps evaluating stops on every sweep.
func (c *Coordinator) manageProtectiveOrders(ctx context.Context, req TradeRequest, status models.OrderStatus, log zerolog.Logger) {
	pos, open := c.ledger.Get(req.Symbol)

	if !open {
		if err := c.gateway.CancelProtectiveOrder(ctx, req.Symbol); err != nil {
			log.Warn().Err(err).Msg("Protective order cancel failed")
		}
		return
	}

	if !req.Closing && req.Stop > 0 {
		if err := c.gateway.PlaceProtectiveOrder(ctx, req.Symbol, pos.AbsQuantity(), req.Stop); err != nil {
			degraded := errors.NewDegradedError("protective_order", req.Symbol,
				"local exit monitor remains the stop-loss backstop", err)
			log.Warn().Err(degraded).Msg("Protective order placement failed")
		}
	}
}

// ClosePosition reduces or closes an open position through the full
// execution pipeline. It satisfies the exit monitor's executor contract.
func (c *Coordinator) ClosePosition(ctx context.Context, symbol string, qty int, force bool, reason string) error {
	pos, ok := c.ledger.Get(symbol)
	if !ok {
		return errors.ErrUnknownSymbol
	}
	if qty <= 0 || qty > pos.AbsQuantity() {
		qty = pos.AbsQuantity()
	}

	side := models.OrderSideSell
	if !pos.IsLong() {
		side = models.OrderSideBuy
	}

	outcome := c.Execute(ctx, TradeRequest{
		Symbol:   symbol,
		Sector:   pos.Sector,
		Side:     side,
		Strategy: pos.Strategy,
		Quantity: qty,
		Closing:  true,
		Force:    force,
		Reason:   reason,
	})
	if outcome.Err != nil {
		return outcome.Err
	}
	if outcome.FilledQty == 0 {
		return errors.Wrapf(errors.ErrBrokerTimeout, "close %s resolved %s with no fill", symbol, outcome.Final)
	}
	return nil
}
