// Package ledger provides the authoritative in-memory store of cash and open
// positions. All mutations go through the Reserve/Commit/Rollback protocol
// under a single exclusive lock; nothing outside this package mutates cash or
// positions.
package ledger

import (
	"sort"
	"sync"
	"time"

	"algo-trader/internal/errors"
	"algo-trader/internal/models"
	"algo-trader/internal/risk"
)

// Reservation describes a speculative in-flight change for one symbol.
// A reservation holds the symbol's pending-mutation slot until it is
// committed with broker-confirmed figures or rolled back.
type Reservation struct {
	AttemptID  string
	Side       models.OrderSide
	Quantity   int // unsigned requested size
	Price      float64
	EstFees    float64
	Strategy   string
	Sector     string
	Confidence float64
	StopLoss   float64
	TakeProfit float64

	// Force bypasses the minimum holding window. Used for forced exits:
	// stop-loss, expiry, risk-driven liquidation.
	Force bool
}

type pending struct {
	res       Reservation
	estDebit  float64 // cash earmarked while the order is in flight
	createdAt time.Time
}

// Ledger is the single source of truth for positions and cash.
type Ledger struct {
	mu sync.Mutex

	cash      float64
	positions map[string]*models.Position
	inflight  map[string]*pending
	records   []models.TradeRecord
	stats     models.TradeStats
	daySeq    map[string]int

	minHolding time.Duration
	now        func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMinHolding sets the minimum holding window for position reductions.
func WithMinHolding(d time.Duration) Option {
	return func(l *Ledger) { l.minHolding = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger starting from the given cash balance.
func New(initialCash float64, opts ...Option) *Ledger {
	l := &Ledger{
		cash:       initialCash,
		positions:  make(map[string]*models.Position),
		inflight:   make(map[string]*pending),
		daySeq:     make(map[string]int),
		minHolding: 15 * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Reserve records a speculative change for symbol, establishing exclusive
// ownership of that symbol's pending mutation. A second reservation for the
// same symbol fails fast with ErrConcurrentMutation rather than blocking.
func (l *Ledger) Reserve(symbol string, r Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.inflight[symbol]; ok {
		return errors.ErrConcurrentMutation
	}
	if r.Quantity <= 0 {
		return errors.Wrap(errors.ErrInvalidPrice, "reservation quantity must be positive")
	}

	pos := l.positions[symbol]
	delta := signedDelta(r.Side, r.Quantity)

	if pos != nil {
		// Reductions inside the holding window need the force flag.
		reducing := (pos.Quantity > 0 && delta < 0) || (pos.Quantity < 0 && delta > 0)
		if reducing {
			if !r.Force && l.now().Sub(pos.LastAddTime) < l.minHolding {
				return errors.ErrMinHoldingPeriod
			}
			// Reducing through zero would silently open the opposite side;
			// callers close first and open a new position separately.
			if pos.AbsQuantity() < r.Quantity {
				return errors.NewRejectionError("position_size",
					"reduction exceeds open quantity")
			}
		}
	}

	var estDebit float64
	if r.Side == models.OrderSideBuy {
		estDebit = r.Price*float64(r.Quantity) + r.EstFees
		if estDebit > l.availableCashLocked() {
			return errors.ErrInsufficientFunds
		}
	}

	l.inflight[symbol] = &pending{res: r, estDebit: estDebit, createdAt: l.now()}
	return nil
}

// availableCashLocked is cash minus all earmarked in-flight debits.
func (l *Ledger) availableCashLocked() float64 {
	avail := l.cash
	for _, p := range l.inflight {
		avail -= p.estDebit
	}
	return avail
}

// Commit finalizes the pending reservation for symbol with broker-confirmed
// price and quantity, appends a trade record, and returns it. Committing a
// symbol with no prior reservation is a programming error and fatal.
func (l *Ledger) Commit(symbol string, finalPrice float64, finalQty int, fees float64) (models.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.inflight[symbol]
	if !ok {
		return models.TradeRecord{}, errors.NewFatalError("ledger_commit", errors.ErrCommitWithoutReserve)
	}
	if finalQty <= 0 || finalPrice <= 0 {
		return models.TradeRecord{}, errors.Wrap(errors.ErrInvalidPrice, "commit requires positive fill")
	}
	delete(l.inflight, symbol)

	r := p.res
	delta := signedDelta(r.Side, finalQty)
	now := l.now()

	var realized float64
	closing := false

	pos := l.positions[symbol]
	switch {
	case pos == nil:
		// New position from this fill.
		pos = &models.Position{
			Symbol:        symbol,
			Quantity:      delta,
			AveragePrice:  finalPrice,
			InvestedValue: finalPrice * float64(finalQty),
			EntryTime:     now,
			LastAddTime:   now,
			Strategy:      r.Strategy,
			Sector:        r.Sector,
			Confidence:    r.Confidence,
			StopLoss:      r.StopLoss,
			TakeProfit:    r.TakeProfit,
			FeesPaid:      fees,
		}
		l.positions[symbol] = pos

	case sameSign(pos.Quantity, delta):
		// Partial add: rebuild the average entry price.
		totalCost := pos.AveragePrice*float64(pos.AbsQuantity()) + finalPrice*float64(finalQty)
		pos.Quantity += delta
		pos.AveragePrice = totalCost / float64(pos.AbsQuantity())
		pos.InvestedValue = pos.AveragePrice * float64(pos.AbsQuantity())
		pos.LastAddTime = now
		pos.FeesPaid += fees

	default:
		// Trim or close against the existing position.
		closing = true
		if pos.Quantity > 0 {
			realized = (finalPrice - pos.AveragePrice) * float64(finalQty)
		} else {
			realized = (pos.AveragePrice - finalPrice) * float64(finalQty)
		}
		// Charge the exit fee plus the proportional share of entry fees.
		entryShare := pos.FeesPaid * float64(finalQty) / float64(pos.AbsQuantity())
		realized -= fees + entryShare
		pos.FeesPaid -= entryShare
		pos.Quantity += delta
		if pos.Quantity == 0 {
			delete(l.positions, symbol)
		} else {
			pos.InvestedValue = pos.AveragePrice * float64(pos.AbsQuantity())
		}
	}

	// Buys debit cash, sells credit it. Short sales therefore credit at
	// open and debit at close through the same two branches.
	if r.Side == models.OrderSideBuy {
		l.cash -= finalPrice*float64(finalQty) + fees
	} else {
		l.cash += finalPrice*float64(finalQty) - fees
	}

	if closing {
		l.stats.Record(realized)
	}

	day := now.Format("2006-01-02")
	l.daySeq[day]++
	rec := models.TradeRecord{
		Seq:         l.daySeq[day],
		Timestamp:   now,
		Symbol:      symbol,
		Side:        r.Side,
		Quantity:    finalQty,
		Price:       finalPrice,
		Fees:        fees,
		RealizedPnL: realized,
		Closing:     closing,
		CashAfter:   l.cash,
		Strategy:    r.Strategy,
		AttemptID:   r.AttemptID,
	}
	l.records = append(l.records, rec)

	return rec, nil
}

// Rollback discards the pending reservation for symbol. Rolling back a
// symbol with no reservation is a programming error and fatal.
func (l *Ledger) Rollback(symbol string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.inflight[symbol]; !ok {
		return errors.NewFatalError("ledger_rollback", errors.ErrRollbackWithoutReserve)
	}
	delete(l.inflight, symbol)
	return nil
}

// Get returns a copy of the position for symbol.
func (l *Ledger) Get(symbol string) (models.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return models.Position{}, false
	}
	return *pos, true
}

// All returns copies of every open position, sorted by symbol.
func (l *Ledger) All() []models.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// Stats returns a copy of the running trade statistics.
func (l *Ledger) Stats() models.TradeStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Records returns a copy of the in-memory trade record log, ordered by
// commit time.
func (l *Ledger) Records() []models.TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.TradeRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Exposure returns symbol-level invested notional for the risk assessor.
func (l *Ledger) Exposure() map[string]risk.Exposure {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]risk.Exposure, len(l.positions))
	for symbol, pos := range l.positions {
		out[symbol] = risk.Exposure{Notional: pos.InvestedValue, Sector: pos.Sector}
	}
	return out
}

// ExpireStale rolls back reservations older than maxAge and returns the
// affected symbols, oldest contract first. The coordinator resolves every
// reservation it takes before returning; this is the watchdog backstop for
// attempts that died mid-flight and would otherwise hold their symbol forever.
func (l *Ledger) ExpireStale(maxAge time.Duration) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var expired []string
	now := l.now()
	for symbol, p := range l.inflight {
		if now.Sub(p.createdAt) > maxAge {
			delete(l.inflight, symbol)
			expired = append(expired, symbol)
		}
	}
	sort.Strings(expired)
	return expired
}

// InFlight reports whether symbol currently has a pending reservation.
func (l *Ledger) InFlight(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.inflight[symbol]
	return ok
}

func signedDelta(side models.OrderSide, qty int) int {
	if side == models.OrderSideBuy {
		return qty
	}
	return -qty
}

func sameSign(a, b int) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
