package exits

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"algo-trader/internal/logging"
	"algo-trader/internal/models"
)

// PositionSource supplies the open positions to evaluate.
type PositionSource interface {
	All() []models.Position
}

// PriceSource supplies the latest observed quote per symbol.
type PriceSource interface {
	Quote(symbol string) (models.Quote, bool)
}

// SignalSource supplies the per-symbol market-context hint. The engine does
// not generate this signal; it only consumes it.
type SignalSource interface {
	Context(symbol string) models.MarketContext
}

// Executor routes a flagged exit back into trade execution as a closing
// trade. force carries the hard-rule flag so the executor can bypass the
// minimum holding window.
type Executor interface {
	ClosePosition(ctx context.Context, symbol string, qty int, force bool, reason string) error
}

// Monitor periodically evaluates every open position and routes exits.
type Monitor struct {
	evaluator *Evaluator
	positions PositionSource
	prices    PriceSource
	signals   SignalSource
	executor  Executor
	interval  time.Duration
	logger    zerolog.Logger
}

// NewMonitor creates an exit monitor.
func NewMonitor(
	evaluator *Evaluator,
	positions PositionSource,
	prices PriceSource,
	signals SignalSource,
	executor Executor,
	interval time.Duration,
	logger zerolog.Logger,
) *Monitor {
	return &Monitor{
		evaluator: evaluator,
		positions: positions,
		prices:    prices,
		signals:   signals,
		executor:  executor,
		interval:  interval,
		logger:    logger,
	}
}

// Run evaluates on a fixed cadence until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep runs one evaluation cycle over all open positions.
func (m *Monitor) Sweep(ctx context.Context) {
	for _, pos := range m.positions.All() {
		quote, ok := m.prices.Quote(pos.Symbol)
		if !ok {
			m.logger.Debug().Str("symbol", pos.Symbol).Msg("No quote, skipping exit evaluation")
			continue
		}

		decision := m.evaluator.Evaluate(pos, quote.Price, quote.Timestamp, m.signals.Context(pos.Symbol))
		if decision.Skip {
			m.logger.Debug().Str("symbol", pos.Symbol).Str("reason", decision.SkipReason).Msg("Exit evaluation skipped")
			continue
		}
		if !decision.ShouldExit {
			continue
		}

		logging.LogExit(m.logger, pos.Symbol, decision.Urgency, decision.ReasonTexts())

		reason := string(decision.Trigger)
		if err := m.executor.ClosePosition(ctx, pos.Symbol, pos.AbsQuantity(), decision.Forced, reason); err != nil {
			m.logger.Error().Err(err).Str("symbol", pos.Symbol).Msg("Exit execution failed")
		}
	}
}
