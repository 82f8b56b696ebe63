package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"algo-trader/internal/exits"
	"algo-trader/internal/marketdata"
)

// addRunCommand adds the long-running engine loop.
func addRunCommand(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine loop: tick feed, exit monitor, snapshots",
		Long: `Run the engine until interrupted.

Consumes the configured tick feed, sweeps open positions for exit
conditions on the evaluation interval, and writes throttled ledger
snapshots. Flagged exits are routed back through the execution
pipeline as closing trades.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if app.Config.Feed.URL != "" {
				feed := marketdata.NewTickFeed(app.Config.Feed, app.Cache, app.Signals, app.Logger)
				go feed.Run(ctx)
				// Mirror live quotes into the paper venue so closes fill
				// at market rather than at the stale entry level.
				go mirrorQuotes(ctx, app)
			} else {
				app.Logger.Warn().Msg("No feed URL configured, exits rely on manually posted prices")
			}

			evaluator := exits.NewEvaluator(app.Config.Exits)
			monitor := exits.NewMonitor(evaluator, app.Ledger, app.Cache, app.Signals,
				app.Coordinator, app.Config.Exits.EvalInterval, app.Logger)
			go monitor.Run(ctx)

			go snapshotLoop(ctx, app)

			output.Info("Engine running, Ctrl-C to stop")
			<-ctx.Done()

			// Final forced snapshot so a clean shutdown loses nothing.
			app.Snapshotter.MarkDirty()
			if _, err := app.Snapshotter.SaveIfNeeded(true); err != nil {
				app.Logger.Error().Err(err).Msg("Final snapshot failed")
			}
			output.Info("Engine stopped")
			return nil
		},
	}
	rootCmd.AddCommand(cmd)
}

// snapshotLoop periodically flushes dirty ledger state. The snapshotter's
// own throttle bounds the write rate; this loop just provides the cadence.
func snapshotLoop(ctx context.Context, app *App) {
	ticker := time.NewTicker(app.Config.Persistence.MinSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Reservations outlive their attempt only if the attempt died
			// mid-flight; sweep them so no symbol stays locked forever.
			for _, symbol := range app.Ledger.ExpireStale(2 * app.Config.Execution.PollTimeout) {
				app.Logger.Warn().Str("symbol", symbol).Msg("Expired stale ledger reservation")
			}
			if _, err := app.Snapshotter.SaveIfNeeded(false); err != nil {
				app.Logger.Warn().Err(err).Msg("Periodic snapshot failed")
			}
		}
	}
}

// mirrorQuotes pushes cached quotes for open positions into the paper venue.
func mirrorQuotes(ctx context.Context, app *App) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, pos := range app.Ledger.All() {
				if q, ok := app.Cache.Quote(pos.Symbol); ok {
					app.Paper.UpdatePrice(q.Symbol, q.Price)
				}
			}
		}
	}
}
