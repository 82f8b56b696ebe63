package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"algo-trader/internal/engine"
	"algo-trader/internal/models"
	"algo-trader/internal/risk"
)

// addTradingCommands adds trade entry and position commands.
func addTradingCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newBuyCmd(app))
	rootCmd.AddCommand(newSellCmd(app))
	rootCmd.AddCommand(newCloseCmd(app))
	rootCmd.AddCommand(newPositionsCmd(app))
	rootCmd.AddCommand(newBalanceCmd(app))
}

func newBuyCmd(app *App) *cobra.Command {
	cmd := newEntryCmd(app, models.OrderSideBuy, "buy", "Open or add to a long position")
	cmd.Example = `  engine buy RELIANCE --price 2500 --sl 2450 --target 2600
  engine buy INFY --price 1500 --sl 1470 --target 1560 --sector IT --vol 0.18`
	return cmd
}

func newSellCmd(app *App) *cobra.Command {
	cmd := newEntryCmd(app, models.OrderSideSell, "sell", "Open or add to a short position")
	cmd.Example = `  engine sell TCS --price 3400 --sl 3470 --target 3250`
	return cmd
}

// newEntryCmd builds an opening-trade command. Sizing is decided by the
// risk assessor, so the command takes levels, not a quantity.
func newEntryCmd(app *App, side models.OrderSide, use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <symbol>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			symbol := strings.ToUpper(args[0])
			price, _ := cmd.Flags().GetFloat64("price")
			stop, _ := cmd.Flags().GetFloat64("sl")
			target, _ := cmd.Flags().GetFloat64("target")
			sector, _ := cmd.Flags().GetString("sector")
			lot, _ := cmd.Flags().GetInt("lot")
			strategy, _ := cmd.Flags().GetString("strategy")
			confidence, _ := cmd.Flags().GetFloat64("confidence")
			vol, _ := cmd.Flags().GetFloat64("vol")

			if price <= 0 || stop <= 0 || target <= 0 {
				output.Error("--price, --sl and --target are required and must be positive")
				return fmt.Errorf("missing price levels")
			}

			var regime models.VolatilityRegime
			if vol > 0 {
				regime = risk.ClassifyRegime(app.Config.Risk, vol)
			}

			// The paper venue trades at the submitted level.
			app.Paper.UpdatePrice(symbol, price)
			app.Cache.Put(models.Quote{Symbol: symbol, Price: price, Timestamp: time.Now()})

			outcome := app.Coordinator.Execute(ctx, engine.TradeRequest{
				Symbol:     symbol,
				Sector:     sector,
				Side:       side,
				Entry:      price,
				Stop:       stop,
				Target:     target,
				LotSize:    lot,
				Confidence: confidence,
				Strategy:   strategy,
				Regime:     regime,
			})

			if output.IsJSON() {
				return output.JSON(outcome)
			}
			if outcome.Err != nil {
				output.Error("Trade %s: %s (%v)", outcome.Final, outcome.Reason, outcome.Err)
				return fmt.Errorf("trade not executed")
			}
			output.Success("Filled %d %s @ %.2f (attempt %s)",
				outcome.FilledQty, symbol, outcome.AvgPrice, outcome.AttemptID)
			return nil
		},
	}

	cmd.Flags().Float64("price", 0, "entry price")
	cmd.Flags().Float64("sl", 0, "stop-loss price")
	cmd.Flags().Float64("target", 0, "target price")
	cmd.Flags().String("sector", "", "sector tag for concentration limits")
	cmd.Flags().Int("lot", 1, "lot size")
	cmd.Flags().String("strategy", "manual", "strategy tag")
	cmd.Flags().Float64("confidence", 0.5, "signal confidence 0..1")
	cmd.Flags().Float64("vol", 0, "annualized volatility for regime sizing")
	return cmd
}

func newCloseCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close <symbol>",
		Short: "Close or reduce an open position",
		Example: `  engine close RELIANCE
  engine close INFY --qty 50 --price 1520
  engine close TCS --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			symbol := strings.ToUpper(args[0])
			qty, _ := cmd.Flags().GetInt("qty")
			price, _ := cmd.Flags().GetFloat64("price")
			force, _ := cmd.Flags().GetBool("force")

			if _, ok := app.Ledger.Get(symbol); !ok {
				output.Error("No open position in %s", symbol)
				return fmt.Errorf("unknown position")
			}
			if price > 0 {
				app.Paper.UpdatePrice(symbol, price)
				app.Cache.Put(models.Quote{Symbol: symbol, Price: price, Timestamp: time.Now()})
			}

			if err := app.Coordinator.ClosePosition(ctx, symbol, qty, force, "manual close"); err != nil {
				output.Error("Close failed: %v", err)
				return err
			}
			output.Success("Closed %s", symbol)
			return nil
		},
	}
	cmd.Flags().Int("qty", 0, "quantity to close (default: full position)")
	cmd.Flags().Float64("price", 0, "exit price for the paper venue")
	cmd.Flags().Bool("force", false, "bypass the minimum holding window")
	return cmd
}

func newPositionsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "List open positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			positions := app.Ledger.All()

			if output.IsJSON() {
				return output.JSON(positions)
			}
			if len(positions) == 0 {
				output.Info("No open positions")
				return nil
			}

			table := NewTable(output, "SYMBOL", "QTY", "AVG", "INVESTED", "STOP", "TARGET", "PNL")
			for _, pos := range positions {
				pnl := ""
				if q, ok := app.Cache.Quote(pos.Symbol); ok {
					pnl = output.FormatPnL(pos.UnrealizedPnL(q.Price))
				}
				table.AddRow(
					pos.Symbol,
					fmt.Sprintf("%d", pos.Quantity),
					fmt.Sprintf("%.2f", pos.AveragePrice),
					fmt.Sprintf("%.2f", pos.InvestedValue),
					fmt.Sprintf("%.2f", pos.StopLoss),
					fmt.Sprintf("%.2f", pos.TakeProfit),
					pnl,
				)
			}
			table.Render()
			return nil
		},
	}
}

func newBalanceCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show cash and trade statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			stats := app.Ledger.Stats()

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"cash":  app.Ledger.Cash(),
					"stats": stats,
				})
			}

			output.Printf("Cash:        %.2f\n", app.Ledger.Cash())
			output.Printf("Trades:      %d (W %d / L %d, %.1f%% win rate)\n",
				stats.TotalTrades, stats.Wins, stats.Losses, stats.WinRate())
			output.Printf("Realized:    %s\n", output.FormatPnL(stats.TotalPnL))
			if stats.TotalTrades > 0 {
				output.Printf("Best/Worst:  %s / %s\n",
					output.FormatPnL(stats.BestTrade), output.FormatPnL(stats.WorstTrade))
			}
			return nil
		},
	}
}
