package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// addJournalCommands adds trade journal inspection and export.
func addJournalCommands(rootCmd *cobra.Command, app *App) {
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect and export the trade journal",
	}
	journalCmd.AddCommand(newJournalShowCmd(app))
	journalCmd.AddCommand(newJournalExportCmd(app))
	rootCmd.AddCommand(journalCmd)
}

func newJournalShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show journal entries for a trading day",
		Example: `  engine journal show
  engine journal show --day 2026-08-28`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Journal == nil {
				output.Error("Trade journal is not configured")
				return fmt.Errorf("journal unavailable")
			}

			day, _ := cmd.Flags().GetString("day")
			if day == "" {
				day = time.Now().Format("2006-01-02")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			records, err := app.Journal.TradesForDay(ctx, day)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(records)
			}
			if len(records) == 0 {
				output.Info("No trades on %s", day)
				return nil
			}

			table := NewTable(output, "SEQ", "TIME", "SYMBOL", "SIDE", "QTY", "PRICE", "FEES", "PNL")
			for _, rec := range records {
				pnl := ""
				if rec.Closing {
					pnl = output.FormatPnL(rec.RealizedPnL)
				}
				table.AddRow(
					fmt.Sprintf("%d", rec.Seq),
					rec.Timestamp.Format("15:04:05"),
					rec.Symbol,
					string(rec.Side),
					fmt.Sprintf("%d", rec.Quantity),
					fmt.Sprintf("%.2f", rec.Price),
					fmt.Sprintf("%.2f", rec.Fees),
					pnl,
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().String("day", "", "trading day (YYYY-MM-DD, default: today)")
	return cmd
}

func newJournalExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a trading day's journal to CSV",
		Example: `  engine journal export --out trades.csv
  engine journal export --day 2026-08-28 --out trades.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Journal == nil {
				output.Error("Trade journal is not configured")
				return fmt.Errorf("journal unavailable")
			}

			day, _ := cmd.Flags().GetString("day")
			out, _ := cmd.Flags().GetString("out")
			if day == "" {
				day = time.Now().Format("2006-01-02")
			}
			if out == "" {
				out = fmt.Sprintf("trades-%s.csv", day)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			n, err := app.Journal.ExportDayCSV(ctx, out, day)
			if err != nil {
				return err
			}
			output.Success("Exported %d trades to %s", n, out)
			return nil
		},
	}
	cmd.Flags().String("day", "", "trading day (YYYY-MM-DD, default: today)")
	cmd.Flags().String("out", "", "output file (default: trades-<day>.csv)")
	return cmd
}
