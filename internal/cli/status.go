package cli

import (
	"github.com/spf13/cobra"
)

// addStatusCommand adds the engine status summary.
func addStatusCommand(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show engine health and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"version":        Version,
					"cash":           app.Ledger.Cash(),
					"open_positions": len(app.Ledger.All()),
					"cached_quotes":  app.Cache.Len(),
					"breaker_state":  app.Breaker.State(),
					"snapshot_path":  app.Config.Persistence.SnapshotPath,
					"journal_db":     app.Config.Persistence.JournalDBPath,
				})
			}

			output.Printf("Engine %s\n\n", Version)
			output.Printf("Cash:            %.2f\n", app.Ledger.Cash())
			output.Printf("Open positions:  %d\n", len(app.Ledger.All()))
			output.Printf("Cached quotes:   %d\n", app.Cache.Len())
			output.Printf("Broker circuit:  %s\n", app.Breaker.State())
			output.Printf("Snapshot:        %s\n", app.Config.Persistence.SnapshotPath)
			if app.Journal != nil {
				output.Printf("Journal:         %s\n", app.Config.Persistence.JournalDBPath)
			} else {
				output.Warning("Journal:         unavailable")
			}
			return nil
		},
	}
	rootCmd.AddCommand(cmd)
}
