package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"algo-trader/internal/broker"
	"algo-trader/internal/compliance"
	"algo-trader/internal/config"
	"algo-trader/internal/engine"
	"algo-trader/internal/ledger"
	"algo-trader/internal/logging"
	"algo-trader/internal/marketdata"
	"algo-trader/internal/resilience"
	"algo-trader/internal/risk"
	"algo-trader/internal/store"
)

// Version information
const Version = "0.1.0"

// App holds the application dependencies.
type App struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Ledger      *ledger.Ledger
	Snapshotter *ledger.Snapshotter
	Paper       *broker.PaperGateway
	Gateway     broker.Gateway
	Breaker     *resilience.CircuitBreaker
	Assessor    *risk.Assessor
	Checker     compliance.Checker
	Journal     *store.TradeJournal
	Cache       *marketdata.PriceCache
	Signals     *marketdata.SignalBoard
	Coordinator *engine.Coordinator
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := buildApp(cfg, logger)

	rootCmd := &cobra.Command{
		Use:   "engine",
		Short: "Risk-gated trade execution and position lifecycle engine",
		Long: `A paper-trading execution engine that gates every trade through
compliance and risk checks, tracks positions through a reserve/commit
ledger, and persists state across restarts.

Use 'engine help <command>' for more information about a command.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addTradingCommands(rootCmd, app)
	addRunCommand(rootCmd, app)
	addJournalCommands(rootCmd, app)
	addStatusCommand(rootCmd, app)

	return rootCmd
}

// buildApp wires the full dependency graph from configuration.
func buildApp(cfg *config.Config, logger zerolog.Logger) *App {
	app := &App{Config: cfg, Logger: logger}

	l := ledger.New(cfg.Risk.TotalCapital,
		ledger.WithMinHolding(cfg.Execution.MinHoldingPeriod))
	app.Ledger = l

	app.Snapshotter = ledger.NewSnapshotter(l, cfg.Persistence.SnapshotPath,
		cfg.Persistence.MinSaveInterval, logger)
	if restored, err := app.Snapshotter.Load(); err != nil {
		logger.Warn().Err(err).Msg("Snapshot load failed, starting fresh")
	} else if restored {
		logger.Info().
			Int("positions", len(l.All())).
			Float64("cash", l.Cash()).
			Msg("Ledger restored from snapshot")
	}

	app.Paper = broker.NewPaperGateway(broker.PaperConfig{
		InitialCash: cfg.Risk.TotalCapital,
		Leverage:    1.0,
	})
	app.Breaker = resilience.NewCircuitBreaker("broker", resilience.DefaultCircuitBreakerConfig())
	app.Gateway = broker.NewGuardedGateway(app.Paper, app.Breaker)

	app.Assessor = risk.NewAssessor(cfg.Risk, risk.NewCorrelationTable())
	app.Checker = compliance.NewRuleChecker(cfg.Compliance)

	if cfg.Persistence.JournalDBPath != "" {
		journal, err := store.NewTradeJournal(cfg.Persistence.JournalDBPath)
		if err != nil {
			logger.Warn().Err(err).Msg("Trade journal unavailable")
		} else {
			app.Journal = journal
		}
	}

	app.Cache = marketdata.NewPriceCache(cfg.Feed.CacheSize, cfg.Feed.CacheTTL)
	app.Signals = marketdata.NewSignalBoard()

	opts := []engine.CoordinatorOption{
		engine.WithQuotes(app.Cache.Quote),
	}
	if app.Journal != nil {
		opts = append(opts, engine.WithJournal(app.Journal))
	}
	app.Coordinator = engine.NewCoordinator(cfg.Execution, l, app.Gateway,
		app.Assessor, app.Checker, app.Snapshotter, logger, opts...)

	return app
}

// Execute sets up configuration and logging and runs the root command.
func Execute() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Console = cfg.Logging.Console
	logCfg.File = cfg.Logging.File
	logger := logging.NewLoggerWithConfig(logCfg)

	rootCmd := NewRootCmd(cfg, logger)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
