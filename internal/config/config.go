// Package config provides configuration management for the trading engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Risk        RiskConfig        `mapstructure:"risk"`
	Execution   ExecutionConfig   `mapstructure:"execution"`
	Exits       ExitConfig        `mapstructure:"exits"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Compliance  ComplianceConfig  `mapstructure:"compliance"`
	Feed        FeedConfig        `mapstructure:"feed"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// RiskConfig holds risk assessor configuration.
type RiskConfig struct {
	TotalCapital             float64 `mapstructure:"total_capital"`
	RiskPerTradePct          float64 `mapstructure:"risk_per_trade_pct"`
	MinRiskReward            float64 `mapstructure:"min_risk_reward"`
	MaxSectorExposurePct     float64 `mapstructure:"max_sector_exposure_pct"`
	CorrelationThreshold     float64 `mapstructure:"correlation_threshold"`
	MaxCorrelatedExposurePct float64 `mapstructure:"max_correlated_exposure_pct"`

	// Sizing multipliers applied per volatility regime.
	RegimeMultiplierLow     float64 `mapstructure:"regime_multiplier_low"`
	RegimeMultiplierNormal  float64 `mapstructure:"regime_multiplier_normal"`
	RegimeMultiplierHigh    float64 `mapstructure:"regime_multiplier_high"`
	RegimeMultiplierExtreme float64 `mapstructure:"regime_multiplier_extreme"`

	// Annualized volatility thresholds for regime classification,
	// checked in descending order: extreme > high > normal > low.
	VolExtremeThreshold float64 `mapstructure:"vol_extreme_threshold"`
	VolHighThreshold    float64 `mapstructure:"vol_high_threshold"`
	VolNormalThreshold  float64 `mapstructure:"vol_normal_threshold"`
}

// ExecutionConfig holds trade execution coordinator configuration.
type ExecutionConfig struct {
	ReserveAttempts  int           `mapstructure:"reserve_attempts"`
	ReserveBackoff   time.Duration `mapstructure:"reserve_backoff"`
	PollMinInterval  time.Duration `mapstructure:"poll_min_interval"`
	PollMaxInterval  time.Duration `mapstructure:"poll_max_interval"`
	PollTimeout      time.Duration `mapstructure:"poll_timeout"`
	MinHoldingPeriod time.Duration `mapstructure:"min_holding_period"`
	ProtectiveOrders bool          `mapstructure:"protective_orders"`
	FeesPerOrder     float64       `mapstructure:"fees_per_order"`
}

// ExitConfig holds exit evaluator configuration.
type ExitConfig struct {
	StopLossPct      float64       `mapstructure:"stop_loss_pct"`
	TargetPct        float64       `mapstructure:"target_pct"`
	MaxHoldingTime   time.Duration `mapstructure:"max_holding_time"`
	PriceFreshness   time.Duration `mapstructure:"price_freshness"`
	EvalInterval     time.Duration `mapstructure:"eval_interval"`
	ExitUrgencyFloor float64       `mapstructure:"exit_urgency_floor"`
}

// PersistenceConfig holds durability layer configuration.
type PersistenceConfig struct {
	SnapshotPath    string        `mapstructure:"snapshot_path"`
	MinSaveInterval time.Duration `mapstructure:"min_save_interval"`
	JournalDBPath   string        `mapstructure:"journal_db_path"`
}

// ComplianceConfig holds the rule table for the built-in compliance checker.
type ComplianceConfig struct {
	BannedSymbols []string             `mapstructure:"banned_symbols"`
	MaxOrderQty   int                  `mapstructure:"max_order_qty"`
	MaxOrderValue float64              `mapstructure:"max_order_value"`
	LotSizes      map[string]int       `mapstructure:"lot_sizes"`
	PriceBands    map[string]PriceBand `mapstructure:"price_bands"`
}

// PriceBand bounds the admissible order price for one symbol. A zero Min or
// Max leaves that side of the band open.
type PriceBand struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// FeedConfig holds market data feed configuration.
type FeedConfig struct {
	URL               string        `mapstructure:"url"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	CacheSize         int           `mapstructure:"cache_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/algo-trader"
	}
	return filepath.Join(home, ".config", "algo-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		// Missing config is fine, defaults apply; write a template for next time.
		if werr := createTemplateConfig(configDir); werr == nil {
			_ = v.ReadInConfig()
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("risk.total_capital", 1000000.0)
	v.SetDefault("risk.risk_per_trade_pct", 1.0)
	v.SetDefault("risk.min_risk_reward", 1.5)
	v.SetDefault("risk.max_sector_exposure_pct", 30.0)
	v.SetDefault("risk.correlation_threshold", 0.70)
	v.SetDefault("risk.max_correlated_exposure_pct", 40.0)
	v.SetDefault("risk.regime_multiplier_low", 1.0)
	v.SetDefault("risk.regime_multiplier_normal", 1.0)
	v.SetDefault("risk.regime_multiplier_high", 0.6)
	v.SetDefault("risk.regime_multiplier_extreme", 0.4)
	v.SetDefault("risk.vol_extreme_threshold", 0.40)
	v.SetDefault("risk.vol_high_threshold", 0.25)
	v.SetDefault("risk.vol_normal_threshold", 0.12)

	v.SetDefault("execution.reserve_attempts", 3)
	v.SetDefault("execution.reserve_backoff", "100ms")
	v.SetDefault("execution.poll_min_interval", "250ms")
	v.SetDefault("execution.poll_max_interval", "2s")
	v.SetDefault("execution.poll_timeout", "12s")
	v.SetDefault("execution.min_holding_period", "15m")
	v.SetDefault("execution.protective_orders", true)
	v.SetDefault("execution.fees_per_order", 20.0)

	v.SetDefault("exits.stop_loss_pct", 2.0)
	v.SetDefault("exits.target_pct", 4.0)
	v.SetDefault("exits.max_holding_time", "6h")
	v.SetDefault("exits.price_freshness", "120s")
	v.SetDefault("exits.eval_interval", "30s")
	v.SetDefault("exits.exit_urgency_floor", 60.0)

	v.SetDefault("persistence.snapshot_path", filepath.Join(configDir, "ledger.json"))
	v.SetDefault("persistence.min_save_interval", "30s")
	v.SetDefault("persistence.journal_db_path", filepath.Join(configDir, "journal.db"))

	v.SetDefault("compliance.banned_symbols", []string{})
	v.SetDefault("compliance.max_order_qty", 10000)
	v.SetDefault("compliance.max_order_value", 0.0)

	v.SetDefault("feed.reconnect_interval", "5s")
	v.SetDefault("feed.cache_ttl", "120s")
	v.SetDefault("feed.cache_size", 512)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADER_SNAPSHOT_PATH"); v != "" {
		cfg.Persistence.SnapshotPath = v
	}
	if v := os.Getenv("TRADER_JOURNAL_DB"); v != "" {
		cfg.Persistence.JournalDBPath = v
	}
	if v := os.Getenv("TRADER_FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv("TRADER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Risk.TotalCapital <= 0 {
		return fmt.Errorf("total_capital must be positive")
	}
	if c.Risk.RiskPerTradePct <= 0 || c.Risk.RiskPerTradePct > 100 {
		return fmt.Errorf("risk_per_trade_pct must be between 0 and 100")
	}
	if c.Risk.MinRiskReward < 0 {
		return fmt.Errorf("min_risk_reward must be non-negative")
	}
	if c.Risk.MaxSectorExposurePct < 0 || c.Risk.MaxSectorExposurePct > 100 {
		return fmt.Errorf("max_sector_exposure_pct must be between 0 and 100")
	}
	if c.Risk.MaxCorrelatedExposurePct < 0 || c.Risk.MaxCorrelatedExposurePct > 100 {
		return fmt.Errorf("max_correlated_exposure_pct must be between 0 and 100")
	}
	if c.Risk.CorrelationThreshold < 0 || c.Risk.CorrelationThreshold > 1 {
		return fmt.Errorf("correlation_threshold must be between 0 and 1")
	}
	if !(c.Risk.VolExtremeThreshold > c.Risk.VolHighThreshold &&
		c.Risk.VolHighThreshold > c.Risk.VolNormalThreshold) {
		return fmt.Errorf("volatility thresholds must be strictly descending: extreme > high > normal")
	}
	if c.Execution.ReserveAttempts < 1 {
		return fmt.Errorf("reserve_attempts must be at least 1")
	}
	if c.Execution.PollMinInterval <= 0 || c.Execution.PollMaxInterval < c.Execution.PollMinInterval {
		return fmt.Errorf("poll intervals must satisfy 0 < min <= max")
	}
	if c.Execution.PollTimeout <= 0 {
		return fmt.Errorf("poll_timeout must be positive")
	}
	if c.Persistence.MinSaveInterval < 0 {
		return fmt.Errorf("min_save_interval must be non-negative")
	}
	return nil
}
