package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Algo Trader Configuration

[risk]
# Total trading capital
total_capital = 1000000.0
# Capital at risk per trade as percentage of total capital
risk_per_trade_pct = 1.0
# Minimum risk-reward ratio for a trade to qualify
min_risk_reward = 1.5
# Maximum exposure per sector as percentage of capital
max_sector_exposure_pct = 30.0
# Pairwise correlation above which symbols share an exposure bucket
correlation_threshold = 0.70
# Maximum combined exposure for correlated symbols as percentage of capital
max_correlated_exposure_pct = 40.0
# Position-size multipliers per volatility regime
regime_multiplier_low = 1.0
regime_multiplier_normal = 1.0
regime_multiplier_high = 0.6
regime_multiplier_extreme = 0.4

[execution]
# Ledger reservation attempts before surfacing contention
reserve_attempts = 3
reserve_backoff = "100ms"
# Broker status polling bounds
poll_min_interval = "250ms"
poll_max_interval = "2s"
poll_timeout = "12s"
# Window during which a freshly increased position cannot be reduced
min_holding_period = "15m"
# Place broker-side protective orders on entry
protective_orders = true
# Flat per-order fee estimate
fees_per_order = 20.0

[exits]
stop_loss_pct = 2.0
target_pct = 4.0
max_holding_time = "6h"
price_freshness = "120s"
eval_interval = "30s"
exit_urgency_floor = 60.0

[persistence]
min_save_interval = "30s"

[compliance]
banned_symbols = []
max_order_qty = 10000
# Per-symbol admissible price range, e.g.
# [compliance.price_bands.RELIANCE]
# min = 2000.0
# max = 3200.0

[feed]
# Websocket tick feed endpoint (optional)
url = ""
reconnect_interval = "5s"
cache_ttl = "120s"
cache_size = 512

[logging]
level = "info"
console = true
file = true
`

// createTemplateConfig writes a commented template config file so a first run
// leaves something editable behind.
func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return os.WriteFile(path, []byte(configTemplate), 0644)
}
