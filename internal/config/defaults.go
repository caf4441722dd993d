package config

import "github.com/spf13/viper"

// setDefaults installs the defaults every deployment starts from.
func setDefaults(v *viper.Viper) {
	// Channel policy: half a year of settle delay.
	v.SetDefault("settle_delay", 15768000)

	// Pricing defaults
	v.SetDefault("pricing.price_per_gib_s", 0.000002905)
	v.SetDefault("pricing.fudge_factor", 5.0)
	v.SetDefault("pricing.dollars_to_drops_rate", 2.5)
	v.SetDefault("pricing.machine_classes", map[string]float64{"default": 1})

	// Rate limiting is off unless a strategy is selected.
	v.SetDefault("rate_limit.strategy", "never")
	v.SetDefault("rate_limit.staged_buffer_limit", 10)
	v.SetDefault("rate_limit.window_seconds", 1.0)

	// Ledger defaults
	v.SetDefault("ledger.url", "http://localhost:5005")
	v.SetDefault("ledger.transport", "http")
	v.SetDefault("ledger.timeout_seconds", 10.0)

	// Store defaults
	v.SetDefault("store.backend", "pebble")
	v.SetDefault("store.path", "/var/lib/dhalid/db")

	// Consolidation defaults
	v.SetDefault("consolidation.interval_seconds", 60.0)
	v.SetDefault("consolidation.batch_size", 100)
}
