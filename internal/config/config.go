// Package config loads and validates dhalid's configuration from defaults,
// an optional TOML file, and DHALID_-prefixed environment variables.
package config

import "time"

// Config is the complete runtime configuration.
type Config struct {
	// DestinationAccount is the gateway's ledger account. Every claim must
	// pay this account.
	DestinationAccount string `mapstructure:"destination_account" toml:"destination_account"`

	// SettleDelay is the settle delay, in seconds, a payment channel must
	// carry to be accepted. Compared with equality.
	SettleDelay uint32 `mapstructure:"settle_delay" toml:"settle_delay"`

	Pricing       PricingConfig       `mapstructure:"pricing" toml:"pricing"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit" toml:"rate_limit"`
	Ledger        LedgerConfig        `mapstructure:"ledger" toml:"ledger"`
	Store         StoreConfig         `mapstructure:"store" toml:"store"`
	Consolidation ConsolidationConfig `mapstructure:"consolidation" toml:"consolidation"`

	configPath string
}

// PricingConfig parameterises the cost calculator.
type PricingConfig struct {
	PricePerGiBSecond  float64            `mapstructure:"price_per_gib_s" toml:"price_per_gib_s"`
	FudgeFactor        float64            `mapstructure:"fudge_factor" toml:"fudge_factor"`
	DollarsToDropsRate float64            `mapstructure:"dollars_to_drops_rate" toml:"dollars_to_drops_rate"`
	MachineClasses     map[string]float64 `mapstructure:"machine_classes" toml:"machine_classes"`
}

// RateLimitConfig selects and parameterises the admission rate limiter.
type RateLimitConfig struct {
	// Strategy is one of "never", "claim_buffer", "metadata_buffer".
	Strategy string `mapstructure:"strategy" toml:"strategy"`

	StagedBufferLimit int64   `mapstructure:"staged_buffer_limit" toml:"staged_buffer_limit"`
	WindowSeconds     float64 `mapstructure:"window_seconds" toml:"window_seconds"`
}

// Window returns the rate-limit window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds * float64(time.Second))
}

// LedgerConfig points at the ledger node.
type LedgerConfig struct {
	// URL of the node's JSON-RPC (http/https) or websocket (ws/wss)
	// endpoint, matching Transport.
	URL string `mapstructure:"url" toml:"url"`

	// Transport is "http" or "ws".
	Transport string `mapstructure:"transport" toml:"transport"`

	TimeoutSeconds float64 `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
}

// Timeout returns the per-request ledger deadline.
func (c LedgerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// StoreConfig selects the document-store backend.
type StoreConfig struct {
	// Backend is "pebble" (embedded) or "firestore".
	Backend string `mapstructure:"backend" toml:"backend"`

	// Path is the database directory for the pebble backend.
	Path string `mapstructure:"path" toml:"path"`

	// ProjectID and CredentialsFile configure the firestore backend.
	ProjectID       string `mapstructure:"project_id" toml:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file" toml:"credentials_file"`
}

// ConsolidationConfig drives the background sweeper.
type ConsolidationConfig struct {
	IntervalSeconds float64 `mapstructure:"interval_seconds" toml:"interval_seconds"`
	BatchSize       int     `mapstructure:"batch_size" toml:"batch_size"`
}

// Interval returns the sweep period.
func (c ConsolidationConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds * float64(time.Second))
}

// GetConfigPath returns the file the configuration was loaded from, if any.
func (c *Config) GetConfigPath() string {
	return c.configPath
}
