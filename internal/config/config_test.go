package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DHALID_DESTINATION_ACCOUNT", "rDestination")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "rDestination", cfg.DestinationAccount)
	assert.Equal(t, uint32(15768000), cfg.SettleDelay)
	assert.Equal(t, 0.000002905, cfg.Pricing.PricePerGiBSecond)
	assert.Equal(t, 5.0, cfg.Pricing.FudgeFactor)
	assert.Equal(t, 2.5, cfg.Pricing.DollarsToDropsRate)
	assert.Equal(t, "never", cfg.RateLimit.Strategy)
	assert.Equal(t, time.Second, cfg.RateLimit.Window())
	assert.Equal(t, "http", cfg.Ledger.Transport)
	assert.Equal(t, "pebble", cfg.Store.Backend)
	assert.Equal(t, time.Minute, cfg.Consolidation.Interval())
}

func TestLoadConfig_MissingDestinationAccount(t *testing.T) {
	_, err := LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "destination_account")
}

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dhalid.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
destination_account = "rDestination"
settle_delay = 86400

[rate_limit]
strategy = "claim_buffer"
staged_buffer_limit = 25
window_seconds = 2.5

[ledger]
url = "wss://xrpl.example.com"
transport = "ws"

[store]
backend = "pebble"
path = "/tmp/dhalid-db"
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, uint32(86400), cfg.SettleDelay)
	assert.Equal(t, "claim_buffer", cfg.RateLimit.Strategy)
	assert.Equal(t, int64(25), cfg.RateLimit.StagedBufferLimit)
	assert.Equal(t, 2500*time.Millisecond, cfg.RateLimit.Window())
	assert.Equal(t, "ws", cfg.Ledger.Transport)
	// Untouched sections keep defaults.
	assert.Equal(t, 5.0, cfg.Pricing.FudgeFactor)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/does/not/exist.toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestValidateConfig_Rejections(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		return cfg
	}
	t.Setenv("DHALID_DESTINATION_ACCOUNT", "rDestination")

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"low fudge factor", func(c *Config) { c.Pricing.FudgeFactor = 0.5 }},
		{"unknown strategy", func(c *Config) { c.RateLimit.Strategy = "token_bucket" }},
		{"unknown transport", func(c *Config) { c.Ledger.Transport = "grpc" }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "leveldb" }},
		{"pebble without path", func(c *Config) { c.Store.Path = "" }},
		{"firestore without project", func(c *Config) {
			c.Store.Backend = "firestore"
			c.Store.ProjectID = ""
		}},
		{"zero settle delay", func(c *Config) { c.SettleDelay = 0 }},
		{"zero sweep interval", func(c *Config) { c.Consolidation.IntervalSeconds = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			assert.Error(t, ValidateConfig(cfg))
		})
	}
}
