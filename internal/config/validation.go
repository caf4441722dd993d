package config

import "fmt"

// Recognised enum values.
var (
	rateLimitStrategies = map[string]bool{"never": true, "claim_buffer": true, "metadata_buffer": true}
	ledgerTransports    = map[string]bool{"http": true, "ws": true}
	storeBackends       = map[string]bool{"pebble": true, "firestore": true}
)

// ValidateConfig checks the complete configuration.
func ValidateConfig(config *Config) error {
	if config.DestinationAccount == "" {
		return fmt.Errorf("destination_account must be set")
	}
	if config.SettleDelay == 0 {
		return fmt.Errorf("settle_delay must be positive")
	}

	if err := validatePricing(config.Pricing); err != nil {
		return fmt.Errorf("pricing validation failed: %w", err)
	}
	if err := validateRateLimit(config.RateLimit); err != nil {
		return fmt.Errorf("rate_limit validation failed: %w", err)
	}
	if err := validateLedger(config.Ledger); err != nil {
		return fmt.Errorf("ledger validation failed: %w", err)
	}
	if err := validateStore(config.Store); err != nil {
		return fmt.Errorf("store validation failed: %w", err)
	}
	if err := validateConsolidation(config.Consolidation); err != nil {
		return fmt.Errorf("consolidation validation failed: %w", err)
	}
	return nil
}

func validatePricing(c PricingConfig) error {
	if c.PricePerGiBSecond <= 0 {
		return fmt.Errorf("price_per_gib_s must be positive, got %v", c.PricePerGiBSecond)
	}
	if c.FudgeFactor < 1 {
		return fmt.Errorf("fudge_factor must be >= 1, got %v", c.FudgeFactor)
	}
	if c.DollarsToDropsRate <= 0 {
		return fmt.Errorf("dollars_to_drops_rate must be positive, got %v", c.DollarsToDropsRate)
	}
	return nil
}

func validateRateLimit(c RateLimitConfig) error {
	if !rateLimitStrategies[c.Strategy] {
		return fmt.Errorf("unknown strategy %q (supported: never, claim_buffer, metadata_buffer)", c.Strategy)
	}
	if c.Strategy != "never" {
		if c.StagedBufferLimit <= 0 {
			return fmt.Errorf("staged_buffer_limit must be positive, got %d", c.StagedBufferLimit)
		}
		if c.WindowSeconds <= 0 {
			return fmt.Errorf("window_seconds must be positive, got %v", c.WindowSeconds)
		}
	}
	return nil
}

func validateLedger(c LedgerConfig) error {
	if c.URL == "" {
		return fmt.Errorf("url must be set")
	}
	if !ledgerTransports[c.Transport] {
		return fmt.Errorf("unknown transport %q (supported: http, ws)", c.Transport)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive, got %v", c.TimeoutSeconds)
	}
	return nil
}

func validateStore(c StoreConfig) error {
	if !storeBackends[c.Backend] {
		return fmt.Errorf("unknown backend %q (supported: pebble, firestore)", c.Backend)
	}
	switch c.Backend {
	case "pebble":
		if c.Path == "" {
			return fmt.Errorf("path must be set for the pebble backend")
		}
	case "firestore":
		if c.ProjectID == "" {
			return fmt.Errorf("project_id must be set for the firestore backend")
		}
	}
	return nil
}

func validateConsolidation(c ConsolidationConfig) error {
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("interval_seconds must be positive, got %v", c.IntervalSeconds)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	return nil
}
