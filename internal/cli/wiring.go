package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dhali-org/dhalid/internal/config"
	"github.com/dhali-org/dhalid/internal/engine"
	"github.com/dhali-org/dhalid/internal/ledger"
	"github.com/dhali-org/dhalid/internal/ratelimit"
	"github.com/dhali-org/dhalid/internal/store"
	"github.com/dhali-org/dhalid/internal/store/firestoredb"
	"github.com/dhali-org/dhalid/internal/store/pebbledb"
)

func buildLogger() (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newLedgerClient(ctx context.Context, cfg config.LedgerConfig, logger *zap.Logger) (ledger.Client, func() error, error) {
	switch cfg.Transport {
	case "ws":
		ws, err := ledger.DialWS(ctx, cfg.URL, logger)
		if err != nil {
			return nil, nil, err
		}
		return ws, ws.Close, nil
	default:
		return ledger.NewHTTPClient(cfg.URL, cfg.Timeout(), logger), func() error { return nil }, nil
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "firestore":
		db, err := firestoredb.Open(ctx, cfg.ProjectID, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		db, err := pebbledb.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
}

func buildLimiter(cfg config.RateLimitConfig) (*ratelimit.Limiter, error) {
	switch cfg.Strategy {
	case "never":
		return ratelimit.New(nil), nil
	case "claim_buffer":
		return ratelimit.New(ratelimit.ClaimBuffer{
			Limit:  cfg.StagedBufferLimit,
			Window: cfg.Window(),
		}), nil
	case "metadata_buffer":
		return ratelimit.New(ratelimit.MetadataBuffer{
			Limit:  cfg.StagedBufferLimit,
			Window: cfg.Window(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown rate-limit strategy %q", cfg.Strategy)
	}
}

func buildEngine(cfg *config.Config, st store.Store, client ledger.Client, logger *zap.Logger) (*engine.Engine, error) {
	limiter, err := buildLimiter(cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	verifier := ledger.NewVerifier(client, cfg.SettleDelay, logger)
	return engine.New(engine.Options{
		Store:    st,
		Verifier: verifier,
		Limiter:  limiter,
		Logger:   logger,
	}), nil
}
