// Package sweeper periodically consolidates staged exact-claim documents
// into each channel's canonical record.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dhali-org/dhalid/internal/engine"
	"github.com/dhali-org/dhalid/internal/store"
)

// DefaultBatchSize bounds the sources consumed per channel per sweep so a
// single transaction stays small.
const DefaultBatchSize = 100

// Service owns the consolidation loop. Construct with New, drive with Run or
// SweepOnce.
type Service struct {
	store     store.Store
	engine    *engine.Engine
	interval  time.Duration
	batchSize int
	log       *zap.Logger
}

func New(st store.Store, eng *engine.Engine, interval time.Duration, batchSize int, logger *zap.Logger) *Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     st,
		engine:    eng,
		interval:  interval,
		batchSize: batchSize,
		log:       logger,
	}
}

// Run sweeps on every tick until the context is cancelled. Sweep failures
// are logged and the loop keeps going; only cancellation ends it.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := s.SweepOnce(ctx); err != nil {
					s.log.Error("sweep failed", zap.Error(err))
				}
			}
		}
	})
	return g.Wait()
}

// SweepOnce walks every channel record and consolidates its staged exact
// documents. Per-channel failures are logged and do not stop the walk.
func (s *Service) SweepOnce(ctx context.Context) error {
	channels, err := s.store.Collection(engine.CollectionPrivate).Documents(ctx)
	if err != nil {
		return err
	}

	for _, channel := range channels {
		cid := channel.Ref().ID()
		staged, err := channel.Ref().Collection(engine.SubcollectionExact).Documents(ctx)
		if err != nil {
			s.log.Error("list staged claims", zap.String("cid", cid), zap.Error(err))
			continue
		}
		if len(staged) == 0 {
			continue
		}

		sources := make([]store.DocRef, 0, min(len(staged), s.batchSize))
		for _, snap := range staged {
			if len(sources) == s.batchSize {
				break
			}
			sources = append(sources, snap.Ref())
		}

		publicTarget := s.store.Collection(engine.CollectionPublic).Doc(cid)
		if err := s.engine.Consolidate(ctx, sources, channel.Ref(), publicTarget); err != nil {
			s.log.Error("consolidate channel", zap.String("cid", cid), zap.Error(err))
			continue
		}
		s.log.Info("channel consolidated",
			zap.String("cid", cid),
			zap.Int("staged", len(sources)))
	}
	return nil
}
