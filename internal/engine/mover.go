package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/dhali-org/dhalid/internal/store"
)

// MoveDocument transactionally relocates a document: copy the source's data
// to the target, then delete the source. An absent source is a no-op, which
// makes concurrent moves safe: at most one caller observes the source and
// performs the move, the rest see it gone after their retry and succeed
// doing nothing.
func (e *Engine) MoveDocument(ctx context.Context, source, target store.DocRef) error {
	return e.store.RunTransaction(ctx, func(tx store.Transaction) error {
		snap, err := tx.Get(source)
		if err != nil {
			return err
		}
		if !snap.Exists() {
			e.log.Info("move source absent, nothing to do",
				zap.String("source", source.Path()),
				zap.String("target", target.Path()))
			return nil
		}
		if err := tx.Set(target, snap.Data()); err != nil {
			return err
		}
		return tx.Delete(source)
	})
}
