package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/dhali-org/dhalid/internal/store"
)

// Consolidate collapses staged per-request records into the canonical
// channel record and its public mirror, all in one transaction. Totals sum;
// the strictly greatest authorized_to_claim wins and brings its claim body
// with it (ties keep the incumbent); every consumed source is deleted.
// Sources that vanished since listing were consumed by a concurrent round
// and are skipped.
func (e *Engine) Consolidate(ctx context.Context, sources []store.DocRef, privateTarget, publicTarget store.DocRef) error {
	return e.store.RunTransaction(ctx, func(tx store.Transaction) error {
		privSnap, err := tx.Get(privateTarget)
		if err != nil {
			return err
		}
		pubSnap, err := tx.Get(publicTarget)
		if err != nil {
			return err
		}

		var (
			total        float64
			maxAuth      int64
			maxAuthStr   = "0"
			winningClaim string
		)
		if privSnap.Exists() {
			existing := decodeChannelRecord(privSnap.Data())
			// A target without a stored claim has never been consolidated
			// into and contributes nothing.
			if existing.PaymentClaim != "" {
				total = existing.ToClaim
				maxAuth = existing.AuthorizedDrops()
				maxAuthStr = existing.AuthorizedToClaim
				winningClaim = existing.PaymentClaim
			}
		}

		// All reads happen before the first write: the production store
		// rejects transactional reads once a write is buffered.
		var snaps []store.Snapshot
		for _, src := range sources {
			snap, err := tx.Get(src)
			if err != nil {
				return err
			}
			if !snap.Exists() {
				e.log.Info("consolidation source already consumed",
					zap.String("source", src.Path()))
				continue
			}
			snaps = append(snaps, snap)
		}

		for _, snap := range snaps {
			record := decodeChannelRecord(snap.Data())
			total += record.ToClaim
			if auth := record.AuthorizedDrops(); auth > maxAuth {
				maxAuth = auth
				maxAuthStr = record.AuthorizedToClaim
				winningClaim = record.PaymentClaim
			}
			if err := tx.Delete(snap.Ref()); err != nil {
				return err
			}
		}
		staged := len(snaps)

		currency := XRPDrops().encode()
		if err := tx.Set(privateTarget, map[string]any{
			fieldTimestamp:         e.now().UTC(),
			fieldClaimsStaged:      int64(staged),
			fieldAuthorizedToClaim: maxAuthStr,
			fieldToClaim:           total,
			fieldPaymentClaim:      winningClaim,
			fieldCurrency:          currency,
		}); err != nil {
			return err
		}

		pubData := map[string]any{
			fieldToClaim:  total,
			fieldCurrency: currency,
		}
		if pubSnap.Exists() {
			return tx.Update(publicTarget, pubData)
		}
		return tx.Set(publicTarget, pubData)
	})
}
