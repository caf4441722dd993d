package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/dhali-org/dhalid/pkg/claim"
	"github.com/dhali-org/dhalid/internal/store"
)

// UpdateEstimatedCostWithExact replaces an estimated cost in the canonical
// record with the measured one: to_claim moves by (exact - estimate) on both
// the private record and its public mirror, in one transaction. Both records
// must already exist.
func (e *Engine) UpdateEstimatedCostWithExact(ctx context.Context, claimJSON []byte, estimateCost, exactCost float64) error {
	if estimateCost < 0 || exactCost < 0 {
		return errf(KindInvalidInput,
			"costs must be non-negative, got estimate=%v exact=%v", estimateCost, exactCost)
	}
	c, err := claim.Parse(claimJSON)
	if err != nil {
		return wrapf(KindMalformedClaim, err, "parse claim")
	}
	cid := ChannelUUID(c.ChannelID)
	priv := e.privateDoc(cid)
	pub := e.publicDoc(cid)

	err = e.store.RunTransaction(ctx, func(tx store.Transaction) error {
		privSnap, err := tx.Get(priv)
		if err != nil {
			return err
		}
		pubSnap, err := tx.Get(pub)
		if err != nil {
			return err
		}
		if !privSnap.Exists() || !pubSnap.Exists() {
			return errf(KindNotFound, "channel %s has no accounting records", c.ChannelID)
		}

		record := decodeChannelRecord(privSnap.Data())
		newToClaim := record.ToClaim - estimateCost + exactCost

		if err := tx.Update(priv, map[string]any{fieldToClaim: newToClaim}); err != nil {
			return err
		}
		return tx.Update(pub, map[string]any{fieldToClaim: newToClaim})
	})
	return e.classifyTxError(err, cid)
}

// StoreEstimatedClaim stages the admission-time estimate as a per-request
// record under the channel's estimate subcollection and returns the new
// request id.
func (e *Engine) StoreEstimatedClaim(ctx context.Context, claimJSON []byte, estimateCost float64) (string, error) {
	return e.storeStagedClaim(ctx, claimJSON, estimateCost, SubcollectionEstimate)
}

// StoreExactClaim appends the measured cost of a finished request to the
// channel's exact subcollection and returns the new request id. Append-only:
// every call writes a fresh document.
func (e *Engine) StoreExactClaim(ctx context.Context, claimJSON []byte, exactCost float64) (string, error) {
	return e.storeStagedClaim(ctx, claimJSON, exactCost, SubcollectionExact)
}

func (e *Engine) storeStagedClaim(ctx context.Context, claimJSON []byte, cost float64, subcollection string) (string, error) {
	if cost < 0 {
		return "", errf(KindInvalidInput, "cost must be non-negative, got %v", cost)
	}
	c, err := claim.Parse(claimJSON)
	if err != nil {
		return "", wrapf(KindMalformedClaim, err, "parse claim")
	}
	cid := ChannelUUID(c.ChannelID)

	doc := e.privateDoc(cid).Collection(subcollection).NewDoc()
	err = doc.Set(ctx, map[string]any{
		fieldTimestamp:         e.now().UTC(),
		fieldAuthorizedToClaim: c.AuthorizedToClaim,
		fieldToClaim:           cost,
		fieldCurrency:          XRPDrops().encode(),
		fieldPaymentClaim:      c.Canonical(),
	})
	if err != nil {
		return "", err
	}
	e.log.Debug("staged claim stored",
		zap.String("channel", c.ChannelID),
		zap.String("subcollection", subcollection),
		zap.String("rid", doc.ID()))
	return doc.ID(), nil
}

// ValidateExactClaim promotes the staged estimate for a request to an exact
// record. The staged copy must agree with the incoming claim on the
// authorized amount and on the whitespace-stripped claim body; disagreement
// means two writers diverged and is an internal inconsistency.
func (e *Engine) ValidateExactClaim(ctx context.Context, claimJSON []byte, rid string, exactCost float64) error {
	if exactCost < 0 {
		return errf(KindInvalidInput, "cost must be non-negative, got %v", exactCost)
	}
	c, err := claim.Parse(claimJSON)
	if err != nil {
		return wrapf(KindMalformedClaim, err, "parse claim")
	}
	cid := ChannelUUID(c.ChannelID)
	estimate := e.estimateDoc(cid, rid)
	exact := e.exactDoc(cid, rid)

	err = e.store.RunTransaction(ctx, func(tx store.Transaction) error {
		snap, err := tx.Get(estimate)
		if err != nil {
			return err
		}
		if !snap.Exists() {
			return errf(KindNotFound, "no staged estimate %s for channel %s", rid, c.ChannelID)
		}

		record := decodeChannelRecord(snap.Data())
		if record.AuthorizedToClaim != c.AuthorizedToClaim {
			return errf(KindInternalInconsistency,
				"staged estimate %s authorizes %s, incoming claim authorizes %s",
				rid, record.AuthorizedToClaim, c.AuthorizedToClaim)
		}
		if claim.StripSpaces(record.PaymentClaim) != claim.StripSpaces(string(claimJSON)) {
			return errf(KindInternalInconsistency,
				"staged estimate %s carries a different claim body", rid)
		}

		data := snap.Data()
		data[fieldToClaim] = exactCost
		if err := tx.Set(exact, data); err != nil {
			return err
		}
		return tx.Delete(estimate)
	})
	return e.classifyTxError(err, cid)
}
