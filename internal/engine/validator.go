package engine

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/dhali-org/dhalid/pkg/claim"
	"github.com/dhali-org/dhalid/internal/ratelimit"
	"github.com/dhali-org/dhalid/internal/store"
)

// ValidateClaim admits a request on the estimate path. It parses the claim,
// reconciles it against the stored channel record inside one transaction,
// verifies the signature against the ledger only when the claim differs from
// the stored one, and advances both the private record and its public mirror
// to the new to_claim total, which it returns.
func (e *Engine) ValidateClaim(ctx context.Context, claimJSON []byte, singleRequestCostEstimate float64, destinationAccount string) (float64, error) {
	c, cid, err := e.admitClaim(claimJSON, destinationAccount)
	if err != nil {
		return 0, err
	}

	priv := e.privateDoc(cid)
	pub := e.publicDoc(cid)

	var newToClaim float64
	err = e.store.RunTransaction(ctx, func(tx store.Transaction) error {
		privSnap, err := tx.Get(priv)
		if err != nil {
			return err
		}
		pubSnap, err := tx.Get(pub)
		if err != nil {
			return err
		}

		record, needsReverify, err := e.reconcile(privSnap, c)
		if err != nil {
			return err
		}

		newToClaim = record.ToClaim + singleRequestCostEstimate
		if err := checkAuthorization(c, newToClaim); err != nil {
			return err
		}

		if needsReverify {
			if err := e.verifier.VerifyClaim(ctx, c); err != nil {
				return verifyError(err)
			}
		}

		currency := XRPDrops().encode()
		privData := map[string]any{
			fieldAuthorizedToClaim: c.AuthorizedToClaim,
			fieldToClaim:           newToClaim,
			fieldCurrency:          currency,
			fieldPaymentClaim:      c.Canonical(),
		}
		if privSnap.Exists() {
			if err := tx.Update(priv, privData); err != nil {
				return err
			}
		} else if err := tx.Set(priv, privData); err != nil {
			return err
		}

		pubData := map[string]any{
			fieldToClaim:  newToClaim,
			fieldCurrency: currency,
		}
		if pubSnap.Exists() {
			return tx.Update(pub, pubData)
		}
		return tx.Set(pub, pubData)
	})
	if err != nil {
		return 0, e.classifyTxError(err, cid)
	}

	e.log.Debug("claim validated",
		zap.String("channel", c.ChannelID),
		zap.Float64("to_claim", newToClaim))
	return newToClaim, nil
}

// ThrowIfClaimInvalid runs the same admission checks as ValidateClaim but
// mutates nothing. It serves the path where exact accounting is decoupled
// from stored-claim advancement: admission here, StoreEstimatedClaim next,
// ValidateExactClaim after execution.
func (e *Engine) ThrowIfClaimInvalid(ctx context.Context, claimJSON []byte, singleRequestCostEstimate float64, destinationAccount string) error {
	c, cid, err := e.admitClaim(claimJSON, destinationAccount)
	if err != nil {
		return err
	}

	err = e.store.RunTransaction(ctx, func(tx store.Transaction) error {
		privSnap, err := tx.Get(e.privateDoc(cid))
		if err != nil {
			return err
		}

		record, needsReverify, err := e.reconcile(privSnap, c)
		if err != nil {
			return err
		}
		if err := checkAuthorization(c, record.ToClaim+singleRequestCostEstimate); err != nil {
			return err
		}
		if needsReverify {
			if err := e.verifier.VerifyClaim(ctx, c); err != nil {
				return verifyError(err)
			}
		}
		return nil
	})
	return e.classifyTxError(err, cid)
}

// admitClaim is the pre-flight shared by both admission surfaces: parse,
// destination check, CID derivation.
func (e *Engine) admitClaim(claimJSON []byte, destinationAccount string) (*claim.Claim, string, error) {
	c, err := claim.Parse(claimJSON)
	if err != nil {
		return nil, "", wrapf(KindMalformedClaim, err, "parse claim")
	}
	if c.DestinationAccount != destinationAccount {
		return nil, "", errf(KindDestinationMismatch,
			"claim pays %s, this gateway is %s", c.DestinationAccount, destinationAccount)
	}
	return c, ChannelUUID(c.ChannelID), nil
}

// reconcile evaluates the stored record against the incoming claim: rate
// limiting, currency sanity, and the signature-cache decision. A missing
// record always needs ledger verification.
func (e *Engine) reconcile(privSnap store.Snapshot, c *claim.Claim) (ChannelRecord, bool, error) {
	if !privSnap.Exists() {
		return ChannelRecord{}, true, nil
	}

	record := decodeChannelRecord(privSnap.Data())
	if err := e.limiter.Check(ratelimit.Context{
		NumberOfClaimsStaged:          record.NumberOfClaimsStaged,
		NumberOfMetadataUpdatesStaged: record.NumberOfMetadataUpdatesStaged,
		Timestamp:                     record.Timestamp,
	}); err != nil {
		return ChannelRecord{}, false, wrapf(KindRateLimited, err,
			"channel %s has %d claims staged", c.ChannelID, record.NumberOfClaimsStaged)
	}
	if !record.Currency.IsXRPDrops() {
		return ChannelRecord{}, false, errf(KindCurrencyInvalid,
			"stored currency %+v is not XRP drops", record.Currency)
	}

	// The signature cache: an unchanged claim was verified when it was
	// first stored, so only a differing claim goes back to the ledger.
	needsReverify := !c.EqualSerialized(record.PaymentClaim)
	return record, needsReverify, nil
}

// checkAuthorization enforces int(authorized_to_claim) >= int(new total).
// Both sides truncate to integer drops.
func checkAuthorization(c *claim.Claim, newToClaim float64) error {
	authorized, err := strconv.ParseInt(c.AuthorizedToClaim, 10, 64)
	if err != nil {
		return wrapf(KindMalformedClaim, err,
			"authorized_to_claim %q is not an integer", c.AuthorizedToClaim)
	}
	if authorized < int64(newToClaim) {
		return errf(KindInsufficientAuthorization,
			"authorized %d drops, need %d", authorized, int64(newToClaim))
	}
	return nil
}

// classifyTxError turns store-level failures into engine kinds while letting
// already-classified errors through.
func (e *Engine) classifyTxError(err error, cid string) error {
	if err == nil {
		return nil
	}
	var engErr *Error
	if errors.As(err, &engErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return wrapf(KindTimeout, err, "transaction on channel record %s", cid)
	}
	if errors.Is(err, store.ErrConflict) {
		e.log.Error("transaction retries exhausted", zap.String("cid", cid), zap.Error(err))
	}
	return err
}
