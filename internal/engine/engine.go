// Package engine implements payment-claim validation and accounting: the
// transactional estimate path, estimate-to-exact reconciliation, the
// idempotent document mover, and the consolidator that collapses staged
// per-request records into the canonical channel record.
package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dhali-org/dhalid/pkg/claim"
	"github.com/dhali-org/dhalid/internal/ledger"
	"github.com/dhali-org/dhalid/internal/ratelimit"
	"github.com/dhali-org/dhalid/internal/store"
)

// LedgerVerifier checks a claim against on-ledger channel state. Production
// uses *ledger.Verifier; tests inject a fake with call counters.
type LedgerVerifier interface {
	VerifyClaim(ctx context.Context, c *claim.Claim) error
}

// Options configures an Engine. Store and Verifier are required; a nil
// Limiter never limits and a nil Logger does not log.
type Options struct {
	Store    store.Store
	Verifier LedgerVerifier
	Limiter  *ratelimit.Limiter
	Logger   *zap.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Engine is safe for concurrent use; all per-channel state lives in the
// store and is read transactionally.
type Engine struct {
	store    store.Store
	verifier LedgerVerifier
	limiter  *ratelimit.Limiter
	log      *zap.Logger
	now      func() time.Time
}

func New(opts Options) *Engine {
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.New(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:    opts.Store,
		verifier: opts.Verifier,
		limiter:  limiter,
		log:      logger,
		now:      now,
	}
}

func (e *Engine) privateDoc(cid string) store.DocRef {
	return e.store.Collection(CollectionPrivate).Doc(cid)
}

func (e *Engine) publicDoc(cid string) store.DocRef {
	return e.store.Collection(CollectionPublic).Doc(cid)
}

func (e *Engine) estimateDoc(cid, rid string) store.DocRef {
	return e.privateDoc(cid).Collection(SubcollectionEstimate).Doc(rid)
}

func (e *Engine) exactDoc(cid, rid string) store.DocRef {
	return e.privateDoc(cid).Collection(SubcollectionExact).Doc(rid)
}

// verifyError translates a ledger verification failure into the engine's
// taxonomy. Transport failures other than timeouts pass through untouched.
func verifyError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrNoMatchingChannel):
		return wrapf(KindNoMatchingChannel, err, "ledger verification failed")
	case errors.Is(err, ledger.ErrExpirableChannel):
		return wrapf(KindExpirableChannel, err, "ledger verification failed")
	case errors.Is(err, ledger.ErrSignatureInvalid):
		return wrapf(KindSignatureInvalid, err, "ledger verification failed")
	case errors.Is(err, ledger.ErrTimeout):
		return wrapf(KindTimeout, err, "ledger verification timed out")
	default:
		return err
	}
}
