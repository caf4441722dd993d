package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhali-org/dhalid/internal/store"
	"github.com/dhali-org/dhalid/internal/store/memdb"
)

type stagedDoc struct {
	toClaim    float64
	authorized string
	claim      string
}

func stageSources(t *testing.T, db *memdb.DB, cid string, docs []stagedDoc) []store.DocRef {
	t.Helper()
	ctx := context.Background()
	exact := db.Collection(CollectionPrivate).Doc(cid).Collection(SubcollectionExact)

	refs := make([]store.DocRef, 0, len(docs))
	for _, d := range docs {
		ref := exact.NewDoc()
		require.NoError(t, ref.Set(ctx, map[string]any{
			fieldToClaim:           d.toClaim,
			fieldAuthorizedToClaim: d.authorized,
			fieldPaymentClaim:      d.claim,
			fieldCurrency:          XRPDrops().encode(),
		}))
		refs = append(refs, ref)
	}
	return refs
}

func TestConsolidate_IntoEmptyTargets(t *testing.T) {
	fv := &fakeVerifier{}
	e, db := testEngine(t, fv, nil)
	ctx := context.Background()
	cid := ChannelUUID(testChannel)

	refs := stageSources(t, db, cid, []stagedDoc{
		{1, "4", "s1"},
		{2, "5", "s2"},
		{3, "6", "largest"},
	})

	require.NoError(t, e.Consolidate(ctx, refs, e.privateDoc(cid), e.publicDoc(cid)))

	rec := privateRecord(t, e)
	assert.Equal(t, 6.0, rec.ToClaim)
	assert.Equal(t, "6", rec.AuthorizedToClaim)
	assert.Equal(t, "largest", rec.PaymentClaim)
	assert.Equal(t, int64(3), rec.NumberOfClaimsStaged)
	assert.False(t, rec.Timestamp.IsZero())
	assert.Equal(t, 6.0, publicToClaim(t, e))

	for _, ref := range refs {
		snap, err := ref.Get(ctx)
		require.NoError(t, err)
		assert.False(t, snap.Exists(), ref.Path())
	}
}

func TestConsolidate_SecondRoundAccumulates(t *testing.T) {
	fv := &fakeVerifier{}
	e, db := testEngine(t, fv, nil)
	ctx := context.Background()
	cid := ChannelUUID(testChannel)

	first := stageSources(t, db, cid, []stagedDoc{
		{1, "4", "s1"}, {2, "5", "s2"}, {3, "6", "largest"},
	})
	require.NoError(t, e.Consolidate(ctx, first, e.privateDoc(cid), e.publicDoc(cid)))

	second := stageSources(t, db, cid, []stagedDoc{
		{1, "8", "s3"}, {2, "9", "s4"}, {1.1, "10", "new largest"},
	})
	require.NoError(t, e.Consolidate(ctx, second, e.privateDoc(cid), e.publicDoc(cid)))

	rec := privateRecord(t, e)
	assert.InDelta(t, 10.1, rec.ToClaim, 1e-9)
	assert.Equal(t, "10", rec.AuthorizedToClaim)
	assert.Equal(t, "new largest", rec.PaymentClaim)
	assert.Equal(t, int64(3), rec.NumberOfClaimsStaged)
	assert.InDelta(t, 10.1, publicToClaim(t, e), 1e-9)
}

func TestConsolidate_TieKeepsIncumbent(t *testing.T) {
	fv := &fakeVerifier{}
	e, db := testEngine(t, fv, nil)
	ctx := context.Background()
	cid := ChannelUUID(testChannel)

	first := stageSources(t, db, cid, []stagedDoc{{1, "6", "incumbent"}})
	require.NoError(t, e.Consolidate(ctx, first, e.privateDoc(cid), e.publicDoc(cid)))

	second := stageSources(t, db, cid, []stagedDoc{{2, "6", "challenger"}})
	require.NoError(t, e.Consolidate(ctx, second, e.privateDoc(cid), e.publicDoc(cid)))

	rec := privateRecord(t, e)
	assert.Equal(t, "6", rec.AuthorizedToClaim)
	assert.Equal(t, "incumbent", rec.PaymentClaim)
	assert.Equal(t, 3.0, rec.ToClaim)
}

func TestConsolidate_SkipsAlreadyConsumedSources(t *testing.T) {
	fv := &fakeVerifier{}
	e, db := testEngine(t, fv, nil)
	ctx := context.Background()
	cid := ChannelUUID(testChannel)

	refs := stageSources(t, db, cid, []stagedDoc{{1, "4", "s1"}, {2, "5", "s2"}})
	require.NoError(t, refs[0].Delete(ctx))

	require.NoError(t, e.Consolidate(ctx, refs, e.privateDoc(cid), e.publicDoc(cid)))

	rec := privateRecord(t, e)
	assert.Equal(t, 2.0, rec.ToClaim)
	assert.Equal(t, int64(1), rec.NumberOfClaimsStaged)
}

// readThenWriteStore mirrors the hosted document store's transaction
// contract: once a write has been buffered, any further read fails.
type readThenWriteStore struct {
	*memdb.DB
}

func (s *readThenWriteStore) RunTransaction(ctx context.Context, fn func(tx store.Transaction) error) error {
	return s.DB.RunTransaction(ctx, func(tx store.Transaction) error {
		return fn(&readThenWriteTx{inner: tx})
	})
}

type readThenWriteTx struct {
	inner store.Transaction
	wrote bool
}

func (t *readThenWriteTx) Get(ref store.DocRef) (store.Snapshot, error) {
	if t.wrote {
		return nil, errors.New("read after write in transaction")
	}
	return t.inner.Get(ref)
}

func (t *readThenWriteTx) Set(ref store.DocRef, data map[string]any) error {
	t.wrote = true
	return t.inner.Set(ref, data)
}

func (t *readThenWriteTx) Update(ref store.DocRef, data map[string]any) error {
	t.wrote = true
	return t.inner.Update(ref, data)
}

func (t *readThenWriteTx) Delete(ref store.DocRef) error {
	t.wrote = true
	return t.inner.Delete(ref)
}

func TestConsolidate_ReadsAllSourcesBeforeWriting(t *testing.T) {
	db := memdb.New()
	e := New(Options{
		Store:    &readThenWriteStore{DB: db},
		Verifier: &fakeVerifier{},
	})
	ctx := context.Background()
	cid := ChannelUUID(testChannel)

	refs := stageSources(t, db, cid, []stagedDoc{{1, "4", "s1"}, {2, "5", "s2"}})

	require.NoError(t, e.Consolidate(ctx, refs, e.privateDoc(cid), e.publicDoc(cid)))

	rec := privateRecord(t, e)
	assert.Equal(t, 3.0, rec.ToClaim)
	assert.Equal(t, "5", rec.AuthorizedToClaim)
	assert.Equal(t, int64(2), rec.NumberOfClaimsStaged)
}

func TestConsolidate_TargetWithoutClaimContributesNothing(t *testing.T) {
	fv := &fakeVerifier{}
	e, db := testEngine(t, fv, nil)
	ctx := context.Background()
	cid := ChannelUUID(testChannel)

	// A record that has never been consolidated into carries no
	// payment_claim; its to_claim must not be double counted.
	require.NoError(t, db.Collection(CollectionPrivate).Doc(cid).Set(ctx, map[string]any{
		fieldToClaim:  99.0,
		fieldCurrency: XRPDrops().encode(),
	}))

	refs := stageSources(t, db, cid, []stagedDoc{{1, "4", "s1"}})
	require.NoError(t, e.Consolidate(ctx, refs, e.privateDoc(cid), e.publicDoc(cid)))

	rec := privateRecord(t, e)
	assert.Equal(t, 1.0, rec.ToClaim)
	assert.Equal(t, "4", rec.AuthorizedToClaim)
}
