package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateEstimatedCostWithExact(t *testing.T) {
	fv := &fakeVerifier{}
	e, _ := testEngine(t, fv, nil)
	ctx := context.Background()

	_, err := e.ValidateClaim(ctx, claimJSON("9000", "sig"), 10, testDestination)
	require.NoError(t, err)

	require.NoError(t, e.UpdateEstimatedCostWithExact(ctx, claimJSON("9000", "sig"), 10, 7))

	assert.Equal(t, 7.0, privateRecord(t, e).ToClaim)
	assert.Equal(t, 7.0, publicToClaim(t, e))
}

func TestUpdateEstimatedCostWithExact_MissingRecords(t *testing.T) {
	fv := &fakeVerifier{}
	e, _ := testEngine(t, fv, nil)

	err := e.UpdateEstimatedCostWithExact(context.Background(), claimJSON("9000", "sig"), 10, 7)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, kind)
}

func TestUpdateEstimatedCostWithExact_RejectsNegativeCosts(t *testing.T) {
	fv := &fakeVerifier{}
	e, _ := testEngine(t, fv, nil)
	ctx := context.Background()

	for _, costs := range [][2]float64{{-1, 7}, {10, -1}} {
		err := e.UpdateEstimatedCostWithExact(ctx, claimJSON("9000", "sig"), costs[0], costs[1])
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, KindInvalidInput, kind)
	}
}

func TestUpdateEstimatedCostWithExact_ZeroExactCost(t *testing.T) {
	fv := &fakeVerifier{}
	e, _ := testEngine(t, fv, nil)
	ctx := context.Background()

	_, err := e.ValidateClaim(ctx, claimJSON("9000", "sig"), 10, testDestination)
	require.NoError(t, err)

	// An exact cost of zero is legal: the request consumed nothing.
	require.NoError(t, e.UpdateEstimatedCostWithExact(ctx, claimJSON("9000", "sig"), 10, 0))
	assert.Equal(t, 0.0, privateRecord(t, e).ToClaim)
}

func TestStoreExactClaim_AppendOnly(t *testing.T) {
	fv := &fakeVerifier{}
	e, db := testEngine(t, fv, nil)
	ctx := context.Background()

	rid1, err := e.StoreExactClaim(ctx, claimJSON("9000", "sig"), 3)
	require.NoError(t, err)
	rid2, err := e.StoreExactClaim(ctx, claimJSON("9000", "sig"), 4)
	require.NoError(t, err)
	assert.NotEqual(t, rid1, rid2)

	exact := db.Collection(CollectionPrivate).Doc(ChannelUUID(testChannel)).Collection(SubcollectionExact)
	snaps, err := exact.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	for _, snap := range snaps {
		rec := decodeChannelRecord(snap.Data())
		assert.Equal(t, "9000", rec.AuthorizedToClaim)
		assert.True(t, rec.Currency.IsXRPDrops())
		assert.False(t, rec.Timestamp.IsZero())
		assert.NotEmpty(t, rec.PaymentClaim)
	}
}

func TestStoreEstimatedClaim(t *testing.T) {
	fv := &fakeVerifier{}
	e, _ := testEngine(t, fv, nil)
	ctx := context.Background()

	rid, err := e.StoreEstimatedClaim(ctx, claimJSON("9000", "sig"), 5)
	require.NoError(t, err)

	snap, err := e.estimateDoc(ChannelUUID(testChannel), rid).Get(ctx)
	require.NoError(t, err)
	require.True(t, snap.Exists())
	assert.Equal(t, 5.0, decodeChannelRecord(snap.Data()).ToClaim)
}

func TestStoreStagedClaim_RejectsNegativeCost(t *testing.T) {
	fv := &fakeVerifier{}
	e, _ := testEngine(t, fv, nil)

	_, err := e.StoreExactClaim(context.Background(), claimJSON("9000", "sig"), -1)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidInput, kind)
}

func TestValidateExactClaim_PromotesEstimate(t *testing.T) {
	fv := &fakeVerifier{}
	e, _ := testEngine(t, fv, nil)
	ctx := context.Background()
	cid := ChannelUUID(testChannel)

	rid, err := e.StoreEstimatedClaim(ctx, claimJSON("9000", "sig"), 5)
	require.NoError(t, err)

	require.NoError(t, e.ValidateExactClaim(ctx, claimJSON("9000", "sig"), rid, 3))

	estSnap, err := e.estimateDoc(cid, rid).Get(ctx)
	require.NoError(t, err)
	assert.False(t, estSnap.Exists())

	exactSnap, err := e.exactDoc(cid, rid).Get(ctx)
	require.NoError(t, err)
	require.True(t, exactSnap.Exists())
	rec := decodeChannelRecord(exactSnap.Data())
	assert.Equal(t, 3.0, rec.ToClaim)
	assert.Equal(t, "9000", rec.AuthorizedToClaim)
}

func TestValidateExactClaim_MissingEstimate(t *testing.T) {
	fv := &fakeVerifier{}
	e, _ := testEngine(t, fv, nil)

	err := e.ValidateExactClaim(context.Background(), claimJSON("9000", "sig"), "no-such-rid", 3)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, kind)
}

func TestValidateExactClaim_AuthorizationMismatchIsInternal(t *testing.T) {
	fv := &fakeVerifier{}
	e, _ := testEngine(t, fv, nil)
	ctx := context.Background()

	rid, err := e.StoreEstimatedClaim(ctx, claimJSON("9000", "sig"), 5)
	require.NoError(t, err)

	err = e.ValidateExactClaim(ctx, claimJSON("9001", "sig"), rid, 3)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindInternalInconsistency, kind)
}

func TestValidateExactClaim_IgnoresWhitespaceDifferences(t *testing.T) {
	fv := &fakeVerifier{}
	e, _ := testEngine(t, fv, nil)
	ctx := context.Background()

	rid, err := e.StoreEstimatedClaim(ctx, claimJSON("9000", "sig"), 5)
	require.NoError(t, err)

	spaced := []byte(`{"account": "rAlice", "authorized_to_claim": "9000", ` +
		`"channel_id": "` + testChannel + `", ` +
		`"destination_account": "` + testDestination + `", "signature": "sig"}`)
	require.NoError(t, e.ValidateExactClaim(ctx, spaced, rid, 3))
}
