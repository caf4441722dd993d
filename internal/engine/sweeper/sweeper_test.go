package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhali-org/dhalid/pkg/claim"
	"github.com/dhali-org/dhalid/internal/engine"
	"github.com/dhali-org/dhalid/internal/store/memdb"
)

type noopVerifier struct{}

func (noopVerifier) VerifyClaim(context.Context, *claim.Claim) error { return nil }

func stageExact(t *testing.T, db *memdb.DB, cid string, toClaim float64, authorized, body string) {
	t.Helper()
	ref := db.Collection(engine.CollectionPrivate).Doc(cid).
		Collection(engine.SubcollectionExact).NewDoc()
	require.NoError(t, ref.Set(context.Background(), map[string]any{
		"to_claim":            toClaim,
		"authorized_to_claim": authorized,
		"payment_claim":       body,
		"currency":            map[string]any{"code": "XRP", "scale": 0.000001},
	}))
}

func TestSweepOnce(t *testing.T) {
	db := memdb.New()
	eng := engine.New(engine.Options{Store: db, Verifier: noopVerifier{}})
	svc := New(db, eng, time.Second, 0, nil)
	ctx := context.Background()

	cid := engine.ChannelUUID("CHANNEL-A")
	// The parent record must exist for the sweep to find the channel.
	require.NoError(t, db.Collection(engine.CollectionPrivate).Doc(cid).Set(ctx, map[string]any{
		"to_claim": 0.0,
		"currency": map[string]any{"code": "XRP", "scale": 0.000001},
	}))
	stageExact(t, db, cid, 1, "4", "s1")
	stageExact(t, db, cid, 2, "5", "s2")

	require.NoError(t, svc.SweepOnce(ctx))

	snap, err := db.Collection(engine.CollectionPrivate).Doc(cid).Get(ctx)
	require.NoError(t, err)
	require.True(t, snap.Exists())
	assert.Equal(t, 3.0, snap.Data()["to_claim"])
	assert.Equal(t, "5", snap.Data()["authorized_to_claim"])

	staged, err := db.Collection(engine.CollectionPrivate).Doc(cid).
		Collection(engine.SubcollectionExact).Documents(ctx)
	require.NoError(t, err)
	assert.Empty(t, staged)

	pub, err := db.Collection(engine.CollectionPublic).Doc(cid).Get(ctx)
	require.NoError(t, err)
	require.True(t, pub.Exists())
	assert.Equal(t, 3.0, pub.Data()["to_claim"])
}

func TestSweepOnce_NoStagedClaims(t *testing.T) {
	db := memdb.New()
	eng := engine.New(engine.Options{Store: db, Verifier: noopVerifier{}})
	svc := New(db, eng, time.Second, 0, nil)
	ctx := context.Background()

	cid := engine.ChannelUUID("CHANNEL-B")
	require.NoError(t, db.Collection(engine.CollectionPrivate).Doc(cid).Set(ctx, map[string]any{
		"to_claim":      7.0,
		"payment_claim": "stored",
		"currency":      map[string]any{"code": "XRP", "scale": 0.000001},
	}))

	require.NoError(t, svc.SweepOnce(ctx))

	// Untouched: nothing to consolidate.
	snap, err := db.Collection(engine.CollectionPrivate).Doc(cid).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7.0, snap.Data()["to_claim"])
}

func TestSweepOnce_RespectsBatchSize(t *testing.T) {
	db := memdb.New()
	eng := engine.New(engine.Options{Store: db, Verifier: noopVerifier{}})
	svc := New(db, eng, time.Second, 2, nil)
	ctx := context.Background()

	cid := engine.ChannelUUID("CHANNEL-C")
	require.NoError(t, db.Collection(engine.CollectionPrivate).Doc(cid).Set(ctx, map[string]any{
		"currency": map[string]any{"code": "XRP", "scale": 0.000001},
	}))
	for i := 0; i < 5; i++ {
		stageExact(t, db, cid, 1, "10", "s")
	}

	require.NoError(t, svc.SweepOnce(ctx))

	staged, err := db.Collection(engine.CollectionPrivate).Doc(cid).
		Collection(engine.SubcollectionExact).Documents(ctx)
	require.NoError(t, err)
	assert.Len(t, staged, 3)
}

func TestRun_StopsOnCancel(t *testing.T) {
	db := memdb.New()
	eng := engine.New(engine.Options{Store: db, Verifier: noopVerifier{}})
	svc := New(db, eng, 10*time.Millisecond, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
