// Package firestoredb adapts Cloud Firestore to the store.Store interface.
// Firestore's native transactions already provide snapshot reads and
// conflict-detected commit with automatic retry, so the adapter is a thin
// mapping of references and snapshots.
package firestoredb

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dhali-org/dhalid/internal/store"
)

// DB wraps a firestore client.
type DB struct {
	client *firestore.Client
}

// Open connects to the given Firestore project. credentialsFile may be empty
// to use ambient credentials.
func Open(ctx context.Context, projectID, credentialsFile string) (*DB, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &DB{client: client}, nil
}

// Wrap adapts an existing firestore client, e.g. one pointed at the emulator.
func Wrap(client *firestore.Client) *DB {
	return &DB{client: client}
}

func (db *DB) Collection(name string) store.CollectionRef {
	return &collectionRef{col: db.client.Collection(name)}
}

func (db *DB) RunTransaction(ctx context.Context, fn func(tx store.Transaction) error) error {
	return db.client.RunTransaction(ctx, func(_ context.Context, ftx *firestore.Transaction) error {
		return fn(&transaction{ftx: ftx})
	})
}

func (db *DB) Close() error {
	return db.client.Close()
}

type collectionRef struct {
	col *firestore.CollectionRef
}

func (c *collectionRef) Doc(id string) store.DocRef {
	return &docRef{ref: c.col.Doc(id)}
}

func (c *collectionRef) NewDoc() store.DocRef {
	return &docRef{ref: c.col.NewDoc()}
}

func (c *collectionRef) Documents(ctx context.Context) ([]store.Snapshot, error) {
	docs, err := c.col.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list collection %s: %w", c.col.Path, err)
	}
	snaps := make([]store.Snapshot, len(docs))
	for i, doc := range docs {
		snaps[i] = &snapshot{snap: doc, ref: &docRef{ref: doc.Ref}}
	}
	return snaps, nil
}

type docRef struct {
	ref *firestore.DocumentRef
}

func (d *docRef) ID() string {
	return d.ref.ID
}

func (d *docRef) Path() string {
	return d.ref.Path
}

func (d *docRef) Collection(name string) store.CollectionRef {
	return &collectionRef{col: d.ref.Collection(name)}
}

func (d *docRef) Get(ctx context.Context) (store.Snapshot, error) {
	snap, err := d.ref.Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return nil, err
	}
	return &snapshot{snap: snap, ref: d}, nil
}

func (d *docRef) Set(ctx context.Context, data map[string]any) error {
	_, err := d.ref.Set(ctx, data)
	return err
}

func (d *docRef) Update(ctx context.Context, data map[string]any) error {
	_, err := d.ref.Set(ctx, data, firestore.MergeAll)
	return err
}

func (d *docRef) Delete(ctx context.Context) error {
	_, err := d.ref.Delete(ctx)
	return err
}

type transaction struct {
	ftx *firestore.Transaction
}

func unwrap(ref store.DocRef) *firestore.DocumentRef {
	return ref.(*docRef).ref
}

func (t *transaction) Get(ref store.DocRef) (store.Snapshot, error) {
	snap, err := t.ftx.Get(unwrap(ref))
	if err != nil && status.Code(err) != codes.NotFound {
		return nil, err
	}
	return &snapshot{snap: snap, ref: ref}, nil
}

func (t *transaction) Set(ref store.DocRef, data map[string]any) error {
	return t.ftx.Set(unwrap(ref), data)
}

func (t *transaction) Update(ref store.DocRef, data map[string]any) error {
	return t.ftx.Set(unwrap(ref), data, firestore.MergeAll)
}

func (t *transaction) Delete(ref store.DocRef) error {
	return t.ftx.Delete(unwrap(ref))
}

type snapshot struct {
	snap *firestore.DocumentSnapshot
	ref  store.DocRef
}

func (s *snapshot) Exists() bool {
	return s.snap != nil && s.snap.Exists()
}

func (s *snapshot) Ref() store.DocRef {
	return s.ref
}

func (s *snapshot) Data() map[string]any {
	if !s.Exists() {
		return nil
	}
	return s.snap.Data()
}
