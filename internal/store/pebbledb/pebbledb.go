// Package pebbledb is an embedded store.Store backend on top of pebble.
// Documents are stored as JSON under their slash-separated path; optimistic
// concurrency is provided by in-process per-document version counters, which
// is sufficient because the engine is the store's sole writer.
package pebbledb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/dhali-org/dhalid/internal/store"
)

const maxAttempts = 5

// DB is a pebble-backed document store.
type DB struct {
	pdb *pebble.DB

	mu       sync.Mutex
	versions map[string]uint64
	closed   bool
}

// Open opens (or creates) a pebble database at path.
func Open(path string) (*DB, error) {
	pdb, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &DB{pdb: pdb, versions: make(map[string]uint64)}, nil
}

func (db *DB) Collection(name string) store.CollectionRef {
	return &collectionRef{db: db, path: name}
}

func (db *DB) RunTransaction(ctx context.Context, fn func(tx store.Transaction) error) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx := &transaction{db: db, reads: make(map[string]uint64)}
		if err := fn(tx); err != nil {
			return err
		}

		committed, err := db.commit(tx)
		if err != nil {
			return err
		}
		if committed {
			return nil
		}
	}
	return store.ErrConflict
}

func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	return db.pdb.Close()
}

func (db *DB) commit(tx *transaction) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return false, store.ErrStoreClosed
	}

	for path, version := range tx.reads {
		if db.versions[path] != version {
			return false, nil
		}
	}

	batch := db.pdb.NewBatch()
	defer batch.Close()

	for _, w := range tx.writes {
		switch w.op {
		case opSet:
			value, err := json.Marshal(w.data)
			if err != nil {
				return false, fmt.Errorf("failed to encode document %s: %w", w.path, err)
			}
			if err := batch.Set([]byte(w.path), value, nil); err != nil {
				return false, err
			}
		case opDelete:
			if err := batch.Delete([]byte(w.path), nil); err != nil {
				return false, err
			}
		}
	}

	if err := db.pdb.Apply(batch, pebble.Sync); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	for _, w := range tx.writes {
		db.versions[w.path]++
	}
	return true, nil
}

// read fetches a document and its current version under the store lock.
func (db *DB) read(path string) (map[string]any, uint64, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, 0, false, store.ErrStoreClosed
	}

	version := db.versions[path]
	value, closer, err := db.pdb.Get([]byte(path))
	if err == pebble.ErrNotFound {
		return nil, version, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to read document %s: %w", path, err)
	}
	defer closer.Close()

	var data map[string]any
	if err := json.Unmarshal(value, &data); err != nil {
		return nil, 0, false, fmt.Errorf("failed to decode document %s: %w", path, err)
	}
	return data, version, true, nil
}

func (db *DB) write(path string, data map[string]any) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return store.ErrStoreClosed
	}

	value, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", path, err)
	}
	if err := db.pdb.Set([]byte(path), value, pebble.Sync); err != nil {
		return err
	}
	db.versions[path]++
	return nil
}

func (db *DB) delete(path string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return store.ErrStoreClosed
	}

	if err := db.pdb.Delete([]byte(path), pebble.Sync); err != nil {
		return err
	}
	db.versions[path]++
	return nil
}

type collectionRef struct {
	db   *DB
	path string
}

func (c *collectionRef) Doc(id string) store.DocRef {
	return &docRef{db: c.db, path: c.path + "/" + id}
}

func (c *collectionRef) NewDoc() store.DocRef {
	return c.Doc(uuid.NewString())
}

func (c *collectionRef) Documents(_ context.Context) ([]store.Snapshot, error) {
	prefix := c.path + "/"
	iter, err := c.db.pdb.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "\xff"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate collection %s: %w", c.path, err)
	}
	defer iter.Close()

	var snaps []store.Snapshot
	for iter.First(); iter.Valid(); iter.Next() {
		path := string(iter.Key())
		// Skip documents in subcollections.
		if strings.Contains(path[len(prefix):], "/") {
			continue
		}

		var data map[string]any
		if err := json.Unmarshal(iter.Value(), &data); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", path, err)
		}
		snaps = append(snaps, &snapshot{
			ref:    &docRef{db: c.db, path: path},
			exists: true,
			data:   data,
		})
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return snaps, nil
}

type docRef struct {
	db   *DB
	path string
}

func (d *docRef) ID() string {
	return d.path[strings.LastIndex(d.path, "/")+1:]
}

func (d *docRef) Path() string {
	return d.path
}

func (d *docRef) Collection(name string) store.CollectionRef {
	return &collectionRef{db: d.db, path: d.path + "/" + name}
}

func (d *docRef) Get(_ context.Context) (store.Snapshot, error) {
	data, _, exists, err := d.db.read(d.path)
	if err != nil {
		return nil, err
	}
	return &snapshot{ref: d, exists: exists, data: data}, nil
}

func (d *docRef) Set(_ context.Context, data map[string]any) error {
	return d.db.write(d.path, data)
}

func (d *docRef) Update(_ context.Context, data map[string]any) error {
	existing, _, exists, err := d.db.read(d.path)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", store.ErrDocNotFound, d.path)
	}
	for k, v := range data {
		existing[k] = v
	}
	return d.db.write(d.path, existing)
}

func (d *docRef) Delete(_ context.Context) error {
	return d.db.delete(d.path)
}

type opType int

const (
	opSet opType = iota
	opDelete
)

type write struct {
	op   opType
	path string
	data map[string]any
}

type transaction struct {
	db     *DB
	reads  map[string]uint64
	writes []write
}

func (t *transaction) Get(ref store.DocRef) (store.Snapshot, error) {
	data, version, exists, err := t.db.read(ref.Path())
	if err != nil {
		return nil, err
	}
	t.reads[ref.Path()] = version
	return &snapshot{ref: ref, exists: exists, data: data}, nil
}

func (t *transaction) Set(ref store.DocRef, data map[string]any) error {
	t.writes = append(t.writes, write{op: opSet, path: ref.Path(), data: data})
	return nil
}

func (t *transaction) Update(ref store.DocRef, data map[string]any) error {
	existing, version, exists, err := t.db.read(ref.Path())
	if err != nil {
		return err
	}
	// An update is a read-modify-write; the read must take part in commit
	// validation like Get, keeping the earliest observed version.
	if _, seen := t.reads[ref.Path()]; !seen {
		t.reads[ref.Path()] = version
	}
	if !exists {
		return fmt.Errorf("%w: %s", store.ErrDocNotFound, ref.Path())
	}
	for k, v := range data {
		existing[k] = v
	}
	t.writes = append(t.writes, write{op: opSet, path: ref.Path(), data: existing})
	return nil
}

func (t *transaction) Delete(ref store.DocRef) error {
	t.writes = append(t.writes, write{op: opDelete, path: ref.Path()})
	return nil
}

type snapshot struct {
	ref    store.DocRef
	exists bool
	data   map[string]any
}

func (s *snapshot) Exists() bool {
	return s.exists
}

func (s *snapshot) Ref() store.DocRef {
	return s.ref
}

func (s *snapshot) Data() map[string]any {
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}
