// Package memdb is an in-memory store.Store used by tests. It implements the
// same optimistic-transaction contract as the persistent backends: snapshot
// reads, conflict detection against per-document versions, and automatic
// retry. Commit failures can be injected to exercise retry paths.
package memdb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dhali-org/dhalid/internal/store"
)

const maxAttempts = 5

// DB is an in-memory document store.
type DB struct {
	mu       sync.Mutex
	docs     map[string]map[string]any
	versions map[string]uint64

	forcedConflicts int
}

// New returns an empty in-memory store.
func New() *DB {
	return &DB{
		docs:     make(map[string]map[string]any),
		versions: make(map[string]uint64),
	}
}

// FailCommits forces the next n transaction commits to conflict, so tests can
// observe the retry loop.
func (db *DB) FailCommits(n int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.forcedConflicts = n
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

		if db.commit(tx) {
			return nil
		}
	}
	return store.ErrConflict
}

func (db *DB) Close() error {
	return nil
}

func (db *DB) commit(tx *transaction) bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.forcedConflicts > 0 {
		db.forcedConflicts--
		return false
	}

	for path, version := range tx.reads {
		if db.versions[path] != version {
			return false
		}
	}

	for _, w := range tx.writes {
		switch w.op {
		case opSet:
			db.docs[w.path] = copyData(w.data)
		case opDelete:
			delete(db.docs, w.path)
		}
		db.versions[w.path]++
	}
	return true
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
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	prefix := c.path + "/"
	var paths []string
	for path := range c.db.docs {
		if strings.HasPrefix(path, prefix) && !strings.Contains(path[len(prefix):], "/") {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	snaps := make([]store.Snapshot, len(paths))
	for i, path := range paths {
		snaps[i] = &snapshot{
			ref:    &docRef{db: c.db, path: path},
			exists: true,
			data:   copyData(c.db.docs[path]),
		}
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
	d.db.mu.Lock()
	defer d.db.mu.Unlock()

	data, ok := d.db.docs[d.path]
	if !ok {
		return &snapshot{ref: d}, nil
	}
	return &snapshot{ref: d, exists: true, data: copyData(data)}, nil
}

func (d *docRef) Set(_ context.Context, data map[string]any) error {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()

	d.db.docs[d.path] = copyData(data)
	d.db.versions[d.path]++
	return nil
}

func (d *docRef) Update(_ context.Context, data map[string]any) error {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()

	existing, ok := d.db.docs[d.path]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrDocNotFound, d.path)
	}
	for k, v := range copyData(data) {
		existing[k] = v
	}
	d.db.versions[d.path]++
	return nil
}

func (d *docRef) Delete(_ context.Context) error {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()

	delete(d.db.docs, d.path)
	d.db.versions[d.path]++
	return nil
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

// transaction records snapshot reads and buffers writes; the store validates
// read versions at commit.
type transaction struct {
	db     *DB
	reads  map[string]uint64
	writes []write
}

func (t *transaction) Get(ref store.DocRef) (store.Snapshot, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	path := ref.Path()
	t.reads[path] = t.db.versions[path]

	data, ok := t.db.docs[path]
	if !ok {
		return &snapshot{ref: ref}, nil
	}
	return &snapshot{ref: ref, exists: true, data: copyData(data)}, nil
}

func (t *transaction) Set(ref store.DocRef, data map[string]any) error {
	t.writes = append(t.writes, write{op: opSet, path: ref.Path(), data: copyData(data)})
	return nil
}

func (t *transaction) Update(ref store.DocRef, data map[string]any) error {
	t.db.mu.Lock()
	path := ref.Path()
	// An update is a read-modify-write; the read must take part in commit
	// validation like Get, keeping the earliest observed version.
	if _, seen := t.reads[path]; !seen {
		t.reads[path] = t.db.versions[path]
	}
	existing, ok := t.db.docs[path]
	t.db.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrDocNotFound, path)
	}

	merged := copyData(existing)
	for k, v := range copyData(data) {
		merged[k] = v
	}
	t.writes = append(t.writes, write{op: opSet, path: ref.Path(), data: merged})
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
	return copyData(s.data)
}

func copyData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if nested, ok := v.(map[string]any); ok {
			out[k] = copyData(nested)
			continue
		}
		out[k] = v
	}
	return out
}
