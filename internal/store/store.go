// Package store defines the transactional document store the engine runs
// against. Documents live in collections and subcollections and are keyed by
// deterministic ids; every multi-document mutation goes through
// RunTransaction, which provides snapshot reads and conflict-detected commit
// with automatic retry.
package store

import (
	"context"
	"time"
)

// Store is the root handle to a document database. Implementations must be
// safe for concurrent use.
type Store interface {
	// Collection returns a reference to a top-level collection.
	Collection(name string) CollectionRef

	// RunTransaction executes fn against a consistent snapshot and commits
	// its buffered writes atomically. On conflict the store retries fn with
	// a fresh snapshot, so fn must be idempotent with respect to its own
	// effects and must not leak state between attempts.
	RunTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Close releases the underlying client or database handle.
	Close() error
}

// CollectionRef addresses a collection of documents.
type CollectionRef interface {
	// Doc returns a reference to the document with the given id.
	Doc(id string) DocRef

	// NewDoc returns a reference with a fresh unique id.
	NewDoc() DocRef

	// Documents lists snapshots of every document in the collection.
	Documents(ctx context.Context) ([]Snapshot, error)
}

// DocRef addresses a single document. Direct (non-transactional) operations
// are provided for single-document reads and appends; anything touching more
// than one document belongs inside RunTransaction.
type DocRef interface {
	// ID is the document id (the last path segment).
	ID() string

	// Path is the full slash-separated document path.
	Path() string

	// Collection returns a subcollection of this document.
	Collection(name string) CollectionRef

	Get(ctx context.Context) (Snapshot, error)
	Set(ctx context.Context, data map[string]any) error
	Update(ctx context.Context, data map[string]any) error
	Delete(ctx context.Context) error
}

// Transaction buffers writes against a snapshot. Reads observe the snapshot,
// never earlier buffered writes.
type Transaction interface {
	Get(ref DocRef) (Snapshot, error)
	Set(ref DocRef, data map[string]any) error
	Update(ref DocRef, data map[string]any) error
	Delete(ref DocRef) error
}

// Snapshot is a point-in-time view of a document. Data returns a copy; the
// caller may mutate it freely.
type Snapshot interface {
	Exists() bool
	Ref() DocRef
	Data() map[string]any
}

// DecodeTime normalises the representations a backend may use for stored
// timestamps. Firestore returns time.Time, the embedded backends round-trip
// through JSON and return RFC 3339 strings.
func DecodeTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}
