package store

import "errors"

var (
	// ErrDocNotFound is returned when updating or deleting a document that
	// does not exist.
	ErrDocNotFound = errors.New("document not found")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrConflict is returned when a transaction exhausts its retries
	// without committing.
	ErrConflict = errors.New("transaction conflict")
)
