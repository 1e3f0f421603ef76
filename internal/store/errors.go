package store

import "errors"

// Domain-specific errors for document store operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound is returned when the requested document (or its
	// attachment) does not exist.
	ErrNotFound = errors.New("store: document not found")

	// ErrConflict is returned when a write presents a stale revision.
	// The caller should re-read the document and retry if appropriate.
	ErrConflict = errors.New("store: revision conflict")

	// ErrInvalidDocument is returned when a document is missing required
	// fields (id, type) or carries a malformed body.
	ErrInvalidDocument = errors.New("store: invalid document")

	// ErrUnknownIndex is returned when Query is called with an index
	// name the store does not serve.
	ErrUnknownIndex = errors.New("store: unknown index")
)
