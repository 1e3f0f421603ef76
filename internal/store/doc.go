// Package store implements a revisioned document store over SQLite.
//
// Documents are JSON bodies keyed by id. Every write produces a new
// revision token; writers must present the revision they read, and a
// stale revision is rejected with ErrConflict. This gives optimistic
// concurrency without row locks: the losing writer re-reads and
// retries (or surfaces the conflict to its caller).
//
// # Revisions
//
// Revision tokens have the form "N-suffix" where N is the generation
// number and the suffix is an opaque unique value. Tokens are compared
// as whole strings - callers never parse them.
//
// # Indexes
//
// Query serves a fixed set of named indexes backed by SQLite's JSON1
// functions over the document body. Unknown index names are rejected
// with ErrUnknownIndex rather than falling back to a table scan.
//
// # Attachments
//
// A document can carry one binary attachment. Attachment writes ride
// the same revision chain as body writes, so a concurrent body update
// and attachment upload cannot silently interleave. Attachments are
// deleted with their document by foreign key cascade.
//
// # Usage
//
//	s := store.New(db)
//	doc, err := s.Get(ctx, "lobby-display")
//	if err != nil { ... }
//	doc.Body = updated
//	newRev, err := s.Put(ctx, doc)
//	if errors.Is(err, store.ErrConflict) {
//	    // somebody else wrote first - re-read and retry
//	}
package store
