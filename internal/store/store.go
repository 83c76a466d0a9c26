// Package store persists postings and serves the read models the pipeline
// consumes: application references, user profiles, search configs and
// posting embeddings. PostgresStore is the durable implementation;
// MemoryStore backs tests and local runs without a database.
package store

import "errors"

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned by InsertPosting when another posting already
	// holds the candidate's URL or fuzzy key. Callers re-resolve.
	ErrConflict = errors.New("store: conflicting posting")
)
