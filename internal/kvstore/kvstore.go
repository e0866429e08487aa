// Package kvstore provides the durable ordered key-value abstraction that
// backs the authenticated state engine and the auxiliary indexes. Keys sort
// lexicographically, matching bbolt's native byte-ordered buckets, so the
// tx index's composite sort key (time||chain||id) needs no custom
// comparator.
package kvstore

import "errors"

// ErrNotFound is returned by Get and View.Get when a key is absent.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is a durable, bucketed, ordered key-value store. Every operation is
// scoped to a named bucket so the state engine, block-info index, tx index,
// and other consumers can share one physical database file without key
// collisions.
type Store interface {
	// View runs fn inside a read-only snapshot. The snapshot is isolated
	// from concurrent writers for the duration of fn.
	View(fn func(tx ReadTx) error) error

	// Update runs fn inside a read-write transaction, committing on a nil
	// return and rolling back otherwise.
	Update(fn func(tx WriteTx) error) error

	// Close releases the underlying database handle.
	Close() error
}

// ReadTx is the read surface available inside View.
type ReadTx interface {
	// Get returns the value stored for key in bucket, or ErrNotFound.
	Get(bucket string, key []byte) ([]byte, error)

	// Iterate calls fn for every key in bucket with the given prefix, in
	// ascending order, starting at the first key >= start (start may be
	// nil to begin at the prefix itself). Iteration stops early if fn
	// returns false.
	Iterate(bucket string, prefix, start []byte, fn func(key, value []byte) bool) error
}

// WriteTx is the read-write surface available inside Update.
type WriteTx interface {
	ReadTx

	// Put writes key/value into bucket, creating the bucket if absent.
	Put(bucket string, key, value []byte) error

	// Delete removes key from bucket. It is a no-op if the key is absent.
	Delete(bucket string, key []byte) error

	// DeletePrefix removes every key in bucket matching prefix.
	DeletePrefix(bucket string, prefix []byte) error
}
