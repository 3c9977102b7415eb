// Package store defines the coordination-service abstraction the rest of the
// coordinator is built on: a hierarchical name-space with persistent and
// sequence-assigned persistent nodes, get/set/delete/list-children/exists,
// and a separate ephemeral-node primitive used by the GC and groomer locks.
//
// The coordinator never talks to a coordination-service backend directly --
// every call is routed through package executor, which arms a deadline and
// applies the retry/reconnect policy described by the specification.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors every backend must map its own errors onto.
var (
	// ErrNodeExists is returned by Create when the path is already occupied.
	ErrNodeExists = errors.New("node already exists")
	// ErrNodeMissing is returned by Get/Children when the path does not exist.
	ErrNodeMissing = errors.New("node missing")
	// ErrDataInconsistency marks a structural invariant violation discovered in stored data.
	ErrDataInconsistency = errors.New("data inconsistency")
	// ErrBadArguments marks a caller error (e.g. an empty path).
	ErrBadArguments = errors.New("bad arguments")
)

// PersistentStore is the subset of the coordination service backing every
// persistent node in the data model (app roots, transaction nodes, lock
// roots, blacklist and valid-version entries, gclast_time).
type PersistentStore interface {
	// Create creates path with value, failing with ErrNodeExists if occupied.
	Create(ctx context.Context, path string, value []byte) error
	// CreateSequential creates a sequence-assigned child of parentPrefix (the
	// backend appends a monotonically increasing, never-zero numeric suffix)
	// and returns the full assigned path and the parsed suffix.
	CreateSequential(ctx context.Context, parentPrefix string, value []byte) (assignedPath string, seq uint64, err error)
	// Get returns the value stored at path, failing with ErrNodeMissing if absent.
	Get(ctx context.Context, path string) ([]byte, error)
	// Set upserts the value stored at path.
	Set(ctx context.Context, path string, value []byte) error
	// Delete removes path. It does not fail when path is already missing.
	Delete(ctx context.Context, path string) error
	// Children lists the immediate child names (not full paths) of path.
	// Returns ErrNodeMissing if path itself does not exist.
	Children(ctx context.Context, path string) ([]string, error)
	// Exists reports whether path is present.
	Exists(ctx context.Context, path string) (bool, error)
	// Close releases backend resources.
	Close() error
}

// EphemeralStore is the subset of the coordination service backing
// session-bound ephemeral nodes: the per-application GC lock and the
// datastore-groomer lock.
type EphemeralStore interface {
	// Acquire atomically creates path with value if absent, with the node
	// expiring after ttl if never released. Returns false (no error) if the
	// path is already held.
	Acquire(ctx context.Context, path string, value []byte, ttl time.Duration) (bool, error)
	// Release deletes path. It does not fail when path is already missing.
	Release(ctx context.Context, path string) error
	// Get returns (found, value, error).
	Get(ctx context.Context, path string) (bool, []byte, error)
	// Close releases backend resources.
	Close() error
}
