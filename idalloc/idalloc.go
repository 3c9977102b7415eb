// Package idalloc issues transaction IDs by creating sequence-assigned
// children of an application's transaction root and parsing the suffix the
// coordination service assigns.
package idalloc

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/txcoord/txcoord"
	"github.com/txcoord/txcoord/executor"
	"github.com/txcoord/txcoord/pathbuilder"
	"github.com/txcoord/txcoord/session"
	"github.com/txcoord/txcoord/store"
)

// DefaultMaxRetries bounds the allocator's own retry loop (e.g. on the
// reserved zero suffix), independent of the Executor's retry budget.
const DefaultMaxRetries = 5

// Allocator hands out transaction IDs.
type Allocator struct {
	exec     *executor.Executor
	sessions *session.Manager
	deadline time.Duration

	maxRetries int
	now        func() time.Time
}

// New returns an Allocator that routes every coordination-service call
// through exec, using deadline as the per-call budget (the spec's default
// of 3s for transactional operations).
func New(exec *executor.Executor, sessions *session.Manager, deadline time.Duration) *Allocator {
	return &Allocator{
		exec:       exec,
		sessions:   sessions,
		deadline:   deadline,
		maxRetries: DefaultMaxRetries,
		now:        time.Now,
	}
}

// NewTxID creates a new transaction for app, returning its assigned ID
// (never zero). When isXG is true an "xg" marker child is created alongside
// the transaction node.
func (a *Allocator) NewTxID(ctx context.Context, app string, isXG bool) (uint64, error) {
	if err := a.ensureAncestors(ctx, app); err != nil {
		return 0, txcoord.NewTransactionError("begin_tx", txcoord.Unknown, err)
	}

	var seq uint64
	attempts := 0

	for {
		attempts++
		var assignedPath string
		ts := strconv.FormatInt(a.now().Unix(), 10)

		err := a.exec.Run(ctx, "begin_tx", a.deadline, func(ctx context.Context) error {
			p, s, err := a.sessions.Persistent().CreateSequential(ctx, pathbuilder.TxSequencePrefix(app), []byte(ts))
			if err != nil {
				return err
			}
			assignedPath, seq = p, s
			return nil
		})
		if err != nil {
			return 0, txcoord.NewTransactionError("begin_tx", txcoord.Unknown, err)
		}

		if seq != 0 {
			break
		}

		// Zero is reserved as a sentinel by the caller's application layer;
		// discard the node and try again.
		_ = a.exec.Run(ctx, "begin_tx.discard_zero", a.deadline, func(ctx context.Context) error {
			return a.sessions.Persistent().Delete(ctx, assignedPath)
		})

		if attempts >= a.maxRetries {
			return 0, txcoord.NewTransactionError("begin_tx", txcoord.RetriesExhausted, nil)
		}
	}

	if isXG {
		ts := strconv.FormatInt(a.now().Unix(), 10)
		err := a.exec.Run(ctx, "begin_tx.xg_marker", a.deadline, func(ctx context.Context) error {
			return a.sessions.Persistent().Create(ctx, pathbuilder.XGMarker(app, seq), []byte(ts))
		})
		if err != nil {
			return 0, txcoord.NewTransactionError("begin_tx", txcoord.Unknown, err)
		}
	}

	return seq, nil
}

// ensureAncestors lazily creates the application-root chain the first time
// an app is seen, so that later directory listings (the GC's app sweep,
// lock-root/blacklist/validlist lookups) have a node to list children of.
func (a *Allocator) ensureAncestors(ctx context.Context, app string) error {
	for _, path := range []string{pathbuilder.AppsRoot(), pathbuilder.AppRoot(app), pathbuilder.TxRoot(app)} {
		if err := a.createIfAbsent(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

func (a *Allocator) createIfAbsent(ctx context.Context, path string) error {
	err := a.exec.Run(ctx, "begin_tx.ensure_ancestor", a.deadline, func(ctx context.Context) error {
		return a.sessions.Persistent().Create(ctx, path, nil)
	})
	if errors.Is(err, store.ErrNodeExists) {
		return nil
	}
	return err
}
