// Package notify synthesizes the same journal and blacklist state a
// client-initiated failure would, for use by both a client reporting its
// own failure and the garbage collector sweeping expired transactions.
package notify

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/txcoord/txcoord"
	"github.com/txcoord/txcoord/blacklist"
	"github.com/txcoord/txcoord/executor"
	"github.com/txcoord/txcoord/journal"
	"github.com/txcoord/txcoord/lockmgr"
	"github.com/txcoord/txcoord/pathbuilder"
	"github.com/txcoord/txcoord/session"
	"github.com/txcoord/txcoord/store"
)

var validListSentinel = []byte("1")

// Notifier implements notify_failure.
type Notifier struct {
	exec      *executor.Executor
	sessions  *session.Manager
	blacklist *blacklist.Blacklist
	journal   *journal.Journal
	locks     *lockmgr.LockManager
	deadline  time.Duration
	now       func() time.Time
}

// New returns a Notifier routing calls through exec with the given per-call
// deadline.
func New(exec *executor.Executor, sessions *session.Manager, bl *blacklist.Blacklist, j *journal.Journal, lm *lockmgr.LockManager, deadline time.Duration) *Notifier {
	return &Notifier{exec: exec, sessions: sessions, blacklist: bl, journal: j, locks: lm, deadline: deadline, now: time.Now}
}

// NotifyFailure invalidates tx: it is blacklisted, every key it registered
// is promoted to a valid-version anchor pointing at its recorded target
// transaction, and every lock root it held (plus its node) is removed. It
// is idempotent and safe under concurrent invocation with the transaction's
// own client.
func (n *Notifier) NotifyFailure(ctx context.Context, app string, tx uint64) error {
	lockPathNode := pathbuilder.LockPath(app, tx)
	hasLocks, err := n.exists(ctx, lockPathNode)
	if err != nil {
		return err
	}
	if !hasLocks {
		return nil // no locks held, no rollback state needed
	}

	if err := n.blacklist.Add(ctx, app, tx, n.now()); err != nil {
		return err
	}

	keys, err := n.journal.GetUpdatedKeyList(ctx, app, tx)
	if err != nil && !txcoord.IsReason(err, txcoord.NotValid) {
		return err
	}
	for _, uk := range keys {
		if err := n.promote(ctx, app, uk); err != nil {
			return err
		}
	}

	return n.locks.ReleaseLocksAndNode(ctx, app, tx)
}

func (n *Notifier) promote(ctx context.Context, app string, uk journal.UpdatedKey) error {
	err := n.exec.Run(ctx, "notify_failure.ensure_validlist_root", n.deadline, func(ctx context.Context) error {
		return n.sessions.Persistent().Create(ctx, pathbuilder.ValidListRoot(app), validListSentinel)
	})
	if err != nil && !errors.Is(err, store.ErrNodeExists) {
		return err
	}

	value := []byte(strconv.FormatUint(uk.TargetTx, 10))
	return n.exec.Run(ctx, "notify_failure.promote", n.deadline, func(ctx context.Context) error {
		return n.sessions.Persistent().Set(ctx, pathbuilder.ValidListAnchor(app, uk.Key), value)
	})
}

func (n *Notifier) exists(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := n.exec.Run(ctx, "notify_failure.exists", n.deadline, func(ctx context.Context) error {
		e, err := n.sessions.Persistent().Exists(ctx, path)
		exists = e
		return err
	})
	return exists, err
}

// GetValidTransactionID returns the transaction ID a reader should consider
// authoritative for key, or 0 if no valid-version anchor exists for it.
func (n *Notifier) GetValidTransactionID(ctx context.Context, app, key string) (uint64, error) {
	anchor := pathbuilder.ValidListAnchor(app, key)
	var value []byte
	var found bool
	err := n.exec.Run(ctx, "get_valid_transaction_id", n.deadline, func(ctx context.Context) error {
		v, err := n.sessions.Persistent().Get(ctx, anchor)
		if err == store.ErrNodeMissing {
			return nil
		}
		found = true
		value = v
		return err
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return strconv.ParseUint(string(value), 10, 64)
}
