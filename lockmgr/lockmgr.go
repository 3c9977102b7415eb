// Package lockmgr acquires, tracks, and releases per-entity-group locks,
// enforcing single-group exclusivity for ordinary transactions and the
// bounded group count for cross-group (XG) transactions.
package lockmgr

import (
	"context"
	"strings"
	"time"

	"github.com/txcoord/txcoord"
	"github.com/txcoord/txcoord/blacklist"
	"github.com/txcoord/txcoord/executor"
	"github.com/txcoord/txcoord/pathbuilder"
	"github.com/txcoord/txcoord/session"
	"github.com/txcoord/txcoord/store"
)

// xgSeparator joins the absolute lock-root paths stored in a transaction's
// "lockpath" value. It must never appear inside an encoded path segment,
// which pathbuilder's percent-encoding guarantees.
const xgSeparator = "!XG_LIST!"

// DefaultMaxGroupsForXG is the default bound on how many distinct entity
// groups one cross-group transaction may hold locks on simultaneously,
// used when LockManager is constructed with maxGroups <= 0.
const DefaultMaxGroupsForXG = 5

// EncodeLockList joins lock-root paths into the opaque value stored at a
// transaction's "lockpath" node.
func EncodeLockList(paths []string) []byte {
	return []byte(strings.Join(paths, xgSeparator))
}

// DecodeLockList reverses EncodeLockList. An empty value decodes to nil.
func DecodeLockList(value []byte) []string {
	if len(value) == 0 {
		return nil
	}
	return strings.Split(string(value), xgSeparator)
}

// LockManager acquires and releases entity-group locks for one coordinator
// instance.
type LockManager struct {
	exec      *executor.Executor
	sessions  *session.Manager
	blacklist *blacklist.Blacklist
	deadline  time.Duration
	maxGroups int
}

// New returns a LockManager routing calls through exec with the given
// per-call deadline, consulting bl to decide whether a transaction is live.
// maxGroups bounds how many entity groups one XG transaction may hold
// locks on simultaneously; maxGroups <= 0 falls back to
// DefaultMaxGroupsForXG.
func New(exec *executor.Executor, sessions *session.Manager, bl *blacklist.Blacklist, deadline time.Duration, maxGroups int) *LockManager {
	if maxGroups <= 0 {
		maxGroups = DefaultMaxGroupsForXG
	}
	return &LockManager{exec: exec, sessions: sessions, blacklist: bl, deadline: deadline, maxGroups: maxGroups}
}

func (l *LockManager) exists(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := l.exec.Run(ctx, "exists", l.deadline, func(ctx context.Context) error {
		e, err := l.sessions.Persistent().Exists(ctx, path)
		exists = e
		return err
	})
	return exists, err
}

// IsXG reports whether tx was begun as a cross-group transaction.
func (l *LockManager) IsXG(ctx context.Context, app string, tx uint64) (bool, error) {
	return l.exists(ctx, pathbuilder.XGMarker(app, tx))
}

// AcquireLock acquires the lock root for key on behalf of tx. Acquiring a
// lock root tx already owns succeeds (idempotent). A non-XG transaction may
// own at most one entity group's lock root.
func (l *LockManager) AcquireLock(ctx context.Context, app string, tx uint64, key string) error {
	blacklisted, err := l.blacklist.IsBlacklisted(ctx, app, tx)
	if err != nil {
		return err
	}
	if blacklisted {
		return txcoord.NewTransactionError("acquire_lock", txcoord.Blacklisted, nil)
	}

	lockPathNode := pathbuilder.LockPath(app, tx)
	lockListExists, err := l.exists(ctx, lockPathNode)
	if err != nil {
		return err
	}

	root := pathbuilder.LockRoot(app, key)

	if !lockListExists {
		return l.acquireAdditionalLock(ctx, app, tx, root, true)
	}

	var value []byte
	if err := l.exec.Run(ctx, "acquire_lock.read_lockpath", l.deadline, func(ctx context.Context) error {
		v, err := l.sessions.Persistent().Get(ctx, lockPathNode)
		value = v
		return err
	}); err != nil {
		return err
	}

	for _, held := range DecodeLockList(value) {
		if held == root {
			return nil // tx already owns this entity group's lock; idempotent.
		}
	}

	isXG, err := l.IsXG(ctx, app, tx)
	if err != nil {
		return err
	}
	if !isXG {
		return txcoord.NewTransactionError("acquire_lock", txcoord.CrossGroupViolation, nil)
	}
	return l.acquireAdditionalLock(ctx, app, tx, root, false)
}

// acquireAdditionalLock creates the lock-root node for tx and then either
// creates (create=true) or appends to (create=false) tx's lockpath value.
func (l *LockManager) acquireAdditionalLock(ctx context.Context, app string, tx uint64, root string, create bool) error {
	txNode := pathbuilder.TxNode(app, tx)

	err := l.exec.Run(ctx, "acquire_lock.create_root", l.deadline, func(ctx context.Context) error {
		return l.sessions.Persistent().Create(ctx, root, []byte(txNode))
	})
	if err == store.ErrNodeExists {
		return txcoord.NewTransactionError("acquire_lock", txcoord.AlreadyHeld, err)
	}
	if err != nil {
		return err
	}

	lockPathNode := pathbuilder.LockPath(app, tx)

	if create {
		return l.exec.Run(ctx, "acquire_lock.create_lockpath", l.deadline, func(ctx context.Context) error {
			return l.sessions.Persistent().Create(ctx, lockPathNode, EncodeLockList([]string{root}))
		})
	}

	var current []byte
	if err := l.exec.Run(ctx, "acquire_lock.read_lockpath_for_append", l.deadline, func(ctx context.Context) error {
		v, err := l.sessions.Persistent().Get(ctx, lockPathNode)
		current = v
		return err
	}); err != nil {
		return err
	}

	locks := DecodeLockList(current)
	if len(locks) >= l.maxGroups {
		// Roll back the lock root created above synchronously: it was never
		// added to lockpath, so no cleanup path would ever reach it otherwise.
		if err := l.deleteTolerateMissing(ctx, "acquire_lock.rollback_root", root); err != nil {
			return err
		}
		return txcoord.NewTransactionError("acquire_lock", txcoord.TooManyGroups, nil)
	}
	locks = append(locks, root)

	return l.exec.Run(ctx, "acquire_lock.write_lockpath", l.deadline, func(ctx context.Context) error {
		return l.sessions.Persistent().Set(ctx, lockPathNode, EncodeLockList(locks))
	})
}

// ReleaseLock commits tx: every lock root it holds, its lockpath, its XG
// marker (if any), and finally its transaction node are all removed.
func (l *LockManager) ReleaseLock(ctx context.Context, app string, tx uint64) error {
	blacklisted, err := l.blacklist.IsBlacklisted(ctx, app, tx)
	if err != nil {
		return err
	}
	if blacklisted {
		return txcoord.NewTransactionError("release_lock", txcoord.Blacklisted, nil)
	}

	txExists, err := l.exists(ctx, pathbuilder.TxNode(app, tx))
	if err != nil {
		return err
	}
	if !txExists {
		return txcoord.NewTransactionError("release_lock", txcoord.NotValid, nil)
	}

	lockListExists, err := l.exists(ctx, pathbuilder.LockPath(app, tx))
	if err != nil {
		return err
	}
	if !lockListExists {
		// A concurrent GC sweep may have already failed this tx between our
		// two checks above; re-confirm before declaring success.
		blacklisted, err := l.blacklist.IsBlacklisted(ctx, app, tx)
		if err != nil {
			return err
		}
		if blacklisted {
			return txcoord.NewTransactionError("release_lock", txcoord.Blacklisted, nil)
		}
		return nil // idempotent after GC
	}

	return l.ReleaseLocksAndNode(ctx, app, tx)
}

// ReleaseLocksAndNode deletes every lock root referenced by tx's lockpath
// (if any), the lockpath entry itself, the XG marker (if present), and
// finally the transaction node and any remaining children. Every step
// tolerates the target already being gone, so it is safe to call from both
// ReleaseLock and notify_failure, and safe to call twice.
func (l *LockManager) ReleaseLocksAndNode(ctx context.Context, app string, tx uint64) error {
	lockPathNode := pathbuilder.LockPath(app, tx)

	var value []byte
	var lockListExists bool
	if err := l.exec.Run(ctx, "release.read_lockpath", l.deadline, func(ctx context.Context) error {
		v, err := l.sessions.Persistent().Get(ctx, lockPathNode)
		if err == store.ErrNodeMissing {
			return nil
		}
		lockListExists = true
		value = v
		return err
	}); err != nil {
		return err
	}

	if lockListExists {
		for _, root := range DecodeLockList(value) {
			if err := l.deleteTolerateMissing(ctx, "release.delete_root", root); err != nil {
				return err
			}
		}
		if err := l.deleteTolerateMissing(ctx, "release.delete_lockpath", lockPathNode); err != nil {
			return err
		}
	}

	isXG, err := l.IsXG(ctx, app, tx)
	if err != nil {
		return err
	}
	if isXG {
		if err := l.deleteTolerateMissing(ctx, "release.delete_xg", pathbuilder.XGMarker(app, tx)); err != nil {
			return err
		}
	}

	return l.deleteTxNode(ctx, app, tx)
}

func (l *LockManager) deleteTxNode(ctx context.Context, app string, tx uint64) error {
	txNode := pathbuilder.TxNode(app, tx)

	var children []string
	err := l.exec.Run(ctx, "release.list_children", l.deadline, func(ctx context.Context) error {
		c, err := l.sessions.Persistent().Children(ctx, txNode)
		if err == store.ErrNodeMissing {
			return nil
		}
		children = c
		return err
	})
	if err != nil {
		return err
	}

	for _, name := range children {
		if err := l.deleteTolerateMissing(ctx, "release.delete_child", txNode+"/"+name); err != nil {
			return err
		}
	}

	return l.deleteTolerateMissing(ctx, "release.delete_tx_node", txNode)
}

func (l *LockManager) deleteTolerateMissing(ctx context.Context, op, path string) error {
	return l.exec.Run(ctx, op, l.deadline, func(ctx context.Context) error {
		err := l.sessions.Persistent().Delete(ctx, path)
		if err == store.ErrNodeMissing {
			return nil
		}
		return err
	})
}
