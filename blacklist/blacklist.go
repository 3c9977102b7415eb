// Package blacklist records invalidated transaction IDs per application.
// Membership is the source of truth for whether a transaction is still
// live; callers must re-check rather than cache the result.
package blacklist

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/txcoord/txcoord/executor"
	"github.com/txcoord/txcoord/pathbuilder"
	"github.com/txcoord/txcoord/session"
	"github.com/txcoord/txcoord/store"
)

// sentinel is the value stored at an application's blacklist root -- the
// root itself carries no meaning beyond existing.
var sentinel = []byte("1")

// Blacklist tracks failed transactions for one coordinator instance.
type Blacklist struct {
	exec     *executor.Executor
	sessions *session.Manager
	deadline time.Duration
}

// New returns a Blacklist routing calls through exec with the given
// per-call deadline.
func New(exec *executor.Executor, sessions *session.Manager, deadline time.Duration) *Blacklist {
	return &Blacklist{exec: exec, sessions: sessions, deadline: deadline}
}

func (b *Blacklist) ensureRoot(ctx context.Context, app string) error {
	err := b.exec.Run(ctx, "blacklist.ensure_root", b.deadline, func(ctx context.Context) error {
		return b.sessions.Persistent().Create(ctx, pathbuilder.BlacklistRoot(app), sentinel)
	})
	if errors.Is(err, store.ErrNodeExists) {
		return nil
	}
	return err
}

// IsBlacklisted reports whether tx has been recorded as failed for app,
// lazily creating the blacklist root if this is the first call for app.
func (b *Blacklist) IsBlacklisted(ctx context.Context, app string, tx uint64) (bool, error) {
	if err := b.ensureRoot(ctx, app); err != nil {
		return false, err
	}
	var exists bool
	err := b.exec.Run(ctx, "is_blacklisted", b.deadline, func(ctx context.Context) error {
		e, err := b.sessions.Persistent().Exists(ctx, pathbuilder.BlacklistEntry(app, tx))
		exists = e
		return err
	})
	return exists, err
}

// Add records tx as failed at the given time. It is idempotent: adding the
// same tx twice just overwrites its timestamp.
func (b *Blacklist) Add(ctx context.Context, app string, tx uint64, at time.Time) error {
	if err := b.ensureRoot(ctx, app); err != nil {
		return err
	}
	value := []byte(strconv.FormatInt(at.Unix(), 10))
	return b.exec.Run(ctx, "blacklist.add", b.deadline, func(ctx context.Context) error {
		return b.sessions.Persistent().Set(ctx, pathbuilder.BlacklistEntry(app, tx), value)
	})
}
