// Package groomer provides the single globally-named ephemeral lock used by
// the (out of scope) datastore groomer. The coordinator only hosts the
// primitive because it owns the session the ephemeral node lives in.
package groomer

import (
	"context"
	"time"

	"github.com/txcoord/txcoord"
	"github.com/txcoord/txcoord/executor"
	"github.com/txcoord/txcoord/pathbuilder"
	"github.com/txcoord/txcoord/session"
)

// Lock is the datastore groomer's mutual-exclusion primitive. Each Lock
// instance carries its own ownership token so Release only ever tears down
// a hold it actually won, not merely "whatever is currently held" --
// relevant when more than one Lock exists in the same process.
type Lock struct {
	exec     *executor.Executor
	sessions *session.Manager
	deadline time.Duration
	owner    txcoord.UUID
}

// New returns a Lock routing calls through exec with the given per-call
// deadline.
func New(exec *executor.Executor, sessions *session.Manager, deadline time.Duration) *Lock {
	return &Lock{exec: exec, sessions: sessions, deadline: deadline, owner: txcoord.NewUUID()}
}

// Owner returns this Lock's ownership token, for logging/diagnostics.
func (l *Lock) Owner() txcoord.UUID {
	return l.owner
}

// Acquire creates the groomer lock node if absent, returning false (no
// error) if another holder already owns it.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	value := []byte(l.owner.String())
	var acquired bool
	err := l.exec.Run(ctx, "acquire_groomer_lock", l.deadline, func(ctx context.Context) error {
		ok, err := l.sessions.Ephemeral().Acquire(ctx, pathbuilder.GroomerLockPath, value, 0)
		acquired = ok
		return err
	})
	return acquired, err
}

// Release deletes the groomer lock node. Unlike the ephemeral-store
// contract's general tolerance of "already missing", Release fails loudly
// here: releasing a lock this Lock doesn't hold -- whether nobody holds it
// or a different owner does -- indicates caller misuse.
func (l *Lock) Release(ctx context.Context) error {
	var holder string
	var found bool
	if err := l.exec.Run(ctx, "release_groomer_lock.check", l.deadline, func(ctx context.Context) error {
		ok, value, err := l.sessions.Ephemeral().Get(ctx, pathbuilder.GroomerLockPath)
		found, holder = ok, string(value)
		return err
	}); err != nil {
		return err
	}
	if !found || holder != l.owner.String() {
		return txcoord.NewTransactionError("release_groomer_lock", txcoord.NotValid, nil)
	}
	return l.exec.Run(ctx, "release_groomer_lock", l.deadline, func(ctx context.Context) error {
		return l.sessions.Ephemeral().Release(ctx, pathbuilder.GroomerLockPath)
	})
}
