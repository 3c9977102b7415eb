package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txcoord/txcoord/blacklist"
	"github.com/txcoord/txcoord/executor"
	"github.com/txcoord/txcoord/journal"
	"github.com/txcoord/txcoord/lockmgr"
	"github.com/txcoord/txcoord/pathbuilder"
	"github.com/txcoord/txcoord/session"
	"github.com/txcoord/txcoord/store"
	"github.com/txcoord/txcoord/store/memstore"
)

type fixture struct {
	mgr    *session.Manager
	bl     *blacklist.Blacklist
	jr     *journal.Journal
	lm     *lockmgr.LockManager
	notify *Notifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mgr, err := session.New(func() (store.PersistentStore, store.EphemeralStore, error) {
		return memstore.NewPersistent(), memstore.NewEphemeral(), nil
	})
	require.NoError(t, err)
	exec := executor.New(mgr, 3)
	bl := blacklist.New(exec, mgr, time.Second)
	jr := journal.New(exec, mgr, time.Second)
	lm := lockmgr.New(exec, mgr, bl, time.Second, lockmgr.DefaultMaxGroupsForXG)
	n := New(exec, mgr, bl, jr, lm, time.Second)
	return &fixture{mgr: mgr, bl: bl, jr: jr, lm: lm, notify: n}
}

// Mirrors S5's aftermath: a live tx with a registered updated key, once
// notified of failure, ends up blacklisted with a validlist anchor and no
// surviving lock root.
func TestNotifyFailurePromotesKeyAndClearsLocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mgr.Persistent().Create(ctx, pathbuilder.TxNode("app", 1), []byte("1000")))
	require.NoError(t, f.lm.AcquireLock(ctx, "app", 1, "k"))
	require.NoError(t, f.jr.RegisterUpdatedKey(ctx, "app", 1, 42, "k"))

	require.NoError(t, f.notify.NotifyFailure(ctx, "app", 1))

	blacklisted, err := f.bl.IsBlacklisted(ctx, "app", 1)
	require.NoError(t, err)
	assert.True(t, blacklisted)

	lockExists, err := f.mgr.Persistent().Exists(ctx, pathbuilder.LockRoot("app", "k"))
	require.NoError(t, err)
	assert.False(t, lockExists)

	target, err := f.notify.GetValidTransactionID(ctx, "app", "k")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), target)
}

// P7: calling NotifyFailure twice yields the same final state as once.
func TestNotifyFailureIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mgr.Persistent().Create(ctx, pathbuilder.TxNode("app", 1), []byte("1000")))
	require.NoError(t, f.lm.AcquireLock(ctx, "app", 1, "k"))
	require.NoError(t, f.jr.RegisterUpdatedKey(ctx, "app", 1, 42, "k"))

	require.NoError(t, f.notify.NotifyFailure(ctx, "app", 1))
	require.NoError(t, f.notify.NotifyFailure(ctx, "app", 1))

	target, err := f.notify.GetValidTransactionID(ctx, "app", "k")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), target)
}

func TestNotifyFailureNoLocksIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mgr.Persistent().Create(ctx, pathbuilder.TxNode("app", 1), []byte("1000")))

	require.NoError(t, f.notify.NotifyFailure(ctx, "app", 1))

	blacklisted, err := f.bl.IsBlacklisted(ctx, "app", 1)
	require.NoError(t, err)
	assert.False(t, blacklisted)
}

func TestGetValidTransactionIDNoneIsZero(t *testing.T) {
	f := newFixture(t)
	id, err := f.notify.GetValidTransactionID(context.Background(), "app", "missing-key")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)
}
