package lockmgr

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txcoord/txcoord"
	"github.com/txcoord/txcoord/blacklist"
	"github.com/txcoord/txcoord/executor"
	"github.com/txcoord/txcoord/pathbuilder"
	"github.com/txcoord/txcoord/session"
	"github.com/txcoord/txcoord/store"
	"github.com/txcoord/txcoord/store/memstore"
)

type fixture struct {
	mgr *session.Manager
	bl  *blacklist.Blacklist
	lm  *LockManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mgr, err := session.New(func() (store.PersistentStore, store.EphemeralStore, error) {
		return memstore.NewPersistent(), memstore.NewEphemeral(), nil
	})
	require.NoError(t, err)
	exec := executor.New(mgr, 3)
	bl := blacklist.New(exec, mgr, time.Second)
	return &fixture{mgr: mgr, bl: bl, lm: New(exec, mgr, bl, time.Second, DefaultMaxGroupsForXG)}
}

func (f *fixture) createTx(t *testing.T, app string, tx uint64, xg bool) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.mgr.Persistent().Create(ctx, pathbuilder.TxNode(app, tx), []byte("1000")))
	if xg {
		require.NoError(t, f.mgr.Persistent().Create(ctx, pathbuilder.XGMarker(app, tx), []byte("1000")))
	}
}

// S2: a second non-XG transaction cannot acquire a lock root the first
// still holds.
func TestAcquireLockNonXGConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createTx(t, "app", 1, false)
	f.createTx(t, "app", 2, false)

	require.NoError(t, f.lm.AcquireLock(ctx, "app", 1, "k1"))

	err := f.lm.AcquireLock(ctx, "app", 2, "k1")
	require.Error(t, err)
	assert.True(t, txcoord.IsReason(err, txcoord.AlreadyHeld))
}

// S3: a non-XG transaction cannot acquire a second entity group's lock.
func TestAcquireLockNonXGCrossGroupRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createTx(t, "app", 1, false)

	require.NoError(t, f.lm.AcquireLock(ctx, "app", 1, "k1"))
	err := f.lm.AcquireLock(ctx, "app", 1, "k2")
	require.Error(t, err)
	assert.True(t, txcoord.IsReason(err, txcoord.CrossGroupViolation))
}

func TestAcquireLockNonXGSameKeyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createTx(t, "app", 1, false)

	require.NoError(t, f.lm.AcquireLock(ctx, "app", 1, "k1"))
	require.NoError(t, f.lm.AcquireLock(ctx, "app", 1, "k1"))
}

// S4: an XG transaction may hold up to DefaultMaxGroupsForXG locks; the next fails.
func TestAcquireLockXGUpToFive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createTx(t, "app", 1, true)

	for i := 0; i < DefaultMaxGroupsForXG; i++ {
		key := fmt.Sprintf("k%d", i)
		require.NoError(t, f.lm.AcquireLock(ctx, "app", 1, key))
	}

	err := f.lm.AcquireLock(ctx, "app", 1, "k-overflow")
	require.Error(t, err)
	assert.True(t, txcoord.IsReason(err, txcoord.TooManyGroups))
}

// A rejected over-cap lock attempt must not leak its lock root: the
// entity group it tried to claim should be immediately lockable again by
// another transaction, per I2 (a lock-root node exists iff some live
// transaction currently owns that entity group).
func TestAcquireLockXGOverflowRollsBackLockRoot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createTx(t, "app", 1, true)
	f.createTx(t, "app", 2, false)

	for i := 0; i < DefaultMaxGroupsForXG; i++ {
		key := fmt.Sprintf("k%d", i)
		require.NoError(t, f.lm.AcquireLock(ctx, "app", 1, key))
	}

	err := f.lm.AcquireLock(ctx, "app", 1, "k-overflow")
	require.Error(t, err)
	assert.True(t, txcoord.IsReason(err, txcoord.TooManyGroups))

	exists, err := f.mgr.Persistent().Exists(ctx, pathbuilder.LockRoot("app", "k-overflow"))
	require.NoError(t, err)
	assert.False(t, exists, "rejected over-cap lock root must be rolled back, not left orphaned")

	// A different, unrelated transaction can now claim that same entity
	// group without hitting AlreadyHeld.
	require.NoError(t, f.lm.AcquireLock(ctx, "app", 2, "k-overflow"))
}

func TestAcquireLockBlacklistedFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createTx(t, "app", 1, false)
	require.NoError(t, f.bl.Add(ctx, "app", 1, time.Unix(1, 0)))

	err := f.lm.AcquireLock(ctx, "app", 1, "k1")
	require.Error(t, err)
	assert.True(t, txcoord.IsReason(err, txcoord.Blacklisted))
}

// Releasing locks and the tx node leaves no residue, and a second release
// fails as not-valid since the tx node is gone (S6).
func TestReleaseLockRemovesResidueAndIsNotIdempotentAfterFullRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createTx(t, "app", 1, false)
	require.NoError(t, f.lm.AcquireLock(ctx, "app", 1, "k1"))

	require.NoError(t, f.lm.ReleaseLock(ctx, "app", 1))

	exists, err := f.mgr.Persistent().Exists(ctx, pathbuilder.LockRoot("app", "k1"))
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = f.mgr.Persistent().Exists(ctx, pathbuilder.TxNode("app", 1))
	require.NoError(t, err)
	assert.False(t, exists)

	err = f.lm.ReleaseLock(ctx, "app", 1)
	require.Error(t, err)
	assert.True(t, txcoord.IsReason(err, txcoord.NotValid))
}

func TestReleaseLockDeletesXGMarker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createTx(t, "app", 1, true)
	require.NoError(t, f.lm.AcquireLock(ctx, "app", 1, "k1"))

	require.NoError(t, f.lm.ReleaseLock(ctx, "app", 1))

	exists, err := f.mgr.Persistent().Exists(ctx, pathbuilder.XGMarker("app", 1))
	require.NoError(t, err)
	assert.False(t, exists)
}
