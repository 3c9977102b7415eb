package gc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txcoord/txcoord/blacklist"
	"github.com/txcoord/txcoord/executor"
	"github.com/txcoord/txcoord/idalloc"
	"github.com/txcoord/txcoord/journal"
	"github.com/txcoord/txcoord/lockmgr"
	"github.com/txcoord/txcoord/notify"
	"github.com/txcoord/txcoord/pathbuilder"
	"github.com/txcoord/txcoord/session"
	"github.com/txcoord/txcoord/store"
	"github.com/txcoord/txcoord/store/memstore"
)

type fixture struct {
	mgr   *session.Manager
	alloc *idalloc.Allocator
	bl    *blacklist.Blacklist
	jr    *journal.Journal
	lm    *lockmgr.LockManager
	nt    *notify.Notifier
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mgr, err := session.New(func() (store.PersistentStore, store.EphemeralStore, error) {
		return memstore.NewPersistent(), memstore.NewEphemeral(), nil
	})
	require.NoError(t, err)
	exec := executor.New(mgr, 3)
	f := &fixture{
		mgr:   mgr,
		alloc: idalloc.New(exec, mgr, time.Second),
		bl:    blacklist.New(exec, mgr, time.Second),
		jr:    journal.New(exec, mgr, time.Second),
		// The allocator stamps transaction nodes with wall-clock time, so the
		// collector's clock starts from the same point.
		clock: time.Now(),
	}
	f.lm = lockmgr.New(exec, mgr, f.bl, time.Second, lockmgr.DefaultMaxGroupsForXG)
	f.nt = notify.New(exec, mgr, f.bl, f.jr, f.lm, time.Second)
	return f
}

func (f *fixture) newCollector(policy Policy) *Collector {
	exec := executor.New(f.mgr, 3)
	return New(exec, f.mgr, f.nt, Config{
		TxTimeout: 30 * time.Second,
		Interval:  30 * time.Second,
		Now:       func() time.Time { return f.clock },
		Policy:    policy,
	})
}

// S5: a transaction past TX_TIMEOUT is blacklisted by the sweep, its lock
// root is removed, and its registered key is promoted to validlist.
func TestSweepOncePromotesExpiredTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.alloc.NewTxID(ctx, "app", false)
	require.NoError(t, err)
	require.NoError(t, f.lm.AcquireLock(ctx, "app", tx, "k"))
	require.NoError(t, f.jr.RegisterUpdatedKey(ctx, "app", tx, 42, "k"))

	c := f.newCollector(nil)
	f.clock = f.clock.Add(31 * time.Second)
	require.NoError(t, c.SweepOnce(ctx))

	blacklisted, err := f.bl.IsBlacklisted(ctx, "app", tx)
	require.NoError(t, err)
	assert.True(t, blacklisted)

	lockExists, err := f.mgr.Persistent().Exists(ctx, pathbuilder.LockRoot("app", "k"))
	require.NoError(t, err)
	assert.False(t, lockExists)

	target, err := f.nt.GetValidTransactionID(ctx, "app", "k")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), target)
}

func TestSweepOnceSkipsFreshTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.alloc.NewTxID(ctx, "app", false)
	require.NoError(t, err)

	c := f.newCollector(nil)
	require.NoError(t, c.SweepOnce(ctx))

	blacklisted, err := f.bl.IsBlacklisted(ctx, "app", tx)
	require.NoError(t, err)
	assert.False(t, blacklisted)
}

type alwaysEligible struct{}

func (alwaysEligible) Eligible(app string, createdAt, now time.Time) (bool, bool) {
	return true, true
}

func TestSweepOncePolicyOverridesDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.alloc.NewTxID(ctx, "app", false)
	require.NoError(t, err)
	require.NoError(t, f.lm.AcquireLock(ctx, "app", tx, "k"))

	c := f.newCollector(alwaysEligible{})
	require.NoError(t, c.SweepOnce(ctx))

	blacklisted, err := f.bl.IsBlacklisted(ctx, "app", tx)
	require.NoError(t, err)
	assert.True(t, blacklisted, "policy hook should have overridden the default timeout check")
}

func TestSweepOnceSkipsAppSweptRecently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.alloc.NewTxID(ctx, "app", false)
	require.NoError(t, err)
	require.NoError(t, f.lm.AcquireLock(ctx, "app", tx, "k1"))
	f.clock = f.clock.Add(31 * time.Second)

	c := f.newCollector(nil)
	require.NoError(t, c.SweepOnce(ctx))
	blacklisted, err := f.bl.IsBlacklisted(ctx, "app", tx)
	require.NoError(t, err)
	assert.True(t, blacklisted)

	// A second transaction expires immediately too, but the app was just
	// swept, so this pass must skip it.
	tx2, err := f.alloc.NewTxID(ctx, "app", false)
	require.NoError(t, err)
	require.NoError(t, f.lm.AcquireLock(ctx, "app", tx2, "k2"))
	require.NoError(t, c.SweepOnce(ctx))

	blacklisted2, err := f.bl.IsBlacklisted(ctx, "app", tx2)
	require.NoError(t, err)
	assert.False(t, blacklisted2)
}
