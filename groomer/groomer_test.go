package groomer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txcoord/txcoord"
	"github.com/txcoord/txcoord/executor"
	"github.com/txcoord/txcoord/session"
	"github.com/txcoord/txcoord/store"
	"github.com/txcoord/txcoord/store/memstore"
)

func newLock(t *testing.T) *Lock {
	t.Helper()
	mgr, err := session.New(func() (store.PersistentStore, store.EphemeralStore, error) {
		return memstore.NewPersistent(), memstore.NewEphemeral(), nil
	})
	require.NoError(t, err)
	return New(executor.New(mgr, 3), mgr, time.Second)
}

func TestAcquireThenSecondFails(t *testing.T) {
	l := newLock(t)
	ctx := context.Background()

	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseThenAcquireAgain(t *testing.T) {
	l := newLock(t)
	ctx := context.Background()

	_, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx))

	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseWithoutHoldingFails(t *testing.T) {
	l := newLock(t)
	err := l.Release(context.Background())
	require.Error(t, err)
	assert.True(t, txcoord.IsReason(err, txcoord.NotValid))
}

func TestReleaseByNonOwnerFails(t *testing.T) {
	mgr, err := session.New(func() (store.PersistentStore, store.EphemeralStore, error) {
		return memstore.NewPersistent(), memstore.NewEphemeral(), nil
	})
	require.NoError(t, err)
	exec := executor.New(mgr, 3)
	owner := New(exec, mgr, time.Second)
	other := New(exec, mgr, time.Second)

	ok, err := owner.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	err = other.Release(context.Background())
	require.Error(t, err)
	assert.True(t, txcoord.IsReason(err, txcoord.NotValid))

	require.NoError(t, owner.Release(context.Background()))
}
