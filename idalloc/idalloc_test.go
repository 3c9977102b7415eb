package idalloc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txcoord/txcoord/executor"
	"github.com/txcoord/txcoord/pathbuilder"
	"github.com/txcoord/txcoord/session"
	"github.com/txcoord/txcoord/store"
	"github.com/txcoord/txcoord/store/memstore"
)

func newAllocator(t *testing.T) (*Allocator, *session.Manager) {
	t.Helper()
	mgr, err := session.New(func() (store.PersistentStore, store.EphemeralStore, error) {
		return memstore.NewPersistent(), memstore.NewEphemeral(), nil
	})
	require.NoError(t, err)
	exec := executor.New(mgr, 3)
	return New(exec, mgr, time.Second), mgr
}

// S1: three begin_tx calls for the same app return strictly increasing,
// non-zero IDs.
func TestNewTxIDMonotonic(t *testing.T) {
	alloc, _ := newAllocator(t)
	ctx := context.Background()

	t1, err := alloc.NewTxID(ctx, "app", false)
	require.NoError(t, err)
	t2, err := alloc.NewTxID(ctx, "app", false)
	require.NoError(t, err)
	t3, err := alloc.NewTxID(ctx, "app", false)
	require.NoError(t, err)

	assert.NotZero(t, t1)
	assert.Less(t, t1, t2)
	assert.Less(t, t2, t3)
}

func TestNewTxIDCreatesXGMarker(t *testing.T) {
	alloc, mgr := newAllocator(t)
	ctx := context.Background()

	tx, err := alloc.NewTxID(ctx, "app", true)
	require.NoError(t, err)

	ok, err := mgr.Persistent().Exists(ctx, pathbuilder.XGMarker("app", tx))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewTxIDNoXGMarkerForNonXG(t *testing.T) {
	alloc, mgr := newAllocator(t)
	ctx := context.Background()

	tx, err := alloc.NewTxID(ctx, "app", false)
	require.NoError(t, err)

	ok, err := mgr.Persistent().Exists(ctx, pathbuilder.XGMarker("app", tx))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewTxIDSeparatePerApp(t *testing.T) {
	alloc, _ := newAllocator(t)
	ctx := context.Background()

	a1, err := alloc.NewTxID(ctx, "app1", false)
	require.NoError(t, err)
	b1, err := alloc.NewTxID(ctx, "app2", false)
	require.NoError(t, err)

	assert.Equal(t, a1, b1, "each app's sequence counter starts independently at 1")
}
