package blacklist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txcoord/txcoord/executor"
	"github.com/txcoord/txcoord/session"
	"github.com/txcoord/txcoord/store"
	"github.com/txcoord/txcoord/store/memstore"
)

func newBlacklist(t *testing.T) *Blacklist {
	t.Helper()
	mgr, err := session.New(func() (store.PersistentStore, store.EphemeralStore, error) {
		return memstore.NewPersistent(), memstore.NewEphemeral(), nil
	})
	require.NoError(t, err)
	return New(executor.New(mgr, 3), mgr, time.Second)
}

func TestIsBlacklistedFalseByDefault(t *testing.T) {
	bl := newBlacklist(t)
	ok, err := bl.IsBlacklisted(context.Background(), "app", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddThenIsBlacklisted(t *testing.T) {
	bl := newBlacklist(t)
	ctx := context.Background()

	require.NoError(t, bl.Add(ctx, "app", 7, time.Unix(1000, 0)))

	ok, err := bl.IsBlacklisted(ctx, "app", 7)
	require.NoError(t, err)
	assert.True(t, ok)

	other, err := bl.IsBlacklisted(ctx, "app", 8)
	require.NoError(t, err)
	assert.False(t, other)
}

func TestAddIsIdempotent(t *testing.T) {
	bl := newBlacklist(t)
	ctx := context.Background()

	require.NoError(t, bl.Add(ctx, "app", 7, time.Unix(1000, 0)))
	require.NoError(t, bl.Add(ctx, "app", 7, time.Unix(2000, 0)))

	ok, err := bl.IsBlacklisted(ctx, "app", 7)
	require.NoError(t, err)
	assert.True(t, ok)
}
