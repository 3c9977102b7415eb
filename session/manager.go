// Package session owns the coordination-service client handles (one
// persistent-store backend, one ephemeral-store backend) on behalf of a
// coordinator instance. It generalizes the teacher's package-level singleton
// Connection (redis/connection.go, cassandra/connection.go) into a
// per-coordinator, reconnectable handle behind an atomically-swappable
// pointer, per the Design Notes' "avoid exposing the handle to callers"
// guidance.
package session

import (
	"sync/atomic"

	"github.com/txcoord/txcoord/store"
)

// Opener creates a fresh pair of backend handles. Supplied by the caller so
// this package stays decoupled from any particular Cassandra/Redis
// configuration -- it only knows how to stop and recreate whatever Opener
// hands it.
type Opener func() (store.PersistentStore, store.EphemeralStore, error)

// Manager owns the current persistent/ephemeral store handles and knows how
// to tear them down and recreate them on fatal connection loss.
type Manager struct {
	open Opener
	cur  atomic.Pointer[handles]
}

type handles struct {
	persistent store.PersistentStore
	ephemeral  store.EphemeralStore
}

// New creates a Manager and opens the initial connection via open.
func New(open Opener) (*Manager, error) {
	m := &Manager{open: open}
	if err := m.start(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) start() error {
	p, e, err := m.open()
	if err != nil {
		return err
	}
	m.cur.Store(&handles{persistent: p, ephemeral: e})
	return nil
}

// Persistent returns the current persistent-store handle.
func (m *Manager) Persistent() store.PersistentStore {
	return m.cur.Load().persistent
}

// Ephemeral returns the current ephemeral-store handle.
func (m *Manager) Ephemeral() store.EphemeralStore {
	return m.cur.Load().ephemeral
}

// Stop closes the current handles.
func (m *Manager) Stop() error {
	h := m.cur.Load()
	if h == nil {
		return nil
	}
	perr := h.persistent.Close()
	eerr := h.ephemeral.Close()
	if perr != nil {
		return perr
	}
	return eerr
}

// Reestablish opens a new pair with the same Opener, swaps it in with one
// atomic store, and then closes the old handles. If opening fails the
// current handles stay in place. Callers that already loaded the old
// handles keep using them and may see errors once they are closed.
func (m *Manager) Reestablish() error {
	old := m.cur.Load()
	if err := m.start(); err != nil {
		return err
	}
	if old != nil {
		old.persistent.Close()
		old.ephemeral.Close()
	}
	return nil
}
