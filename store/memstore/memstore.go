// Package memstore provides in-memory fakes of store.PersistentStore and
// store.EphemeralStore, in the spirit of the teacher's redis/mock_redis.go --
// map-backed stand-ins used so the coordinator's unit tests don't need a
// live Cassandra/Redis cluster.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/txcoord/txcoord/store"
)

// Persistent is an in-memory store.PersistentStore.
type Persistent struct {
	mu       sync.Mutex
	nodes    map[string][]byte
	sequence map[string]uint64
}

// NewPersistent returns an empty in-memory PersistentStore.
func NewPersistent() *Persistent {
	return &Persistent{
		nodes:    make(map[string][]byte),
		sequence: make(map[string]uint64),
	}
}

func (p *Persistent) Create(_ context.Context, path string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.nodes[path]; ok {
		return store.ErrNodeExists
	}
	p.nodes[path] = value
	return nil
}

// CreateSequential assigns suffixes 1, 2, 3, ... per distinct parentPrefix,
// matching the "skip the reserved value 0" rule the ID allocator relies on,
// and appends each as ten zero-padded digits like the Cassandra backend.
func (p *Persistent) CreateSequential(_ context.Context, parentPrefix string, value []byte) (string, uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sequence[parentPrefix]++
	seq := p.sequence[parentPrefix]
	path := fmt.Sprintf("%s%010d", parentPrefix, seq)
	p.nodes[path] = value
	return path, seq, nil
}

func (p *Persistent) Get(_ context.Context, path string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.nodes[path]
	if !ok {
		return nil, store.ErrNodeMissing
	}
	return v, nil
}

func (p *Persistent) Set(_ context.Context, path string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodes[path] = value
	return nil
}

func (p *Persistent) Delete(_ context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.nodes, path)
	return nil
}

func (p *Persistent) Children(_ context.Context, path string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.nodes[path]; !ok {
		return nil, store.ErrNodeMissing
	}
	prefix := path + "/"
	seen := make(map[string]bool)
	var children []string
	for k := range p.nodes {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		name := strings.SplitN(rest, "/", 2)[0]
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		children = append(children, name)
	}
	sort.Strings(children)
	return children, nil
}

func (p *Persistent) Exists(_ context.Context, path string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.nodes[path]
	return ok, nil
}

func (p *Persistent) Close() error {
	return nil
}

// Ephemeral is an in-memory store.EphemeralStore with TTL expiry evaluated lazily on access.
type Ephemeral struct {
	mu    sync.Mutex
	nodes map[string]ephemeralNode
	nowFn func() time.Time
}

type ephemeralNode struct {
	value   []byte
	expires time.Time
}

// NewEphemeral returns an empty in-memory EphemeralStore using time.Now for expiry checks.
func NewEphemeral() *Ephemeral {
	return &Ephemeral{
		nodes: make(map[string]ephemeralNode),
		nowFn: time.Now,
	}
}

func (e *Ephemeral) expired(n ephemeralNode) bool {
	return !n.expires.IsZero() && e.nowFn().After(n.expires)
}

func (e *Ephemeral) Acquire(_ context.Context, path string, value []byte, ttl time.Duration) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n, ok := e.nodes[path]; ok && !e.expired(n) {
		return false, nil
	}
	var expires time.Time
	if ttl > 0 {
		expires = e.nowFn().Add(ttl)
	}
	e.nodes[path] = ephemeralNode{value: value, expires: expires}
	return true, nil
}

func (e *Ephemeral) Release(_ context.Context, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.nodes, path)
	return nil
}

func (e *Ephemeral) Get(_ context.Context, path string) (bool, []byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.nodes[path]
	if !ok || e.expired(n) {
		return false, nil, nil
	}
	return true, n.value, nil
}

func (e *Ephemeral) Close() error {
	return nil
}
