// Package redisstore implements store.EphemeralStore on top of Redis,
// generalizing the teacher's SET/GET based lock primitive (redis/locker.go)
// from per-entity locking to session-bound ephemeral nodes: the
// per-application GC lock and the datastore-groomer lock both live here as
// plain Redis keys with a TTL.
package redisstore

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/txcoord/txcoord/store"
)

// Options holds configuration for connecting to a Redis server or cluster.
type Options struct {
	// Address is the host:port of the Redis server/cluster.
	Address string
	// Password is the password used to authenticate.
	Password string
	// DB is the database index to select.
	DB int
	// TLSConfig contains TLS configuration for secure connections.
	TLSConfig *tls.Config
}

// Store is a store.EphemeralStore backed by a single Redis client.
type Store struct {
	client *redis.Client
}

// Open connects to Redis using options and returns a ready-to-use Store.
func Open(options Options) *Store {
	client := redis.NewClient(&redis.Options{
		TLSConfig: options.TLSConfig,
		Addr:      options.Address,
		Password:  options.Password,
		DB:        options.DB,
	})
	return &Store{client: client}
}

// Acquire creates path with value if absent, expiring after ttl. It mirrors
// the teacher's locker.go "SET then re-GET to confirm ownership" sequence so
// that two concurrent Acquire calls racing on the same path never both
// believe they won.
func (s *Store) Acquire(ctx context.Context, path string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, path, value, ttl).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	// Re-read to guard against a lost race the driver didn't surface as an error.
	got, err := s.client.Get(ctx, path).Bytes()
	if err != nil {
		return false, err
	}
	return string(got) == string(value), nil
}

func (s *Store) Release(ctx context.Context, path string) error {
	err := s.client.Del(ctx, path).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}

func (s *Store) Get(ctx context.Context, path string) (bool, []byte, error) {
	v, err := s.client.Get(ctx, path).Bytes()
	if err == redis.Nil {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	return true, v, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

var _ store.EphemeralStore = (*Store)(nil)
