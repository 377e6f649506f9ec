// Package store defines the cache/counter abstraction shared by the
// permission cache, the rate limiter and the share-code verifier. A Redis
// implementation backs production; the in-memory one serves tests and the
// non-production rate-limit fallback.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the key does not exist in the store.
var ErrNotFound = errors.New("store: key not found")

// ErrUnavailable indicates the backing store could not be reached.
var ErrUnavailable = errors.New("store: unavailable")

// Store is a minimal key-value contract with TTL-bound counters.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Increment atomically increments the counter at key. The first
	// increment of a window arms the TTL; later increments leave it
	// untouched. It returns the new count and the remaining window.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error)
}
