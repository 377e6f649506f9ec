// Package ratelimit implements a fixed-window counter limiter over the
// pluggable store abstraction. Window atomicity is the store's contract:
// the increment-with-TTL must be a single atomic operation, otherwise
// concurrent requests can race past the limit.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/foliohq/folio/internal/platform/store"
)

// ErrStoreUnavailable signals that the counter store could not be reached
// and the limiter applied its failure policy instead of a real count.
var ErrStoreUnavailable = errors.New("ratelimit: counter store unavailable")

// Result reports the outcome of a single limit check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// Limiter counts attempts per identifier within fixed windows.
//
// When the counter store is unreachable the limiter fails closed in
// production. Outside production it degrades to an in-process store with
// the same semantics so local development survives a missing Redis.
type Limiter struct {
	store      store.Store
	fallback   *store.MemoryStore
	logger     *slog.Logger
	production bool
	warnOnce   sync.Once
}

// NewLimiter constructs a Limiter over the given counter store.
func NewLimiter(s store.Store, logger *slog.Logger, production bool) *Limiter {
	return &Limiter{
		store:      s,
		fallback:   store.NewMemoryStore(),
		logger:     logger,
		production: production,
	}
}

// Check atomically increments the counter for identifier and reports whether
// the attempt is within limit. Every call counts, including the ones that
// end up denied; callers clear the counter with Reset after a success.
func (l *Limiter) Check(ctx context.Context, identifier string, limit int, window time.Duration) (Result, error) {
	count, resetIn, err := l.store.Increment(ctx, l.key(identifier), window)
	if err != nil {
		if l.production {
			// Fail closed: unlimited traffic is worse than a denied
			// request while the store is down.
			return Result{Allowed: false, Remaining: 0, ResetIn: window}, ErrStoreUnavailable
		}
		l.warnOnce.Do(func() {
			if l.logger != nil {
				l.logger.Warn("counter store unavailable, using in-process fallback", slog.Any("error", err))
			}
		})
		count, resetIn, err = l.fallback.Increment(ctx, l.key(identifier), window)
		if err != nil {
			return Result{Allowed: false, Remaining: 0, ResetIn: window}, ErrStoreUnavailable
		}
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= int64(limit),
		Remaining: remaining,
		ResetIn:   resetIn,
	}, nil
}

// Reset deletes the counter for identifier, typically after a successful
// verification cleared the accumulated failures.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	if err := l.store.Delete(ctx, l.key(identifier)); err != nil {
		if l.production {
			return ErrStoreUnavailable
		}
		return l.fallback.Delete(ctx, l.key(identifier))
	}
	return nil
}

func (l *Limiter) key(identifier string) string {
	return "ratelimit:" + identifier
}
