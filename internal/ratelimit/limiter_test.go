package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/foliohq/folio/internal/platform/store"
)

func newRedisLimiter(t *testing.T, production bool) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewLimiter(store.NewRedisStore(client), slog.Default(), production), mr
}

func TestCheckCountsDownAndDenies(t *testing.T) {
	limiter, _ := newRedisLimiter(t, true)
	ctx := context.Background()

	for i, want := range []int{4, 3, 2, 1, 0} {
		res, err := limiter.Check(ctx, "login:1.2.3.4", 5, time.Minute)
		if err != nil {
			t.Fatalf("check %d: %v", i+1, err)
		}
		if !res.Allowed {
			t.Fatalf("check %d: expected allowed", i+1)
		}
		if res.Remaining != want {
			t.Fatalf("check %d: remaining = %d, want %d", i+1, res.Remaining, want)
		}
	}

	res, err := limiter.Check(ctx, "login:1.2.3.4", 5, time.Minute)
	if err != nil {
		t.Fatalf("sixth check: %v", err)
	}
	if res.Allowed {
		t.Fatal("sixth check: expected denied")
	}
	if res.Remaining != 0 {
		t.Fatalf("sixth check: remaining = %d, want 0", res.Remaining)
	}
	if res.ResetIn <= 0 || res.ResetIn > time.Minute {
		t.Fatalf("sixth check: resetIn = %v", res.ResetIn)
	}
}

func TestWindowExpiryStartsFresh(t *testing.T) {
	limiter, mr := newRedisLimiter(t, true)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if _, err := limiter.Check(ctx, "code:q1", 5, time.Minute); err != nil {
			t.Fatalf("check %d: %v", i+1, err)
		}
	}
	mr.FastForward(61 * time.Second)

	res, err := limiter.Check(ctx, "code:q1", 5, time.Minute)
	if err != nil {
		t.Fatalf("check after expiry: %v", err)
	}
	if !res.Allowed || res.Remaining != 4 {
		t.Fatalf("after expiry: allowed=%v remaining=%d, want true/4", res.Allowed, res.Remaining)
	}
}

func TestResetClearsCounter(t *testing.T) {
	limiter, _ := newRedisLimiter(t, true)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := limiter.Check(ctx, "code:q2", 5, time.Minute); err != nil {
			t.Fatalf("check: %v", err)
		}
	}
	if err := limiter.Reset(ctx, "code:q2"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	res, err := limiter.Check(ctx, "code:q2", 5, time.Minute)
	if err != nil {
		t.Fatalf("check after reset: %v", err)
	}
	if res.Remaining != 4 {
		t.Fatalf("after reset: remaining = %d, want 4", res.Remaining)
	}
}

func TestProductionFailsClosed(t *testing.T) {
	limiter, mr := newRedisLimiter(t, true)
	mr.Close()

	res, err := limiter.Check(context.Background(), "login:down", 5, time.Minute)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if res.Allowed {
		t.Fatal("expected denial while store is down")
	}
}

func TestNonProductionFallsBackInProcess(t *testing.T) {
	limiter, mr := newRedisLimiter(t, false)
	mr.Close()
	ctx := context.Background()

	for i, want := range []int{4, 3, 2} {
		res, err := limiter.Check(ctx, "login:dev", 5, time.Minute)
		if err != nil {
			t.Fatalf("fallback check %d: %v", i+1, err)
		}
		if !res.Allowed || res.Remaining != want {
			t.Fatalf("fallback check %d: allowed=%v remaining=%d", i+1, res.Allowed, res.Remaining)
		}
	}
}
