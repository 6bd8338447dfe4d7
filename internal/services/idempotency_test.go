package services

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wgelabs/lms-backend/internal/logger"
)

// Redis-backed services are exercised against a real server. Set REDIS_ADDR
// (e.g. localhost:6379) to run these; they are skipped otherwise.
func newTestRedis(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DB: 9})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis at %s not reachable: %v", addr, err)
	}
	if err := rdb.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush test db: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestIdempotencyLifecycle(t *testing.T) {
	rdb := newTestRedis(t)
	svc := NewIdempotencyService(rdb, logger.NewNop(), time.Minute)
	ctx := context.Background()

	admit, err := svc.Admit(ctx, "actor-1", "key-1", "fp-1")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if admit.State != AdmitFresh {
		t.Fatalf("first admit = %q, want %q", admit.State, AdmitFresh)
	}

	// A duplicate while the first request is still processing.
	admit, err = svc.Admit(ctx, "actor-1", "key-1", "fp-1")
	if err != nil {
		t.Fatalf("in-flight admit: %v", err)
	}
	if admit.State != AdmitInFlight {
		t.Fatalf("in-flight admit = %q, want %q", admit.State, AdmitInFlight)
	}

	body := []byte(`{"event_id":"abc"}`)
	if err := svc.Store(ctx, "actor-1", "key-1", 201, body); err != nil {
		t.Fatalf("store: %v", err)
	}

	// A retry after completion replays the stored response byte for byte,
	// even when the payload drifted under the same key.
	admit, err = svc.Admit(ctx, "actor-1", "key-1", "fp-other")
	if err != nil {
		t.Fatalf("replay admit: %v", err)
	}
	if admit.State != AdmitReplay {
		t.Fatalf("replay admit = %q, want %q", admit.State, AdmitReplay)
	}
	if admit.CachedStatus != 201 || string(admit.CachedBody) != string(body) {
		t.Fatalf("replay = %d %s, want 201 %s", admit.CachedStatus, admit.CachedBody, body)
	}

	// The same key under another actor is independent.
	admit, err = svc.Admit(ctx, "actor-2", "key-1", "fp-1")
	if err != nil {
		t.Fatalf("other actor admit: %v", err)
	}
	if admit.State != AdmitFresh {
		t.Fatalf("other actor admit = %q, want %q", admit.State, AdmitFresh)
	}
}

func TestIdempotencyReleaseUnblocksRetry(t *testing.T) {
	rdb := newTestRedis(t)
	svc := NewIdempotencyService(rdb, logger.NewNop(), time.Minute)
	ctx := context.Background()

	if _, err := svc.Admit(ctx, "actor-1", "key-1", "fp-1"); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := svc.Release(ctx, "actor-1", "key-1"); err != nil {
		t.Fatalf("release: %v", err)
	}

	admit, err := svc.Admit(ctx, "actor-1", "key-1", "fp-1")
	if err != nil {
		t.Fatalf("re-admit: %v", err)
	}
	if admit.State != AdmitFresh {
		t.Fatalf("re-admit after release = %q, want %q", admit.State, AdmitFresh)
	}
}

func TestRateLimitSlidingWindow(t *testing.T) {
	rdb := newTestRedis(t)
	svc := NewRateLimitService(rdb, logger.NewNop(), RateLimits{EventsPerMin: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := svc.Allow(ctx, "user-1", RouteClassEvents)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !result.Allowed {
			t.Fatalf("request %d rejected under the limit", i)
		}
		if result.Remaining != 3-i-1 {
			t.Fatalf("request %d remaining = %d, want %d", i, result.Remaining, 3-i-1)
		}
	}

	result, err := svc.Allow(ctx, "user-1", RouteClassEvents)
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if result.Allowed {
		t.Fatalf("request over the limit was allowed")
	}
	if result.RetryAfter <= 0 || result.RetryAfter > time.Minute {
		t.Fatalf("retry_after = %v, want within the window", result.RetryAfter)
	}

	// Another identity and another route class have their own budgets.
	other, err := svc.Allow(ctx, "user-2", RouteClassEvents)
	if err != nil || !other.Allowed {
		t.Fatalf("other identity rejected: %+v err=%v", other, err)
	}
	read, err := svc.Allow(ctx, "user-1", RouteClassDefault)
	if err != nil || !read.Allowed {
		t.Fatalf("other route class rejected: %+v err=%v", read, err)
	}
}
