package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryLimiterWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lim := NewMemory()
	lim.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _, err := lim.Allow(ctx, "login:1.1.1.1", 2, time.Minute); err != nil || !ok {
			t.Fatalf("expected allow on call %d", i+1)
		}
	}
	ok, retry, err := lim.Allow(ctx, "login:1.1.1.1", 2, time.Minute)
	if err != nil || ok {
		t.Fatalf("expected rate limit on third call")
	}
	if retry != time.Minute {
		t.Fatalf("expected retry after a minute, got %v", retry)
	}
	if ok, _, _ := lim.Allow(ctx, "login:2.2.2.2", 2, time.Minute); !ok {
		t.Fatalf("other keys must not be limited")
	}

	now = now.Add(time.Minute)
	if ok, _, _ := lim.Allow(ctx, "login:1.1.1.1", 2, time.Minute); !ok {
		t.Fatalf("expected allow after window reset")
	}
}

func TestMemoryLimiterCleanup(t *testing.T) {
	now := time.Now().UTC()
	lim := NewMemory()
	lim.now = func() time.Time { return now }
	_, _, _ = lim.Allow(context.Background(), "a", 1, time.Second)

	now = now.Add(2 * time.Minute)
	_, _, _ = lim.Allow(context.Background(), "b", 1, time.Second)
	if len(lim.buckets) != 1 {
		t.Fatalf("expected expired bucket to be collected, have %d", len(lim.buckets))
	}
}

func TestRedisLimiterWindow(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	var lim Limiter = NewRedis(client, "test:")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _, err := lim.Allow(ctx, "ip", 2, 500*time.Millisecond); err != nil || !ok {
			t.Fatalf("expected allow on call %d: %v", i+1, err)
		}
	}
	ok, retryAfter, err := lim.Allow(ctx, "ip", 2, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || retryAfter <= 0 {
		t.Fatalf("expected rate limited with retry, got ok=%v retry=%v", ok, retryAfter)
	}

	s.FastForward(600 * time.Millisecond)
	if ok, _, err := lim.Allow(ctx, "ip", 2, 500*time.Millisecond); err != nil || !ok {
		t.Fatalf("expected allow after window")
	}

	if _, _, err := lim.Allow(ctx, "ip", 2, 0); err == nil {
		t.Fatalf("expected invalid window error")
	}
}
