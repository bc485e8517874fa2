package rate

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	count int
	start time.Time
}

type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]bucket
	lastGC  time.Time
	now     func() time.Time
}

func NewMemory() *MemoryLimiter {
	return &MemoryLimiter{buckets: map[string]bucket{}, lastGC: time.Now().UTC(), now: time.Now}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now().UTC()
	if now.Sub(l.lastGC) > time.Minute {
		for k, b := range l.buckets {
			if now.Sub(b.start) > 3*window {
				delete(l.buckets, k)
			}
		}
		l.lastGC = now
	}
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.start) >= window {
		l.buckets[key] = bucket{count: 1, start: now}
		return true, 0, nil
	}
	if b.count >= limit {
		return false, b.start.Add(window).Sub(now), nil
	}
	b.count++
	l.buckets[key] = b
	return true, 0, nil
}
