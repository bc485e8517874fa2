package rate

import (
	"context"
	"time"
)

// Limiter counts requests per key in fixed windows. Allow reports whether
// the request may proceed and, when it may not, how long to wait.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}
