// Package ratelimit throttles login attempts per client key with fixed
// windows.
package ratelimit

import (
	"context"
	"time"
)

// Limiter admits or rejects one attempt for key. When rejected, retryAfter
// is how long until the window resets.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (allowed bool, retryAfter time.Duration, err error)
}
