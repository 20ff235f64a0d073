// Package ratelimit caps how many chat messages a user may send per window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPolicy is returned for a policy with a non-positive limit or
// window.
var ErrInvalidPolicy = errors.New("invalid rate limit policy")

// Policy is how many requests a key may make per window.
type Policy struct {
	Limit  int
	Window time.Duration
}

func (p Policy) validate() error {
	if p.Limit <= 0 || p.Window <= 0 {
		return fmt.Errorf("%w: %d per %v", ErrInvalidPolicy, p.Limit, p.Window)
	}
	return nil
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is how long the caller should wait before trying again,
// rounded up to whole seconds. Zero when the request was allowed.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed {
		return 0
	}
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return (d + time.Second - 1) / time.Second * time.Second
}

// Limiter counts requests per key in fixed windows. The policy is given per
// call; a window keeps the length it was opened with.
type Limiter interface {
	// Allow records one request for key and reports whether it fits the
	// current window under p.
	Allow(ctx context.Context, key string, p Policy) (Result, error)

	// Reset forgets the key's current window.
	Reset(ctx context.Context, key string) error
}
