package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/abhisek/instructoria/internal/logger"
)

// RetryProvider repeats transient failures with jittered exponential
// backoff. Malformed structured output is repeated once.
type RetryProvider struct {
	inner Provider
	cfg   RetryConfig
	log   *logger.Logger
}

// WithRetry wraps p. A nil log discards retry notices.
func WithRetry(p Provider, cfg RetryConfig, log *logger.Logger) Provider {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &RetryProvider{inner: p, cfg: cfg, log: log}
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	return r.do(ctx, func() (*Response, bool, error) {
		resp, err := r.inner.Generate(ctx, req)
		return resp, false, err
	})
}

// Stream is only repeated while no delta has reached fn; after that a
// second attempt would show the student duplicated text.
func (r *RetryProvider) Stream(ctx context.Context, req Request, fn StreamFunc) (*Response, error) {
	return r.do(ctx, func() (*Response, bool, error) {
		forwarded := false
		resp, err := r.inner.Stream(ctx, req, func(delta string) error {
			forwarded = true
			return fn(delta)
		})
		return resp, forwarded, err
	})
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

func (r *RetryProvider) do(ctx context.Context, call func() (*Response, bool, error)) (*Response, error) {
	repairUsed := false
	for attempt := 1; ; attempt++ {
		resp, committed, err := call()
		if err == nil {
			return resp, nil
		}
		if committed || attempt >= r.cfg.MaxAttempts || !r.retryable(err, &repairUsed) {
			return nil, err
		}

		wait := r.backoff(attempt, err)
		r.log.Warn("llm.retry",
			"purpose", PurposeFrom(ctx),
			"attempt", attempt,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (r *RetryProvider) retryable(err error, repairUsed *bool) bool {
	var invalid *ErrInvalidResponse
	if errors.As(err, &invalid) {
		if *repairUsed {
			return false
		}
		*repairUsed = true
		return true
	}
	return Transient(err)
}

// backoff honours a provider RetryAfter hint, otherwise grows
// InitialWait by Multiplier per attempt up to MaxWait with ±20% jitter.
func (r *RetryProvider) backoff(attempt int, err error) time.Duration {
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}
	wait := float64(r.cfg.InitialWait) * math.Pow(r.cfg.Multiplier, float64(attempt-1))
	wait = math.Min(wait, float64(r.cfg.MaxWait))
	wait *= 0.8 + 0.4*rand.Float64()
	return time.Duration(wait)
}
