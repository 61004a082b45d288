// Package retry runs an operation with capped exponential backoff and jitter.
//
// It has no dependencies outside the standard library so any adapter can use it.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Policy configures Do.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// JitterFactor adds up to JitterFactor*delay of random extra wait.
	JitterFactor float64
}

// DefaultPolicy is 5 attempts from 200ms, capped at 30s, with up to 50% jitter.
var DefaultPolicy = Policy{
	MaxAttempts:  5,
	BaseDelay:    200 * time.Millisecond,
	MaxDelay:     30 * time.Second,
	JitterFactor: 0.5,
}

// Clock abstracts waiting so tests can run without sleeping.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Retrier executes operations under a Policy.
type Retrier struct {
	policy  Policy
	clock   Clock
	rand    func() float64
	onRetry func(attempt int, delay time.Duration, err error)
}

// Option customizes a Retrier.
type Option func(*Retrier)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(r *Retrier) { r.clock = c } }

// WithRand replaces the jitter source. fn must return values in [0, 1).
func WithRand(fn func() float64) Option { return func(r *Retrier) { r.rand = fn } }

// WithOnRetry registers a hook called before each backoff wait.
func WithOnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(r *Retrier) { r.onRetry = fn }
}

// New returns a Retrier for p.
func New(p Policy, opts ...Option) *Retrier {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	r := &Retrier{policy: p, clock: realClock{}, rand: rand.Float64}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Backoff returns the wait before the attempt following attempt (1-based):
// min(base*2^(attempt-1), max) * (1 + rand*jitter).
func (r *Retrier) Backoff(attempt int) time.Duration {
	exp := float64(r.policy.BaseDelay) * math.Pow(2, float64(attempt-1))
	if r.policy.MaxDelay > 0 && exp > float64(r.policy.MaxDelay) {
		exp = float64(r.policy.MaxDelay)
	}
	return time.Duration(exp * (1 + r.rand()*r.policy.JitterFactor))
}

// Do calls fn until it succeeds, returns an error isRetryable rejects,
// or the attempt budget is spent. It returns the number of attempts made
// and the last error.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error,
	isRetryable func(error) bool) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if !isRetryable(lastErr) || attempt == r.policy.MaxAttempts {
			return attempt, lastErr
		}

		delay := r.Backoff(attempt)
		if r.onRetry != nil {
			r.onRetry(attempt, delay, lastErr)
		}
		select {
		case <-ctx.Done():
			return attempt, fmt.Errorf("%w: %w", ctx.Err(), lastErr)
		case <-r.clock.After(delay):
		}
	}
	return r.policy.MaxAttempts, lastErr
}

// Do is a convenience wrapper around New(p).Do.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error,
	isRetryable func(error) bool) (int, error) {
	return New(p).Do(ctx, fn, isRetryable)
}

// IsContextError reports whether err was caused by ctx cancellation or deadline.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
