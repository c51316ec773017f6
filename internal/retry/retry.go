// Package retry implements the bounded exponential-backoff-with-jitter
// primitive (C4) used by infrastructure calls (KV, blob storage).
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy is a named retry configuration.
type Policy struct {
	Name         string
	MaxRetries   int
	BaseDelaySec float64
	MaxDelaySec  float64
	JitterRatio  float64
}

// KVPolicy is the preconfigured policy for queue/KV-store calls.
var KVPolicy = Policy{
	Name:         "kv",
	MaxRetries:   2,
	BaseDelaySec: 0.15,
	MaxDelaySec:  2.0,
	JitterRatio:  0.2,
}

// BlobPolicy is the preconfigured policy for blob-storage calls.
var BlobPolicy = Policy{
	Name:         "blob",
	MaxRetries:   3,
	BaseDelaySec: 0.5,
	MaxDelaySec:  5.0,
	JitterRatio:  0.2,
}

// Retryable is implemented by failures that should trigger a retry rather
// than propagate immediately.
type Retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err opts into retry via the Retryable
// interface. Errors that don't implement it are treated as non-retryable
// and propagate immediately, per spec.md section 4.4 ("non-retryable
// failures propagate immediately").
func IsRetryable(err error) bool {
	r, ok := err.(Retryable)
	return ok && r.Retryable()
}

func (p Policy) delay(attempt int) time.Duration {
	capped := math.Min(p.BaseDelaySec*math.Pow(2, float64(attempt-1)), p.MaxDelaySec)
	jittered := capped * (1 + p.JitterRatio*rand.Float64())
	return time.Duration(jittered * float64(time.Second))
}

// Do invokes fn, retrying on retryable failures with the policy's backoff;
// fn is called at most p.MaxRetries times in total (always at least
// once). Non-retryable failures and context
// cancellation propagate immediately.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt >= p.MaxRetries {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delay(attempt)):
		}
	}
}

// DoValue is Do's generic counterpart for operations that return a value
// alongside the error.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var lastVal T
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastVal, lastErr = fn(ctx)
		if lastErr == nil {
			return lastVal, nil
		}
		if !IsRetryable(lastErr) {
			return lastVal, lastErr
		}
		if attempt >= p.MaxRetries {
			return lastVal, lastErr
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(p.delay(attempt)):
		}
	}
}
