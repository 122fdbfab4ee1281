// Package retry implements bounded retry with attempt-indexed backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// DelayFunc returns the delay to sleep after the given 0-based failed attempt.
type DelayFunc func(attempt int) time.Duration

// Fixed returns a DelayFunc with a constant delay.
func Fixed(d time.Duration) DelayFunc {
	return func(int) time.Duration { return d }
}

// Backoff returns an exponential DelayFunc: base * 2^attempt, capped at max.
func Backoff(base, max time.Duration) DelayFunc {
	return func(attempt int) time.Duration {
		delay := float64(base) * math.Pow(2, float64(attempt))
		if delay > float64(max) {
			delay = float64(max)
		}
		return time.Duration(delay)
	}
}

// stopError marks an error that must not be retried.
type stopError struct{ err error }

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// Stop wraps err so Do returns it immediately, skipping remaining attempts.
// Used for errors that cannot heal on retry, such as a malformed response.
func Stop(err error) error {
	return &stopError{err: err}
}

// Do executes op up to maxAttempts times, sleeping delay(attempt) between
// failed attempts only (never after the last). The operation receives the
// 0-based attempt index, which enables attempt-dependent behavior such as
// alternating upstream endpoints by parity. An error wrapped in Stop aborts
// remaining attempts. On exhaustion the last error is returned, wrapped.
func Do[T any](ctx context.Context, maxAttempts int, delay DelayFunc, op func(attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error

	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := op(attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var stop *stopError
		if errors.As(err, &stop) {
			return zero, stop.err
		}

		if attempt == maxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay(attempt)):
		}
	}

	return zero, fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
