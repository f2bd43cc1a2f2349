// Package retry provides bounded retry policies for remote operations.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy describes how an operation is retried.
type Policy struct {
	// Interval is the delay before the first retry.
	Interval time.Duration
	// Multiplier scales the delay after every attempt. 1.0 keeps the
	// interval fixed, which is what readiness polling uses.
	Multiplier float64
	// MaxInterval caps the delay between attempts.
	MaxInterval time.Duration
	// Deadline bounds the total duration of all attempts. Zero means the
	// policy is bounded only by the caller's context.
	Deadline time.Duration
}

// Fixed returns a fixed-interval policy bounded by deadline.
func Fixed(interval, deadline time.Duration) Policy {
	return Policy{Interval: interval, Multiplier: 1.0, MaxInterval: interval, Deadline: deadline}
}

// Exponential returns an exponential backoff policy bounded by deadline.
func Exponential(initial, max, deadline time.Duration) Policy {
	return Policy{Interval: initial, Multiplier: 2.0, MaxInterval: max, Deadline: deadline}
}

// Do runs operation until it succeeds, the policy deadline expires, or the
// context is cancelled. Errors wrapped with Fatal are returned immediately.
func Do(ctx context.Context, policy Policy, operation func(ctx context.Context) error) error {
	if policy.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.Deadline)
		defer cancel()
	}

	delay := policy.Interval
	attempt := 0
	for {
		attempt++
		err := operation(ctx)
		if err == nil {
			return nil
		}
		if IsFatal(err) {
			return fmt.Errorf("fatal error (not retrying): %w", err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("giving up after %d attempts: %w (last error: %w)", attempt, ctx.Err(), err)
		case <-time.After(delay):
		}

		if policy.Multiplier > 1 {
			delay = time.Duration(float64(delay) * policy.Multiplier)
			if policy.MaxInterval > 0 && delay > policy.MaxInterval {
				delay = policy.MaxInterval
			}
		}
	}
}

// FatalError marks an error as non-retryable.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err so Do returns it without further attempts.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err was marked with Fatal.
func IsFatal(err error) bool {
	var fatalErr *FatalError
	return errors.As(err, &fatalErr)
}
