// Package retry provides bounded retry with configurable backoff.
//
// Every network and database operation in the submission pipeline runs
// through one of two policies built on this package: the general
// exponential policy (3 attempts, 500ms doubling) and the persistence
// policy (3 attempts, fixed 1s). The two policies are intentionally
// distinct; both are expressed as configurations of the same mechanism
// so their timing behavior stays observable and testable.
package retry

import (
	"context"
	"time"
)

// Backoff selects how the delay between attempts grows.
type Backoff int

const (
	// Exponential doubles the delay after every failed attempt:
	// initial, initial*2, initial*4, ...
	Exponential Backoff = iota

	// Fixed waits the same delay between every attempt.
	Fixed
)

// Policy configures a bounded retry loop.
type Policy struct {
	// MaxAttempts is the total number of times the operation runs,
	// including the first. Values below 1 are treated as 1.
	MaxAttempts int

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration

	// Backoff selects fixed or exponential delay growth. No jitter is added.
	Backoff Backoff

	// RetryIf, when set, is consulted after each failure. Returning false
	// stops the loop immediately and the error propagates as-is. A nil
	// predicate retries every error.
	RetryIf func(error) bool
}

// DefaultPolicy is the general-purpose policy used around reads and
// external calls: 3 attempts, 500ms initial delay, doubling.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond, Backoff: Exponential}
}

// Delay returns the wait before the retry that follows the given failed
// attempt (1-based). Exponential growth is initial * 2^(attempt-1).
func (p Policy) Delay(attempt int) time.Duration {
	if p.Backoff == Fixed {
		return p.InitialDelay
	}
	return p.InitialDelay * time.Duration(1<<(attempt-1))
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Do runs op under the policy. On failure it waits the policy's delay and
// retries until the operation succeeds, attempts are exhausted, the RetryIf
// predicate rejects the error, or ctx is done. The error from the last
// attempt is returned on exhaustion.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= p.attempts(); attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if p.RetryIf != nil && !p.RetryIf(err) {
			return zero, err
		}
		if attempt >= p.attempts() {
			break
		}

		select {
		case <-time.After(p.Delay(attempt)):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, lastErr
}

// DoVoid runs an operation with no result under the policy.
func DoVoid(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
