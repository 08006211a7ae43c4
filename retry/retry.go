/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package retry runs operations with retries according to a backoff policy.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// IsRetryable tells whether the error is temporary and the operation may be retried.
type IsRetryable func(error) bool

// RetryableFunc is an operation that may be retried. ctx is done when the retrying is stopped.
type RetryableFunc func(ctx context.Context) error

// Notify is called before every retry with the error of the failed attempt and the delay before the next one.
type Notify = backoff.Notify

// Policy creates a backoff strategy for a single DoWithRetry run.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// PolicyFunc is an adapter to allow the use of ordinary functions as Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// PermanentError marks an error that must not be retried regardless of IsRetryable.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps the error so DoWithRetry stops immediately and returns err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// DoWithRetry runs fn until it succeeds, returns a non-retryable error, the policy gives up or ctx is done.
// Nil isRetryable means every error is retryable, nil notify disables notifications.
// The error of the last attempt is returned (unwrapped from PermanentError).
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify Notify, fn RetryableFunc) error {
	b := backoff.WithContext(p.NewBackOff(), ctx)
	op := func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var permErr *PermanentError
		if errors.As(err, &permErr) {
			return backoff.Permanent(permErr.Err)
		}
		if isRetryable != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.RetryNotify(op, b, notify)
}

// ExponentialBackoffPolicy retries with exponentially growing delays.
type ExponentialBackoffPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration // zero means backoff.DefaultMaxInterval
	MaxRetries      int           // zero means unlimited (until ctx is done or backoff.DefaultMaxElapsedTime)
}

// NewExponentialBackoffPolicy returns an exponential backoff policy with the given initial interval and max retry count.
func NewExponentialBackoffPolicy(initialInterval time.Duration, maxRetries int) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{InitialInterval: initialInterval, MaxRetries: maxRetries}
}

// NewBackOff implements Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.Reset()
	return withMaxRetries(eb, p.MaxRetries)
}

// ConstantBackoffPolicy retries with the same delay between attempts.
type ConstantBackoffPolicy struct {
	Interval   time.Duration
	MaxRetries int // zero means unlimited
}

// NewConstantBackoffPolicy returns a constant backoff policy with the given interval and max retry count.
func NewConstantBackoffPolicy(interval time.Duration, maxRetries int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{Interval: interval, MaxRetries: maxRetries}
}

// NewBackOff implements Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	return withMaxRetries(backoff.NewConstantBackOff(p.Interval), p.MaxRetries)
}

func withMaxRetries(b backoff.BackOff, maxRetries int) backoff.BackOff {
	if maxRetries <= 0 {
		return b
	}
	return backoff.WithMaxRetries(b, uint64(maxRetries))
}
