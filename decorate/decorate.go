/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package decorate applies concurrency-control and call-rate wrappers to operations at construction time.
//
// Every wrapper returns a function with the same signature as the wrapped one,
// so wrappers compose in any order:
//
//	getUser := decorate.Must(decorate.MemoizeFor(decorate.Must(decorate.Delegate(fetchUser, nil)), time.Minute))
//
// Coalescing (Delegate) and memoization (Memoize) are independent: the first one shares an in-flight call,
// the second one reuses a settled successful result.
package decorate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/acronis/go-callkit/asynclimit"
	"github.com/acronis/go-callkit/callrate"
	"github.com/acronis/go-callkit/delegate"
	"github.com/acronis/go-callkit/memoize"
)

// Decorator names used in ConfigurationError.
const (
	DecoratorThrottleAsync = "throttleAsync"
	DecoratorDelegate      = "delegate"
	DecoratorMemoize       = "memoize"
	DecoratorThrottle      = "throttle"
	DecoratorDebounce      = "debounce"
	DecoratorDelay         = "delay"
)

// ErrNilOperation is wrapped into ConfigurationError when a nil operation is decorated.
var ErrNilOperation = errors.New("operation must not be nil")

// Func is an operation that may be decorated.
type Func[A, R any] func(ctx context.Context, arg A) (R, error)

// ConfigurationError is returned when a decorator cannot be applied.
// It signals a programming error and is expected to be fatal at setup time.
type ConfigurationError struct {
	Decorator string
	Err       error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: cannot decorate operation: %v", e.Decorator, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Must panics if err is not nil and returns v otherwise.
func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// ThrottleAsync bounds the number of concurrently running calls of fn (1 if parallelCalls is not passed).
// Calls over the limit wait in FIFO order.
func ThrottleAsync[A, R any](fn func(ctx context.Context, arg A) (R, error), parallelCalls ...int) (Func[A, R], error) {
	if fn == nil {
		return nil, &ConfigurationError{DecoratorThrottleAsync, ErrNilOperation}
	}
	n := asynclimit.DefaultParallelCalls
	if len(parallelCalls) != 0 {
		n = parallelCalls[0]
	}
	wrapped, err := asynclimit.Wrap(fn, n)
	if err != nil {
		return nil, &ConfigurationError{DecoratorThrottleAsync, err}
	}
	return Func[A, R](wrapped), nil
}

// Delegate makes concurrent calls of fn with the same key share a single in-flight invocation.
// Nil keyResolver means the key is a stable stringification of the argument.
func Delegate[A, R any](fn func(ctx context.Context, arg A) (R, error), keyResolver func(arg A) string) (Func[A, R], error) {
	if fn == nil {
		return nil, &ConfigurationError{DecoratorDelegate, ErrNilOperation}
	}
	wrapped, err := delegate.Wrap(fn, keyResolver)
	if err != nil {
		return nil, &ConfigurationError{DecoratorDelegate, err}
	}
	return Func[A, R](wrapped), nil
}

// Memoize caches successful results of fn according to the configuration.
func Memoize[A, R any](
	fn func(ctx context.Context, arg A) (R, error), cfg *memoize.Config, opts ...memoize.Opts[A, R],
) (Func[A, R], error) {
	if fn == nil {
		return nil, &ConfigurationError{DecoratorMemoize, ErrNilOperation}
	}
	if cfg == nil {
		cfg = memoize.NewConfig("")
	}
	var o memoize.Opts[A, R]
	if len(opts) != 0 {
		o = opts[0]
	}
	cache, err := memoize.NewFromConfig(fn, cfg, o)
	if err != nil {
		return nil, &ConfigurationError{DecoratorMemoize, err}
	}
	return cache.Get, nil
}

// MemoizeFor caches successful results of fn for ttl. Zero ttl means results never expire.
func MemoizeFor[A, R any](fn func(ctx context.Context, arg A) (R, error), ttl time.Duration) (Func[A, R], error) {
	if fn == nil {
		return nil, &ConfigurationError{DecoratorMemoize, ErrNilOperation}
	}
	wrapped, err := memoize.Wrap(fn, ttl)
	if err != nil {
		return nil, &ConfigurationError{DecoratorMemoize, err}
	}
	return Func[A, R](wrapped), nil
}

// Throttle runs fn on the leading edge and drops calls made within delay since the last run.
func Throttle[A any](fn func(arg A), delay time.Duration) (func(arg A), error) {
	if err := checkTimed(DecoratorThrottle, fn, delay); err != nil {
		return nil, err
	}
	t := callrate.NewThrottler(fn, delay)
	return func(arg A) { t.Call(arg) }, nil
}

// Debounce runs fn with the last argument once delay passes without new calls.
func Debounce[A any](fn func(arg A), delay time.Duration) (func(arg A), error) {
	if err := checkTimed(DecoratorDebounce, fn, delay); err != nil {
		return nil, err
	}
	return callrate.NewDebouncer(fn, delay).Call, nil
}

// Delay defers every call of fn by delay.
func Delay[A any](fn func(arg A), delay time.Duration) (func(arg A), error) {
	if err := checkTimed(DecoratorDelay, fn, delay); err != nil {
		return nil, err
	}
	return callrate.NewDelayer(fn, delay).Call, nil
}

func checkTimed[A any](decorator string, fn func(arg A), delay time.Duration) error {
	if fn == nil {
		return &ConfigurationError{decorator, ErrNilOperation}
	}
	if delay < 0 {
		return &ConfigurationError{decorator, fmt.Errorf("delay must be >= 0, got %s", delay)}
	}
	return nil
}
