/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package delegate provides coalescing of concurrent calls: callers invoking an operation
// with arguments that resolve to the same key while a call for that key is in flight
// attach to it and receive its outcome instead of starting a new invocation.
// Nothing is kept after the call settles, see package memoize for caching results.
package delegate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/acronis/go-callkit/internal/callkey"
	"github.com/acronis/go-callkit/log"
)

// ErrNilOperation is returned when a group is created for a nil operation.
var ErrNilOperation = errors.New("operation must not be nil")

// ErrGoexit is returned to attached callers when the leading call invoked runtime.Goexit.
var ErrGoexit = errors.New("runtime.Goexit was called")

// Func is an operation that may be wrapped by Group.
type Func[A, R any] func(ctx context.Context, arg A) (R, error)

// Opts represents options for the Group.
type Opts[A any] struct {
	// KeyResolver computes the coalescing key from the call argument.
	// Default is a stable stringification of the argument.
	KeyResolver func(arg A) string

	// Logger is used for debug logging of attached calls. May be nil.
	Logger log.FieldLogger
}

type inFlightCall[R any] struct {
	done     chan struct{}
	val      R
	err      error
	attached int
}

// Group coalesces concurrent invocations of the wrapped operation by key.
type Group[A, R any] struct {
	fn          func(ctx context.Context, arg A) (R, error)
	keyResolver func(arg A) string
	logger      log.FieldLogger

	mu       sync.Mutex
	inFlight map[string]*inFlightCall[R]
}

// New creates a new Group for the given operation.
func New[A, R any](fn func(ctx context.Context, arg A) (R, error), opts Opts[A]) (*Group[A, R], error) {
	if fn == nil {
		return nil, ErrNilOperation
	}
	if opts.KeyResolver == nil {
		opts.KeyResolver = callkey.Default[A]
	}
	return &Group[A, R]{
		fn:          fn,
		keyResolver: opts.KeyResolver,
		logger:      log.OrDisabled(opts.Logger),
		inFlight:    make(map[string]*inFlightCall[R]),
	}, nil
}

// Wrap returns a function with the same signature as fn that coalesces concurrent calls by key.
func Wrap[A, R any](fn func(ctx context.Context, arg A) (R, error), keyResolver func(arg A) string) (Func[A, R], error) {
	g, err := New(fn, Opts[A]{KeyResolver: keyResolver})
	if err != nil {
		return nil, err
	}
	return g.Do, nil
}

// Do invokes the operation, or attaches to the in-flight invocation for the same key.
// The invocation runs with the ctx of the caller that started it (the leader), and every attached
// caller receives its outcome. So if the leader's ctx is canceled and the operation honors it,
// attached callers get the leader's ctx error even when their own ctx is still live.
// An attached caller stops waiting when its own ctx is done, the in-flight invocation is not affected.
func (g *Group[A, R]) Do(ctx context.Context, arg A) (R, error) {
	key := g.keyResolver(arg)

	g.mu.Lock()
	if c, ok := g.inFlight[key]; ok {
		c.attached++
		g.mu.Unlock()
		g.logger.Debug("call is attached to in-flight invocation", log.String("key", key))
		select {
		case <-c.done:
			return c.val, c.err
		case <-ctx.Done():
			var zero R
			return zero, ctx.Err()
		}
	}
	// The entry is registered before the operation starts, so no concurrent
	// caller with the same key can begin its own invocation.
	c := &inFlightCall[R]{done: make(chan struct{})}
	g.inFlight[key] = c
	g.mu.Unlock()

	return g.do(ctx, c, key, arg)
}

// InFlight returns the number of keys with an outstanding invocation.
func (g *Group[A, R]) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inFlight)
}

func (g *Group[A, R]) do(ctx context.Context, c *inFlightCall[R], key string, arg A) (val R, err error) {
	normalReturn := false
	recovered := false

	// double-defer to distinguish panic from runtime.Goexit
	defer func() {
		if !normalReturn && !recovered {
			c.err = ErrGoexit
		}

		g.mu.Lock()
		delete(g.inFlight, key)
		attached := c.attached
		g.mu.Unlock()
		close(c.done)

		if attached > 0 {
			g.logger.Debug("coalesced invocation settled", log.String("key", key), log.Int("attached", attached))
		}

		if recovered {
			panic(c.err.(*PanicError).Value) // re-panic on the same goroutine
		}

		val, err = c.val, c.err
	}()

	defer func() {
		if !normalReturn {
			if v := recover(); v != nil {
				c.err = newPanicError(v)
				recovered = true
			}
		}
	}()

	c.val, c.err = g.fn(ctx, arg)
	normalReturn = true

	return c.val, c.err // will be set in the defer
}

// PanicError is an error that represents a panic value and stack trace.
// Callers attached to a panicking invocation receive it as an error.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("%v\n\n%s", p.Value, p.Stack)
}

// Unwrap returns the panic value if it is an error.
func (p *PanicError) Unwrap() error {
	err, ok := p.Value.(error)
	if !ok {
		return nil
	}
	return err
}

func newPanicError(v interface{}) error {
	stack := debug.Stack()

	// The first line of the stack trace is of the form "goroutine N [status]:"
	// but by the time the panic reaches Do the goroutine may no longer exist
	// and its status will have changed. Trim out the misleading line.
	if line := bytes.IndexByte(stack, '\n'); line >= 0 {
		stack = stack[line+1:]
	}
	return &PanicError{Value: v, Stack: stack}
}
