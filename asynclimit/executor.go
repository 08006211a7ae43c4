/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package asynclimit provides an executor that runs at most N invocations of an operation
// concurrently. Excess calls wait in a FIFO queue and are started in submission order
// as running calls settle.
package asynclimit

import (
	"context"
	"errors"
	"sync"

	"github.com/acronis/go-callkit/log"
	"github.com/acronis/go-callkit/queue"
)

// DefaultParallelCalls is used when Opts.ParallelCalls is not positive.
const DefaultParallelCalls = 1

// ErrNilOperation is returned when an executor is created for a nil operation.
var ErrNilOperation = errors.New("operation must not be nil")

// Func is an operation that may be wrapped by Executor.
type Func[A, R any] func(ctx context.Context, arg A) (R, error)

// Opts represents options for the Executor.
type Opts struct {
	// ParallelCalls is the maximum number of concurrently running invocations.
	// Values <= 0 are replaced with DefaultParallelCalls.
	ParallelCalls int

	// Logger is used for debug logging of queued calls. May be nil.
	Logger log.FieldLogger

	// MetricsCollector is used for reporting active and queued calls. May be nil.
	MetricsCollector MetricsCollector
}

type pendingCall struct {
	ready    chan struct{}
	started  bool // slot was handed over, guarded by Executor.mu
	canceled bool // caller gave up waiting, guarded by Executor.mu
}

// Executor runs the wrapped operation with bounded concurrency.
type Executor[A, R any] struct {
	fn     func(ctx context.Context, arg A) (R, error)
	limit  int
	logger log.FieldLogger

	mu      sync.Mutex
	active  int
	pending *queue.Queue[*pendingCall]

	metricsCollector MetricsCollector
}

// New creates a new Executor for the given operation.
func New[A, R any](fn func(ctx context.Context, arg A) (R, error), opts Opts) (*Executor[A, R], error) {
	if fn == nil {
		return nil, ErrNilOperation
	}
	if opts.ParallelCalls <= 0 {
		opts.ParallelCalls = DefaultParallelCalls
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}
	return &Executor[A, R]{
		fn:               fn,
		limit:            opts.ParallelCalls,
		logger:           log.OrDisabled(opts.Logger),
		pending:          queue.New[*pendingCall](),
		metricsCollector: opts.MetricsCollector,
	}, nil
}

// Wrap returns a function with the same signature as fn that is executed
// with at most parallelCalls concurrent invocations.
func Wrap[A, R any](fn func(ctx context.Context, arg A) (R, error), parallelCalls int) (Func[A, R], error) {
	e, err := New(fn, Opts{ParallelCalls: parallelCalls})
	if err != nil {
		return nil, err
	}
	return e.Exec, nil
}

// Exec invokes the operation as soon as a slot is available and returns its outcome.
// If ctx is done while the call is still queued, the call is withdrawn and ctx.Err() is returned.
// A call that has already started is never interrupted by the executor.
func (e *Executor[A, R]) Exec(ctx context.Context, arg A) (R, error) {
	if err := e.acquire(ctx); err != nil {
		var zero R
		return zero, err
	}
	defer e.release()
	return e.fn(ctx, arg)
}

// Limit returns the maximum number of concurrent invocations.
func (e *Executor[A, R]) Limit() int {
	return e.limit
}

// Active returns the number of currently running invocations.
func (e *Executor[A, R]) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Queued returns the number of calls waiting for a slot (including withdrawn ones not yet skipped).
func (e *Executor[A, R]) Queued() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending.Size()
}

func (e *Executor[A, R]) acquire(ctx context.Context) error {
	e.mu.Lock()
	if e.active < e.limit {
		e.active++
		e.metricsCollector.SetActive(e.active)
		e.mu.Unlock()
		return nil
	}
	pc := &pendingCall{ready: make(chan struct{})}
	e.pending.Enqueue(pc)
	queued := e.pending.Size()
	e.metricsCollector.SetQueued(queued)
	e.mu.Unlock()

	e.logger.Debug("call is queued, concurrency limit reached",
		log.Int("limit", e.limit), log.Int("queued", queued))

	select {
	case <-pc.ready:
		return nil
	case <-ctx.Done():
	}

	e.mu.Lock()
	if pc.started {
		// The slot was handed over concurrently with cancellation, pass it on.
		e.mu.Unlock()
		e.release()
		return ctx.Err()
	}
	pc.canceled = true
	e.mu.Unlock()
	return ctx.Err()
}

// release hands the slot of a settled call to the next queued call or frees it.
// Hand-over and decrement happen under the same lock, so the active counter
// never exceeds the limit.
func (e *Executor[A, R]) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for {
		next, ok := e.pending.Dequeue()
		if !ok {
			e.active--
			e.metricsCollector.SetActive(e.active)
			e.metricsCollector.SetQueued(0)
			return
		}
		if next.canceled {
			continue
		}
		next.started = true
		close(next.ready)
		e.metricsCollector.SetQueued(e.pending.Size())
		return
	}
}
