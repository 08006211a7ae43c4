/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"time"

	"github.com/acronis/go-callkit/worker"
)

// ErrStopTimeoutExceeded is returned when a unit does not stop within its graceful stop timeout.
var ErrStopTimeoutExceeded = errors.New("unit stop timeout exceeded")

// WorkerUnitOpts represents options for the WorkerUnit.
type WorkerUnitOpts struct {
	// GracefulStopTimeout bounds the time for running tasks to reply on graceful stop. Zero means no limit.
	GracefulStopTimeout time.Duration

	// MetricsRegisterer registers worker metrics (e.g. *worker.PrometheusMetrics). May be nil.
	MetricsRegisterer MetricsRegisterer
}

// WorkerUnit presents a task worker serving a channel as a Unit.
type WorkerUnit struct {
	worker *worker.Worker
	ch     worker.Channel
	opts   WorkerUnitOpts

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorkerUnit creates a new WorkerUnit.
func NewWorkerUnit(w *worker.Worker, ch worker.Channel, opts WorkerUnitOpts) *WorkerUnit {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerUnit{worker: w, ch: ch, opts: opts, ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// Start serves the channel until it is closed or the unit is stopped.
// The end of the input (the other side closed the channel) is not a failure.
func (u *WorkerUnit) Start(fatalErr chan<- error) {
	defer close(u.done)
	err := u.worker.Serve(u.ctx, u.ch)
	if err != nil && !errors.Is(err, context.Canceled) {
		fatalErr <- err
	}
}

// Stop stops receiving new tasks. On graceful stop it waits for started tasks to reply.
func (u *WorkerUnit) Stop(gracefully bool) error {
	u.cancel()
	if !gracefully {
		return u.ch.Close()
	}
	defer func() { _ = u.ch.Close() }()
	if u.opts.GracefulStopTimeout == 0 {
		<-u.done
		return nil
	}
	select {
	case <-u.done:
		return nil
	case <-time.After(u.opts.GracefulStopTimeout):
		return ErrStopTimeoutExceeded
	}
}

// Done is closed when the worker stops serving, e.g. after the other side has closed the channel.
func (u *WorkerUnit) Done() <-chan struct{} {
	return u.done
}

// MustRegisterMetrics registers worker metrics.
func (u *WorkerUnit) MustRegisterMetrics() {
	if u.opts.MetricsRegisterer != nil {
		u.opts.MetricsRegisterer.MustRegisterMetrics()
	}
}

// UnregisterMetrics unregisters worker metrics.
func (u *WorkerUnit) UnregisterMetrics() {
	if u.opts.MetricsRegisterer != nil {
		u.opts.MetricsRegisterer.UnregisterMetrics()
	}
}
