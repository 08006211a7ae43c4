/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package callrate provides timer-based primitives that shape the rate of calls of a function:
// leading-edge throttling, trailing-edge debouncing and deferred execution.
// They are independent of the concurrency control in asynclimit, delegate and memoize and may be layered on top of them.
package callrate

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttler runs the function on the leading edge: the first call runs immediately,
// calls made within the delay since the last run are dropped.
type Throttler[A any] struct {
	fn      func(arg A)
	limiter *rate.Limiter
}

// NewThrottler creates a new Throttler. Non-positive delay disables throttling.
func NewThrottler[A any](fn func(arg A), delay time.Duration) *Throttler[A] {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Throttler[A]{fn: fn, limiter: rate.NewLimiter(limit, 1)}
}

// Call runs the function synchronously if the throttling window allows it.
// It reports whether the function was run.
func (t *Throttler[A]) Call(arg A) bool {
	if !t.limiter.Allow() {
		return false
	}
	t.fn(arg)
	return true
}

// Debouncer runs the function on the trailing edge: once the delay passes without new calls,
// the function runs with the argument of the last call.
type Debouncer[A any] struct {
	fn    func(arg A)
	delay time.Duration

	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	pending    bool
	lastArg    A
}

// NewDebouncer creates a new Debouncer.
func NewDebouncer[A any](fn func(arg A), delay time.Duration) *Debouncer[A] {
	return &Debouncer[A]{fn: fn, delay: delay}
}

// Call schedules the function and postpones the previously scheduled run.
func (d *Debouncer[A]) Call(arg A) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.generation++
	gen := d.generation
	d.pending = true
	d.lastArg = arg
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer[A]) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.generation || !d.pending {
		d.mu.Unlock()
		return
	}
	arg := d.takePendingLocked()
	d.mu.Unlock()
	d.fn(arg)
}

// Flush runs the pending call immediately, if any. It reports whether a call was run.
func (d *Debouncer[A]) Flush() bool {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return false
	}
	arg := d.takePendingLocked()
	d.mu.Unlock()
	d.fn(arg)
	return true
}

// Stop cancels the pending call, if any. It reports whether a call was canceled.
func (d *Debouncer[A]) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.pending {
		return false
	}
	d.takePendingLocked()
	return true
}

func (d *Debouncer[A]) takePendingLocked() A {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.generation++
	arg := d.lastArg
	var zero A
	d.lastArg = zero
	d.pending = false
	return arg
}

// Delayer defers every call by the delay. Calls are not merged or dropped.
type Delayer[A any] struct {
	fn    func(arg A)
	delay time.Duration

	mu     sync.Mutex
	nextID uint64
	timers map[uint64]*time.Timer
}

// NewDelayer creates a new Delayer.
func NewDelayer[A any](fn func(arg A), delay time.Duration) *Delayer[A] {
	return &Delayer[A]{fn: fn, delay: delay, timers: make(map[uint64]*time.Timer)}
}

// Call schedules the function to run with the argument after the delay.
func (d *Delayer[A]) Call(arg A) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.timers[id] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		_, scheduled := d.timers[id]
		delete(d.timers, id)
		d.mu.Unlock()
		if scheduled {
			d.fn(arg)
		}
	})
}

// Pending returns the number of scheduled calls that have not run yet.
func (d *Delayer[A]) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop cancels all scheduled calls and returns how many were canceled.
func (d *Delayer[A]) Stop() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.timers)
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
	return n
}
