/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package worker implements a message-based task protocol between a dispatcher and a worker.
//
// The dispatcher sends TASK messages over a Channel. The worker looks up a handler by the task type,
// executes it and replies with exactly one RESULT or ERROR message carrying the same id.
// Tasks are executed independently and may complete out of submission order.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/acronis/go-callkit/asynclimit"
	"github.com/acronis/go-callkit/log"
)

// HandlerFunc executes a task with the given data and returns the JSON-encoded result.
type HandlerFunc func(ctx context.Context, data json.RawMessage) (json.RawMessage, error)

// DefaultHandlerFunc executes tasks with types that have no registered handler.
type DefaultHandlerFunc func(ctx context.Context, task Task) (json.RawMessage, error)

// Handle adapts a typed function to HandlerFunc: the task data is decoded into In, the result is encoded from Out.
func Handle[In, Out any](fn func(ctx context.Context, in In) (Out, error)) HandlerFunc {
	return func(ctx context.Context, data json.RawMessage) (json.RawMessage, error) {
		var in In
		if len(data) != 0 {
			if err := json.Unmarshal(data, &in); err != nil {
				return nil, fmt.Errorf("decode task data: %w", err)
			}
		}
		out, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}
		res, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("encode task result: %w", err)
		}
		return res, nil
	}
}

// Opts represents options for the Worker.
type Opts struct {
	// MaxConcurrentTasks limits the number of concurrently executed tasks in Serve. Zero means unlimited.
	// Tasks over the limit wait in FIFO order.
	MaxConcurrentTasks int

	// SendTimeout is the timeout for sending a reply. Default is DefaultSendTimeout.
	SendTimeout time.Duration

	// TaskTimeouts limits the execution time of tasks by their types (matched case-insensitively).
	// The handler's ctx is done when the limit is exceeded. Tasks of other types are not limited.
	TaskTimeouts map[string]time.Duration

	// Logger may be nil.
	Logger log.FieldLogger

	// MetricsCollector is used for reporting executed tasks. May be nil.
	MetricsCollector MetricsCollector
}

// Worker executes tasks by their types.
type Worker struct {
	mu             sync.RWMutex
	handlers       map[string]HandlerFunc
	defaultHandler DefaultHandlerFunc

	limiter          *asynclimit.Executor[*Message, *Message]
	sendTimeout      time.Duration
	taskTimeouts     map[string]time.Duration
	logger           log.FieldLogger
	metricsCollector MetricsCollector
}

// New creates a new Worker.
func New(opts Opts) (*Worker, error) {
	if opts.MaxConcurrentTasks < 0 {
		return nil, fmt.Errorf("max concurrent tasks must be >= 0, got %d", opts.MaxConcurrentTasks)
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}
	taskTimeouts := make(map[string]time.Duration, len(opts.TaskTimeouts))
	for taskType, timeout := range opts.TaskTimeouts {
		if timeout <= 0 {
			return nil, fmt.Errorf("timeout for task type %q must be positive, got %s", taskType, timeout)
		}
		taskTimeouts[strings.ToLower(taskType)] = timeout
	}
	w := &Worker{
		handlers:         make(map[string]HandlerFunc),
		defaultHandler:   unknownTaskTypeHandler,
		sendTimeout:      opts.SendTimeout,
		taskTimeouts:     taskTimeouts,
		logger:           log.OrDisabled(opts.Logger),
		metricsCollector: opts.MetricsCollector,
	}
	if opts.MaxConcurrentTasks > 0 {
		limiter, err := asynclimit.New(func(ctx context.Context, msg *Message) (*Message, error) {
			return w.Execute(ctx, msg), nil
		}, asynclimit.Opts{ParallelCalls: opts.MaxConcurrentTasks, Logger: w.logger})
		if err != nil {
			return nil, err
		}
		w.limiter = limiter
	}
	return w, nil
}

func unknownTaskTypeHandler(_ context.Context, task Task) (json.RawMessage, error) {
	return nil, fmt.Errorf("%w %q", ErrUnknownTaskType, task.Type)
}

// RegisterTaskHandler associates the handler with the task type. A later registration replaces the previous one.
func (w *Worker) RegisterTaskHandler(taskType string, handler HandlerFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[taskType] = handler
}

// SetDefaultHandler sets the handler for tasks with unregistered types.
// Nil restores the default behavior: such tasks fail with ErrUnknownTaskType.
func (w *Worker) SetDefaultHandler(handler DefaultHandlerFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if handler == nil {
		handler = unknownTaskTypeHandler
	}
	w.defaultHandler = handler
}

// Execute runs the task from the TASK message and returns exactly one RESULT or ERROR message
// with the task id. Handler errors and panics are converted into ERROR messages.
func (w *Worker) Execute(ctx context.Context, msg *Message) *Message {
	id := msg.TaskID()
	if msg.Type != MessageTypeTask || msg.Payload == nil {
		return NewErrorMessage(id, fmt.Sprintf("%s: expected TASK message with payload", ErrMalformedMessage))
	}
	task := *msg.Payload
	task.ID = id

	w.metricsCollector.IncInFlight()
	defer w.metricsCollector.DecInFlight()
	startTime := time.Now()

	data, err := w.runHandler(ctx, task)
	if err != nil {
		w.metricsCollector.ObserveTask(task.Type, TaskStatusError, time.Since(startTime))
		w.logger.Warn("task failed", log.String("task_id", id), log.String("task_type", task.Type), log.Error(err))
		return NewErrorMessage(id, err.Error())
	}
	w.metricsCollector.ObserveTask(task.Type, TaskStatusOK, time.Since(startTime))
	return NewResultMessage(id, data)
}

func (w *Worker) runHandler(ctx context.Context, task Task) (data json.RawMessage, err error) {
	w.mu.RLock()
	handler, found := w.handlers[task.Type]
	defaultHandler := w.defaultHandler
	w.mu.RUnlock()

	if timeout, ok := w.taskTimeouts[strings.ToLower(task.Type)]; ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var pc panics.Catcher
	pc.Try(func() {
		if found {
			data, err = handler(ctx, task.Data)
			return
		}
		data, err = defaultHandler(ctx, task)
	})
	if r := pc.Recovered(); r != nil {
		w.logger.Error("task handler panicked",
			log.String("task_id", task.ID), log.String("task_type", task.Type), log.Bytes("stack", r.Stack))
		return nil, fmt.Errorf("task handler panicked: %v", r.Value)
	}
	if err == nil && data == nil {
		data = json.RawMessage("null")
	}
	return data, err
}

// Serve receives TASK messages from the channel and replies to each of them.
// Tasks are executed concurrently (bounded by MaxConcurrentTasks if set). A failing task never stops the loop.
// Non-TASK messages and malformed input are logged and skipped.
// Serve returns nil when the channel is closed and ctx.Err() when ctx is done,
// after all started tasks have replied.
func (w *Worker) Serve(ctx context.Context, ch Channel) error {
	var wg conc.WaitGroup
	defer wg.Wait()

	for {
		msg, err := ch.Receive(ctx)
		if err != nil {
			switch {
			case errors.Is(err, ErrMalformedMessage):
				w.logger.Warn("malformed message is skipped", log.Error(err))
				continue
			case errors.Is(err, ErrChannelClosed):
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				return fmt.Errorf("receive message: %w", err)
			}
		}
		if msg.Type != MessageTypeTask {
			w.logger.Warn("unexpected message is skipped",
				log.String("message_id", msg.ID), log.String("message_type", string(msg.Type)))
			continue
		}
		wg.Go(func() {
			w.reply(ch, w.executeLimited(ctx, msg))
		})
	}
}

func (w *Worker) executeLimited(ctx context.Context, msg *Message) *Message {
	if w.limiter == nil {
		return w.Execute(ctx, msg)
	}
	res, err := w.limiter.Exec(ctx, msg)
	if err != nil {
		return NewErrorMessage(msg.TaskID(), fmt.Sprintf("task is not started: %v", err))
	}
	return res
}

// reply is not bound to the serve context: a started task always gets its terminal message sent.
func (w *Worker) reply(ch Channel, msg *Message) {
	sendCtx, cancel := context.WithTimeout(context.Background(), w.sendTimeout)
	defer cancel()
	if err := ch.Send(sendCtx, msg); err != nil {
		w.logger.Error("failed to send reply",
			log.String("task_id", msg.ID), log.String("message_type", string(msg.Type)), log.Error(err))
	}
}
