/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/xid"

	"github.com/acronis/go-callkit/log"
)

// DispatcherOpts represents options for the Dispatcher.
type DispatcherOpts struct {
	// IDGenerator generates correlation ids for tasks. Default generates xid identifiers.
	IDGenerator func() string

	// Logger may be nil.
	Logger log.FieldLogger
}

type dispatchReply struct {
	msg *Message
	err error
}

type pendingTask struct {
	reply chan dispatchReply
}

// Dispatcher sends tasks to a worker over a Channel and correlates replies with callers by task id.
type Dispatcher struct {
	ch     Channel
	newID  func() string
	logger log.FieldLogger

	mu      sync.Mutex
	pending map[string]*pendingTask
	err     error // terminal error, set once the receive loop has stopped

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher creates a new Dispatcher and starts receiving replies from the channel.
// The Dispatcher owns the channel and closes it on Close.
func NewDispatcher(ch Channel, opts DispatcherOpts) *Dispatcher {
	if opts.IDGenerator == nil {
		opts.IDGenerator = func() string { return xid.New().String() }
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		ch:      ch,
		newID:   opts.IDGenerator,
		logger:  log.OrDisabled(opts.Logger),
		pending: make(map[string]*pendingTask),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go d.receiveLoop(ctx)
	return d
}

// Dispatch sends a task of the given type and waits for its terminal message.
// data is encoded to JSON unless it is already a json.RawMessage.
// An ERROR reply is returned as *TaskError. If ctx is done before the reply arrives, ctx.Err() is returned
// and the late reply is dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, taskType string, data interface{}) (json.RawMessage, error) {
	rawData, err := encodeData(data)
	if err != nil {
		return nil, err
	}

	id := d.newID()
	task := &pendingTask{reply: make(chan dispatchReply, 1)}

	d.mu.Lock()
	if d.err != nil {
		err = d.err
		d.mu.Unlock()
		return nil, err
	}
	if _, exists := d.pending[id]; exists {
		d.mu.Unlock()
		return nil, fmt.Errorf("task id %q is already in use", id)
	}
	d.pending[id] = task
	d.mu.Unlock()

	if err = d.ch.Send(ctx, NewTaskMessage(id, taskType, rawData)); err != nil {
		d.forget(id)
		return nil, fmt.Errorf("send task: %w", err)
	}

	select {
	case r := <-task.reply:
		if r.err != nil {
			return nil, r.err
		}
		if r.msg.Type == MessageTypeError {
			return nil, &TaskError{TaskID: id, TaskType: taskType, Message: r.msg.Error}
		}
		return r.msg.Data, nil
	case <-ctx.Done():
		d.forget(id)
		return nil, ctx.Err()
	}
}

// Call dispatches a task and decodes its result into Out.
func Call[Out any](ctx context.Context, d *Dispatcher, taskType string, data interface{}) (Out, error) {
	var out Out
	raw, err := d.Dispatch(ctx, taskType, data)
	if err != nil {
		return out, err
	}
	if len(raw) != 0 {
		if err = json.Unmarshal(raw, &out); err != nil {
			return out, fmt.Errorf("decode task result: %w", err)
		}
	}
	return out, nil
}

// Pending returns the number of tasks waiting for replies.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close closes the channel and fails all pending tasks with ErrDispatcherClosed.
func (d *Dispatcher) Close() error {
	d.cancel()
	err := d.ch.Close()
	<-d.done
	return err
}

func (d *Dispatcher) forget(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, id)
}

func (d *Dispatcher) receiveLoop(ctx context.Context) {
	defer close(d.done)
	for {
		msg, err := d.ch.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrMalformedMessage) {
				d.logger.Warn("malformed reply is dropped", log.Error(err))
				continue
			}
			if ctx.Err() != nil || errors.Is(err, ErrChannelClosed) {
				err = ErrDispatcherClosed
			} else {
				d.logger.Error("failed to receive reply, all pending tasks are failed", log.Error(err))
				err = fmt.Errorf("receive reply: %w", err)
			}
			d.failAll(err)
			return
		}

		if !msg.Type.IsTerminal() {
			d.logger.Warn("unexpected message is dropped",
				log.String("message_id", msg.ID), log.String("message_type", string(msg.Type)))
			continue
		}

		id := msg.TaskID()
		d.mu.Lock()
		task, found := d.pending[id]
		delete(d.pending, id)
		d.mu.Unlock()
		if !found {
			d.logger.Warn("reply for unknown task is dropped",
				log.String("task_id", id), log.String("message_type", string(msg.Type)))
			continue
		}
		task.reply <- dispatchReply{msg: msg}
	}
}

func (d *Dispatcher) failAll(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
	for id, task := range d.pending {
		task.reply <- dispatchReply{err: err}
		delete(d.pending, id)
	}
}

func encodeData(data interface{}) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode task data: %w", err)
		}
		return raw, nil
	}
}
