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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-callkit/log/logtest"
)

func startWorker(t *testing.T, w *Worker) *Dispatcher {
	t.Helper()
	workerEnd, dispatcherEnd := NewPipe()
	served := make(chan struct{})
	go func() {
		defer close(served)
		assert.NoError(t, w.Serve(context.Background(), workerEnd))
	}()
	d := NewDispatcher(dispatcherEnd, DispatcherOpts{})
	t.Cleanup(func() {
		require.NoError(t, d.Close())
		<-served
	})
	return d
}

func TestDispatcher_Dispatch(t *testing.T) {
	w := newTestWorker(t, Opts{})
	d := startWorker(t, w)

	res, err := d.Dispatch(context.Background(), "FOO", 123)
	require.NoError(t, err)
	require.JSONEq(t, `"ok"`, string(res))

	_, err = d.Dispatch(context.Background(), "ERR", nil)
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	require.Equal(t, "ERR", taskErr.TaskType)
	require.Equal(t, "handler failed", taskErr.Message)
	require.NotEmpty(t, taskErr.TaskID)

	_, err = d.Dispatch(context.Background(), "UNKNOWN", 456)
	require.ErrorAs(t, err, &taskErr)
	require.Contains(t, taskErr.Message, ErrUnknownTaskType.Error())

	require.Equal(t, 0, d.Pending())
}

func TestDispatcher_CorrelatesOutOfOrderReplies(t *testing.T) {
	w, err := New(Opts{})
	require.NoError(t, err)
	w.RegisterTaskHandler("SLEEP", Handle(func(ctx context.Context, ms int) (int, error) {
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return ms, nil
	}))
	d := startWorker(t, w)

	delays := []int{50, 10, 30, 0, 20}
	var wg sync.WaitGroup
	for _, ms := range delays {
		wg.Add(1)
		go func(ms int) {
			defer wg.Done()
			res, callErr := Call[int](context.Background(), d, "SLEEP", ms)
			assert.NoError(t, callErr)
			assert.Equal(t, ms, res)
		}(ms)
	}
	wg.Wait()
}

func TestDispatcher_ContextCanceled(t *testing.T) {
	w, err := New(Opts{})
	require.NoError(t, err)
	release := make(chan struct{})
	w.RegisterTaskHandler("BLOCK", func(ctx context.Context, data json.RawMessage) (json.RawMessage, error) {
		<-release
		return nil, nil
	})
	d := startWorker(t, w)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*20)
	defer cancel()
	_, err = d.Dispatch(ctx, "BLOCK", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 0, d.Pending())
}

func TestDispatcher_Close(t *testing.T) {
	workerEnd, dispatcherEnd := NewPipe()
	defer func() { _ = workerEnd.Close() }()
	d := NewDispatcher(dispatcherEnd, DispatcherOpts{})

	dispatched := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(context.Background(), "FOO", nil)
		dispatched <- err
	}()
	// Nobody serves the worker end, the task stays pending.
	_, err := workerEnd.Receive(context.Background())
	require.NoError(t, err)
	require.NoError(t, d.Close())

	select {
	case err = <-dispatched:
		require.ErrorIs(t, err, ErrDispatcherClosed)
	case <-time.After(time.Second):
		t.Fatal("pending task was not failed on close")
	}

	_, err = d.Dispatch(context.Background(), "FOO", nil)
	require.ErrorIs(t, err, ErrDispatcherClosed)
}

type failingChannel struct {
	Channel
	recvErr chan error
}

func (c *failingChannel) Receive(ctx context.Context) (*Message, error) {
	select {
	case err := <-c.recvErr:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestDispatcher_ChannelFailureFailsPendingTasks(t *testing.T) {
	workerEnd, dispatcherEnd := NewPipe()
	defer func() { _ = workerEnd.Close() }()
	ch := &failingChannel{Channel: dispatcherEnd, recvErr: make(chan error)}
	rec := logtest.NewRecorder()
	d := NewDispatcher(ch, DispatcherOpts{Logger: rec})
	defer func() { _ = d.Close() }()

	dispatched := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(context.Background(), "FOO", nil)
		dispatched <- err
	}()
	_, err := workerEnd.Receive(context.Background())
	require.NoError(t, err)

	ch.recvErr <- errors.New("connection reset")
	select {
	case err = <-dispatched:
		require.EqualError(t, err, "receive reply: connection reset")
	case <-time.After(time.Second):
		t.Fatal("pending task was not failed")
	}
	_, found := rec.FindEntry("failed to receive reply, all pending tasks are failed")
	require.True(t, found)
}

func TestDispatcher_DropsUnknownReplies(t *testing.T) {
	workerEnd, dispatcherEnd := NewPipe()
	rec := logtest.NewRecorder()
	var seq int
	d := NewDispatcher(dispatcherEnd, DispatcherOpts{
		Logger:      rec,
		IDGenerator: func() string { seq++; return fmt.Sprintf("task-%d", seq) },
	})
	defer func() { _ = d.Close() }()

	dispatched := make(chan json.RawMessage, 1)
	go func() {
		res, err := d.Dispatch(context.Background(), "FOO", nil)
		assert.NoError(t, err)
		dispatched <- res
	}()

	msg, err := workerEnd.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, "task-1", msg.ID)
	require.Equal(t, "task-1", msg.Payload.ID)
	require.Equal(t, "FOO", msg.Payload.Type)

	require.NoError(t, workerEnd.Send(context.Background(), NewResultMessage("stale", json.RawMessage(`1`))))
	require.NoError(t, workerEnd.Send(context.Background(), NewResultMessage("task-1", json.RawMessage(`2`))))

	select {
	case res := <-dispatched:
		require.JSONEq(t, `2`, string(res))
	case <-time.After(time.Second):
		t.Fatal("reply was not delivered")
	}
	_, found := rec.FindEntry("reply for unknown task is dropped")
	require.True(t, found)
}
