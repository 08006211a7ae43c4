/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-callkit/log/logtest"
)

func newTestWorker(t *testing.T, opts Opts) *Worker {
	t.Helper()
	w, err := New(opts)
	require.NoError(t, err)
	w.RegisterTaskHandler("FOO", func(ctx context.Context, data json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"ok"`), nil
	})
	w.RegisterTaskHandler("ERR", func(ctx context.Context, data json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("handler failed")
	})
	w.RegisterTaskHandler("PANIC", func(ctx context.Context, data json.RawMessage) (json.RawMessage, error) {
		panic("boom")
	})
	return w
}

func TestWorker_Execute(t *testing.T) {
	metrics := NewPrometheusMetrics()
	w := newTestWorker(t, Opts{MetricsCollector: metrics})

	tests := []struct {
		name string
		task *Message
		want *Message
	}{
		{
			name: "registered handler",
			task: NewTaskMessage("1", "FOO", json.RawMessage(`123`)),
			want: &Message{ID: "1", Type: MessageTypeResult, Data: json.RawMessage(`"ok"`)},
		},
		{
			name: "unknown task type goes to the default handler",
			task: NewTaskMessage("2", "UNKNOWN", json.RawMessage(`456`)),
			want: &Message{ID: "2", Type: MessageTypeError, Error: `unknown task type "UNKNOWN"`},
		},
		{
			name: "failing handler",
			task: NewTaskMessage("3", "ERR", nil),
			want: &Message{ID: "3", Type: MessageTypeError, Error: "handler failed"},
		},
		{
			name: "panicking handler",
			task: NewTaskMessage("4", "PANIC", nil),
			want: &Message{ID: "4", Type: MessageTypeError, Error: "task handler panicked: boom"},
		},
		{
			name: "subsequent task after failures",
			task: NewTaskMessage("5", "FOO", nil),
			want: &Message{ID: "5", Type: MessageTypeResult, Data: json.RawMessage(`"ok"`)},
		},
		{
			name: "payload id is used when envelope id is empty",
			task: &Message{Type: MessageTypeTask, Payload: &Task{ID: "6", Type: "FOO"}},
			want: &Message{ID: "6", Type: MessageTypeResult, Data: json.RawMessage(`"ok"`)},
		},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, w.Execute(context.Background(), tt.task))
		})
	}

	require.Equal(t, 3, int(testutil.ToFloat64(metrics.TasksTotal.WithLabelValues("FOO", TaskStatusOK))))
	require.Equal(t, 1, int(testutil.ToFloat64(metrics.TasksTotal.WithLabelValues("UNKNOWN", TaskStatusError))))
	require.Equal(t, 1, int(testutil.ToFloat64(metrics.TasksTotal.WithLabelValues("PANIC", TaskStatusError))))
	require.Equal(t, 0, int(testutil.ToFloat64(metrics.TasksInFlight)))
}

func TestWorker_Execute_MalformedTask(t *testing.T) {
	w := newTestWorker(t, Opts{})
	res := w.Execute(context.Background(), &Message{ID: "7", Type: MessageTypeTask})
	require.Equal(t, MessageTypeError, res.Type)
	require.Equal(t, "7", res.ID)
}

func TestWorker_SetDefaultHandler(t *testing.T) {
	w := newTestWorker(t, Opts{})
	w.SetDefaultHandler(func(ctx context.Context, task Task) (json.RawMessage, error) {
		return json.Marshal("fallback:" + task.Type)
	})
	res := w.Execute(context.Background(), NewTaskMessage("2", "UNKNOWN", json.RawMessage(`456`)))
	require.Equal(t, &Message{ID: "2", Type: MessageTypeResult, Data: json.RawMessage(`"fallback:UNKNOWN"`)}, res)

	w.SetDefaultHandler(nil)
	res = w.Execute(context.Background(), NewTaskMessage("2", "UNKNOWN", nil))
	require.Equal(t, MessageTypeError, res.Type)
}

func TestHandle(t *testing.T) {
	type sumReq struct {
		A, B int
	}
	w := newTestWorker(t, Opts{})
	w.RegisterTaskHandler("SUM", Handle(func(ctx context.Context, req sumReq) (int, error) {
		return req.A + req.B, nil
	}))

	res := w.Execute(context.Background(), NewTaskMessage("1", "SUM", json.RawMessage(`{"A":2,"B":3}`)))
	require.Equal(t, &Message{ID: "1", Type: MessageTypeResult, Data: json.RawMessage(`5`)}, res)

	res = w.Execute(context.Background(), NewTaskMessage("2", "SUM", json.RawMessage(`"oops"`)))
	require.Equal(t, MessageTypeError, res.Type)
	require.Contains(t, res.Error, "decode task data")
}

func TestWorker_Serve(t *testing.T) {
	rec := logtest.NewRecorder()
	w := newTestWorker(t, Opts{Logger: rec})
	workerEnd, clientEnd := NewPipe()

	serveErr := make(chan error, 1)
	go func() { serveErr <- w.Serve(context.Background(), workerEnd) }()

	ctx := context.Background()
	require.NoError(t, clientEnd.Send(ctx, NewResultMessage("x", nil)))
	require.NoError(t, clientEnd.Send(ctx, NewTaskMessage("1", "FOO", json.RawMessage(`123`))))
	require.NoError(t, clientEnd.Send(ctx, NewTaskMessage("2", "UNKNOWN", json.RawMessage(`456`))))
	require.NoError(t, clientEnd.Send(ctx, NewTaskMessage("3", "ERR", nil)))
	require.NoError(t, clientEnd.Send(ctx, NewTaskMessage("4", "FOO", nil)))

	replies := make(map[string]*Message)
	for i := 0; i < 4; i++ {
		msg, err := clientEnd.Receive(ctx)
		require.NoError(t, err)
		require.NotContains(t, replies, msg.ID, "each task must get exactly one terminal message")
		replies[msg.ID] = msg
	}
	require.Equal(t, MessageTypeResult, replies["1"].Type)
	require.JSONEq(t, `"ok"`, string(replies["1"].Data))
	require.Equal(t, MessageTypeError, replies["2"].Type)
	require.Equal(t, MessageTypeError, replies["3"].Type)
	require.Equal(t, "handler failed", replies["3"].Error)
	require.Equal(t, MessageTypeResult, replies["4"].Type)

	_, found := rec.FindEntry("unexpected message is skipped")
	require.True(t, found)

	require.NoError(t, clientEnd.Close())
	select {
	case err := <-serveErr:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after the channel was closed")
	}
}

func TestWorker_Serve_MaxConcurrentTasks(t *testing.T) {
	const limit = 2
	w, err := New(Opts{MaxConcurrentTasks: limit})
	require.NoError(t, err)

	var running, maxRunning atomic.Int32
	release := make(chan struct{})
	w.RegisterTaskHandler("BLOCK", func(ctx context.Context, data json.RawMessage) (json.RawMessage, error) {
		cur := running.Inc()
		for {
			prev := maxRunning.Load()
			if cur <= prev || maxRunning.CompareAndSwap(prev, cur) {
				break
			}
		}
		<-release
		running.Dec()
		return data, nil
	})

	workerEnd, clientEnd := NewPipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { assert.NoError(t, w.Serve(ctx, workerEnd)) }()

	const tasks = 6
	for i := 0; i < tasks; i++ {
		require.NoError(t, clientEnd.Send(ctx, NewTaskMessage(string(rune('a'+i)), "BLOCK", json.RawMessage(`1`))))
	}
	require.Eventually(t, func() bool { return running.Load() == limit }, time.Second, time.Millisecond*5)
	close(release)

	for i := 0; i < tasks; i++ {
		msg, recvErr := clientEnd.Receive(ctx)
		require.NoError(t, recvErr)
		require.Equal(t, MessageTypeResult, msg.Type)
	}
	require.Equal(t, int32(limit), maxRunning.Load())
	require.NoError(t, clientEnd.Close())
}

func TestWorker_Serve_ContextCanceled(t *testing.T) {
	w := newTestWorker(t, Opts{})
	workerEnd, clientEnd := NewPipe()
	defer func() { _ = clientEnd.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() { serveErr <- w.Serve(ctx, workerEnd) }()
	cancel()
	select {
	case err := <-serveErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after the context was canceled")
	}
}

func TestNew_InvalidOpts(t *testing.T) {
	_, err := New(Opts{MaxConcurrentTasks: -1})
	require.Error(t, err)
}

func TestWorker_Execute_TaskTimeouts(t *testing.T) {
	w, err := New(Opts{TaskTimeouts: map[string]time.Duration{"Slow": time.Millisecond * 20}})
	require.NoError(t, err)
	blocking := func(ctx context.Context, data json.RawMessage) (json.RawMessage, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second * 5):
			return json.RawMessage(`"done"`), nil
		}
	}
	w.RegisterTaskHandler("slow", blocking)
	w.RegisterTaskHandler("fast", func(ctx context.Context, data json.RawMessage) (json.RawMessage, error) {
		_, hasDeadline := ctx.Deadline()
		return json.Marshal(hasDeadline)
	})

	res := w.Execute(context.Background(), NewTaskMessage("1", "slow", nil))
	require.Equal(t, MessageTypeError, res.Type)
	require.Equal(t, context.DeadlineExceeded.Error(), res.Error)

	res = w.Execute(context.Background(), NewTaskMessage("2", "fast", nil))
	require.Equal(t, MessageTypeResult, res.Type)
	require.JSONEq(t, `false`, string(res.Data))

	_, err = New(Opts{TaskTimeouts: map[string]time.Duration{"slow": 0}})
	require.Error(t, err)
}
