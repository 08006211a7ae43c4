/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package asynclimit

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-callkit/config"
	"github.com/acronis/go-callkit/log/logtest"
)

func TestExecutor_BoundedConcurrency(t *testing.T) {
	const limit = 3
	const calls = 20

	var running, maxRunning atomic.Int32
	release := make(chan struct{})
	exec, err := New(func(ctx context.Context, n int) (int, error) {
		cur := running.Inc()
		for {
			prev := maxRunning.Load()
			if cur <= prev || maxRunning.CompareAndSwap(prev, cur) {
				break
			}
		}
		<-release
		running.Dec()
		return n * 2, nil
	}, Opts{ParallelCalls: limit})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]int, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, execErr := exec.Exec(context.Background(), i)
			assert.NoError(t, execErr)
			results[i] = res
		}(i)
	}

	require.Eventually(t, func() bool {
		return exec.Active() == limit && exec.Queued() == calls-limit
	}, time.Second, time.Millisecond*5)

	close(release)
	wg.Wait()

	require.LessOrEqual(t, int(maxRunning.Load()), limit)
	require.Equal(t, 0, exec.Active())
	require.Equal(t, 0, exec.Queued())
	for i, res := range results {
		require.Equal(t, i*2, res)
	}
}

func TestExecutor_FIFOStartOrder(t *testing.T) {
	var mu sync.Mutex
	var started []int
	release := make(chan struct{})

	exec, err := New(func(ctx context.Context, n int) (struct{}, error) {
		mu.Lock()
		started = append(started, n)
		mu.Unlock()
		<-release
		return struct{}{}, nil
	}, Opts{ParallelCalls: 1})
	require.NoError(t, err)

	var wg sync.WaitGroup
	submit := func(n int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = exec.Exec(context.Background(), n)
		}()
	}

	submit(0)
	require.Eventually(t, func() bool { return exec.Active() == 1 }, time.Second, time.Millisecond)
	for i := 1; i <= 5; i++ {
		submit(i)
		want := i
		require.Eventually(t, func() bool { return exec.Queued() == want }, time.Second, time.Millisecond)
	}

	for i := 0; i <= 5; i++ {
		release <- struct{}{}
	}
	wg.Wait()

	require.Equal(t, []int{0, 1, 2, 3, 4, 5}, started)
}

func TestExecutor_ErrorsAreIsolated(t *testing.T) {
	errOdd := errors.New("odd number")
	exec, err := New(func(ctx context.Context, n int) (int, error) {
		time.Sleep(time.Millisecond)
		if n%2 == 1 {
			return 0, errOdd
		}
		return n, nil
	}, Opts{ParallelCalls: 2})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, execErr := exec.Exec(context.Background(), i)
			if i%2 == 1 {
				assert.ErrorIs(t, execErr, errOdd)
				return
			}
			assert.NoError(t, execErr)
			assert.Equal(t, i, res)
		}(i)
	}
	wg.Wait()
	require.Equal(t, 0, exec.Active())
}

func TestExecutor_PanicReleasesSlot(t *testing.T) {
	exec, err := New(func(ctx context.Context, n int) (int, error) {
		if n == 0 {
			panic("boom")
		}
		return n, nil
	}, Opts{})
	require.NoError(t, err)

	require.Panics(t, func() { _, _ = exec.Exec(context.Background(), 0) })
	require.Equal(t, 0, exec.Active())

	res, err := exec.Exec(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, 5, res)
}

func TestExecutor_CanceledWhileQueued(t *testing.T) {
	release := make(chan struct{})
	var invoked atomic.Int32
	exec, err := New(func(ctx context.Context, n int) (int, error) {
		invoked.Inc()
		if n == 0 {
			<-release
		}
		return n, nil
	}, Opts{ParallelCalls: 1})
	require.NoError(t, err)

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = exec.Exec(context.Background(), 0)
	}()
	require.Eventually(t, func() bool { return exec.Active() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*20)
	defer cancel()
	_, err = exec.Exec(ctx, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-firstDone

	// Withdrawn call is skipped, the slot is free again.
	res, err := exec.Exec(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 2, res)
	require.Equal(t, int32(2), invoked.Load())
	require.Equal(t, 0, exec.Active())
	require.Equal(t, 0, exec.Queued())
}

func TestExecutor_DuplicatesAreNotCoalesced(t *testing.T) {
	var invoked atomic.Int32
	wrapped, err := Wrap(func(ctx context.Context, key string) (string, error) {
		invoked.Inc()
		return key, nil
	}, 0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, callErr := wrapped(context.Background(), "same")
		require.NoError(t, callErr)
		require.Equal(t, "same", res)
	}
	require.Equal(t, int32(3), invoked.Load())
}

func TestNew(t *testing.T) {
	_, err := New[int, int](nil, Opts{})
	require.ErrorIs(t, err, ErrNilOperation)

	exec, err := New(func(ctx context.Context, n int) (int, error) { return n, nil }, Opts{ParallelCalls: 0})
	require.NoError(t, err)
	require.Equal(t, DefaultParallelCalls, exec.Limit())
}

func TestExecutor_MetricsAndLogs(t *testing.T) {
	metrics := NewPrometheusMetrics()
	logRecorder := logtest.NewRecorder()
	release := make(chan struct{})
	exec, err := New(func(ctx context.Context, n int) (int, error) {
		<-release
		return n, nil
	}, Opts{ParallelCalls: 1, MetricsCollector: metrics, Logger: logRecorder})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = exec.Exec(context.Background(), i)
		}(i)
	}
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.ActiveCalls) == 1 && testutil.ToFloat64(metrics.QueuedCalls) == 2
	}, time.Second, time.Millisecond)

	_, found := logRecorder.FindEntry("call is queued, concurrency limit reached")
	require.True(t, found)

	close(release)
	wg.Wait()
	require.Equal(t, float64(0), testutil.ToFloat64(metrics.ActiveCalls))
	require.Equal(t, float64(0), testutil.ToFloat64(metrics.QueuedCalls))
}

func TestConfig(t *testing.T) {
	cfg := NewConfig("")
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(""), config.DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Equal(t, NewDefaultConfig(""), cfg)

	cfg = NewConfig("geo.lookup")
	err = config.NewDefaultLoader("").LoadFromReader(
		bytes.NewBufferString("geo:\n  lookup:\n    parallelCalls: 4\n"), config.DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.ParallelCalls)
	require.Equal(t, 4, cfg.Opts().ParallelCalls)

	cfg = NewConfig("")
	err = config.NewDefaultLoader("").LoadFromReader(
		bytes.NewBufferString("asyncLimit:\n  parallelCalls: 0\n"), config.DataTypeYAML, cfg)
	require.EqualError(t, err, "asyncLimit.parallelCalls: must be >= 1")
}
