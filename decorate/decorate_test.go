/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package decorate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-callkit/memoize"
)

func TestConfigurationError(t *testing.T) {
	tests := []struct {
		name      string
		decorate  func() error
		decorator string
	}{
		{
			name: "throttleAsync over nil operation",
			decorate: func() error {
				_, err := ThrottleAsync[int, int](nil)
				return err
			},
			decorator: DecoratorThrottleAsync,
		},
		{
			name: "delegate over nil operation",
			decorate: func() error {
				_, err := Delegate[int, int](nil, nil)
				return err
			},
			decorator: DecoratorDelegate,
		},
		{
			name: "memoize over nil operation",
			decorate: func() error {
				_, err := MemoizeFor[int, int](nil, time.Second)
				return err
			},
			decorator: DecoratorMemoize,
		},
		{
			name: "memoize with negative ttl",
			decorate: func() error {
				_, err := MemoizeFor(func(ctx context.Context, n int) (int, error) { return n, nil }, -time.Second)
				return err
			},
			decorator: DecoratorMemoize,
		},
		{
			name: "throttle with negative delay",
			decorate: func() error {
				_, err := Throttle(func(int) {}, -time.Second)
				return err
			},
			decorator: DecoratorThrottle,
		},
		{
			name: "debounce over nil operation",
			decorate: func() error {
				_, err := Debounce[int](nil, time.Second)
				return err
			},
			decorator: DecoratorDebounce,
		},
		{
			name: "delay over nil operation",
			decorate: func() error {
				_, err := Delay[int](nil, time.Second)
				return err
			},
			decorator: DecoratorDelay,
		},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decorate()
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			require.Equal(t, tt.decorator, cfgErr.Decorator)
		})
	}

	_, err := Delegate[int, int](nil, nil)
	require.ErrorIs(t, err, ErrNilOperation)
	require.Panics(t, func() { Must(ThrottleAsync[int, int](nil)) })
}

func TestThrottleAsync_DefaultsToOneCall(t *testing.T) {
	var running, maxRunning atomic.Int32
	fn := Must(ThrottleAsync(func(ctx context.Context, n int) (int, error) {
		cur := running.Inc()
		if cur > maxRunning.Load() {
			maxRunning.Store(cur)
		}
		time.Sleep(time.Millisecond * 5)
		running.Dec()
		return n, nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := fn(context.Background(), i)
			assert.NoError(t, err)
			assert.Equal(t, i, res)
		}(i)
	}
	wg.Wait()
	require.Equal(t, int32(1), maxRunning.Load())
}

// Coalescing and memoization compose: concurrent calls share the in-flight invocation,
// later calls are served from the cache.
func TestMemoizeOverDelegate(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context, id string) (string, error) {
		calls.Inc()
		<-release
		return "user-" + id, nil
	}

	get := Must(MemoizeFor(Must(Delegate(fetch, nil)), time.Minute))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := get(context.Background(), "7")
			assert.NoError(t, err)
			assert.Equal(t, "user-7", res)
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond*5)
	time.Sleep(time.Millisecond * 20)
	close(release)
	wg.Wait()
	require.Equal(t, int32(1), calls.Load())

	res, err := get(context.Background(), "7")
	require.NoError(t, err)
	require.Equal(t, "user-7", res)
	require.Equal(t, int32(1), calls.Load())
}

func TestMemoize_WithConfig(t *testing.T) {
	var calls atomic.Int32
	fn := func(ctx context.Context, n int) (int, error) {
		calls.Inc()
		if n < 0 {
			return 0, errors.New("negative")
		}
		return n * 10, nil
	}
	cfg := memoize.NewConfig("")
	cfg.MaxEntries = 1
	get := Must(Memoize(fn, cfg))

	for _, n := range []int{1, 1, 2, 1} {
		_, err := get(context.Background(), n)
		require.NoError(t, err)
	}
	require.Equal(t, int32(3), calls.Load(), "1 must be evicted by 2")

	_, err := get(context.Background(), -1)
	require.EqualError(t, err, "negative")
	_, err = get(context.Background(), -1)
	require.EqualError(t, err, "negative")
	require.Equal(t, int32(5), calls.Load())
}

func TestCallRateDecorators(t *testing.T) {
	var mu sync.Mutex
	var got []string
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, s)
	}
	snapshot := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), got...)
	}

	throttled := Must(Throttle(record, time.Hour))
	throttled("t1")
	throttled("t2")
	require.Equal(t, []string{"t1"}, snapshot())

	debounced := Must(Debounce(record, time.Millisecond*20))
	debounced("d1")
	debounced("d2")
	require.Eventually(t, func() bool { return len(snapshot()) == 2 }, time.Second, time.Millisecond*5)
	require.Equal(t, []string{"t1", "d2"}, snapshot())

	delayed := Must(Delay(record, time.Millisecond*10))
	delayed("x")
	require.Len(t, snapshot(), 2)
	require.Eventually(t, func() bool { return len(snapshot()) == 3 }, time.Second, time.Millisecond*5)
}
