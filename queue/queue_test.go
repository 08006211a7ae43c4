/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[int]()
	require.True(t, q.IsEmpty())

	for i := 1; i <= 5; i++ {
		q.Enqueue(i)
		require.Equal(t, i, q.Size())
	}

	head, ok := q.Peek()
	require.True(t, ok)
	require.Equal(t, 1, head)

	for i := 1; i <= 5; i++ {
		v, ok := q.Dequeue()
		require.True(t, ok)
		require.Equal(t, i, v)
		require.Equal(t, 5-i, q.Size())
	}
	require.True(t, q.IsEmpty())
}

func TestQueue_DequeueEmpty(t *testing.T) {
	q := New[string]()

	v, ok := q.Dequeue()
	require.False(t, ok)
	require.Equal(t, "", v)
	require.Equal(t, 0, q.Size())

	_, ok = q.Peek()
	require.False(t, ok)
}

func TestQueue_InterleavedOperations(t *testing.T) {
	q := New[string]()
	q.Enqueue("a")
	q.Enqueue("b")

	v, _ := q.Dequeue()
	require.Equal(t, "a", v)

	q.Enqueue("c")
	v, _ = q.Dequeue()
	require.Equal(t, "b", v)
	v, _ = q.Dequeue()
	require.Equal(t, "c", v)

	// Queue must be reusable after draining.
	_, ok := q.Dequeue()
	require.False(t, ok)
	q.Enqueue("d")
	require.Equal(t, 1, q.Size())
	v, ok = q.Dequeue()
	require.True(t, ok)
	require.Equal(t, "d", v)
	require.True(t, q.IsEmpty())
}
