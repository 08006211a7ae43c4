/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package queue provides a minimal FIFO queue built on a singly linked list.
package queue

type node[T any] struct {
	value T
	next  *node[T]
}

// Queue is a first-in-first-out container.
// Enqueue and Dequeue run in O(1). Queue is not safe for concurrent use,
// the owner is responsible for synchronization.
type Queue[T any] struct {
	first *node[T]
	last  *node[T]
	size  int
}

// New creates an empty Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Enqueue appends the item to the tail of the queue.
func (q *Queue[T]) Enqueue(item T) {
	n := &node[T]{value: item}
	if q.last == nil {
		q.first = n
	} else {
		q.last.next = n
	}
	q.last = n
	q.size++
}

// Dequeue removes and returns the oldest item.
// If the queue is empty, it returns the zero value and false.
func (q *Queue[T]) Dequeue() (item T, ok bool) {
	if q.first == nil {
		return item, false
	}
	n := q.first
	q.first = n.next
	if q.first == nil {
		q.last = nil
	}
	n.next = nil // let GC collect the detached chain
	q.size--
	return n.value, true
}

// Peek returns the oldest item without removing it.
func (q *Queue[T]) Peek() (item T, ok bool) {
	if q.first == nil {
		return item, false
	}
	return q.first.value, true
}

// IsEmpty reports whether the queue has no items.
func (q *Queue[T]) IsEmpty() bool {
	return q.size == 0
}

// Size returns the number of items in the queue.
func (q *Queue[T]) Size() int {
	return q.size
}
