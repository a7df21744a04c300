// Package queue provides the thread-safe FIFO that buffers captured
// frames and events between the tick loop and the batch writers.
package queue

import (
	"sync"
)

// Queue accumulates items until a writer drains them. All methods are
// safe for concurrent use.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0),
	}
}

// Push appends items in arrival order.
func (q *Queue[T]) Push(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
}

// Pop removes and returns the oldest item, or the zero value when the
// queue is empty.
func (q *Queue[T]) Pop() T {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero
	}
	item := q.items[0]
	// Release the head slot so drained items do not pin memory.
	q.items[0] = zero
	q.items = q.items[1:]
	return item
}

// Empty reports whether the queue holds no items.
func (q *Queue[T]) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear discards all buffered items.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = q.items[:0]
}

// GetAndEmpty hands the whole backlog to the caller and resets the
// queue. Writers use this to drain with one lock acquisition per flush.
func (q *Queue[T]) GetAndEmpty() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	backlog := q.items
	q.items = make([]T, 0, cap(backlog))
	return backlog
}
