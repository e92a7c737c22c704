// Package ring provides a bounded FIFO queue shared between goroutines
package ring

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by blocking operations on a closed queue
var ErrClosed = errors.New("queue closed")

// Queue is a bounded FIFO. TryPush and TryPop never block and are safe to
// call from any goroutine, including after Close. Push and Pop block until
// they can proceed, the queue is closed, or ctx is done.
type Queue[T any] struct {
	mu     sync.Mutex
	buf    []T
	head   int
	size   int
	closed bool

	notEmpty chan struct{}
	notFull  chan struct{}
	done     chan struct{}
}

// New creates a queue holding at most capacity elements
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Queue[T]{
		buf:      make([]T, capacity),
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Cap returns the capacity of the queue
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}

// Len returns the number of queued elements
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Free returns the number of elements that can be pushed without blocking
func (q *Queue[T]) Free() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf) - q.size
}

// TryPush appends v unless the queue is full or closed
func (q *Queue[T]) TryPush(v T) bool {
	q.mu.Lock()
	if q.closed || q.size == len(q.buf) {
		q.mu.Unlock()
		return false
	}
	q.buf[(q.head+q.size)%len(q.buf)] = v
	q.size++
	q.mu.Unlock()

	wake(q.notEmpty)
	return true
}

// TryPop removes the oldest element if there is one
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T

	q.mu.Lock()
	if q.size == 0 {
		q.mu.Unlock()
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	remaining := q.size
	q.mu.Unlock()

	wake(q.notFull)
	if remaining > 0 {
		// pass the wake-up on to the next waiting consumer
		wake(q.notEmpty)
	}
	return v, true
}

// Push appends v, waiting for space while the queue is full
func (q *Queue[T]) Push(ctx context.Context, v T) error {
	for {
		if q.TryPush(v) {
			return nil
		}
		if q.isClosed() {
			return ErrClosed
		}
		select {
		case <-q.notFull:
		case <-q.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pop removes the oldest element, waiting while the queue is empty.
// Elements queued before Close are still delivered.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryPop(); ok {
			return v, nil
		}
		if q.isClosed() {
			var zero T
			return zero, ErrClosed
		}
		select {
		case <-q.notEmpty:
		case <-q.done:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Done returns a channel closed when the queue is closed
func (q *Queue[T]) Done() <-chan struct{} {
	return q.done
}

// Close rejects further pushes and wakes every blocked caller
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Drain discards all queued elements and returns how many were removed
func (q *Queue[T]) Drain() int {
	n := 0
	for {
		if _, ok := q.TryPop(); !ok {
			return n
		}
		n++
	}
}

func (q *Queue[T]) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func wake(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
