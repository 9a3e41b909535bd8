package queue

import "time"

// Bounded is a fixed-capacity FIFO queue with drop-oldest overflow.
//
// Enqueue never blocks and never fails: when the queue is full the oldest
// item is evicted to make room, on the theory that stale telemetry is less
// valuable than fresh telemetry. FIFO order is preserved among items that
// are not evicted, and no item is duplicated or reordered.
//
// All methods are safe for concurrent use.
type Bounded[T any] struct {
	items chan T
}

// NewBounded creates a queue holding at most capacity items.
// Capacity must be at least 1.
func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Bounded[T]{items: make(chan T, capacity)}
}

// Enqueue adds item to the queue, evicting the oldest item first if the
// queue is at capacity. It reports whether an eviction happened so callers
// can log data loss.
func (q *Bounded[T]) Enqueue(item T) (evicted bool) {
	for {
		select {
		case q.items <- item:
			return evicted
		default:
		}
		// Full: drop the oldest and retry. A concurrent consumer may have
		// raced us to it, in which case the retry simply succeeds.
		select {
		case <-q.items:
			evicted = true
		default:
		}
	}
}

// Dequeue removes and returns the oldest item, blocking until one is
// available or timeout elapses. The second return value is false on
// timeout; a timeout is an expected idle condition, not an error.
func (q *Bounded[T]) Dequeue(timeout time.Duration) (T, bool) {
	select {
	case item := <-q.items:
		return item, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case item := <-q.items:
		return item, true
	case <-timer.C:
		var zero T
		return zero, false
	}
}

// Drain removes and returns all currently queued items in FIFO order.
// Used for the final flush on shutdown.
func (q *Bounded[T]) Drain() []T {
	var items []T
	for {
		select {
		case item := <-q.items:
			items = append(items, item)
		default:
			return items
		}
	}
}

// Len returns the number of items currently queued.
func (q *Bounded[T]) Len() int {
	return len(q.items)
}

// Cap returns the queue's fixed capacity.
func (q *Bounded[T]) Cap() int {
	return cap(q.items)
}
