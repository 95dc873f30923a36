package pool

import (
	"context"
	"time"
)

// Queue is a bounded FIFO buffer of pending tasks. The channel provides the
// serialization: length can never exceed capacity and producers contend only
// on the channel itself.
type Queue struct {
	ch chan Task
}

// NewQueue creates a queue with the given capacity
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan Task, capacity),
	}
}

// TryEnqueue appends the task without blocking. Returns false when the queue
// is at capacity.
func (q *Queue) TryEnqueue(t Task) bool {
	select {
	case q.ch <- t:
		return true
	default:
		return false
	}
}

// EnqueueTimeout blocks up to d for space. Returns false on timeout.
func (q *Queue) EnqueueTimeout(t Task, d time.Duration) bool {
	select {
	case q.ch <- t:
		return true
	default:
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case q.ch <- t:
		return true
	case <-timer.C:
		return false
	}
}

// Dequeue blocks until a task is available or ctx is cancelled. The second
// return is false only on cancellation; pending tasks left in the queue stay
// there.
func (q *Queue) Dequeue(ctx context.Context) (Task, bool) {
	// Cancellation wins over pending work, so a stopping pool never claims
	// a task it would have to abandon mid-flight.
	select {
	case <-ctx.Done():
		return Task{}, false
	default:
	}

	select {
	case t := <-q.ch:
		return t, true
	case <-ctx.Done():
		return Task{}, false
	}
}

// Depth returns the current number of queued tasks
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Capacity returns the maximum number of queued tasks
func (q *Queue) Capacity() int {
	return cap(q.ch)
}
