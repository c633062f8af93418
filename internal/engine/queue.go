package engine

import (
	"sync"

	"github.com/roach88/rulecore/internal/modifier"
	"github.com/roach88/rulecore/internal/status"
)

// Submission is a status write handed to the engine from outside the
// engine goroutine.
type Submission struct {
	Assignment status.Assignment
	Delay      modifier.Delay
}

// submitQueue is a thread-safe FIFO of submissions.
//
// Other goroutines enqueue; the engine goroutine drains the queue into the
// modifier at the start of each cycle, so the modifier itself never sees
// concurrent access.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type submitQueue struct {
	mu      sync.Mutex
	pending []Submission
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func newSubmitQueue() *submitQueue {
	return &submitQueue{
		pending: make([]Submission, 0, 64),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds a submission to the back of the queue.
// Returns false if the queue is closed.
func (q *submitQueue) Enqueue(s Submission) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.pending = append(q.pending, s)

	// Non-blocking; the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// Drain removes and returns every queued submission in FIFO order.
func (q *submitQueue) Drain() []Submission {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	out := q.pending
	q.pending = make([]Submission, 0, cap(out))
	return out
}

// Wait returns a channel that signals when submissions may be available.
// The channel is closed when the queue is closed.
func (q *submitQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *submitQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close signals that no more submissions will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *submitQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
