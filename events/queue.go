package events

import (
	"sync"
	"time"

	"github.com/c360studio/thinker/agent"
)

// Queue is an unbounded FIFO of events for one session, consumed by the SSE
// loop. Reads time out so the consumer can interleave heartbeats.
type Queue struct {
	mu     sync.Mutex
	items  []*agent.Event
	signal chan struct{}
	closed bool
}

func newQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

func (q *Queue) push(ev *agent.Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Next returns the next event, blocking up to timeout. The second return is
// false when the wait timed out or the queue was closed with nothing left.
func (q *Queue) Next(timeout time.Duration) (*agent.Event, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}

		select {
		case <-q.signal:
		case <-deadline.C:
			return nil, false
		}
	}
}

// Closed reports whether the queue was released by its producer.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len reports how many events are buffered.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue finished. Pending events remain readable.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}
