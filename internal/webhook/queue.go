package webhook

import (
	"context"
	"encoding/json"
	"sync"
)

// Event is one inbound panel notification, enqueued verbatim and processed
// at most once per dequeue.
type Event struct {
	ID     string          // assigned at ingress for log correlation
	Action string          // panel event kind, e.g. "user_deactivated"
	User   json.RawMessage // user-state snapshot, decoded lazily by the worker
}

// Queue is an unbounded FIFO of events. Push never blocks; Pop blocks until
// an event is available or the context is cancelled.
type Queue struct {
	mu     sync.Mutex
	items  []Event
	signal chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Push appends an event.
func (q *Queue) Push(event Event) {
	q.mu.Lock()
	q.items = append(q.items, event)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest event, blocking until one exists.
func (q *Queue) Pop(ctx context.Context) (Event, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			event := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return event, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-q.signal:
		}
	}
}

// Len reports the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
