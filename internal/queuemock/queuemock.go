package queuemock

import (
	"context"
	"sync"

	"github.com/rwool/redisqueue/pkg/queue"
)

// QueueMock is an in-memory implementation of the service.Queue type that
// also supports subscriptions.
//
// Intended for testing only.
type QueueMock struct {
	mu         sync.Mutex
	items      []string
	errors     []string
	subscribed bool
	listeners  []queue.Listener

	// Err, if set, is returned by every command.
	Err error
}

// New returns a new QueueMock.
func New() *QueueMock {
	return &QueueMock{}
}

// Put appends payload to the queue.
func (q *QueueMock) Put(_ context.Context, payload string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return 0, q.Err
	}
	q.items = append(q.items, payload)
	return int64(len(q.items)), nil
}

// Pop removes the head of the queue.
func (q *QueueMock) Pop(_ context.Context) (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return "", false, q.Err
	}
	if len(q.items) == 0 {
		return "", false, nil
	}
	v := q.items[0]
	q.items = q.items[1:]
	return v, true, nil
}

// GetAll returns a copy of the queue.
func (q *QueueMock) GetAll(_ context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return nil, q.Err
	}
	return append([]string{}, q.items...), nil
}

// GetAllErrors returns a copy of the error list.
func (q *QueueMock) GetAllErrors(_ context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return nil, q.Err
	}
	return append([]string{}, q.errors...), nil
}

// Requeue appends payload to the error list.
func (q *QueueMock) Requeue(_ context.Context, payload string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return 0, q.Err
	}
	q.errors = append(q.errors, payload)
	return int64(len(q.errors)), nil
}

// Clear empties the queue and the error list.
func (q *QueueMock) Clear(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return 0, q.Err
	}
	var n int64
	if len(q.items) > 0 {
		n++
	}
	if len(q.errors) > 0 {
		n++
	}
	q.items, q.errors = nil, nil
	return n, nil
}

// Publish delivers payload to the message listeners if subscribed.
func (q *QueueMock) Publish(payload string) {
	q.mu.Lock()
	var ls []queue.Listener
	if q.subscribed {
		ls = append(ls, q.listeners...)
	}
	q.mu.Unlock()
	for _, l := range ls {
		l(queue.Event{Type: queue.EventMessage, Payload: payload})
	}
}

// Subscribe starts delivering published payloads.
func (q *QueueMock) Subscribe(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subscribed = true
	return 1, nil
}

// Unsubscribe stops delivering published payloads.
func (q *QueueMock) Unsubscribe(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.subscribed {
		return 0, queue.ErrNotSubscribed
	}
	q.subscribed = false
	return 0, nil
}

// Subscribed reports whether the mock is subscribed.
func (q *QueueMock) Subscribed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.subscribed
}

// On registers a listener. Only EventMessage is ever emitted.
func (q *QueueMock) On(t queue.EventType, fn queue.Listener) func() {
	if t != queue.EventMessage {
		return func() {}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, fn)
	i := len(q.listeners) - 1
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.listeners[i] = func(queue.Event) {}
	}
}
