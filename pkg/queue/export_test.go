package queue

import "time"

type PubSub = pubSub

// NewWithTiming creates a Queue with custom reconnect and confirmation
// timings.
func NewWithTiming(name string, conf Config, reconnect, confirm time.Duration) (*Queue, error) {
	return newQueue(name, conf, timing{
		reconnectDelay: reconnect,
		confirmTimeout: confirm,
	})
}

// SetPubSubFactory replaces how the subscription handle is created.
func SetPubSubFactory(q *Queue, f func() PubSub) {
	q.subMu.Lock()
	defer q.subMu.Unlock()
	q.newPubSub = f
}
