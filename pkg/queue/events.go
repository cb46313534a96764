package queue

import "sync"

// EventType identifies a lifecycle or message event emitted by a Queue.
type EventType string

const (
	// EventConnect is emitted when a transport connection to Redis is
	// established after none was, or after a handle lost its connection.
	// Additional pooled connections do not emit it.
	EventConnect EventType = "connect"
	// EventReady is emitted when the primary handle answers commands.
	EventReady EventType = "ready"
	// EventError is emitted for connection failures and failed publishes.
	EventError EventType = "error"
	// EventReconnecting is emitted before a reconnect attempt is scheduled.
	EventReconnecting EventType = "reconnecting"
	// EventMessage is emitted for every message received on the queue's
	// channel while subscribed.
	EventMessage EventType = "message"
)

var eventTypes = []EventType{
	EventConnect,
	EventReady,
	EventError,
	EventReconnecting,
	EventMessage,
}

// Event is delivered to listeners registered with On.
//
// Payload is only set for EventMessage. Err is set for EventError and
// EventReconnecting.
type Event struct {
	Type    EventType
	Payload string
	Err     error
}

// Listener receives events. Listeners must not block for long.
//
// Message events and the subscription handle's error and reconnecting events
// are delivered in order on a goroutine owned by the subscription handle, so
// a listener may call Subscribe or Unsubscribe. Other events run on the
// goroutine that emits them.
type Listener func(Event)

type listener struct {
	fn Listener
}

type emitter struct {
	mu        sync.RWMutex
	listeners map[EventType][]*listener
}

func newEmitter() *emitter {
	return &emitter{listeners: make(map[EventType][]*listener)}
}

func (e *emitter) on(t EventType, fn Listener) func() {
	l := &listener{fn: fn}
	e.mu.Lock()
	e.listeners[t] = append(e.listeners[t], l)
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			ls := e.listeners[t]
			for i, v := range ls {
				if v == l {
					e.listeners[t] = append(ls[:i:i], ls[i+1:]...)
					return
				}
			}
		})
	}
}

func (e *emitter) emit(ev Event) {
	e.mu.RLock()
	ls := e.listeners[ev.Type]
	e.mu.RUnlock()
	for _, l := range ls {
		l.fn(ev)
	}
}
