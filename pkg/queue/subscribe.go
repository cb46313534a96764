package queue

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis"
)

// pubSub is the subset of *redis.PubSub used by the subscription handle. A
// handle in subscriber mode cannot run list commands, so it is kept apart
// from the primary client.
type pubSub interface {
	Subscribe(channels ...string) error
	Unsubscribe(channels ...string) error
	Receive() (interface{}, error)
	Close() error
}

const (
	kindSubscribe   = "subscribe"
	kindUnsubscribe = "unsubscribe"
)

// subscriber owns a subscription handle, the goroutine reading from it and
// the goroutine delivering its events to listeners.
//
// Events are delivered off the reading goroutine so a listener may call
// Subscribe or Unsubscribe while the reader keeps collecting confirmations.
type subscriber struct {
	ps   pubSub
	stop chan struct{}
	// done is closed when the reader exits. err is set before that if the
	// reader stopped on a fatal error.
	done chan struct{}
	err  error

	closeOnce sync.Once

	mu      sync.Mutex
	waiters map[string][]chan int
	pending []Event
	wake    chan struct{}
}

// Subscribe subscribes to the queue's channel and returns the number of
// channels the subscription handle is subscribed to, as confirmed by Redis.
//
// Every message received afterwards is emitted as an EventMessage carrying
// only the payload. If Redis does not confirm within ConfirmationTimeout, an
// error with cause ErrConfirmationTimeout is returned and a later
// confirmation is discarded.
func (q *Queue) Subscribe(ctx context.Context) (int, error) {
	q.subMu.Lock()
	defer q.subMu.Unlock()

	if q.stopped() {
		return 0, ErrClosed
	}
	q.dropExited()
	if q.sub == nil {
		q.sub = q.newSubscriber()
	}
	return q.request(ctx, q.sub, kindSubscribe, q.sub.ps.Subscribe)
}

// Unsubscribe unsubscribes from the queue's channel and returns the number of
// channels the subscription handle remains subscribed to.
//
// ErrNotSubscribed is returned if there is no live subscription handle. Once
// no subscriptions remain the subscription handle is closed.
func (q *Queue) Unsubscribe(ctx context.Context) (int, error) {
	q.subMu.Lock()
	defer q.subMu.Unlock()

	if q.stopped() {
		return 0, ErrClosed
	}
	q.dropExited()
	if q.sub == nil {
		return 0, ErrNotSubscribed
	}
	n, err := q.request(ctx, q.sub, kindUnsubscribe, q.sub.ps.Unsubscribe)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		q.sub.close()
		q.sub = nil
	}
	return n, nil
}

// dropExited discards a subscription handle whose reader has stopped.
// subMu must be held.
func (q *Queue) dropExited() {
	if q.sub != nil && q.sub.exited() {
		q.sub.close()
		q.sub = nil
	}
}

// release closes s and forgets it if it is still the current handle.
func (q *Queue) release(s *subscriber) {
	q.subMu.Lock()
	if q.sub == s {
		q.sub = nil
	}
	q.subMu.Unlock()
	s.close()
}

// request sends a subscribe or unsubscribe request and waits for the
// confirmation.
func (q *Queue) request(ctx context.Context, s *subscriber, kind string, send func(...string) error) (int, error) {
	c := s.expect(kind)
	if err := send(q.name); err != nil {
		s.forget(kind, c)
		return 0, commandError(kind, q.name, err)
	}

	timer := time.NewTimer(q.timing.confirmTimeout)
	defer timer.Stop()
	select {
	case n := <-c:
		return n, nil
	case <-timer.C:
		s.forget(kind, c)
		_ = q.log.Log("LEVEL", "WARN", "MESSAGE", "No "+kind+" confirmation from Redis")
		return 0, confirmationTimeout(kind, q.timing.confirmTimeout)
	case <-s.done:
		s.forget(kind, c)
		if s.err != nil {
			return 0, s.err
		}
		return 0, ErrClosed
	case <-ctx.Done():
		s.forget(kind, c)
		return 0, ctx.Err()
	case <-q.stop:
		s.forget(kind, c)
		return 0, ErrClosed
	}
}

func (q *Queue) newSubscriber() *subscriber {
	s := &subscriber{
		ps:      q.newPubSub(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		waiters: make(map[string][]chan int),
		wake:    make(chan struct{}, 1),
	}
	go q.receive(s)
	go q.deliver(s)
	return s
}

// receive dispatches replies read from the subscription handle until the
// handle is closed or fails fatally.
func (q *Queue) receive(s *subscriber) {
	defer close(s.done)
	for {
		msg, err := s.ps.Receive()
		select {
		case <-s.stop:
			return
		default:
		}
		if err != nil {
			cerr := connectionError(q.addr, err)
			q.connected.Store(false)
			_ = q.log.Log("LEVEL", "ERROR", "MESSAGE", "subscription: "+cerr.Error())
			s.push(Event{Type: EventError, Err: cerr})
			if cerr.Fatal {
				s.err = cerr
				go q.release(s)
				return
			}
			s.push(Event{Type: EventReconnecting, Err: err})
			// The client reconnects and resubscribes on the next receive.
			t := time.NewTimer(q.timing.reconnectDelay)
			select {
			case <-t.C:
			case <-s.stop:
				t.Stop()
				return
			}
			continue
		}

		switch m := msg.(type) {
		case *redis.Message:
			s.push(Event{Type: EventMessage, Payload: m.Payload})
		case *redis.Subscription:
			if !s.confirm(m.Kind, m.Count) {
				_ = q.log.Log("LEVEL", "DEBUG", "MESSAGE", "Ignoring unrequested "+m.Kind+" confirmation")
			}
		}
	}
}

// deliver emits queued events in order. Events queued before the handle is
// closed are still delivered.
func (q *Queue) deliver(s *subscriber) {
	for {
		stopping := false
		select {
		case <-s.wake:
		case <-s.stop:
			stopping = true
		}
		for {
			ev, ok := s.next()
			if !ok {
				break
			}
			q.events.emit(ev)
		}
		if stopping {
			return
		}
	}
}

func (s *subscriber) push(ev Event) {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) next() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return Event{}, false
	}
	ev := s.pending[0]
	s.pending[0] = Event{}
	s.pending = s.pending[1:]
	return ev, true
}

func (s *subscriber) expect(kind string) chan int {
	c := make(chan int, 1)
	s.mu.Lock()
	s.waiters[kind] = append(s.waiters[kind], c)
	s.mu.Unlock()
	return c
}

func (s *subscriber) forget(kind string, c chan int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.waiters[kind]
	for i, w := range ws {
		if w == c {
			s.waiters[kind] = append(ws[:i:i], ws[i+1:]...)
			return
		}
	}
}

// confirm hands count to the oldest waiter for kind. It reports false if no
// one is waiting.
func (s *subscriber) confirm(kind string, count int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.waiters[kind]
	if len(ws) == 0 {
		return false
	}
	s.waiters[kind] = ws[1:]
	ws[0] <- count
	return true
}

func (s *subscriber) exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		_ = s.ps.Close()
	})
}
