// Package queue implements a FIFO queue and publish/subscribe channel on top
// of Redis lists and pub/sub.
//
// A Queue owns two kinds of Redis handles: the primary client, used for list
// commands and publishing, and a lazily created subscription handle, used
// only while subscribed. Redis does not allow list commands on a connection
// in subscriber mode, so the two are never shared.
//
// Connection lifecycle changes and received messages are re-emitted to
// listeners registered with On.
package queue

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-redis/redis"
)

const (
	// DefaultHost is the Redis host used when Config.Host is empty.
	DefaultHost = "127.0.0.1"
	// DefaultPort is the Redis port used when Config.Port is zero.
	DefaultPort = 6379

	// ReconnectDelay is the fixed delay between connection health checks,
	// and therefore between reconnect attempts.
	ReconnectDelay = 3 * time.Second
	// ConfirmationTimeout bounds how long Subscribe and Unsubscribe wait for
	// Redis to confirm the request.
	ConfirmationTimeout = time.Second

	errorSuffix = "_error"
)

// Config holds the construction options for a Queue.
type Config struct {
	Host string
	Port int

	// Options are passed through to the Redis client. Addr is always
	// derived from Host and Port.
	Options *redis.Options

	// Client is an existing Redis client to use instead of creating one.
	// The Queue never closes a client it did not create.
	Client *redis.Client

	// OnEvent, if set, receives every event from the moment the Queue is
	// created, before any connection is attempted.
	OnEvent Listener

	Log log.Logger
}

type timing struct {
	reconnectDelay time.Duration
	confirmTimeout time.Duration
}

var defaultTiming = timing{
	reconnectDelay: ReconnectDelay,
	confirmTimeout: ConfirmationTimeout,
}

// Queue is a Redis backed FIFO queue and pub/sub channel sharing one name.
type Queue struct {
	name     string
	errorKey string
	addr     string
	owned    bool
	client   *redis.Client
	log      log.Logger
	events   *emitter
	timing   timing

	// connected is cleared by any handle that loses its transport. The next
	// established transport emits EventConnect.
	connected atomic.Bool

	// newPubSub creates the subscription handle.
	newPubSub func() pubSub

	mu       sync.RWMutex
	closing  bool
	inflight sync.WaitGroup

	stop      chan struct{}
	closeOnce sync.Once
	closeErr  error

	// subMu serializes Subscribe and Unsubscribe and guards sub.
	subMu sync.Mutex
	sub   *subscriber
}

// New creates a Queue named name.
//
// The name is used as the Redis list key and the pub/sub channel. Rejected
// messages are kept in a second list whose key is the name with an "_error"
// suffix.
func New(name string, conf Config) (*Queue, error) {
	return newQueue(name, conf, defaultTiming)
}

func newQueue(name string, conf Config, t timing) (*Queue, error) {
	if len(name) == 0 {
		return nil, ErrInvalidName
	}

	l := conf.Log
	if l == nil {
		l = log.NewNopLogger()
	}
	q := &Queue{
		name:     name,
		errorKey: name + errorSuffix,
		events:   newEmitter(),
		timing:   t,
		stop:     make(chan struct{}),
	}
	if conf.OnEvent != nil {
		for _, et := range eventTypes {
			q.events.on(et, conf.OnEvent)
		}
	}

	if conf.Client != nil {
		q.client = conf.Client
		q.addr = conf.Client.Options().Addr
	} else {
		q.owned = true
		q.client = redis.NewClient(q.clientOptions(conf))
		q.addr = q.client.Options().Addr
	}
	q.log = log.With(l, "queue", name, "addr", q.addr)
	q.newPubSub = func() pubSub {
		// Subscribing without channels defers dialing until the first
		// SUBSCRIBE is sent on the handle.
		return q.client.Subscribe()
	}

	go q.supervise()
	return q, nil
}

func (q *Queue) clientOptions(conf Config) *redis.Options {
	host := conf.Host
	if host == "" {
		host = DefaultHost
	}
	port := conf.Port
	if port == 0 {
		port = DefaultPort
	}

	var opt redis.Options
	if conf.Options != nil {
		opt = *conf.Options
	}
	opt.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	opt.Dialer = q.dialer(&opt, opt.Dialer)
	return &opt
}

// dialer wraps the connection dialer to report established transports.
//
// opt is read at dial time since the Redis client fills in defaults after
// the options are handed to it.
func (q *Queue) dialer(opt *redis.Options, next func() (net.Conn, error)) func() (net.Conn, error) {
	return func() (net.Conn, error) {
		var (
			cn  net.Conn
			err error
		)
		if next != nil {
			cn, err = next()
		} else {
			network := opt.Network
			if network == "" {
				network = "tcp"
			}
			d := &net.Dialer{
				Timeout:   opt.DialTimeout,
				KeepAlive: 5 * time.Minute,
			}
			cn, err = d.Dial(network, opt.Addr)
			if err == nil && opt.TLSConfig != nil {
				cn = tls.Client(cn, opt.TLSConfig)
			}
		}
		if err != nil {
			return nil, err
		}
		q.markConnected()
		return cn, nil
	}
}

func (q *Queue) markConnected() {
	if q.connected.CompareAndSwap(false, true) {
		q.events.emit(Event{Type: EventConnect})
	}
}

// Name returns the name of the queue.
func (q *Queue) Name() string { return q.name }

// ErrorKey returns the Redis key of the list holding requeued messages.
func (q *Queue) ErrorKey() string { return q.errorKey }

// On registers fn to be called for every event of type t. The returned
// function removes the registration.
func (q *Queue) On(t EventType, fn Listener) (remove func()) {
	return q.events.on(t, fn)
}

// supervise health checks the primary handle until the queue is closed.
//
// A failed check is reported as EventError followed by EventReconnecting and
// retried after the reconnect delay, except for DNS failures, which stop
// the loop.
func (q *Queue) supervise() {
	ready := false
	for {
		err := q.client.Ping().Err()
		if q.stopped() {
			return
		}
		switch {
		case err == nil && !ready:
			ready = true
			if !q.owned {
				// Adopted clients are dialed by someone else.
				q.markConnected()
			}
			_ = q.log.Log("LEVEL", "DEBUG", "MESSAGE", "Redis connection ready")
			q.events.emit(Event{Type: EventReady})
		case err != nil:
			ready = false
			q.connected.Store(false)
			cerr := connectionError(q.addr, err)
			_ = q.log.Log("LEVEL", "ERROR", "MESSAGE", cerr.Error())
			q.events.emit(Event{Type: EventError, Err: cerr})
			if cerr.Fatal {
				return
			}
			q.events.emit(Event{Type: EventReconnecting, Err: err})
		}
		if !q.sleep(q.timing.reconnectDelay) {
			return
		}
	}
}

func (q *Queue) stopped() bool {
	select {
	case <-q.stop:
		return true
	default:
		return false
	}
}

// sleep waits for d and reports whether the queue is still open.
func (q *Queue) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-q.stop:
		return false
	}
}

// begin registers an in-flight command.
func (q *Queue) begin() error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closing {
		return ErrClosed
	}
	q.inflight.Add(1)
	return nil
}

func (q *Queue) end() {
	q.inflight.Done()
}

// Close closes the queue without waiting for in-flight commands.
//
// The subscription handle is closed. The primary client is closed only if
// the queue created it.
func (q *Queue) Close() error {
	q.mu.Lock()
	q.closing = true
	q.mu.Unlock()

	q.closeOnce.Do(func() {
		close(q.stop)

		q.subMu.Lock()
		if q.sub != nil {
			q.sub.close()
			q.sub = nil
		}
		q.subMu.Unlock()

		if q.owned {
			q.closeErr = q.client.Close()
		}
	})
	return q.closeErr
}

// Quit stops accepting commands, waits for in-flight commands to finish and
// then closes the queue.
//
// If ctx ends first, the queue is closed anyway and the context error is
// returned.
func (q *Queue) Quit(ctx context.Context) error {
	q.mu.Lock()
	q.closing = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return q.Close()
	case <-ctx.Done():
		_ = q.Close()
		return ctx.Err()
	}
}

func (q *Queue) String() string {
	return fmt.Sprintf("queue %q at %s", q.name, q.addr)
}
