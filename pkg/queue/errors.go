package queue

import (
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidName is returned by New when the queue name is empty.
	ErrInvalidName = errors.New("queue constructor error: parameter `name` is not set")

	// ErrNotSubscribed is returned by Unsubscribe when there is no live
	// subscription handle.
	ErrNotSubscribed = errors.New("queue: not subscribed")

	// ErrConfirmationTimeout is the cause of errors returned when Redis does
	// not confirm a subscribe or unsubscribe request in time.
	ErrConfirmationTimeout = errors.New("queue: confirmation timeout")

	// ErrClosed is returned by commands issued after Close or Quit.
	ErrClosed = errors.New("queue: closed")
)

// CommandError is returned when a Redis command fails.
//
// Err is the error returned by the Redis client, unmodified.
type CommandError struct {
	Command string
	Key     string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("error running %s on Redis key %q: %v", e.Command, e.Key, e.Err)
}

// Cause returns the underlying Redis error.
func (e *CommandError) Cause() error { return e.Err }

// Unwrap returns the underlying Redis error.
func (e *CommandError) Unwrap() error { return e.Err }

func commandError(cmd, key string, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Command: cmd, Key: key, Err: err}
}

// ConnectionError describes a transport failure on either the primary or the
// subscription handle. It is delivered through EventError rather than
// returned from a call.
//
// Fatal connection errors stop the reconnect loop of the handle that
// produced them.
type ConnectionError struct {
	Addr  string
	Err   error
	Fatal bool
}

func (e *ConnectionError) Error() string {
	if e.Fatal {
		return fmt.Sprintf("fatal connection error for Redis at %s: %v", e.Addr, e.Err)
	}
	return fmt.Sprintf("connection error for Redis at %s: %v", e.Addr, e.Err)
}

// Cause returns the underlying transport error.
func (e *ConnectionError) Cause() error { return e.Err }

// Unwrap returns the underlying transport error.
func (e *ConnectionError) Unwrap() error { return e.Err }

func connectionError(addr string, err error) *ConnectionError {
	return &ConnectionError{
		Addr:  addr,
		Err:   err,
		Fatal: IsDNSError(err),
	}
}

// IsDNSError reports whether err was caused by a failure to resolve the
// Redis host name.
func IsDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func confirmationTimeout(kind string, d time.Duration) error {
	return errors.Wrapf(ErrConfirmationTimeout, "%s timeout after %s", kind, d)
}
