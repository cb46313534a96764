package service

import (
	"context"
	"fmt"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
)

// ErrInvalidPayload is returned for empty payloads.
var ErrInvalidPayload = errors.New("invalid payload")

// Queue wraps the queue operations the services rely on.
//
// It is implemented by *queue.Queue.
type Queue interface {
	Put(ctx context.Context, payload string) (int64, error)
	Pop(ctx context.Context) (string, bool, error)
	GetAll(ctx context.Context) ([]string, error)
	GetAllErrors(ctx context.Context) ([]string, error)
	Requeue(ctx context.Context, payload string) (int64, error)
	Clear(ctx context.Context) (int64, error)
	Publish(payload string)
}

// APIService is the user accessible service.
type APIService interface {
	Enqueue(ctx context.Context, payload string) (int64, error)
	Dequeue(ctx context.Context) (payload string, ok bool, err error)
	List(ctx context.Context) ([]string, error)
	ListErrors(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) (int64, error)
	Publish(ctx context.Context, payload string) error
}

type apiService struct {
	q Queue
	l log.Logger
}

// Enqueue appends a payload to the queue.
func (a *apiService) Enqueue(ctx context.Context, payload string) (int64, error) {
	if payload == "" {
		return 0, ErrInvalidPayload
	}
	n, err := a.q.Put(ctx, payload)
	if err != nil {
		return 0, errors.Wrap(err, "unable to enqueue payload")
	}
	_ = a.l.Log("LEVEL", "DEBUG", "MESSAGE", fmt.Sprintf("Enqueued payload, queue length %d", n))
	return n, nil
}

// Dequeue removes the head of the queue. ok is false if the queue was empty.
func (a *apiService) Dequeue(ctx context.Context) (string, bool, error) {
	v, ok, err := a.q.Pop(ctx)
	if err != nil {
		return "", false, errors.Wrap(err, "unable to dequeue payload")
	}
	if !ok {
		_ = a.l.Log("LEVEL", "DEBUG", "MESSAGE", "Dequeue on empty queue")
	}
	return v, ok, nil
}

// List returns the queued payloads without removing them.
func (a *apiService) List(ctx context.Context) ([]string, error) {
	items, err := a.q.GetAll(ctx)
	return items, errors.Wrap(err, "unable to list queue")
}

// ListErrors returns the payloads that were requeued after failing.
func (a *apiService) ListErrors(ctx context.Context) ([]string, error) {
	items, err := a.q.GetAllErrors(ctx)
	return items, errors.Wrap(err, "unable to list error queue")
}

// Clear removes the queue and its error list.
func (a *apiService) Clear(ctx context.Context) (int64, error) {
	n, err := a.q.Clear(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "unable to clear queue")
	}
	_ = a.l.Log("LEVEL", "INFO", "MESSAGE", fmt.Sprintf("Cleared queue, %d keys removed", n))
	return n, nil
}

// Publish broadcasts a payload to current subscribers.
func (a *apiService) Publish(ctx context.Context, payload string) error {
	if payload == "" {
		return ErrInvalidPayload
	}
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}
	a.q.Publish(payload)
	_ = a.l.Log("LEVEL", "DEBUG", "MESSAGE", "Published payload")
	return nil
}

func newAPIService(q Queue, l log.Logger) *apiService {
	return &apiService{
		q: q,
		l: l,
	}
}

// NewAPIService returns an APIService.
func NewAPIService(q Queue, l log.Logger) APIService {
	if q == nil {
		panic("nil queue")
	}
	return newAPIService(q, l)
}
