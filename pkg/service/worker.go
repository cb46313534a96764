// Package service implements the business logic for the queue service.
package service

import (
	"context"
	"fmt"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
)

// WorkerService wraps the set of methods for a worker consuming messages
// published on the queue's channel.
type WorkerService interface {
	HandleMessage(ctx context.Context, payload string) error
}

// Handler processes a single message payload.
type Handler func(ctx context.Context, payload string) error

type WorkerServiceConfig struct {
	Log log.Logger

	// Handler is called for every message. If nil, messages are only
	// logged.
	Handler Handler
}

func NewWorkerService(conf WorkerServiceConfig) WorkerService {
	return newWorkerService(conf)
}

func newWorkerService(conf WorkerServiceConfig) *workerService {
	l := conf.Log
	if l == nil {
		l = log.NewNopLogger()
	}
	return &workerService{
		log:     l,
		handler: conf.Handler,
	}
}

type workerService struct {
	log     log.Logger
	handler Handler
}

// HandleMessage handles one message received from the queue's channel.
func (w *workerService) HandleMessage(ctx context.Context, payload string) error {
	if payload == "" {
		return ErrInvalidPayload
	}
	if w.handler == nil {
		_ = w.log.Log("LEVEL", "INFO", "MESSAGE", fmt.Sprintf("Received message %q", payload))
		return nil
	}
	return errors.WithStack(w.handler(ctx, payload))
}
