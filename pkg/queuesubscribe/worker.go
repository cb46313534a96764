// Package queuesubscribe provides support for transport of messages received
// through a queue subscription.
//
// This is analogous to the http package for the API service.
package queuesubscribe

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	kitendpoint "github.com/rwool/redisqueue/pkg/endpoint"
	"github.com/rwool/redisqueue/pkg/queue"
)

// Queue wraps the queue methods needed to consume a subscription.
//
// It is implemented by *queue.Queue.
type Queue interface {
	Subscribe(ctx context.Context) (int, error)
	Unsubscribe(ctx context.Context) (int, error)
	Requeue(ctx context.Context, payload string) (int64, error)
	On(t queue.EventType, fn queue.Listener) func()
}

// Config contains the configuration for setting up a subscription for a
// worker.
type Config struct {
	Endpoint endpoint.Endpoint
	Queue    Queue
	Log      log.Logger
}

// MakeWorkerHandler returns a function that subscribes to the queue's
// channel and hands every received message to the endpoint until the context
// is done.
//
// Messages the endpoint fails to handle are requeued to the error list.
func MakeWorkerHandler(conf Config) func(context.Context) error {
	return func(ctx context.Context) error {
		dataC := make(chan string)
		remove := conf.Queue.On(queue.EventMessage, func(ev queue.Event) {
			select {
			case dataC <- ev.Payload:
			case <-ctx.Done():
			}
		})
		defer remove()

		if _, err := conf.Queue.Subscribe(ctx); err != nil {
			return errors.Wrap(err, "unable to subscribe")
		}
		_ = conf.Log.Log("LEVEL", "INFO", "MESSAGE", "Beginning subscription")

		var wg sync.WaitGroup
		for {
			select {
			case data := <-dataC:
				// Process incoming data asynchronously to not block other
				// messages.
				wg.Add(1)
				go func() {
					defer wg.Done()
					processMessage(ctx, data, conf)
				}()
			case <-ctx.Done():
				// The subscription context is done; unsubscribing needs its
				// own.
				if _, err := conf.Queue.Unsubscribe(context.Background()); err != nil {
					_ = conf.Log.Log("LEVEL", "WARN", "MESSAGE", err.Error())
				}
				wg.Wait()
				return nil
			}
		}
	}
}

func processMessage(ctx context.Context, data string, conf Config) {
	resp, err := conf.Endpoint(ctx, kitendpoint.MessageRequest{Payload: data})
	if err == nil {
		if v, ok := resp.(endpoint.Failer); ok {
			err = v.Failed()
		}
	}
	if err == nil {
		return
	}
	_ = conf.Log.Log("LEVEL", "ERROR", "MESSAGE", fmt.Sprintf("Failed to handle message, requeueing: %s", err))

	// Requeue even if the subscription is shutting down.
	if _, err := conf.Queue.Requeue(context.Background(), data); err != nil {
		_ = conf.Log.Log("LEVEL", "ERROR", "MESSAGE", errors.Wrap(err, "unable to requeue message").Error())
	}
}
