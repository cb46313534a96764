package queuesubscribe_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	kitendpoint "github.com/rwool/redisqueue/pkg/endpoint"
	"github.com/rwool/redisqueue/internal/queuemock"
	"github.com/rwool/redisqueue/internal/redistest"
	"github.com/rwool/redisqueue/pkg/queue"
	"github.com/rwool/redisqueue/pkg/queuesubscribe"
	"github.com/rwool/redisqueue/pkg/service"
)

// waitSubscribed waits for the handler to subscribe.
func waitSubscribed(t *testing.T, q *queuemock.QueueMock) {
	t.Helper()
	require.Eventually(t, q.Subscribed, 2*time.Second, 5*time.Millisecond, "Handler should subscribe.")
}

func TestMakeWorkerHandler(t *testing.T) {
	t.Parallel()

	var (
		count = 3
		q     = queuemock.New()
		l     = log.NewNopLogger()

		// Use a weighted semaphore in place of a sync.WaitGroup to not have the
		// test block forever in the event of an error.
		sema = semaphore.NewWeighted(int64(count))

		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	)
	defer cancel()

	f := func(_ context.Context, request interface{}) (response interface{}, err error) {
		defer sema.Release(1)
		return nil, nil
	}

	handler := queuesubscribe.MakeWorkerHandler(queuesubscribe.Config{
		Endpoint: f,
		Queue:    q,
		Log:      l,
	})
	done := make(chan error, 1)
	go func() { done <- handler(ctx) }()
	waitSubscribed(t, q)

	require.NoError(t, sema.Acquire(ctx, 3), "Semaphore acquisition should happen.")
	for i := 0; i < count; i++ {
		q.Publish(`message`)
	}
	require.NoError(t, sema.Acquire(ctx, 3), "Every message should be handled.")

	cancel()
	require.NoError(t, <-done, "Handler should stop cleanly.")
	assert.False(t, q.Subscribed(), "Handler should unsubscribe when done.")

	errs, err := q.GetAllErrors(context.Background())
	require.NoError(t, err)
	assert.Empty(t, errs, "Nothing should be requeued.")
}

func TestMakeWorkerHandlerRequeuesFailures(t *testing.T) {
	t.Parallel()

	q := queuemock.New()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	worker := service.NewWorkerService(service.WorkerServiceConfig{
		Handler: func(_ context.Context, payload string) error {
			if payload == "bad" {
				return errors.New("cannot handle")
			}
			return nil
		},
	})
	handler := queuesubscribe.MakeWorkerHandler(queuesubscribe.Config{
		Endpoint: kitendpoint.MakeWorkerHandleMessageEndpoint(worker),
		Queue:    q,
		Log:      log.NewNopLogger(),
	})
	done := make(chan error, 1)
	go func() { done <- handler(ctx) }()
	waitSubscribed(t, q)

	q.Publish("good")
	q.Publish("bad")

	require.Eventually(t, func() bool {
		errs, _ := q.GetAllErrors(context.Background())
		return len(errs) == 1
	}, 2*time.Second, 5*time.Millisecond, "Failed message should be requeued.")
	errs, err := q.GetAllErrors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"bad"}, errs)

	cancel()
	require.NoError(t, <-done)
}

func TestMakeWorkerHandlerRedis(t *testing.T) {
	t.Parallel()

	srv := redistest.Start(t)
	q, err := queue.New(redistest.Name(t), queue.Config{
		Host:    srv.Host,
		Port:    srv.Port,
		Options: &redis.Options{Password: srv.Password},
	})
	require.NoError(t, err)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	worker := service.NewWorkerService(service.WorkerServiceConfig{
		Handler: func(context.Context, string) error { return errors.New("always fails") },
	})
	handler := queuesubscribe.MakeWorkerHandler(queuesubscribe.Config{
		Endpoint: kitendpoint.MakeWorkerHandleMessageEndpoint(worker),
		Queue:    q,
		Log:      log.NewNopLogger(),
	})
	done := make(chan error, 1)
	go func() { done <- handler(ctx) }()

	// Publish until the subscription is live; each delivered message is
	// requeued.
	require.Eventually(t, func() bool {
		q.Publish("payload")
		errs, _ := q.GetAllErrors(ctx)
		return len(errs) > 0
	}, 4*time.Second, 50*time.Millisecond, "Delivered message should land on the error list.")

	cancel()
	require.NoError(t, <-done)
	errs, err := q.GetAllErrors(context.Background())
	require.NoError(t, err)
	for _, v := range errs {
		assert.Equal(t, "payload", v)
	}
}

func TestMakeWorkerHandlerSubscribeError(t *testing.T) {
	t.Parallel()

	q, err := queue.New(redistest.Name(t), queue.Config{Port: 1})
	require.NoError(t, err)
	require.NoError(t, q.Close())

	handler := queuesubscribe.MakeWorkerHandler(queuesubscribe.Config{
		Endpoint: func(context.Context, interface{}) (interface{}, error) { return nil, nil },
		Queue:    q,
		Log:      log.NewNopLogger(),
	})
	err = handler(context.Background())
	assert.Equal(t, queue.ErrClosed, errors.Cause(err), "Subscription failures should be returned.")
}
