package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwool/redisqueue/internal/queuemock"
	"github.com/rwool/redisqueue/pkg/queue"
	"github.com/rwool/redisqueue/pkg/service"
)

func TestAPI(t *testing.T) {
	q := queuemock.New()
	apiService := service.NewAPIService(q, log.NewNopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := apiService.Enqueue(ctx, "first")
	require.NoError(t, err, "Enqueue should succeed.")
	assert.Equal(t, int64(1), n)
	n, err = apiService.Enqueue(ctx, "second")
	require.NoError(t, err, "Enqueue should succeed.")
	assert.Equal(t, int64(2), n)

	items, err := apiService.List(ctx)
	require.NoError(t, err, "List should succeed.")
	assert.Equal(t, []string{"first", "second"}, items)

	v, ok, err := apiService.Dequeue(ctx)
	require.NoError(t, err, "Dequeue should succeed.")
	assert.True(t, ok)
	assert.Equal(t, "first", v)

	_, err = q.Requeue(ctx, "failed")
	require.NoError(t, err)
	errs, err := apiService.ListErrors(ctx)
	require.NoError(t, err, "ListErrors should succeed.")
	assert.Equal(t, []string{"failed"}, errs)

	removed, err := apiService.Clear(ctx)
	require.NoError(t, err, "Clear should succeed.")
	assert.Equal(t, int64(2), removed)

	_, ok, err = apiService.Dequeue(ctx)
	require.NoError(t, err, "Dequeue on empty queue should succeed.")
	assert.False(t, ok, "Queue should be empty after Clear.")
}

func TestAPIInvalidPayload(t *testing.T) {
	t.Parallel()
	apiService := service.NewAPIService(queuemock.New(), log.NewNopLogger())
	ctx := context.Background()

	_, err := apiService.Enqueue(ctx, "")
	assert.Equal(t, service.ErrInvalidPayload, err)
	assert.Equal(t, service.ErrInvalidPayload, apiService.Publish(ctx, ""))
}

func TestAPIPublish(t *testing.T) {
	t.Parallel()
	q := queuemock.New()
	apiService := service.NewAPIService(q, log.NewNopLogger())
	ctx := context.Background()

	var got []string
	q.On(queue.EventMessage, func(ev queue.Event) { got = append(got, ev.Payload) })
	_, err := q.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, apiService.Publish(ctx, "hello"), "Publish should succeed.")
	assert.Equal(t, []string{"hello"}, got)
}

func TestAPIQueueError(t *testing.T) {
	t.Parallel()
	q := queuemock.New()
	q.Err = queue.ErrClosed
	apiService := service.NewAPIService(q, log.NewNopLogger())
	ctx := context.Background()

	_, err := apiService.Enqueue(ctx, "x")
	assert.Equal(t, queue.ErrClosed, errors.Cause(err), "Queue errors should be wrapped.")
	_, _, err = apiService.Dequeue(ctx)
	assert.Equal(t, queue.ErrClosed, errors.Cause(err))
	_, err = apiService.List(ctx)
	assert.Equal(t, queue.ErrClosed, errors.Cause(err))
	_, err = apiService.Clear(ctx)
	assert.Equal(t, queue.ErrClosed, errors.Cause(err))
}
