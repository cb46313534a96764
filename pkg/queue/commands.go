package queue

import (
	"context"

	"github.com/go-redis/redis"
)

// Put appends payload to the tail of the queue and returns the new length of
// the queue.
func (q *Queue) Put(ctx context.Context, payload string) (int64, error) {
	return q.push(ctx, q.name, payload)
}

// Requeue appends payload to the tail of the error list, e.g. after a
// message received through a subscription could not be handled.
func (q *Queue) Requeue(ctx context.Context, payload string) (int64, error) {
	return q.push(ctx, q.errorKey, payload)
}

func (q *Queue) push(ctx context.Context, key, payload string) (int64, error) {
	if err := q.begin(); err != nil {
		return 0, err
	}
	defer q.end()

	client := q.client.WithContext(ctx)
	n, err := client.RPush(key, payload).Result()
	return n, commandError("RPUSH", key, err)
}

// Pop removes and returns the head of the queue.
//
// Pop does not wait for items. If the queue is empty, ok is false.
func (q *Queue) Pop(ctx context.Context) (payload string, ok bool, err error) {
	if err := q.begin(); err != nil {
		return "", false, err
	}
	defer q.end()

	client := q.client.WithContext(ctx)
	v, err := client.LPop(q.name).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, commandError("LPOP", q.name, err)
	}
	return v, true, nil
}

// GetAll returns every item in the queue, head first, without removing any.
func (q *Queue) GetAll(ctx context.Context) ([]string, error) {
	return q.all(ctx, q.name)
}

// GetAllErrors returns every item in the error list, head first.
func (q *Queue) GetAllErrors(ctx context.Context) ([]string, error) {
	return q.all(ctx, q.errorKey)
}

func (q *Queue) all(ctx context.Context, key string) ([]string, error) {
	if err := q.begin(); err != nil {
		return nil, err
	}
	defer q.end()

	client := q.client.WithContext(ctx)
	items, err := client.LRange(key, 0, -1).Result()
	if err != nil {
		return nil, commandError("LRANGE", key, err)
	}
	if items == nil {
		items = []string{}
	}
	return items, nil
}

// Clear deletes the queue and its error list and returns the number of keys
// removed. Other keys in the store are left alone.
func (q *Queue) Clear(ctx context.Context) (int64, error) {
	if err := q.begin(); err != nil {
		return 0, err
	}
	defer q.end()

	client := q.client.WithContext(ctx)
	n, err := client.Del(q.name, q.errorKey).Result()
	return n, commandError("DEL", q.name, err)
}

// FlushAll deletes every key in the Redis store, not only the keys of this
// queue.
func (q *Queue) FlushAll(ctx context.Context) (string, error) {
	if err := q.begin(); err != nil {
		return "", err
	}
	defer q.end()

	client := q.client.WithContext(ctx)
	status, err := client.FlushAll().Result()
	return status, commandError("FLUSHALL", "*", err)
}

// Publish broadcasts payload on the queue's channel.
//
// There is no acknowledgement. A failure is logged and emitted as an
// EventError.
func (q *Queue) Publish(payload string) {
	err := q.begin()
	if err == nil {
		err = q.client.Publish(q.name, payload).Err()
		q.end()
		err = commandError("PUBLISH", q.name, err)
	}
	if err != nil {
		_ = q.log.Log("LEVEL", "ERROR", "MESSAGE", err.Error())
		q.events.emit(Event{Type: EventError, Err: err})
	}
}
