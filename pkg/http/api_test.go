package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwool/redisqueue/pkg/endpoint"
	"github.com/rwool/redisqueue/pkg/http"
	"github.com/rwool/redisqueue/internal/queuemock"
	"github.com/rwool/redisqueue/pkg/queue"
	"github.com/rwool/redisqueue/pkg/service"
)

func do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	q := queuemock.New()
	return doWith(t, q, method, target, body)
}

func doWith(t *testing.T, q *queuemock.QueueMock, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	svc := service.NewAPIService(q, log.NewNopLogger())
	handler := http.NewAPIHTTPHandler(endpoint.MakeAPIEndpoints(svc), nil)
	req := httptest.NewRequest(method, "http://something.com"+target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), into), "Response should be JSON: %s", rec.Body.String())
}

func TestHTTP(t *testing.T) {
	t.Parallel()

	t.Run("Enqueue", func(t *testing.T) {
		t.Parallel()
		q := queuemock.New()
		rec := doWith(t, q, "POST", "/queue", `{"payload": "abcd"}`)
		assert.Equal(t, 200, rec.Code, "Should have 200 status code.")
		var resp struct{ Length int64 }
		decode(t, rec, &resp)
		assert.Equal(t, int64(1), resp.Length)

		items, err := q.GetAll(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"abcd"}, items)
	})

	t.Run("List and Pop", func(t *testing.T) {
		t.Parallel()
		q := queuemock.New()
		_, _ = q.Put(context.Background(), "a")
		_, _ = q.Put(context.Background(), "b")

		rec := doWith(t, q, "GET", "/queue", "")
		assert.Equal(t, 200, rec.Code)
		var list struct{ Items []string }
		decode(t, rec, &list)
		assert.Equal(t, []string{"a", "b"}, list.Items)

		rec = doWith(t, q, "POST", "/queue/pop", "")
		assert.Equal(t, 200, rec.Code)
		var pop struct {
			Payload string
			OK      bool
		}
		decode(t, rec, &pop)
		assert.Equal(t, "a", pop.Payload)
		assert.True(t, pop.OK)
	})

	t.Run("Pop Empty", func(t *testing.T) {
		t.Parallel()
		rec := do(t, "POST", "/queue/pop", "")
		assert.Equal(t, 200, rec.Code)
		assert.JSONEq(t, `{"payload": "", "ok": false}`, rec.Body.String())
	})

	t.Run("Errors and Clear", func(t *testing.T) {
		t.Parallel()
		q := queuemock.New()
		_, _ = q.Requeue(context.Background(), "bad")

		rec := doWith(t, q, "GET", "/queue/errors", "")
		assert.Equal(t, 200, rec.Code)
		assert.JSONEq(t, `{"items": ["bad"]}`, rec.Body.String())

		rec = doWith(t, q, "DELETE", "/queue", "")
		assert.Equal(t, 200, rec.Code)
		assert.JSONEq(t, `{"removed": 1}`, rec.Body.String())
	})

	t.Run("Publish", func(t *testing.T) {
		t.Parallel()
		q := queuemock.New()
		var got []string
		q.On(queue.EventMessage, func(ev queue.Event) { got = append(got, ev.Payload) })
		_, _ = q.Subscribe(context.Background())

		rec := doWith(t, q, "POST", "/queue/publish", `{"payload": "hi"}`)
		assert.Equal(t, 200, rec.Code)
		assert.JSONEq(t, `{}`, rec.Body.String())
		assert.Equal(t, []string{"hi"}, got)
	})

	t.Run("Invalid Payload", func(t *testing.T) {
		t.Parallel()
		rec := do(t, "POST", "/queue", `{"payload": ""}`)
		assert.Equal(t, 400, rec.Code, "Should have 400 status code.")

		rec = do(t, "POST", "/queue", `{"unknown": "x"}`)
		assert.Equal(t, 400, rec.Code, "Unknown fields should be rejected.")
	})

	t.Run("Invalid Method", func(t *testing.T) {
		t.Parallel()
		rec := do(t, "PUT", "/queue", "")
		assert.Equal(t, 405, rec.Code, "Should have 405 status code.")
	})

	t.Run("Closed", func(t *testing.T) {
		t.Parallel()
		q := queuemock.New()
		q.Err = queue.ErrClosed
		rec := doWith(t, q, "GET", "/queue", "")
		assert.Equal(t, 503, rec.Code, "Should have 503 status code.")
	})

	t.Run("Error", func(t *testing.T) {
		t.Parallel()
		q := queuemock.New()
		q.Err = errors.New("error")
		rec := doWith(t, q, "POST", "/queue/pop", "")
		assert.Equal(t, 500, rec.Code, "Should have 500 status code.")
		var resp struct{ Error string }
		decode(t, rec, &resp)
		assert.Contains(t, resp.Error, "error", "Error value should be in response.")
	})
}
