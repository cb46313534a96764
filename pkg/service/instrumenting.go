package service

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics"
)

// NewInstrumentingMiddleware returns an APIService that records the number
// and latency of requests to next, labelled by "method" and "error".
func NewInstrumentingMiddleware(requestCount metrics.Counter, requestLatency metrics.Histogram, next APIService) APIService {
	return &instrumentingMiddleware{
		requestCount:   requestCount,
		requestLatency: requestLatency,
		next:           next,
	}
}

type instrumentingMiddleware struct {
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
	next           APIService
}

func (mw *instrumentingMiddleware) observe(method string, begin time.Time, err error) {
	lvs := []string{"method", method, "error", strconv.FormatBool(err != nil)}
	mw.requestCount.With(lvs...).Add(1)
	mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
}

func (mw *instrumentingMiddleware) Enqueue(ctx context.Context, payload string) (n int64, err error) {
	defer func(begin time.Time) { mw.observe("enqueue", begin, err) }(time.Now())
	return mw.next.Enqueue(ctx, payload)
}

func (mw *instrumentingMiddleware) Dequeue(ctx context.Context) (payload string, ok bool, err error) {
	defer func(begin time.Time) { mw.observe("dequeue", begin, err) }(time.Now())
	return mw.next.Dequeue(ctx)
}

func (mw *instrumentingMiddleware) List(ctx context.Context) (items []string, err error) {
	defer func(begin time.Time) { mw.observe("list", begin, err) }(time.Now())
	return mw.next.List(ctx)
}

func (mw *instrumentingMiddleware) ListErrors(ctx context.Context) (items []string, err error) {
	defer func(begin time.Time) { mw.observe("list_errors", begin, err) }(time.Now())
	return mw.next.ListErrors(ctx)
}

func (mw *instrumentingMiddleware) Clear(ctx context.Context) (n int64, err error) {
	defer func(begin time.Time) { mw.observe("clear", begin, err) }(time.Now())
	return mw.next.Clear(ctx)
}

func (mw *instrumentingMiddleware) Publish(ctx context.Context, payload string) (err error) {
	defer func(begin time.Time) { mw.observe("publish", begin, err) }(time.Now())
	return mw.next.Publish(ctx, payload)
}
