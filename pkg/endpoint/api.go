package endpoint

import (
	"context"
	"time"

	"github.com/go-kit/kit/endpoint"

	"github.com/rwool/redisqueue/pkg/service"
)

// requestTimeout bounds every API request.
const requestTimeout = 10 * time.Second

// Endpoints collects the endpoints of the API service.
type Endpoints struct {
	Enqueue    endpoint.Endpoint
	Dequeue    endpoint.Endpoint
	List       endpoint.Endpoint
	ListErrors endpoint.Endpoint
	Clear      endpoint.Endpoint
	Publish    endpoint.Endpoint
}

// PayloadRequest carries a payload to enqueue or publish.
type PayloadRequest struct {
	Payload string `json:"payload"`
}

// EnqueueResponse contains the queue length after an enqueue.
type EnqueueResponse struct {
	Length int64 `json:"length"`
	e      error
}

// Failed indicates if there was a business logic failure.
func (r EnqueueResponse) Failed() error { return r.e }

// DequeueResponse contains the dequeued payload. OK is false if the queue was
// empty.
type DequeueResponse struct {
	Payload string `json:"payload"`
	OK      bool   `json:"ok"`
	e       error
}

// Failed indicates if there was a business logic failure.
func (r DequeueResponse) Failed() error { return r.e }

// ListResponse contains queued payloads, head first.
type ListResponse struct {
	Items []string `json:"items"`
	e     error
}

// Failed indicates if there was a business logic failure.
func (r ListResponse) Failed() error { return r.e }

// ClearResponse contains the number of removed keys.
type ClearResponse struct {
	Removed int64 `json:"removed"`
	e       error
}

// Failed indicates if there was a business logic failure.
func (r ClearResponse) Failed() error { return r.e }

// PublishResponse is the empty response to a publish.
type PublishResponse struct {
	e error
}

// Failed indicates if there was a business logic failure.
func (r PublishResponse) Failed() error { return r.e }

// MakeAPIEndpoints creates the endpoints for the API service.
func MakeAPIEndpoints(a service.APIService) Endpoints {
	return Endpoints{
		Enqueue:    withTimeout(MakeEnqueueEndpoint(a)),
		Dequeue:    withTimeout(MakeDequeueEndpoint(a)),
		List:       withTimeout(MakeListEndpoint(a)),
		ListErrors: withTimeout(MakeListErrorsEndpoint(a)),
		Clear:      withTimeout(MakeClearEndpoint(a)),
		Publish:    withTimeout(MakePublishEndpoint(a)),
	}
}

func withTimeout(next endpoint.Endpoint) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		return next(ctx, request)
	}
}

// MakeEnqueueEndpoint creates an endpoint for enqueueing payloads.
func MakeEnqueueEndpoint(a service.APIService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(PayloadRequest)
		n, err := a.Enqueue(ctx, req.Payload)
		return EnqueueResponse{Length: n, e: err}, nil
	}
}

// MakeDequeueEndpoint creates an endpoint for dequeueing payloads.
func MakeDequeueEndpoint(a service.APIService) endpoint.Endpoint {
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		v, ok, err := a.Dequeue(ctx)
		return DequeueResponse{Payload: v, OK: ok, e: err}, nil
	}
}

// MakeListEndpoint creates an endpoint for listing the queue.
func MakeListEndpoint(a service.APIService) endpoint.Endpoint {
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		items, err := a.List(ctx)
		return ListResponse{Items: items, e: err}, nil
	}
}

// MakeListErrorsEndpoint creates an endpoint for listing the error list.
func MakeListErrorsEndpoint(a service.APIService) endpoint.Endpoint {
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		items, err := a.ListErrors(ctx)
		return ListResponse{Items: items, e: err}, nil
	}
}

// MakeClearEndpoint creates an endpoint for clearing the queue.
func MakeClearEndpoint(a service.APIService) endpoint.Endpoint {
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		n, err := a.Clear(ctx)
		return ClearResponse{Removed: n, e: err}, nil
	}
}

// MakePublishEndpoint creates an endpoint for publishing payloads.
func MakePublishEndpoint(a service.APIService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(PayloadRequest)
		err := a.Publish(ctx, req.Payload)
		return PublishResponse{e: err}, nil
	}
}
