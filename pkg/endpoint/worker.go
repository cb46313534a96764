package endpoint

import (
	"context"

	"github.com/go-kit/kit/endpoint"

	"github.com/rwool/redisqueue/pkg/service"
)

// MessageRequest contains a message received from the queue's channel.
type MessageRequest struct {
	Payload string
}

// MessageResponse contains an error to indicate a failure in the business
// logic.
type MessageResponse struct {
	e error
}

// Failed indicates if there was a business logic failure.
func (m MessageResponse) Failed() error {
	return m.e
}

// MakeWorkerHandleMessageEndpoint creates a Go kit endpoint for handling
// messages.
func MakeWorkerHandleMessageEndpoint(w service.WorkerService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(MessageRequest)
		err := w.HandleMessage(ctx, req.Payload)
		return MessageResponse{e: err}, nil
	}
}
