package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	gohttp "net/http"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/transport/http"
	"github.com/pkg/errors"

	kitendpoint "github.com/rwool/redisqueue/pkg/endpoint"
	"github.com/rwool/redisqueue/pkg/queue"
	"github.com/rwool/redisqueue/pkg/service"
)

// NewAPIHTTPHandler returns a handler that makes the API service endpoints
// available via HTTP.
//
// Options are looked up by endpoint name, e.g. "Enqueue".
func NewAPIHTTPHandler(endpoints kitendpoint.Endpoints, options map[string][]http.ServerOption) gohttp.Handler {
	if options == nil {
		options = make(map[string][]http.ServerOption)
	}
	server := func(name string, e endpoint.Endpoint, dec http.DecodeRequestFunc) gohttp.Handler {
		opts := append([]http.ServerOption{http.ServerErrorEncoder(encodeError)}, options[name]...)
		return http.NewServer(e, dec, encodeResponse, opts...)
	}

	m := gohttp.NewServeMux()
	m.Handle("/queue", methods(map[string]gohttp.Handler{
		gohttp.MethodPost:   server("Enqueue", endpoints.Enqueue, decodePayloadRequest),
		gohttp.MethodGet:    server("List", endpoints.List, decodeEmptyRequest),
		gohttp.MethodDelete: server("Clear", endpoints.Clear, decodeEmptyRequest),
	}))
	m.Handle("/queue/pop", methods(map[string]gohttp.Handler{
		gohttp.MethodPost: server("Dequeue", endpoints.Dequeue, decodeEmptyRequest),
	}))
	m.Handle("/queue/errors", methods(map[string]gohttp.Handler{
		gohttp.MethodGet: server("ListErrors", endpoints.ListErrors, decodeEmptyRequest),
	}))
	m.Handle("/queue/publish", methods(map[string]gohttp.Handler{
		gohttp.MethodPost: server("Publish", endpoints.Publish, decodePayloadRequest),
	}))
	return m
}

// methods dispatches requests by method.
func methods(handlers map[string]gohttp.Handler) gohttp.Handler {
	return gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		h, ok := handlers[r.Method]
		if !ok {
			w.WriteHeader(gohttp.StatusMethodNotAllowed)
			_, _ = fmt.Fprintf(w, "Invalid request method %s", r.Method)
			return
		}
		h.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error string
}

// badRequest marks errors caused by a malformed request body.
type badRequest struct {
	error
}

func statusCode(err error) int {
	if _, ok := err.(badRequest); ok {
		return gohttp.StatusBadRequest
	}
	switch errors.Cause(err) {
	case service.ErrInvalidPayload:
		return gohttp.StatusBadRequest
	case queue.ErrClosed:
		return gohttp.StatusServiceUnavailable
	default:
		return gohttp.StatusInternalServerError
	}
}

func encodeError(_ context.Context, err error, w gohttp.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode(err))
	_ = json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func encodeResponse(ctx context.Context, w gohttp.ResponseWriter, r interface{}) error {
	if v, ok := r.(endpoint.Failer); ok && v.Failed() != nil {
		encodeError(ctx, v.Failed(), w)
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(r)
	return errors.WithStack(err)
}

func decodeEmptyRequest(_ context.Context, _ *gohttp.Request) (interface{}, error) {
	return nil, nil
}

func decodePayloadRequest(_ context.Context, req *gohttp.Request) (i interface{}, e error) {
	decoder := json.NewDecoder(req.Body)
	decoder.DisallowUnknownFields()
	defer func() {
		err := req.Body.Close()
		if e != nil && err != nil {
			e = errors.Wrapf(e, "multiple errors: %s", err)
			return
		}
		if err != nil {
			e = err
		}
	}()
	var pr kitendpoint.PayloadRequest
	err := decoder.Decode(&pr)
	if err == io.EOF {
		err = nil
	}
	if err != nil {
		return nil, badRequest{errors.Wrap(err, "unable to decode payload request")}
	}

	if pr.Payload == "" {
		return nil, service.ErrInvalidPayload
	}
	return pr, nil
}
