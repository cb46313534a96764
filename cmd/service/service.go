package service

import (
	"context"
	"net"
	gohttp "net/http"
	"os"
	"time"

	"github.com/go-kit/kit/log"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/rwool/redisqueue/pkg/endpoint"
	"github.com/rwool/redisqueue/pkg/http"
	"github.com/rwool/redisqueue/pkg/queuesubscribe"
	"github.com/rwool/redisqueue/pkg/service"
)

const shutdownTimeout = 5 * time.Second

// Run runs the API service and the subscription worker until ctx is done.
func Run(ctx context.Context, conf Config) error {
	if err := conf.Validate(); err != nil {
		return err
	}

	// Separate listening and serving to capture listen errors.
	l, err := net.Listen("tcp", conf.HTTPAddr)
	if err != nil {
		return errors.Wrap(err, "unable to create TCP listener")
	}
	return run(ctx, conf, l, NewLogger(conf.LogFormat, os.Stderr))
}

func run(ctx context.Context, conf Config, listener net.Listener, l log.Logger) error {
	q, err := conf.NewQueue(l)
	if err != nil {
		_ = listener.Close()
		return err
	}

	// Business logic.
	registry := prometheus.NewRegistry()
	apiService := service.NewInstrumentingMiddleware(
		requestCount(registry),
		requestLatency(registry),
		service.NewAPIService(q, l),
	)
	workerService := service.NewWorkerService(service.WorkerServiceConfig{Log: l})

	// Endpoints.
	apiEndpoints := endpoint.MakeAPIEndpoints(apiService)
	workerEndpoint := endpoint.MakeWorkerHandleMessageEndpoint(workerService)

	// Transports.
	api := http.NewAPIHTTPHandler(apiEndpoints, nil)
	mux := gohttp.NewServeMux()
	mux.Handle("/queue", api)
	mux.Handle("/queue/", api)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &gohttp.Server{Handler: mux}
	subscriber := queuesubscribe.MakeWorkerHandler(queuesubscribe.Config{
		Endpoint: workerEndpoint,
		Queue:    q,
		Log:      l,
	})

	// Message loops.
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		_ = l.Log("LEVEL", "INFO", "MESSAGE", "Serving HTTP on "+listener.Addr().String())
		err := server.Serve(listener)
		if err == gohttp.ErrServerClosed {
			return nil
		}
		return errors.Wrap(err, "HTTP server failed")
	})
	group.Go(func() error {
		return subscriber(ctx)
	})
	group.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			_ = l.Log("LEVEL", "WARN", "MESSAGE", err)
		}
		return nil
	})

	err = group.Wait()
	qctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if qerr := q.Quit(qctx); qerr != nil {
		_ = l.Log("LEVEL", "WARN", "MESSAGE", qerr)
	}
	return err
}

func requestCount(r prometheus.Registerer) *kitprometheus.Counter {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "redisqueue",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Number of API requests received.",
	}, []string{"method", "error"})
	r.MustRegister(cv)
	return kitprometheus.NewCounter(cv)
}

func requestLatency(r prometheus.Registerer) *kitprometheus.Histogram {
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "redisqueue",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "Duration of API requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "error"})
	r.MustRegister(hv)
	return kitprometheus.NewHistogram(hv)
}
