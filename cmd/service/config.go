package service

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/rwool/redisqueue/pkg/queue"
)

const (
	defaultQueueName = "queue"
	defaultHTTPAddr  = "0.0.0.0:8080"
)

// Config contains all of the configuration for running the service.
type Config struct {
	RedisHost     string
	RedisPort     int
	RedisPassword string
	QueueName     string
	HTTPAddr      string
	// LogFormat is either "json" or "logfmt".
	LogFormat string
}

// ConfigFromEnv reads the configuration from environment variables, falling
// back to defaults for unset variables.
func ConfigFromEnv() (Config, error) {
	conf := Config{
		RedisHost:     envOr("REDIS_HOST", queue.DefaultHost),
		RedisPort:     queue.DefaultPort,
		RedisPassword: os.Getenv("REDIS_PASS"),
		QueueName:     envOr("QUEUE_NAME", defaultQueueName),
		HTTPAddr:      envOr("HTTP_ADDR", defaultHTTPAddr),
		LogFormat:     envOr("LOG_FORMAT", "json"),
	}
	if v, ok := os.LookupEnv("REDIS_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, errors.Errorf("invalid REDIS_PORT %q", v)
		}
		conf.RedisPort = port
	}
	return conf, conf.Validate()
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.QueueName == "" {
		return errors.New("missing queue name")
	}
	switch c.LogFormat {
	case "json", "logfmt":
	default:
		return errors.Errorf("invalid log format %q", c.LogFormat)
	}
	return nil
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// NewLogger creates the process logger.
func NewLogger(format string, w io.Writer) log.Logger {
	var l log.Logger
	if format == "logfmt" {
		l = log.NewLogfmtLogger(log.NewSyncWriter(w))
	} else {
		l = log.NewJSONLogger(log.NewSyncWriter(w))
	}
	return log.With(l, "TIME", log.DefaultTimestampUTC)
}

// NewQueue creates the queue described by the configuration.
func (c Config) NewQueue(l log.Logger) (*queue.Queue, error) {
	q, err := queue.New(c.QueueName, queue.Config{
		Host: c.RedisHost,
		Port: c.RedisPort,
		// No client retries; reconnects are driven by the queue.
		Options: &redis.Options{
			Password:     c.RedisPassword,
			DialTimeout:  10 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		},
		Log:     l,
		OnEvent: logEvents(l),
	})
	return q, errors.WithStack(err)
}

func logEvents(l log.Logger) queue.Listener {
	return func(ev queue.Event) {
		switch ev.Type {
		case queue.EventError:
			_ = l.Log("LEVEL", "ERROR", "MESSAGE", ev.Err)
		case queue.EventReconnecting:
			_ = l.Log("LEVEL", "WARN", "MESSAGE", "Reconnecting to Redis")
		case queue.EventReady:
			_ = l.Log("LEVEL", "INFO", "MESSAGE", "Redis ready")
		}
	}
}
