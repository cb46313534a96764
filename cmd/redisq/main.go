// Command redisq runs the queue service and provides one-shot queue
// commands against Redis.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/spf13/cobra"

	"github.com/rwool/redisqueue/cmd/service"
	"github.com/rwool/redisqueue/pkg/queue"
)

const commandTimeout = 10 * time.Second

func main() {
	conf, err := service.ConfigFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "redisq",
		Short:         "Redis backed FIFO queue and pub/sub channel",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&conf.RedisHost, "host", conf.RedisHost, "Redis host (env REDIS_HOST)")
	flags.IntVar(&conf.RedisPort, "port", conf.RedisPort, "Redis port (env REDIS_PORT)")
	flags.StringVar(&conf.RedisPassword, "password", conf.RedisPassword, "Redis password (env REDIS_PASS)")
	flags.StringVar(&conf.QueueName, "queue", conf.QueueName, "Queue name (env QUEUE_NAME)")
	flags.StringVar(&conf.LogFormat, "log-format", conf.LogFormat, "Log format: json|logfmt (env LOG_FORMAT)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the subscription worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return service.Run(ctx, conf)
		},
	}
	serveCmd.Flags().StringVar(&conf.HTTPAddr, "http", conf.HTTPAddr, "HTTP listen address (env HTTP_ADDR)")
	root.AddCommand(serveCmd)

	root.AddCommand(
		queueCommand(&conf, "put <payload>", "Append a payload to the queue", 1,
			func(ctx context.Context, q *queue.Queue, args []string) error {
				n, err := q.Put(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Println(n)
				return nil
			}),
		queueCommand(&conf, "pop", "Remove and print the head of the queue", 0,
			func(ctx context.Context, q *queue.Queue, _ []string) error {
				v, ok, err := q.Pop(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("queue %q is empty", q.Name())
				}
				fmt.Println(v)
				return nil
			}),
		queueCommand(&conf, "list", "Print every queued payload", 0,
			func(ctx context.Context, q *queue.Queue, _ []string) error {
				return printAll(q.GetAll(ctx))
			}),
		queueCommand(&conf, "errors", "Print every requeued payload", 0,
			func(ctx context.Context, q *queue.Queue, _ []string) error {
				return printAll(q.GetAllErrors(ctx))
			}),
		queueCommand(&conf, "requeue <payload>", "Append a payload to the error list", 1,
			func(ctx context.Context, q *queue.Queue, args []string) error {
				n, err := q.Requeue(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Println(n)
				return nil
			}),
		queueCommand(&conf, "clear", "Delete the queue and its error list", 0,
			func(ctx context.Context, q *queue.Queue, _ []string) error {
				n, err := q.Clear(ctx)
				if err != nil {
					return err
				}
				fmt.Println(n)
				return nil
			}),
		queueCommand(&conf, "flushall", "Delete every key in Redis", 0,
			func(ctx context.Context, q *queue.Queue, _ []string) error {
				status, err := q.FlushAll(ctx)
				if err != nil {
					return err
				}
				fmt.Println(status)
				return nil
			}),
		queueCommand(&conf, "publish <payload>", "Publish a payload on the queue's channel", 1,
			func(_ context.Context, q *queue.Queue, args []string) error {
				var perr error
				remove := q.On(queue.EventError, func(ev queue.Event) { perr = ev.Err })
				defer remove()
				q.Publish(args[0])
				return perr
			}),
		subscribeCommand(&conf),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// queueCommand builds a command that runs fn against a freshly created
// queue.
func queueCommand(conf *service.Config, use, short string, nargs int,
	fn func(ctx context.Context, q *queue.Queue, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := conf.NewQueue(logger(conf))
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()
			defer q.Quit(ctx)
			return fn(ctx, q, args)
		},
	}
}

func subscribeCommand(conf *service.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe",
		Short: "Print messages published on the queue's channel until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := conf.NewQueue(logger(conf))
			if err != nil {
				return err
			}
			defer q.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			q.On(queue.EventMessage, func(ev queue.Event) {
				fmt.Println(ev.Payload)
			})
			n, err := q.Subscribe(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "subscribed to "+strconv.Quote(q.Name())+", count "+strconv.Itoa(n))
			<-ctx.Done()

			uctx, ucancel := context.WithTimeout(context.Background(), commandTimeout)
			defer ucancel()
			_, err = q.Unsubscribe(uctx)
			return err
		},
	}
}

func logger(conf *service.Config) log.Logger {
	return service.NewLogger(conf.LogFormat, os.Stderr)
}

func printAll(items []string, err error) error {
	if err != nil {
		return err
	}
	for _, v := range items {
		fmt.Println(v)
	}
	return nil
}
