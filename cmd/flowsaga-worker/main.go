// Command flowsaga-worker runs saga executions requested over the event bus and serves
// health and metrics endpoints.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dashcrm/flowsaga/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultOpsPort = 9092

func main() {
	command := &cli.Command{
		Name:                  "flowsaga-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker that executes workflows",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Persistence URL for definitions, leads and executions (postgres:// or a directory)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL; when set executions are stored in Redis and the outbox is enabled",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to the YAML file with schedules and action settings",
				Sources: cli.EnvVars("FLOWSAGA_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing action plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "Maximum number of executions run at the same time",
				Value:   10,
				Sources: cli.EnvVars("WORKER_CONCURRENCY"),
			},
			&cli.IntFlag{
				Name:    "max-steps",
				Usage:   "Maximum number of nodes an execution may run",
				Value:   1000,
				Sources: cli.EnvVars("MAX_STEPS"),
			},
			&cli.IntFlag{
				Name:    "ops-port",
				Usage:   "Port of the health and metrics server (0 disables it)",
				Value:   defaultOpsPort,
				Sources: cli.EnvVars("OPS_PORT"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, options{
				workerID:     command.String("worker-id"),
				databaseURL:  command.String("database-url"),
				redisURL:     command.String("redis-url"),
				eventBus:     command.String("event-bus"),
				kafkaBrokers: command.String("kafka-brokers"),
				configPath:   command.String("config"),
				pluginsPath:  command.String("plugins-path"),
				concurrency:  int(command.Int("concurrency")),
				maxSteps:     int(command.Int("max-steps")),
				opsPort:      int(command.Int("ops-port")),
				tracing:      command.Bool("tracing"),
			})
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("flowsaga-worker").Error("Worker stopped", "error", err)
		os.Exit(1)
	}
}
