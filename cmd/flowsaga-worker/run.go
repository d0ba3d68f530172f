package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dashcrm/flowsaga/pkg/cmd"
	"github.com/dashcrm/flowsaga/pkg/config"
	"github.com/dashcrm/flowsaga/pkg/eventbus"
	"github.com/dashcrm/flowsaga/pkg/log"
	"github.com/dashcrm/flowsaga/pkg/metrics"
	"github.com/dashcrm/flowsaga/pkg/otelhelper"
	"github.com/dashcrm/flowsaga/pkg/outbox"
	"github.com/dashcrm/flowsaga/pkg/saga"
	"github.com/dashcrm/flowsaga/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

type options struct {
	workerID     string
	databaseURL  string
	redisURL     string
	eventBus     string
	kafkaBrokers string
	configPath   string
	pluginsPath  string
	concurrency  int
	maxSteps     int
	opsPort      int
	tracing      bool
}

func run(ctx context.Context, opts options) error {
	workerID := opts.workerID
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()[:8]
	}

	logger := log.WithModule("flowsaga-worker").With("worker_id", workerID)
	logger.InfoContext(ctx, "Initializing flowsaga worker")

	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return err
	}

	tracer, shutdownTracer, err := newTracer(ctx, opts.tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	defer func() {
		if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(opts.eventBus, opts.kafkaBrokers, "flowsaga-worker", logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	store, err := cmd.NewPersistence(ctx, logger, opts.databaseURL)
	if err != nil {
		return err
	}

	defer closeStore(ctx, logger, "persistence", store)

	var (
		redisClient redis.UniversalClient
		ob          outbox.Outbox
	)

	if opts.redisURL != "" {
		redisClient, err = cmd.NewRedisClient(ctx, opts.redisURL)
		if err != nil {
			return err
		}

		ob = outbox.NewRedisOutbox(redisClient)
	}

	executions := cmd.NewExecutionStore(logger, store, redisClient)
	if redisClient != nil {
		defer closeStore(ctx, logger, "execution store", executions)
	}

	deps := cmd.ActionDependencies{
		HTTPClient: &http.Client{},
		Outbox:     ob,
		Leads:      store,
		Settings:   cfg.Actions,
	}

	workflowActions, err := cmd.NewWorkflowRegistry(logger, deps, opts.pluginsPath)
	if err != nil {
		return err
	}

	leadActions := cmd.NewLeadRegistry(logger, deps)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sagaOptions := []saga.Option{
		saga.WithMaxSteps(opts.maxSteps),
		saga.WithMetrics(metrics.NewMetrics(registry)),
		saga.WithNotifier(eventbus.NewNotifier(eventBus, logger, workerID)),
		saga.WithTracer(tracer),
	}

	workflows := saga.NewWorkflowSaga(store, executions, workflowActions, logger, sagaOptions...)
	leads := saga.NewLeadSaga(store, executions, store, leadActions, logger, sagaOptions...)

	if opts.opsPort > 0 {
		handlers := web.NewHandlers(executions, store, eventBus, validator.New(validator.WithRequiredStructEnabled()), logger)
		app := web.NewApp(handlers, registry)

		go func() {
			err := app.Listen(":"+strconv.Itoa(opts.opsPort), fiber.ListenConfig{DisableStartupMessage: true})
			if err != nil {
				logger.ErrorContext(ctx, "Ops server stopped", "error", err)
			}
		}()

		defer func() {
			if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown ops server", "error", err)
			}
		}()
	}

	scheduler, err := NewScheduler(eventBus, cfg.Schedules, logger)
	if err != nil {
		return err
	}

	scheduler.Start()
	defer scheduler.Stop()

	worker := NewWorkerManager(workerID, eventBus, workflows, leads, opts.concurrency, logger)

	err = worker.Start(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

//nolint:ireturn
func newTracer(ctx context.Context, enabled bool) (trace.Tracer, func(context.Context) error, error) {
	if !enabled {
		return otelhelper.NoopTracer(), func(context.Context) error { return nil }, nil
	}

	return otelhelper.NewTracer(ctx, "flowsaga-worker")
}

type closer interface {
	Close(ctx context.Context) error
}

func closeStore(ctx context.Context, logger *slog.Logger, name string, store closer) {
	if err := store.Close(context.WithoutCancel(ctx)); err != nil {
		logger.ErrorContext(ctx, "Failed to close "+name, "error", err)
	}
}
