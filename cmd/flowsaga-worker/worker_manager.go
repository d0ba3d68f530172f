package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dashcrm/flowsaga/pkg/eventbus"
	"github.com/dashcrm/flowsaga/pkg/events"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/persistence"
	"github.com/dashcrm/flowsaga/pkg/saga"
	"golang.org/x/sync/errgroup"
)

// Starter runs one execution to completion.
type Starter interface {
	Start(ctx context.Context, req saga.StartRequest) (models.Payload, error)
}

// WorkerManager turns execution.requested events into executions, running at most
// concurrency of them at a time.
type WorkerManager struct {
	id       string
	logger   *slog.Logger
	eventBus eventbus.EventSubscriber
	starters map[models.Variant]Starter
	group    *errgroup.Group
	runCtx   context.Context
}

func NewWorkerManager(
	id string,
	eventBus eventbus.EventSubscriber,
	workflows Starter,
	leads Starter,
	concurrency int,
	logger *slog.Logger,
) *WorkerManager {
	group := &errgroup.Group{}
	if concurrency > 0 {
		group.SetLimit(concurrency)
	}

	return &WorkerManager{
		id:       id,
		logger:   logger.With("module", "flowsaga-worker", "worker_id", id),
		eventBus: eventBus,
		starters: map[models.Variant]Starter{
			models.VariantWorkflow: workflows,
			models.VariantLead:     leads,
		},
		group:  group,
		runCtx: context.Background(),
	}
}

// Start subscribes to the event bus and blocks until ctx is done, then waits for the
// running executions.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	// Executions outlive the message that requested them but stop with the worker.
	w.runCtx = ctx

	err := w.eventBus.Handle(events.ExecutionRequestedEvent, w.handleExecutionRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	<-ctx.Done()
	w.logger.InfoContext(ctx, "Shutting down worker, waiting for running executions")

	return w.Wait()
}

// Wait blocks until every dispatched execution has returned.
func (w *WorkerManager) Wait() error {
	return w.group.Wait()
}

func (w *WorkerManager) handleExecutionRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.ExecutionRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionRequested")

		return nil
	}

	variant := requested.Variant
	if variant == "" {
		variant = models.VariantWorkflow
	}

	starter, ok := w.starters[variant]
	if !ok || starter == nil {
		w.logger.ErrorContext(ctx, "Unsupported variant", "variant", variant, "event_id", requested.ID)

		return nil
	}

	req := saga.StartRequest{
		ExecutionID:    requested.ID,
		WorkflowID:     requested.WorkflowID,
		LeadID:         requested.LeadID,
		WorkflowType:   requested.WorkflowType,
		InitialPayload: requested.Payload,
	}

	logger := w.logger.With(
		"execution_id", req.ExecutionID,
		"variant", variant,
		"workflow_id", req.WorkflowID,
		"lead_id", req.LeadID,
	)

	// Blocks while the worker is at its concurrency limit. Returning acks the message
	// before the execution record exists, so a crash in between loses the request.
	w.group.Go(func() error {
		w.run(w.runCtx, logger, starter, req)

		return nil
	})

	return nil
}

func (w *WorkerManager) run(ctx context.Context, logger *slog.Logger, starter Starter, req saga.StartRequest) {
	logger.InfoContext(ctx, "Processing execution request")

	_, err := starter.Start(ctx, req)

	switch {
	case err == nil:
		logger.InfoContext(ctx, "Execution completed")
	case errors.Is(err, persistence.ErrExecutionAlreadyExists):
		logger.InfoContext(ctx, "Execution already started by an earlier delivery")
	default:
		logger.ErrorContext(ctx, "Execution failed", "error", err)
	}
}
