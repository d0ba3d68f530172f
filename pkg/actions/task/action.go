// Package task provides the create_task action, which queues a follow-up task for the
// sales team on the outbox.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dashcrm/flowsaga/pkg/actions"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/outbox"
	"github.com/dashcrm/flowsaga/pkg/protocol"
)

const (
	ID    = "create_task"
	Queue = "tasks"
)

var ErrTitleRequired = errors.New("task title is required")

type ActionFactory[C models.Entity] struct {
	outbox outbox.Outbox
	logger *slog.Logger
	now    func() time.Time
}

func NewActionFactory[C models.Entity](ob outbox.Outbox, logger *slog.Logger) *ActionFactory[C] {
	return &ActionFactory[C]{
		outbox: ob,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (*ActionFactory[C]) ID() string {
	return ID
}

// Create accepts a default "assignee" for nodes that do not name one.
func (f *ActionFactory[C]) Create(config map[string]any) (protocol.Action[C], error) {
	return &Action[C]{
		outbox:   f.outbox,
		logger:   f.logger.With("module", "task_action"),
		assignee: actions.String(config, "assignee", ""),
		now:      f.now,
	}, nil
}

type Action[C models.Entity] struct {
	outbox   outbox.Outbox
	logger   *slog.Logger
	assignee string
	now      func() time.Time
}

func (a *Action[C]) Execute(ctx context.Context, parameters map[string]any, payload models.Payload, entity C) (map[string]any, error) {
	rendered, err := actions.RenderParameters(parameters, payload, entity)
	if err != nil {
		return nil, err
	}

	title := actions.String(rendered, "title", "")
	if title == "" {
		return nil, ErrTitleRequired
	}

	task := map[string]any{
		"title":       title,
		"description": actions.String(rendered, "description", ""),
		"assignee":    actions.String(rendered, "assignee", a.assignee),
	}

	if hours := actions.Int(rendered, "due_in_hours", 0); hours > 0 {
		task["due_at"] = a.now().Add(time.Duration(hours) * time.Hour).Format(time.RFC3339)
	}

	id, err := a.outbox.Enqueue(ctx, Queue, outbox.Message{
		Kind:        outbox.KindSend,
		ExecutionID: actions.ExecutionID(entity),
		EntityRef:   entity.Ref(),
		Payload:     task,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to queue task: %w", err)
	}

	a.logger.InfoContext(ctx, "Task created", "task_id", id, "title", title, "entity", entity.Ref())

	return map[string]any{
		"task_id":       id,
		"action_result": "task_created",
		models.CompensationKey: map[string]any{
			"task_id": id,
		},
	}, nil
}

// Compensate cancels the task created by Execute.
func (a *Action[C]) Compensate(ctx context.Context, step models.StepRecord, entity C) error {
	id := actions.String(step.Compensation, "task_id", "")
	if id == "" {
		return nil
	}

	if _, err := a.outbox.Enqueue(ctx, Queue, outbox.Message{
		Kind:        outbox.KindCancel,
		ExecutionID: actions.ExecutionID(entity),
		EntityRef:   entity.Ref(),
		Payload:     map[string]any{"task_id": id},
	}); err != nil {
		return fmt.Errorf("failed to queue task cancellation: %w", err)
	}

	return nil
}
