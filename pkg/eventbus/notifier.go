package eventbus

import (
	"context"
	"log/slog"
	"time"

	"github.com/dashcrm/flowsaga/pkg/events"
	"github.com/dashcrm/flowsaga/pkg/models"
)

// Notifier publishes workflow outcomes. Publishing is fire-and-forget: failures are
// logged and never reach the caller.
type Notifier struct {
	publisher EventPublisher
	logger    *slog.Logger
	workerID  string
}

func NewNotifier(publisher EventPublisher, logger *slog.Logger, workerID string) *Notifier {
	return &Notifier{
		publisher: publisher,
		logger:    logger.With("module", "notifier"),
		workerID:  workerID,
	}
}

func (n *Notifier) NotifyCompleted(ctx context.Context, record *models.ExecutionRecord, duration time.Duration) {
	event := events.WorkflowCompleted{
		BaseEvent:   n.base(events.WorkflowCompletedEvent, record.WorkflowID),
		ExecutionID: record.ID,
		Variant:     record.Variant,
		LeadID:      record.LeadID,
		Result:      record.Payload,
		Duration:    duration,
	}

	n.publish(ctx, record.ID, event)
}

func (n *Notifier) NotifyFailed(ctx context.Context, record *models.ExecutionRecord, cause error, compensated bool, duration time.Duration) {
	event := events.WorkflowFailed{
		BaseEvent:   n.base(events.WorkflowFailedEvent, record.WorkflowID),
		ExecutionID: record.ID,
		Variant:     record.Variant,
		LeadID:      record.LeadID,
		Node:        record.CurrentNode,
		Error:       cause.Error(),
		Compensated: compensated,
		Duration:    duration,
	}

	n.publish(ctx, record.ID, event)
}

// RequestExecution asks the workers to run a workflow.
func RequestExecution(ctx context.Context, publisher EventPublisher, request events.ExecutionRequested) error {
	if request.ID == "" {
		request.BaseEvent = events.NewBaseEvent(events.ExecutionRequestedEvent, request.WorkflowID)
	}

	key := request.WorkflowID
	if request.LeadID != "" {
		key = request.LeadID
	}

	return publisher.Publish(ctx, key, request)
}

func (n *Notifier) base(eventType events.EventType, workflowID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, workflowID)
	base.WorkerID = n.workerID

	return base
}

func (n *Notifier) publish(ctx context.Context, key string, event Event) {
	if err := n.publisher.Publish(ctx, key, event); err != nil {
		n.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"execution_id", key,
			"error", err,
		)
	}
}
