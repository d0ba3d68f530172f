// Package email provides the send_email action. Emails are not sent inline: the action
// enqueues them on the outbox for the mail service and its compensator enqueues a
// cancellation.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dashcrm/flowsaga/pkg/actions"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/outbox"
	"github.com/dashcrm/flowsaga/pkg/protocol"
)

const (
	ID    = "send_email"
	Queue = "emails"
)

// ErrNoRecipient is returned when neither the to parameter nor the entity provide an address.
var ErrNoRecipient = errors.New("email has no recipient")

type ActionFactory[C models.Entity] struct {
	outbox outbox.Outbox
	logger *slog.Logger
}

func NewActionFactory[C models.Entity](ob outbox.Outbox, logger *slog.Logger) *ActionFactory[C] {
	return &ActionFactory[C]{outbox: ob, logger: logger}
}

func (*ActionFactory[C]) ID() string {
	return ID
}

// Create accepts a "from" setting used when nodes do not set one.
func (f *ActionFactory[C]) Create(config map[string]any) (protocol.Action[C], error) {
	return &Action[C]{
		outbox: f.outbox,
		logger: f.logger.With("module", "email_action"),
		from:   actions.String(config, "from", ""),
	}, nil
}

// Action queues an email built from the to, from, subject, body and template parameters.
// Without a to parameter the entity's contact address is used.
type Action[C models.Entity] struct {
	outbox outbox.Outbox
	logger *slog.Logger
	from   string
}

func (a *Action[C]) Execute(ctx context.Context, parameters map[string]any, payload models.Payload, entity C) (map[string]any, error) {
	rendered, err := actions.RenderParameters(parameters, payload, entity)
	if err != nil {
		return nil, err
	}

	to := actions.String(rendered, "to", "")
	if to == "" {
		if contact, ok := any(entity).(models.Contact); ok {
			to = contact.ContactEmail()
		}
	}

	if to == "" {
		return nil, ErrNoRecipient
	}

	message := outbox.Message{
		Kind:        outbox.KindSend,
		ExecutionID: actions.ExecutionID(entity),
		EntityRef:   entity.Ref(),
		Payload: map[string]any{
			"to":       to,
			"from":     actions.String(rendered, "from", a.from),
			"subject":  actions.String(rendered, "subject", ""),
			"body":     actions.String(rendered, "body", ""),
			"template": actions.String(rendered, "template", ""),
		},
	}

	id, err := a.outbox.Enqueue(ctx, Queue, message)
	if err != nil {
		return nil, fmt.Errorf("failed to queue email: %w", err)
	}

	a.logger.InfoContext(ctx, "Email queued", "email_id", id, "entity", entity.Ref())

	return map[string]any{
		"email_id":      id,
		"email_to":      to,
		"action_result": "email_queued",
		models.CompensationKey: map[string]any{
			"message_id": id,
		},
	}, nil
}

// Compensate asks the mail service to drop the queued email.
func (a *Action[C]) Compensate(ctx context.Context, step models.StepRecord, entity C) error {
	id := actions.String(step.Compensation, "message_id", "")
	if id == "" {
		return nil
	}

	_, err := a.outbox.Enqueue(ctx, Queue, outbox.Message{
		Kind:        outbox.KindCancel,
		ExecutionID: actions.ExecutionID(entity),
		EntityRef:   entity.Ref(),
		Payload:     map[string]any{"message_id": id},
	})
	if err != nil {
		return fmt.Errorf("failed to queue email cancellation: %w", err)
	}

	return nil
}
