// Package leadfield provides the update_lead_field action of the lead variant. It sets a
// custom attribute on the lead and its compensator restores the value it replaced.
package leadfield

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dashcrm/flowsaga/pkg/actions"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/persistence"
	"github.com/dashcrm/flowsaga/pkg/protocol"
)

const ID = "update_lead_field"

var (
	ErrFieldRequired = errors.New("lead field name is required")
	ErrReservedField = errors.New("lead field is reserved")
	ErrNoLead        = errors.New("execution has no lead")
)

var reserved = []string{"id", "name", "email", "phone", "score", "status", "created_at", "ref"}

type ActionFactory struct {
	leads  persistence.LeadRepository
	logger *slog.Logger
}

func NewActionFactory(leads persistence.LeadRepository, logger *slog.Logger) *ActionFactory {
	return &ActionFactory{leads: leads, logger: logger}
}

func (*ActionFactory) ID() string {
	return ID
}

func (f *ActionFactory) Create(map[string]any) (protocol.Action[models.LeadContext], error) {
	return &Action{leads: f.leads, logger: f.logger.With("module", "lead_field_action")}, nil
}

// Action writes the value parameter to the field attribute of the execution's lead.
type Action struct {
	leads  persistence.LeadRepository
	logger *slog.Logger
}

func (a *Action) Execute(ctx context.Context, parameters map[string]any, payload models.Payload, entity models.LeadContext) (map[string]any, error) {
	if entity.Lead == nil {
		return nil, ErrNoLead
	}

	rendered, err := actions.RenderParameters(parameters, payload, entity)
	if err != nil {
		return nil, err
	}

	field := actions.String(rendered, "field", "")
	if field == "" {
		return nil, ErrFieldRequired
	}

	if slices.Contains(reserved, field) {
		return nil, fmt.Errorf("%w: %s", ErrReservedField, field)
	}

	value := rendered["value"]

	// Earlier steps may have changed the lead since the execution loaded it.
	current, err := a.leads.LeadByID(ctx, entity.Lead.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead %s: %w", entity.Lead.ID, err)
	}

	previous, hadPrevious := current.Attributes[field]

	if err := a.leads.UpdateLeadAttribute(ctx, entity.Lead.ID, field, value); err != nil {
		return nil, fmt.Errorf("failed to update lead %s: %w", entity.Lead.ID, err)
	}

	a.logger.InfoContext(ctx, "Lead field updated", "lead_id", entity.Lead.ID, "field", field)

	return map[string]any{
		"updated_field": field,
		"updated_value": value,
		"action_result": "lead_updated",
		models.CompensationKey: map[string]any{
			"field":        field,
			"previous":     previous,
			"had_previous": hadPrevious,
		},
	}, nil
}

// Compensate puts back the value the field held before Execute, removing the field when
// it did not exist.
func (a *Action) Compensate(ctx context.Context, step models.StepRecord, entity models.LeadContext) error {
	field := actions.String(step.Compensation, "field", "")
	if field == "" || entity.Lead == nil {
		return nil
	}

	var value any
	if had, _ := step.Compensation["had_previous"].(bool); had {
		value = step.Compensation["previous"]
	}

	if err := a.leads.UpdateLeadAttribute(ctx, entity.Lead.ID, field, value); err != nil {
		return fmt.Errorf("failed to restore lead %s field %s: %w", entity.Lead.ID, field, err)
	}

	return nil
}
