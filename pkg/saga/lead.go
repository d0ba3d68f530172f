package saga

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dashcrm/flowsaga/pkg/condition"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

// NewLeadSaga builds the lead-nurturing interpreter. Requests must name a lead; the
// definition is looked up by workflow id when given, else by workflow type.
func NewLeadSaga(
	definitions persistence.DefinitionProvider,
	store persistence.ExecutionStore,
	leads persistence.LeadRepository,
	actions ActionResolver[models.LeadContext],
	logger *slog.Logger,
	opts ...Option,
) *Interpreter[models.LeadContext] {
	variant := Variant[models.LeadContext]{
		Name: models.VariantLead,
		Prepare: func(validate *validator.Validate, req StartRequest) (StartRequest, error) {
			if req.WorkflowType == "" {
				req.WorkflowType = DefaultWorkflowType
			}

			return req, validateRequest(validate, req, "lead_id")
		},
		DefinitionID: func(req StartRequest) string {
			if req.WorkflowID != "" {
				return req.WorkflowID
			}

			return req.WorkflowType
		},
		Entity: func(ctx context.Context, record *models.ExecutionRecord) (models.LeadContext, error) {
			lead, err := leads.LeadByID(ctx, record.LeadID)
			if err != nil {
				return models.LeadContext{}, fmt.Errorf("failed to load lead %s: %w", record.LeadID, err)
			}

			if lead == nil {
				return models.LeadContext{}, fmt.Errorf("failed to load lead %s: %w", record.LeadID, persistence.ErrLeadNotFound)
			}

			return models.LeadContext{ExecutionID: record.ID, WorkflowType: record.WorkflowType, Lead: lead}, nil
		},
		OnFailure: MarkFailed,
	}

	predicates := condition.NewLeadPredicates(logger)
	interpreter := New[models.LeadContext](variant, definitions, store, actions, predicates, logger, opts...)
	predicates.WithClock(interpreter.now)

	return interpreter
}

// MarkFailed records an executor failure as the lead variant does: the action result is
// flagged failed and the error message replaces any previous one.
func MarkFailed(_ string, err error, _ models.Payload, _ time.Time) map[string]any {
	return map[string]any{
		"action_result": "failed",
		"error":         err.Error(),
	}
}
