package saga

import (
	"context"
	"log/slog"
	"time"

	"github.com/dashcrm/flowsaga/pkg/condition"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

// NewWorkflowSaga builds the generic workflow interpreter. Requests must name a workflow id;
// conditions are templated comparisons over the payload.
func NewWorkflowSaga(
	definitions persistence.DefinitionProvider,
	store persistence.ExecutionStore,
	actions ActionResolver[models.WorkflowContext],
	logger *slog.Logger,
	opts ...Option,
) *Interpreter[models.WorkflowContext] {
	variant := Variant[models.WorkflowContext]{
		Name: models.VariantWorkflow,
		Prepare: func(validate *validator.Validate, req StartRequest) (StartRequest, error) {
			return req, validateRequest(validate, req, "workflow_id")
		},
		DefinitionID: func(req StartRequest) string {
			return req.WorkflowID
		},
		Entity: func(_ context.Context, record *models.ExecutionRecord) (models.WorkflowContext, error) {
			return models.WorkflowContext{ExecutionID: record.ID, WorkflowID: record.WorkflowID}, nil
		},
		OnFailure: AppendError,
	}

	return New[models.WorkflowContext](variant, definitions, store, actions, condition.NewTemplate[models.WorkflowContext](logger), logger, opts...)
}

// AppendError records an executor failure as a new entry of the payload's error list and
// leaves every other key untouched.
func AppendError(action string, err error, payload models.Payload, now time.Time) map[string]any {
	var entries []any

	switch existing := payload[models.ErrorsKey].(type) {
	case []any:
		entries = append(entries, existing...)
	case []map[string]any:
		for _, entry := range existing {
			entries = append(entries, entry)
		}
	}

	entries = append(entries, map[string]any{
		"action":    action,
		"error":     err.Error(),
		"timestamp": now.UTC().Format(time.RFC3339),
	})

	return map[string]any{models.ErrorsKey: entries}
}
