package saga

import (
	"fmt"

	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/go-playground/validator/v10"
)

// DefaultWorkflowType is used by the lead variant when a request names no workflow type.
const DefaultWorkflowType = "lead_nurturing"

// StartRequest describes one execution to run.
type StartRequest struct {
	// ExecutionID is optional; a UUID is generated when empty. Passing the id of a
	// delivered event makes redelivery fail with persistence.ErrExecutionAlreadyExists.
	ExecutionID    string         `json:"execution_id,omitempty"  validate:"omitempty,max=255,excludesall=/\\"`
	WorkflowID     string         `json:"workflow_id,omitempty"   validate:"omitempty,max=255"`
	LeadID         string         `json:"lead_id,omitempty"       validate:"omitempty,max=255"`
	WorkflowType   string         `json:"workflow_type,omitempty" validate:"omitempty,max=100"`
	InitialPayload models.Payload `json:"initial_payload,omitempty"`
}

func validateRequest(validate *validator.Validate, req StartRequest, required ...string) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	fields := map[string]string{
		"workflow_id": req.WorkflowID,
		"lead_id":     req.LeadID,
	}

	for _, name := range required {
		if err := validate.Var(fields[name], "required"); err != nil {
			return fmt.Errorf("%w: %s is required", ErrInvalidRequest, name)
		}
	}

	return nil
}
