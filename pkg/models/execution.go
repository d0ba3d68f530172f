package models

import "time"

// ExecutionStatus is the lifecycle state of an execution record.
type ExecutionStatus string

const (
	ExecutionStatusPending    ExecutionStatus = "pending"
	ExecutionStatusInProgress ExecutionStatus = "in_progress"
	ExecutionStatusCompleted  ExecutionStatus = "completed"
	ExecutionStatusFailed     ExecutionStatus = "failed"
)

// IsTerminal reports whether no further transitions are expected.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionStatusPending, ExecutionStatusInProgress, ExecutionStatusCompleted, ExecutionStatusFailed:
		return true
	default:
		return false
	}
}

// Variant names the interpreter flavour that owns an execution.
type Variant string

const (
	VariantWorkflow Variant = "workflow"
	VariantLead     Variant = "lead"
)

// StepStatus is the outcome of a single node action.
type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// ExecutionRecord is the durable state of one run of a workflow.
type ExecutionRecord struct {
	ID            string               `json:"id"`
	Variant       Variant              `json:"variant"`
	WorkflowID    string               `json:"workflow_id"`
	WorkflowType  string               `json:"workflow_type,omitempty"`
	LeadID        string               `json:"lead_id,omitempty"`
	Status        ExecutionStatus      `json:"status"`
	CurrentNode   string               `json:"current_node"`
	Payload       Payload              `json:"payload"`
	Error         string               `json:"error,omitempty"`
	Steps         []StepRecord         `json:"steps,omitempty"`
	Compensations []CompensationRecord `json:"compensations,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
}

// StepRecord is the log entry of one executed node, kept for compensation.
type StepRecord struct {
	Node         string         `json:"node"`
	Action       string         `json:"action"`
	Status       StepStatus     `json:"status"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Result       map[string]any `json:"result,omitempty"`
	Compensation map[string]any `json:"compensation,omitempty"`
	Error        string         `json:"error,omitempty"`
	ExecutedAt   time.Time      `json:"executed_at"`
}

// CompensationRecord is the outcome of undoing one completed step.
type CompensationRecord struct {
	Node          string    `json:"node"`
	Action        string    `json:"action"`
	Compensated   bool      `json:"compensated"`
	Error         string    `json:"error,omitempty"`
	CompensatedAt time.Time `json:"compensated_at"`
}

// CompensationKey is the result key an action uses to hand undo data to its compensator.
// It is stripped from the result before the result is merged into the payload.
const CompensationKey = "_compensation"

// ErrorsKey is the payload key holding per-node executor failures of the generic workflow variant.
const ErrorsKey = "_errors"
