// Package persistence defines the storage contracts of the saga interpreter: execution
// state, workflow definitions and leads.
package persistence

import (
	"context"
	"time"

	"github.com/dashcrm/flowsaga/pkg/models"
)

// ExecutionStore keeps the state of every execution. Implementations are safe for
// concurrent writes to distinct records; concurrent writes to the same record are last
// write wins.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, execution NewExecution) (*models.ExecutionRecord, error)
	UpdateExecutionStatus(ctx context.Context, id string, status models.ExecutionStatus, update Update) error
	GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error)
	ExecutionsByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.ExecutionRecord, error)
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// DefinitionProvider resolves workflow definitions by id.
type DefinitionProvider interface {
	Definition(ctx context.Context, id string) (*models.WorkflowDefinition, error)
}

// DefinitionStore is a DefinitionProvider that can also save and list definitions.
type DefinitionStore interface {
	DefinitionProvider
	SaveDefinition(ctx context.Context, definition *models.WorkflowDefinition) error
	Definitions(ctx context.Context) ([]*models.WorkflowDefinition, error)
}

// LeadRepository is the read/update surface the lead variant needs from the CRM.
type LeadRepository interface {
	LeadByID(ctx context.Context, id string) (*models.Lead, error)
	UpdateLeadAttribute(ctx context.Context, id, field string, value any) error
}

// Persistence bundles the stores a backend provides.
type Persistence interface {
	ExecutionStore
	DefinitionStore
	LeadRepository
	SaveLead(ctx context.Context, lead *models.Lead) error
}

// NewExecution describes the record created when an execution starts.
type NewExecution struct {
	ID           string
	Variant      models.Variant
	WorkflowID   string
	WorkflowType string
	LeadID       string
	Payload      models.Payload
}

// Update carries the optional fields of a status transition. Zero values leave the
// stored field untouched; Step is appended and Compensations replace the stored list.
type Update struct {
	CurrentNode   string
	Error         string
	Payload       models.Payload
	Step          *models.StepRecord
	Compensations []models.CompensationRecord
}

// NewRecord builds the initial pending record for execution.
func NewRecord(execution NewExecution, now time.Time) *models.ExecutionRecord {
	payload := execution.Payload.Clone()

	return &models.ExecutionRecord{
		ID:           execution.ID,
		Variant:      execution.Variant,
		WorkflowID:   execution.WorkflowID,
		WorkflowType: execution.WorkflowType,
		LeadID:       execution.LeadID,
		Status:       models.ExecutionStatusPending,
		CurrentNode:  models.StartNode,
		Payload:      payload,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Apply writes a status transition onto record. Terminal statuses stamp CompletedAt.
func Apply(record *models.ExecutionRecord, status models.ExecutionStatus, update Update, now time.Time) {
	record.Status = status
	record.UpdatedAt = now

	if update.CurrentNode != "" {
		record.CurrentNode = update.CurrentNode
	}

	if update.Error != "" {
		record.Error = update.Error
	}

	if update.Payload != nil {
		record.Payload = update.Payload.Clone()
	}

	if update.Step != nil {
		record.Steps = append(record.Steps, *update.Step)
	}

	if update.Compensations != nil {
		record.Compensations = update.Compensations
	}

	if status.IsTerminal() && record.CompletedAt == nil {
		completedAt := now
		record.CompletedAt = &completedAt
	}
}
