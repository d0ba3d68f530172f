package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/persistence"
	"github.com/lib/pq"
)

const executionColumns = `
			id
		  , variant
		  , workflow_id
		  , workflow_type
		  , lead_id
		  , status
		  , current_node
		  , payload
		  , error_message
		  , steps
		  , compensations
		  , created_at
		  , updated_at
		  , completed_at`

// pgUniqueViolation is the SQLSTATE raised on primary key conflicts.
const pgUniqueViolation = "23505"

type scanner interface {
	Scan(dest ...any) error
}

// CreateExecution inserts a new pending execution record.
func (p *Persistence) CreateExecution(ctx context.Context, execution persistence.NewExecution) (*models.ExecutionRecord, error) {
	record := persistence.NewRecord(execution, p.now())

	payloadJSON, err := json.Marshal(record.Payload)
	if err != nil {
		return nil, persistence.NewExecutionError("Create", execution.ID, fmt.Errorf("failed to marshal payload: %w", err))
	}

	query := `
		INSERT INTO executions (id, variant, workflow_id, workflow_type, lead_id, status,
current_node, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = p.db.ExecContext(ctx, query,
		record.ID,
		record.Variant,
		record.WorkflowID,
		record.WorkflowType,
		record.LeadID,
		record.Status,
		record.CurrentNode,
		payloadJSON,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return nil, persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyExists)
		}

		return nil, persistence.NewExecutionError("Create", execution.ID, fmt.Errorf("failed to insert execution: %w", err))
	}

	return record, nil
}

// UpdateExecutionStatus locks the row, applies the transition and writes it back.
func (p *Persistence) UpdateExecutionStatus(ctx context.Context, id string, status models.ExecutionStatus, update persistence.Update) (err error) {
	if !status.Valid() {
		return persistence.NewExecutionError("UpdateStatus", id, persistence.ErrInvalidStatus)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewExecutionError("UpdateStatus", id, fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx, "SELECT"+executionColumns+" FROM executions WHERE id = $1 FOR UPDATE", id)

	record, err := scanExecution(row)
	if err != nil {
		return persistence.NewExecutionError("UpdateStatus", id, err)
	}

	persistence.Apply(record, status, update, p.now())

	payloadJSON, stepsJSON, compensationsJSON, err := marshalExecutionJSON(record)
	if err != nil {
		return persistence.NewExecutionError("UpdateStatus", id, err)
	}

	query := `
		UPDATE executions SET
			status = $2,
			current_node = $3,
			payload = $4,
			error_message = $5,
			steps = $6,
			compensations = $7,
			updated_at = $8,
			completed_at = $9
		WHERE id = $1
	`

	_, err = tx.ExecContext(ctx, query,
		id,
		record.Status,
		record.CurrentNode,
		payloadJSON,
		record.Error,
		stepsJSON,
		compensationsJSON,
		record.UpdatedAt,
		record.CompletedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("UpdateStatus", id, fmt.Errorf("failed to update execution: %w", err))
	}

	err = tx.Commit()
	if err != nil {
		return persistence.NewExecutionError("UpdateStatus", id, fmt.Errorf("failed to commit: %w", err))
	}

	return nil
}

// GetExecution returns an execution record by its ID.
func (p *Persistence) GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	row := p.db.QueryRowContext(ctx, "SELECT"+executionColumns+" FROM executions WHERE id = $1", id)

	record, err := scanExecution(row)
	if err != nil {
		return nil, persistence.NewExecutionError("Get", id, err)
	}

	return record, nil
}

// ExecutionsByStatus returns the records in the given status, oldest first.
func (p *Persistence) ExecutionsByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.ExecutionRecord, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT"+executionColumns+" FROM executions WHERE status = $1 ORDER BY created_at ASC", status)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer p.closeRows(ctx, rows)

	records := make([]*models.ExecutionRecord, 0)

	for rows.Next() {
		record, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		records = append(records, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return records, nil
}

func scanExecution(row scanner) (*models.ExecutionRecord, error) {
	var (
		record                                models.ExecutionRecord
		payloadJSON, stepsJSON, compensations []byte
		completedAt                           sql.NullTime
	)

	err := row.Scan(
		&record.ID,
		&record.Variant,
		&record.WorkflowID,
		&record.WorkflowType,
		&record.LeadID,
		&record.Status,
		&record.CurrentNode,
		&payloadJSON,
		&record.Error,
		&stepsJSON,
		&compensations,
		&record.CreatedAt,
		&record.UpdatedAt,
		&completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrExecutionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	if err := json.Unmarshal(payloadJSON, &record.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if err := json.Unmarshal(stepsJSON, &record.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}

	if err := json.Unmarshal(compensations, &record.Compensations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal compensations: %w", err)
	}

	if completedAt.Valid {
		t := completedAt.Time.UTC()
		record.CompletedAt = &t
	}

	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()

	return &record, nil
}

func marshalExecutionJSON(record *models.ExecutionRecord) ([]byte, []byte, []byte, error) {
	payloadJSON, err := json.Marshal(record.Payload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	steps := record.Steps
	if steps == nil {
		steps = []models.StepRecord{}
	}

	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal steps: %w", err)
	}

	compensations := record.Compensations
	if compensations == nil {
		compensations = []models.CompensationRecord{}
	}

	compensationsJSON, err := json.Marshal(compensations)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal compensations: %w", err)
	}

	return payloadJSON, stepsJSON, compensationsJSON, nil
}
