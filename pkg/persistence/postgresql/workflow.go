package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/persistence"
)

const definitionColumns = `
			id
		  , name
		  , active
		  , nodes
		  , created_at
		  , updated_at`

// Definition returns the workflow definition with the given id.
func (p *Persistence) Definition(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	row := p.db.QueryRowContext(ctx, "SELECT"+definitionColumns+" FROM workflow_definitions WHERE id = $1", id)

	definition, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewWorkflowError("Definition", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewWorkflowError("Definition", id, err)
	}

	return definition, nil
}

// Definitions returns all workflow definitions ordered by id.
func (p *Persistence) Definitions(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT"+definitionColumns+" FROM workflow_definitions ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow definitions: %w", err)
	}

	defer p.closeRows(ctx, rows)

	definitions := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		definition, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
		}

		definitions = append(definitions, definition)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflow definitions: %w", err)
	}

	return definitions, nil
}

// SaveDefinition validates and upserts a workflow definition.
func (p *Persistence) SaveDefinition(ctx context.Context, definition *models.WorkflowDefinition) error {
	if err := persistence.ValidateDefinition(definition); err != nil {
		return persistence.NewWorkflowError("SaveDefinition", definition.ID, err)
	}

	now := p.now()
	if definition.CreatedAt.IsZero() {
		definition.CreatedAt = now
	}

	definition.UpdatedAt = now

	nodesJSON, err := json.Marshal(definition.Nodes)
	if err != nil {
		return persistence.NewWorkflowError("SaveDefinition", definition.ID, fmt.Errorf("failed to marshal nodes: %w", err))
	}

	query := `
		INSERT INTO workflow_definitions (id, name, active, nodes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			active = EXCLUDED.active,
			nodes = EXCLUDED.nodes,
			updated_at = EXCLUDED.updated_at
	`

	_, err = p.db.ExecContext(ctx, query,
		definition.ID,
		definition.Name,
		definition.Active,
		nodesJSON,
		definition.CreatedAt,
		definition.UpdatedAt,
	)
	if err != nil {
		return persistence.NewWorkflowError("SaveDefinition", definition.ID, fmt.Errorf("failed to save definition: %w", err))
	}

	return nil
}

func scanDefinition(row scanner) (*models.WorkflowDefinition, error) {
	var (
		definition models.WorkflowDefinition
		nodesJSON  []byte
	)

	err := row.Scan(
		&definition.ID,
		&definition.Name,
		&definition.Active,
		&nodesJSON,
		&definition.CreatedAt,
		&definition.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(nodesJSON, &definition.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	return &definition, nil
}
