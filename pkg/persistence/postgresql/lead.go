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

// LeadByID returns the lead with the given id.
func (p *Persistence) LeadByID(ctx context.Context, id string) (*models.Lead, error) {
	query := `
		SELECT
			id
		  , name
		  , email
		  , phone
		  , score
		  , status
		  , attributes
		  , created_at
		FROM leads
		WHERE id = $1
	`

	var (
		lead           models.Lead
		attributesJSON []byte
	)

	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&lead.ID,
		&lead.Name,
		&lead.Email,
		&lead.Phone,
		&lead.Score,
		&lead.Status,
		&attributesJSON,
		&lead.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrLeadNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan lead %s: %w", id, err)
	}

	if err := json.Unmarshal(attributesJSON, &lead.Attributes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lead attributes: %w", err)
	}

	return &lead, nil
}

// SaveLead upserts a lead.
func (p *Persistence) SaveLead(ctx context.Context, lead *models.Lead) error {
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = p.now()
	}

	attributes := lead.Attributes
	if attributes == nil {
		attributes = map[string]any{}
	}

	attributesJSON, err := json.Marshal(attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal lead attributes: %w", err)
	}

	query := `
		INSERT INTO leads (id, name, email, phone, score, status, attributes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			score = EXCLUDED.score,
			status = EXCLUDED.status,
			attributes = EXCLUDED.attributes
	`

	_, err = p.db.ExecContext(ctx, query,
		lead.ID, lead.Name, lead.Email, lead.Phone, lead.Score, lead.Status, attributesJSON, lead.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save lead %s: %w", lead.ID, err)
	}

	return nil
}

// UpdateLeadAttribute sets or, for a nil value, removes a custom attribute.
func (p *Persistence) UpdateLeadAttribute(ctx context.Context, id, field string, value any) error {
	var (
		result sql.Result
		err    error
	)

	if value == nil {
		result, err = p.db.ExecContext(ctx, `UPDATE leads SET attributes = attributes - $2::text WHERE id = $1`, id, field)
	} else {
		valueJSON, marshalErr := json.Marshal(value)
		if marshalErr != nil {
			return fmt.Errorf("failed to marshal attribute %s: %w", field, marshalErr)
		}

		result, err = p.db.ExecContext(ctx,
			`UPDATE leads SET attributes = jsonb_set(attributes, ARRAY[$2::text], $3::jsonb, true) WHERE id = $1`,
			id, field, string(valueJSON))
	}

	if err != nil {
		return fmt.Errorf("failed to update lead %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of lead %s: %w", id, err)
	}

	if affected == 0 {
		return persistence.ErrLeadNotFound
	}

	return nil
}
