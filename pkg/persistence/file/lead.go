package file

import (
	"context"
	"errors"
	"io/fs"

	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/persistence"
)

// LeadByID reads leads/<id>.json.
func (fp *Persistence) LeadByID(_ context.Context, id string) (*models.Lead, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	return fp.loadLead(id)
}

func (fp *Persistence) SaveLead(_ context.Context, lead *models.Lead) error {
	if err := validateID(lead.ID); err != nil {
		return err
	}

	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = fp.now()
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	return fp.writeJSON(leadsDir, lead.ID, lead)
}

// UpdateLeadAttribute sets a custom attribute on a stored lead. A nil value removes it.
func (fp *Persistence) UpdateLeadAttribute(_ context.Context, id, field string, value any) error {
	if err := validateID(id); err != nil {
		return err
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	lead, err := fp.loadLead(id)
	if err != nil {
		return err
	}

	if lead.Attributes == nil {
		lead.Attributes = make(map[string]any)
	}

	if value == nil {
		delete(lead.Attributes, field)
	} else {
		lead.Attributes[field] = value
	}

	return fp.writeJSON(leadsDir, id, lead)
}

func (fp *Persistence) loadLead(id string) (*models.Lead, error) {
	var lead models.Lead

	err := fp.readJSON(leadsDir, id, &lead)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.ErrLeadNotFound
	}

	if err != nil {
		return nil, err
	}

	return &lead, nil
}
