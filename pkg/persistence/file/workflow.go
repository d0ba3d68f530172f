package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/persistence"
)

var definitionExtensions = []string{".json", ".yaml", ".yml"}

// Definition loads and validates the workflow definition stored under id.
func (fp *Persistence) Definition(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewWorkflowError("Definition", id, err)
	}

	for _, ext := range definitionExtensions {
		path := fp.path(workflowsDir, id, ext)

		data, err := os.ReadFile(path) // #nosec G304 -- id is validated above
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return nil, persistence.NewWorkflowError("Definition", id, err)
		}

		definition, err := persistence.DecodeDefinition(data, persistence.FormatFromPath(path))
		if err != nil {
			return nil, persistence.NewWorkflowError("Definition", id, err)
		}

		if definition.ID != id {
			return nil, persistence.NewWorkflowError("Definition", id,
				fmt.Errorf("%w: file declares id %q", persistence.ErrInvalidDefinition, definition.ID))
		}

		return definition, nil
	}

	return nil, persistence.NewWorkflowError("Definition", id, persistence.ErrWorkflowNotFound)
}

// SaveDefinition validates and writes a definition as JSON.
func (fp *Persistence) SaveDefinition(_ context.Context, definition *models.WorkflowDefinition) error {
	if err := validateID(definition.ID); err != nil {
		return persistence.NewWorkflowError("SaveDefinition", definition.ID, err)
	}

	if err := persistence.ValidateDefinition(definition); err != nil {
		return persistence.NewWorkflowError("SaveDefinition", definition.ID, err)
	}

	now := fp.now()
	if definition.CreatedAt.IsZero() {
		definition.CreatedAt = now
	}

	definition.UpdatedAt = now

	fp.mu.Lock()
	defer fp.mu.Unlock()

	return fp.writeJSON(workflowsDir, definition.ID, definition)
}

// Definitions returns every stored definition sorted by id.
func (fp *Persistence) Definitions(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	entries, err := os.ReadDir(filepath.Join(fp.root, workflowsDir))
	if errors.Is(err, fs.ErrNotExist) {
		return []*models.WorkflowDefinition{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	seen := make(map[string]bool)
	definitions := make([]*models.WorkflowDefinition, 0, len(entries))

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || !isDefinitionExt(ext) {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ext)
		if seen[id] {
			continue
		}

		seen[id] = true

		definition, err := fp.Definition(ctx, id)
		if err != nil {
			return nil, err
		}

		definitions = append(definitions, definition)
	}

	sort.Slice(definitions, func(i, j int) bool {
		return definitions[i].ID < definitions[j].ID
	})

	return definitions, nil
}

func isDefinitionExt(ext string) bool {
	for _, candidate := range definitionExtensions {
		if strings.EqualFold(ext, candidate) {
			return true
		}
	}

	return false
}
