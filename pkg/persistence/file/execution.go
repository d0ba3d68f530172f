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

// CreateExecution writes a new pending execution record.
func (fp *Persistence) CreateExecution(_ context.Context, execution persistence.NewExecution) (*models.ExecutionRecord, error) {
	if err := validateID(execution.ID); err != nil {
		return nil, persistence.NewExecutionError("Create", execution.ID, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	if _, err := os.Stat(fp.path(executionsDir, execution.ID, ".json")); err == nil {
		return nil, persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyExists)
	}

	record := persistence.NewRecord(execution, fp.now())

	if err := fp.writeJSON(executionsDir, record.ID, record); err != nil {
		return nil, persistence.NewExecutionError("Create", execution.ID, err)
	}

	return record, nil
}

// UpdateExecutionStatus applies a status transition to a stored record.
func (fp *Persistence) UpdateExecutionStatus(_ context.Context, id string, status models.ExecutionStatus, update persistence.Update) error {
	if !status.Valid() {
		return persistence.NewExecutionError("UpdateStatus", id, persistence.ErrInvalidStatus)
	}

	if err := validateID(id); err != nil {
		return persistence.NewExecutionError("UpdateStatus", id, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	record, err := fp.loadExecution(id)
	if err != nil {
		return persistence.NewExecutionError("UpdateStatus", id, err)
	}

	persistence.Apply(record, status, update, fp.now())

	if err := fp.writeJSON(executionsDir, id, record); err != nil {
		return persistence.NewExecutionError("UpdateStatus", id, err)
	}

	return nil
}

// GetExecution retrieves an execution record by its ID.
func (fp *Persistence) GetExecution(_ context.Context, id string) (*models.ExecutionRecord, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewExecutionError("Get", id, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	record, err := fp.loadExecution(id)
	if err != nil {
		return nil, persistence.NewExecutionError("Get", id, err)
	}

	return record, nil
}

// ExecutionsByStatus returns the records in the given status, oldest first.
func (fp *Persistence) ExecutionsByStatus(_ context.Context, status models.ExecutionStatus) ([]*models.ExecutionRecord, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	files, err := fs.Glob(os.DirFS(filepath.Join(fp.root, executionsDir)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	records := make([]*models.ExecutionRecord, 0)

	for _, file := range files {
		record, err := fp.loadExecution(strings.TrimSuffix(file, ".json"))
		if err != nil {
			return nil, fmt.Errorf("failed to load execution %s: %w", file, err)
		}

		if record.Status == status {
			records = append(records, record)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return records, nil
}

func (fp *Persistence) loadExecution(id string) (*models.ExecutionRecord, error) {
	var record models.ExecutionRecord

	err := fp.readJSON(executionsDir, id, &record)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.ErrExecutionNotFound
	}

	if err != nil {
		return nil, err
	}

	return &record, nil
}
