// Package file provides file-based persistence for executions, workflow definitions and leads.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dashcrm/flowsaga/pkg/persistence"
)

const (
	executionsDir = "executions"
	workflowsDir  = "workflows"
	leadsDir      = "leads"
)

// Persistence implements persistence.Persistence on top of a directory tree:
// executions/<id>.json, workflows/<id>.{json,yaml,yml} and leads/<id>.json.
type Persistence struct {
	root string
	mu   sync.Mutex
	now  func() time.Time
}

var _ persistence.Persistence = (*Persistence)(nil)

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root: cleanRoot,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); err != nil {
		return fmt.Errorf("persistence root %s unavailable: %w", fp.root, err)
	}

	return nil
}

// validateID validates that an identifier is safe to use as a file name.
func validateID(id string) error {
	if id == "" {
		return errors.New("ID cannot be empty")
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return errors.New("ID contains invalid characters")
	}

	return nil
}

func (fp *Persistence) path(dir, id, ext string) string {
	return filepath.Join(fp.root, dir, id+ext)
}

func (fp *Persistence) writeJSON(dir, id string, value any) error {
	if err := os.MkdirAll(filepath.Join(fp.root, dir), 0750); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	target := fp.path(dir, id, ".json")
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to replace %s: %w", id, err)
	}

	return nil
}

// readJSON returns os.ErrNotExist (wrapped) when the file is missing.
func (fp *Persistence) readJSON(dir, id string, value any) error {
	data, err := os.ReadFile(fp.path(dir, id, ".json")) // #nosec G304 -- id is validated by callers
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, value); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", id, err)
	}

	return nil
}
