// Package config loads the optional YAML file of the worker: recurring executions and
// the settings handed to action factories.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

// File is the layout of flowsaga.yaml.
//
//	schedules:
//	  - name: nightly-nurture
//	    cron: "0 2 * * *"
//	    variant: lead
//	    lead_id: lead-42
//	actions:
//	  http_request:
//	    timeout: 10s
//	    attempts: 3
type File struct {
	Schedules []Schedule                `yaml:"schedules" validate:"dive"`
	Actions   map[string]map[string]any `yaml:"actions"`
}

// Schedule starts an execution every time its cron expression fires.
type Schedule struct {
	Name         string         `yaml:"name" validate:"required"`
	Cron         string         `yaml:"cron" validate:"required"`
	Variant      models.Variant `yaml:"variant" validate:"omitempty,oneof=workflow lead"`
	WorkflowID   string         `yaml:"workflow_id" validate:"required_without=LeadID"`
	WorkflowType string         `yaml:"workflow_type"`
	LeadID       string         `yaml:"lead_id" validate:"required_if=Variant lead"`
	Payload      map[string]any `yaml:"payload"`
}

// Load reads and validates path. Schedules without a variant run the workflow variant.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Parse(data)
}

// LoadOrDefault returns an empty config when path is empty.
func LoadOrDefault(path string) (*File, error) {
	if path == "" {
		return &File{}, nil
	}

	return Load(path)
}

func Parse(data []byte) (*File, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	for i := range file.Schedules {
		if file.Schedules[i].Variant == "" {
			file.Schedules[i].Variant = models.VariantWorkflow
		}
	}

	if err := file.Validate(); err != nil {
		return nil, err
	}

	return &file, nil
}

// Validate checks the schedule fields and that every cron expression parses.
func (f *File) Validate() error {
	if err := validator.New().Struct(f); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	names := make(map[string]bool, len(f.Schedules))

	for _, schedule := range f.Schedules {
		if names[schedule.Name] {
			return fmt.Errorf("%w: duplicate schedule %q", ErrInvalidConfig, schedule.Name)
		}

		names[schedule.Name] = true

		if _, err := cron.ParseStandard(schedule.Cron); err != nil {
			return fmt.Errorf("%w: schedule %q: %w", ErrInvalidConfig, schedule.Name, err)
		}
	}

	return nil
}
