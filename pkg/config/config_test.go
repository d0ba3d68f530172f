package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dashcrm/flowsaga/pkg/config"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowsaga.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
schedules:
  - name: nightly-nurture
    cron: "0 2 * * *"
    variant: lead
    lead_id: lead-42
  - name: cleanup
    cron: "@every 1h"
    workflow_id: cleanup
    payload:
      dry_run: true
actions:
  http_request:
    timeout: 10s
    attempts: 3
`), 0o600))

	file, err := config.Load(path)
	require.NoError(t, err)

	require.Len(t, file.Schedules, 2)
	assert.Equal(t, models.VariantLead, file.Schedules[0].Variant)
	assert.Equal(t, "lead-42", file.Schedules[0].LeadID)
	assert.Equal(t, models.VariantWorkflow, file.Schedules[1].Variant)
	assert.Equal(t, map[string]any{"dry_run": true}, file.Schedules[1].Payload)
	assert.Equal(t, map[string]any{"timeout": "10s", "attempts": 3}, file.Actions["http_request"])
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "bad cron", yaml: "schedules:\n  - name: a\n    cron: \"not a cron\"\n    workflow_id: wf\n"},
		{name: "missing name", yaml: "schedules:\n  - cron: \"@daily\"\n    workflow_id: wf\n"},
		{name: "lead without lead id", yaml: "schedules:\n  - name: a\n    cron: \"@daily\"\n    variant: lead\n    workflow_id: wf\n"},
		{name: "no target", yaml: "schedules:\n  - name: a\n    cron: \"@daily\"\n"},
		{name: "unknown variant", yaml: "schedules:\n  - name: a\n    cron: \"@daily\"\n    variant: order\n    workflow_id: wf\n"},
		{name: "duplicate names", yaml: "schedules:\n  - name: a\n    cron: \"@daily\"\n    workflow_id: wf\n  - name: a\n    cron: \"@hourly\"\n    workflow_id: wf\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.yaml))
			require.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	file, err := config.LoadOrDefault("")
	require.NoError(t, err)
	assert.Empty(t, file.Schedules)

	_, err = config.LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
