package actions_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dashcrm/flowsaga/pkg/actions"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderParameters(t *testing.T) {
	entity := models.LeadContext{ExecutionID: "exec-1", Lead: &models.Lead{ID: "lead-1", Name: "Ada"}}

	rendered, err := actions.RenderParameters(map[string]any{
		"subject": "Welcome {{ .entity.name }}",
		"nested":  map[string]any{"step": "{{ .payload.step }}"},
		"count":   3,
	}, models.Payload{"step": "intro"}, entity)
	require.NoError(t, err)

	assert.Equal(t, "Welcome Ada", rendered["subject"])
	assert.Equal(t, map[string]any{"step": "intro"}, rendered["nested"])
	assert.Equal(t, 3, rendered["count"])
	assert.Equal(t, "exec-1", actions.ExecutionID(entity))
}

func TestParameterReaders(t *testing.T) {
	params := map[string]any{
		"name":     "flowsaga",
		"blank":    "  ",
		"number":   float64(4),
		"json":     json.Number("7"),
		"text_num": "12",
		"seconds":  float64(5),
		"duration": "1m30s",
		"headers":  map[string]any{"X-Trace": "abc", "Ignored": 1},
	}

	assert.Equal(t, "flowsaga", actions.String(params, "name", "x"))
	assert.Equal(t, "x", actions.String(params, "blank", "x"))
	assert.Equal(t, "4", actions.String(params, "number", "x"))
	assert.Equal(t, "x", actions.String(params, "missing", "x"))

	assert.Equal(t, 4, actions.Int(params, "number", 0))
	assert.Equal(t, 7, actions.Int(params, "json", 0))
	assert.Equal(t, 12, actions.Int(params, "text_num", 0))
	assert.Equal(t, 9, actions.Int(params, "name", 9))

	assert.Equal(t, 5*time.Second, actions.Duration(params, "seconds", 0))
	assert.Equal(t, 90*time.Second, actions.Duration(params, "duration", 0))
	assert.Equal(t, 12*time.Second, actions.Duration(params, "text_num", 0))
	assert.Equal(t, time.Minute, actions.Duration(params, "missing", time.Minute))

	assert.Equal(t, map[string]string{"X-Trace": "abc"}, actions.StringMap(params, "headers"))
}
