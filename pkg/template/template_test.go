package template

import (
	"testing"

	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_SimpleExpression(t *testing.T) {
	data := map[string]any{
		"name":  "John",
		"age":   30,
		"isNew": true,
	}

	result, err := Render("{{ .name }}", data)
	require.NoError(t, err)
	assert.Equal(t, "John", result)

	result, err = Render("{{ .isNew }}", data)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	// numbers always decode to float64
	result, err = Render("{{ .age }}", data)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, result, 0)
}

func TestRender_JSONOutput(t *testing.T) {
	data := map[string]any{
		"user":   map[string]any{"name": "Alice"},
		"orders": []any{1, 2},
	}

	result, err := Render(`{"user_name": "{{ .user.name }}", "total_orders": {{ len .orders }}}`, data)
	require.NoError(t, err)

	resultMap, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Alice", resultMap["user_name"])
	assert.InDelta(t, 2.0, resultMap["total_orders"], 0)

	_, err = Render(`{"broken": {{ .user.name }}}`, data)
	require.Error(t, err)
}

func TestRender_Errors(t *testing.T) {
	_, err := Render("{{ .name ", nil)
	require.Error(t, err)
}

func TestRenderWithScope(t *testing.T) {
	t.Setenv("FLOWSAGA_TEST_TOKEN", "secret")

	scope := Scope{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		Payload:     models.Payload{"score": 80},
		Entity:      map[string]any{"email": "lead@example.com"},
	}

	result, err := RenderWithScope("{{ .entity.email }}|{{ .vars.score }}|{{ .execution.id }}|{{ .env.FLOWSAGA_TEST_TOKEN }}", scope)
	require.NoError(t, err)
	assert.Equal(t, "lead@example.com|80|exec-1|secret", result)
}

func TestRenderParameters(t *testing.T) {
	data := Scope{Payload: models.Payload{"name": "Ada"}}.Data()

	params := map[string]any{
		"subject": "Hi {{ .payload.name }}",
		"retries": 3,
		"nested":  map[string]any{"greeting": "Hello {{ .payload.name }}"},
		"list":    []any{"{{ .payload.name }}", 1},
		"plain":   "no templating",
		"missing": "[{{ .payload.unknown }}]",
	}

	rendered, err := RenderParameters(params, data)
	require.NoError(t, err)

	assert.Equal(t, "Hi Ada", rendered["subject"])
	assert.Equal(t, 3, rendered["retries"])
	assert.Equal(t, "Hello Ada", rendered["nested"].(map[string]any)["greeting"])
	assert.Equal(t, []any{"Ada", 1}, rendered["list"])
	assert.Equal(t, "no templating", rendered["plain"])
	assert.Equal(t, "[<no value>]", rendered["missing"])

	// the input map is left untouched
	assert.Equal(t, "Hi {{ .payload.name }}", params["subject"])
}

func TestFuncs(t *testing.T) {
	result, err := RenderString(`{{ json .payload }}|{{ default "n/a" .payload.empty }}`, map[string]any{"payload": map[string]any{"a": 1, "empty": ""}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"empty":""}|n/a`, result)
}

func TestNewScope(t *testing.T) {
	lead := &models.Lead{ID: "lead-7", Name: "Ada", Email: "ada@example.com", Attributes: map[string]any{"plan": "pro"}}

	scope := NewScope(models.Payload{"step": 2}, models.LeadContext{ExecutionID: "exec-1", WorkflowType: "lead_nurturing", Lead: lead})

	assert.Equal(t, "exec-1", scope.ExecutionID)
	assert.Equal(t, "lead_nurturing", scope.WorkflowID)
	assert.Equal(t, "lead:lead-7", scope.Entity["ref"])
	assert.Equal(t, "pro", scope.Entity["plan"])

	out, err := RenderString("Hi {{ .entity.name }}, step {{ .payload.step }} of {{ .execution.id }}", scope.Data())
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada, step 2 of exec-1", out)

	workflow := NewScope(nil, models.WorkflowContext{ExecutionID: "exec-2", WorkflowID: "wf"})
	assert.Equal(t, "wf", workflow.WorkflowID)
	assert.Equal(t, map[string]any{"ref": "workflow:wf"}, workflow.Entity)
}
