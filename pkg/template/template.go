// Package template renders Go text templates inside action parameters.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dashcrm/flowsaga/pkg/models"
)

// Scope is the data an action template can reach.
type Scope struct {
	ExecutionID string
	WorkflowID  string
	Payload     models.Payload
	Entity      map[string]any
}

// NewScope derives the scope of one node execution from its payload and entity context.
func NewScope(payload models.Payload, entity models.Entity) Scope {
	scope := Scope{
		Payload: payload,
		Entity:  map[string]any{"ref": entity.Ref()},
	}

	switch e := entity.(type) {
	case models.WorkflowContext:
		scope.ExecutionID = e.ExecutionID
		scope.WorkflowID = e.WorkflowID
	case models.LeadContext:
		scope.ExecutionID = e.ExecutionID
		scope.WorkflowID = e.WorkflowType

		if e.Lead != nil {
			scope.Entity = e.Lead.Fields()
			scope.Entity["ref"] = e.Ref()
		}
	}

	return scope
}

// Data builds the template root: .payload (alias .vars), .entity, .env and .execution.
func (s Scope) Data() map[string]any {
	return map[string]any{
		"payload": map[string]any(s.Payload),
		"vars":    map[string]any(s.Payload),
		"entity":  s.Entity,
		"env":     getEnvVars(),
		"execution": map[string]any{
			"id":          s.ExecutionID,
			"workflow_id": s.WorkflowID,
		},
	}
}

// RenderWithScope renders input against scope and decodes the output like Render.
func RenderWithScope(input string, scope Scope) (any, error) {
	return Render(input, scope.Data())
}

// RenderString renders input against data and returns the raw text output.
func RenderString(templateStr string, data any) (string, error) {
	if !strings.Contains(templateStr, "{{") {
		return templateStr, nil
	}

	tmpl, err := template.
		New("action").
		Option("missingkey=zero").
		Funcs(funcs()).
		Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}

// Render renders templateStr and decodes the output: JSON objects and arrays, numbers and
// booleans come back typed, anything else as a trimmed string.
func Render(templateStr string, data any) (any, error) {
	result, err := RenderString(templateStr, data)
	if err != nil {
		return nil, err
	}

	result = strings.TrimSpace(result)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderParameters renders every string found in params, recursing into nested maps and
// lists. Non-string values are copied unchanged.
func RenderParameters(params map[string]any, data any) (map[string]any, error) {
	out := make(map[string]any, len(params))

	for key, value := range params {
		rendered, err := renderValue(value, data)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", key, err)
		}

		out[key] = rendered
	}

	return out, nil
}

func renderValue(value any, data any) (any, error) {
	switch v := value.(type) {
	case string:
		return RenderString(v, data)
	case map[string]any:
		return RenderParameters(v, data)
	case []any:
		out := make([]any, len(v))

		for i, item := range v {
			rendered, err := renderValue(item, data)
			if err != nil {
				return nil, err
			}

			out[i] = rendered
		}

		return out, nil
	default:
		return value, nil
	}
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"now": func() string {
			return time.Now().UTC().Format(time.RFC3339)
		},
		"rand": func(max int) int {
			if max <= 0 {
				return 0
			}

			num := make([]byte, 1)

			_, err := rand.Read(num)
			if err != nil {
				return 0
			}

			return int(num[0]) % max
		},
		"json": func(v any) (string, error) {
			data, err := json.Marshal(v)

			return string(data), err
		},
		"default": func(fallback, v any) any {
			if v == nil || v == "" {
				return fallback
			}

			return v
		},
	}
}

// getEnvVars returns environment variables as a map.
func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
