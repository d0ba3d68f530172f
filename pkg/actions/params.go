// Package actions holds the helpers shared by the built-in node actions. Each action lives
// in its own sub-package.
package actions

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/template"
)

// RenderParameters renders the string parameters of a node against its payload and entity.
func RenderParameters(parameters map[string]any, payload models.Payload, entity models.Entity) (map[string]any, error) {
	rendered, err := template.RenderParameters(parameters, template.NewScope(payload, entity).Data())
	if err != nil {
		return nil, fmt.Errorf("failed to render parameters: %w", err)
	}

	return rendered, nil
}

// ExecutionID returns the execution an entity context belongs to.
func ExecutionID(entity models.Entity) string {
	return template.NewScope(nil, entity).ExecutionID
}

func String(params map[string]any, key, fallback string) string {
	switch v := params[key].(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			return v
		}
	case nil:
	default:
		return fmt.Sprint(v)
	}

	return fallback
}

// Int reads an integer parameter given as a JSON number, a Go integer or a numeric string.
func Int(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}

	return fallback
}

// Duration reads a duration parameter given in seconds or as a Go duration string ("1m30s").
func Duration(params map[string]any, key string, fallback time.Duration) time.Duration {
	switch v := params[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}

		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(n * float64(time.Second))
		}
	case nil:
	default:
		if n := Int(params, key, -1); n >= 0 {
			return time.Duration(n) * time.Second
		}
	}

	return fallback
}

// StringMap reads a map parameter, keeping only its string values.
func StringMap(params map[string]any, key string) map[string]string {
	out := make(map[string]string)

	switch v := params[key].(type) {
	case map[string]any:
		for k, value := range v {
			if s, ok := value.(string); ok {
				out[k] = s
			}
		}
	case map[string]string:
		for k, value := range v {
			out[k] = value
		}
	}

	return out
}
