// Package transform provides the action that renders Go templates over the payload into
// new payload keys.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/dashcrm/flowsaga/pkg/actions"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/protocol"
	"github.com/dashcrm/flowsaga/pkg/template"
)

const (
	ID            = "transform"
	defaultOutput = "output"
)

var ErrNothingToTransform = errors.New("transform needs an expression or fields")

type ActionFactory[C models.Entity] struct {
	logger *slog.Logger
}

func NewActionFactory[C models.Entity](logger *slog.Logger) *ActionFactory[C] {
	return &ActionFactory[C]{logger: logger}
}

func (*ActionFactory[C]) ID() string {
	return ID
}

func (f *ActionFactory[C]) Create(map[string]any) (protocol.Action[C], error) {
	return &Action[C]{logger: f.logger.With("module", "transform_action")}, nil
}

// Action renders the "expression" parameter into the key named by "output" and every
// entry of the "fields" parameter into a key of the same name. Rendered text that looks
// like JSON, a number or a boolean is decoded.
type Action[C models.Entity] struct {
	logger *slog.Logger
}

func (a *Action[C]) Execute(ctx context.Context, parameters map[string]any, payload models.Payload, entity C) (map[string]any, error) {
	data := template.NewScope(payload, entity).Data()
	result := make(map[string]any)

	if expression := actions.String(parameters, "expression", ""); expression != "" {
		value, err := template.Render(expression, data)
		if err != nil {
			return nil, fmt.Errorf("transformation failed: %w", err)
		}

		result[actions.String(parameters, "output", defaultOutput)] = value
	}

	fields, _ := parameters["fields"].(map[string]any)

	for _, key := range slices.Sorted(maps.Keys(fields)) {
		expression, ok := fields[key].(string)
		if !ok {
			result[key] = fields[key]

			continue
		}

		value, err := template.Render(expression, data)
		if err != nil {
			return nil, fmt.Errorf("transformation of field %s failed: %w", key, err)
		}

		result[key] = value
	}

	if len(result) == 0 {
		return nil, ErrNothingToTransform
	}

	a.logger.DebugContext(ctx, "Transform completed", "keys", len(result), "entity", entity.Ref())

	return result, nil
}
