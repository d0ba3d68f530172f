package protocol

import (
	"context"

	"github.com/dashcrm/flowsaga/pkg/models"
)

// Action executes the work of one workflow node. The returned map is shallow-merged into
// the execution payload. A returned error never aborts the workflow; the interpreter
// records it through its failure policy.
type Action[C models.Entity] interface {
	Execute(ctx context.Context, parameters map[string]any, payload models.Payload, entity C) (map[string]any, error)
}

type ActionFactory[C models.Entity] interface {
	Create(config map[string]any) (Action[C], error)
	ID() string
}

// Compensator undoes the effect of a completed step. Actions that implement it are
// registered as their own compensator.
type Compensator[C models.Entity] interface {
	Compensate(ctx context.Context, step models.StepRecord, entity C) error
}

// ActionFunc adapts a plain function to the Action interface.
type ActionFunc[C models.Entity] func(ctx context.Context, parameters map[string]any, payload models.Payload, entity C) (map[string]any, error)

func (f ActionFunc[C]) Execute(ctx context.Context, parameters map[string]any, payload models.Payload, entity C) (map[string]any, error) {
	return f(ctx, parameters, payload, entity)
}

// CompensatorFunc adapts a plain function to the Compensator interface.
type CompensatorFunc[C models.Entity] func(ctx context.Context, step models.StepRecord, entity C) error

func (f CompensatorFunc[C]) Compensate(ctx context.Context, step models.StepRecord, entity C) error {
	return f(ctx, step, entity)
}

// StaticFactory always hands out the same action instance.
type StaticFactory[C models.Entity] struct {
	ActionID string
	Action   Action[C]
}

func (f StaticFactory[C]) Create(map[string]any) (Action[C], error) {
	return f.Action, nil
}

func (f StaticFactory[C]) ID() string {
	return f.ActionID
}
