// Package noop provides the action that does nothing and returns an empty result.
package noop

import (
	"context"

	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/protocol"
)

const ID = "noop"

type ActionFactory[C models.Entity] struct{}

func NewActionFactory[C models.Entity]() *ActionFactory[C] {
	return &ActionFactory[C]{}
}

func (*ActionFactory[C]) ID() string {
	return ID
}

func (*ActionFactory[C]) Create(map[string]any) (protocol.Action[C], error) {
	return Action[C]{}, nil
}

type Action[C models.Entity] struct{}

func (Action[C]) Execute(context.Context, map[string]any, models.Payload, C) (map[string]any, error) {
	return map[string]any{}, nil
}
