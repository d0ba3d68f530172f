package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/dashcrm/flowsaga/pkg/log"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFactory struct {
	id       string
	created  int
	settings map[string]any
}

func (f *countingFactory) ID() string { return f.id }

func (f *countingFactory) Create(config map[string]any) (protocol.Action[models.WorkflowContext], error) {
	f.created++
	f.settings = config

	return protocol.ActionFunc[models.WorkflowContext](func(context.Context, map[string]any, models.Payload, models.WorkflowContext) (map[string]any, error) {
		return map[string]any{"from": f.id}, nil
	}), nil
}

type failingFactory struct{}

func (failingFactory) ID() string { return "broken" }

func (failingFactory) Create(map[string]any) (protocol.Action[models.WorkflowContext], error) {
	return nil, errors.New("missing endpoint")
}

type selfCompensating struct{}

func (selfCompensating) Execute(context.Context, map[string]any, models.Payload, models.WorkflowContext) (map[string]any, error) {
	return nil, nil
}

func (selfCompensating) Compensate(context.Context, models.StepRecord, models.WorkflowContext) error {
	return nil
}

func TestRegistry_Resolve(t *testing.T) {
	registry := NewRegistry[models.WorkflowContext](log.Discard())
	factory := &countingFactory{id: "echo"}

	registry.RegisterAction(factory)
	registry.Configure("echo", map[string]any{"timeout": "5s"})

	action, err := registry.Resolve("echo")
	require.NoError(t, err)

	result, err := action.Execute(context.Background(), nil, models.Payload{}, models.WorkflowContext{})
	require.NoError(t, err)
	assert.Equal(t, "echo", result["from"])
	assert.Equal(t, "5s", factory.settings["timeout"])

	_, err = registry.Resolve("echo")
	require.NoError(t, err)
	assert.Equal(t, 1, factory.created, "executors are created once and reused")
}

func TestRegistry_ResolveErrors(t *testing.T) {
	registry := NewRegistry[models.WorkflowContext](log.Discard())
	registry.RegisterAction(failingFactory{})

	_, err := registry.Resolve("unknown")
	require.ErrorIs(t, err, ErrActionNotRegistered)

	_, err = registry.Resolve("broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrActionNotRegistered)
	assert.Contains(t, err.Error(), "missing endpoint")
}

func TestRegistry_Compensator(t *testing.T) {
	registry := NewRegistry[models.WorkflowContext](log.Discard())
	registry.RegisterAction(&countingFactory{id: "plain"})
	registry.RegisterAction(protocol.StaticFactory[models.WorkflowContext]{ActionID: "self", Action: selfCompensating{}})

	_, ok := registry.Compensator("plain")
	assert.False(t, ok)

	_, ok = registry.Compensator("missing")
	assert.False(t, ok)

	compensator, ok := registry.Compensator("self")
	require.True(t, ok)
	assert.NoError(t, compensator.Compensate(context.Background(), models.StepRecord{}, models.WorkflowContext{}))

	called := false
	registry.RegisterCompensator("plain", protocol.CompensatorFunc[models.WorkflowContext](
		func(context.Context, models.StepRecord, models.WorkflowContext) error {
			called = true

			return nil
		},
	))

	compensator, ok = registry.Compensator("plain")
	require.True(t, ok)
	require.NoError(t, compensator.Compensate(context.Background(), models.StepRecord{}, models.WorkflowContext{}))
	assert.True(t, called)
}

func TestRegistry_Actions(t *testing.T) {
	registry := NewRegistry[models.LeadContext](log.Discard())
	noop := protocol.ActionFunc[models.LeadContext](func(context.Context, map[string]any, models.Payload, models.LeadContext) (map[string]any, error) {
		return nil, nil
	})

	registry.RegisterAction(protocol.StaticFactory[models.LeadContext]{ActionID: "zeta", Action: noop})
	registry.RegisterAction(protocol.StaticFactory[models.LeadContext]{ActionID: "alpha", Action: noop})

	assert.Equal(t, []string{"alpha", "zeta"}, registry.Actions())
}

func TestRegistry_LoadActionPluginsMissingDir(t *testing.T) {
	registry := NewRegistry[models.WorkflowContext](log.Discard())

	factories, err := registry.LoadActionPlugins(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, factories)
}
