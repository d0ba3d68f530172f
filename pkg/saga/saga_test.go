package saga_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dashcrm/flowsaga/pkg/log"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/persistence"
	"github.com/dashcrm/flowsaga/pkg/protocol"
	"github.com/dashcrm/flowsaga/pkg/registry"
)

type definitions map[string]*models.WorkflowDefinition

func (d definitions) Definition(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	definition, ok := d[id]
	if !ok {
		return nil, persistence.NewWorkflowError("Get", id, persistence.ErrWorkflowNotFound)
	}

	return definition, nil
}

func single(id string, nodes map[string]models.NodeConfig) definitions {
	return definitions{id: {ID: id, Name: id, Active: true, Nodes: nodes}}
}

func newRegistry[C models.Entity]() *registry.Registry[C] {
	return registry.NewRegistry[C](log.Discard())
}

func register[C models.Entity](r *registry.Registry[C], id string, fn protocol.ActionFunc[C]) {
	r.RegisterAction(protocol.StaticFactory[C]{ActionID: id, Action: fn})
}

func noop[C models.Entity](context.Context, map[string]any, models.Payload, C) (map[string]any, error) {
	return map[string]any{}, nil
}

func failing[C models.Entity](message string) protocol.ActionFunc[C] {
	return func(context.Context, map[string]any, models.Payload, C) (map[string]any, error) {
		return nil, errors.New(message)
	}
}

type outcome struct {
	executionID string
	status      models.ExecutionStatus
	cause       error
	compensated bool
}

type recordingNotifier struct {
	mu       sync.Mutex
	outcomes []outcome
}

func (n *recordingNotifier) NotifyCompleted(_ context.Context, record *models.ExecutionRecord, _ time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.outcomes = append(n.outcomes, outcome{executionID: record.ID, status: record.Status})
}

func (n *recordingNotifier) NotifyFailed(_ context.Context, record *models.ExecutionRecord, cause error, compensated bool, _ time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.outcomes = append(n.outcomes, outcome{executionID: record.ID, status: record.Status, cause: cause, compensated: compensated})
}

func stepNodes(record *models.ExecutionRecord) []string {
	nodes := make([]string, 0, len(record.Steps))
	for _, step := range record.Steps {
		nodes = append(nodes, step.Node)
	}

	return nodes
}
