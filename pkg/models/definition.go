// Package models defines the domain types shared by the saga interpreter, its stores and its actions.
package models

import "time"

// Reserved node names.
const (
	StartNode = "start"
	EndNode   = "end"
)

// WorkflowDefinition is a named graph of nodes keyed by node name.
type WorkflowDefinition struct {
	ID        string                `json:"id"                  yaml:"id"     validate:"required"`
	Name      string                `json:"name"                yaml:"name"`
	Active    bool                  `json:"active"              yaml:"active"`
	Nodes     map[string]NodeConfig `json:"nodes"               yaml:"nodes"  validate:"required,min=1"`
	CreatedAt time.Time             `json:"created_at,omitzero" yaml:"-"`
	UpdatedAt time.Time             `json:"updated_at,omitzero" yaml:"-"`
}

// Node returns the configuration of the named node.
func (d *WorkflowDefinition) Node(name string) (NodeConfig, bool) {
	node, ok := d.Nodes[name]

	return node, ok
}

// NodeConfig is one step of a workflow: an action, its parameters and the routing
// to the next node. When Condition is set, Next is ignored.
type NodeConfig struct {
	Action     string         `json:"action"              yaml:"action"     validate:"required"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters"`
	Next       *string        `json:"next,omitempty"       yaml:"next"`
	Condition  *string        `json:"condition,omitempty"  yaml:"condition"`
	True       *string        `json:"true,omitempty"       yaml:"true"`
	False      *string        `json:"false,omitempty"      yaml:"false"`
}

func (n NodeConfig) HasCondition() bool {
	return n.Condition != nil && *n.Condition != ""
}

// Branch returns the node name for the given condition outcome, defaulting to the end node.
func (n NodeConfig) Branch(outcome bool) string {
	target := n.False
	if outcome {
		target = n.True
	}

	return orEnd(target)
}

// NextNode returns the static successor, defaulting to the end node.
func (n NodeConfig) NextNode() string {
	return orEnd(n.Next)
}

func orEnd(name *string) string {
	if name == nil || *name == "" {
		return EndNode
	}

	return *name
}

// Ptr is a small helper for building node configs in code.
func Ptr(s string) *string {
	return &s
}
