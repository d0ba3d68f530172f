// Package web provides the HTTP surface of a worker: health, metrics, execution requests
// and read access to executions and workflow definitions.
package web

import "github.com/dashcrm/flowsaga/pkg/models"

// ExecutionRequest is the body of POST /executions.
type ExecutionRequest struct {
	Variant      models.Variant `json:"variant"       validate:"required,oneof=workflow lead"`
	WorkflowID   string         `json:"workflow_id"   validate:"required_if=Variant workflow,max=255"`
	WorkflowType string         `json:"workflow_type" validate:"max=255"`
	LeadID       string         `json:"lead_id"       validate:"required_if=Variant lead,max=255"`
	Payload      models.Payload `json:"payload"`
}

// ExecutionAccepted is returned once a request has been handed to the workers.
type ExecutionAccepted struct {
	RequestID string `json:"request_id"`
}

// WorkflowSummary is the list view of a definition.
type WorkflowSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Nodes  int    `json:"nodes"`
}

func summarize(definition *models.WorkflowDefinition) WorkflowSummary {
	return WorkflowSummary{
		ID:     definition.ID,
		Name:   definition.Name,
		Active: definition.Active,
		Nodes:  len(definition.Nodes),
	}
}
