// Package events defines the messages exchanged over the event bus: execution requests
// and workflow outcome notifications.
package events

import (
	"time"

	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every flowsaga event.
const Topic = "flowsaga.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionRequestedEvent EventType = "execution.requested"
	WorkflowCompletedEvent  EventType = "workflow.completed"
	WorkflowFailedEvent     EventType = "workflow.failed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ExecutionRequested asks a worker to start an execution.
type ExecutionRequested struct {
	BaseEvent

	Variant      models.Variant `json:"variant"`
	LeadID       string         `json:"lead_id,omitempty"`
	WorkflowType string         `json:"workflow_type,omitempty"`
	Payload      models.Payload `json:"payload,omitempty"`
}

func (e ExecutionRequested) GetType() EventType {
	return ExecutionRequestedEvent
}

// WorkflowCompleted is published when an execution reaches the end node.
type WorkflowCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	Variant     models.Variant `json:"variant"`
	LeadID      string         `json:"lead_id,omitempty"`
	Result      models.Payload `json:"result,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

func (e WorkflowCompleted) GetType() EventType {
	return WorkflowCompletedEvent
}

// WorkflowFailed is published after a fatal error has been recorded and compensated.
type WorkflowFailed struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	Variant     models.Variant `json:"variant"`
	LeadID      string         `json:"lead_id,omitempty"`
	Node        string         `json:"node,omitempty"`
	Error       string         `json:"error"`
	Compensated bool           `json:"compensated"`
	Duration    time.Duration  `json:"duration"`
}

func (e WorkflowFailed) GetType() EventType {
	return WorkflowFailedEvent
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

// New returns an empty, decodable event for eventType.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case ExecutionRequestedEvent:
		return &ExecutionRequested{}, true
	case WorkflowCompletedEvent:
		return &WorkflowCompleted{}, true
	case WorkflowFailedEvent:
		return &WorkflowFailed{}, true
	default:
		return nil, false
	}
}
