package saga

import (
	"errors"

	"github.com/dashcrm/flowsaga/pkg/persistence"
)

// Structural errors. Any of them aborts the run, marks the execution failed and triggers
// compensation. Executor errors never surface here.
var (
	ErrUnknownNode       = errors.New("unknown node")
	ErrUnknownAction     = errors.New("unknown action")
	ErrWorkflowInactive  = errors.New("workflow is not active")
	ErrStepLimitExceeded = errors.New("step limit exceeded")
	ErrInvalidRequest    = errors.New("invalid start request")

	ErrWorkflowNotFound  = persistence.ErrWorkflowNotFound
	ErrExecutionNotFound = persistence.ErrExecutionNotFound
)
