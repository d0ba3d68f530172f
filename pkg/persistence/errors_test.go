package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dashcrm/flowsaga/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		executionErr := persistence.NewExecutionError("Get", "exec-123", persistence.ErrExecutionNotFound)
		workflowErr := persistence.NewWorkflowError("Definition", "wf-1", persistence.ErrWorkflowNotFound)
		leadErr := fmt.Errorf("lookup: %w", persistence.ErrLeadNotFound)

		assert.True(t, persistence.IsExecutionNotFound(executionErr))
		assert.True(t, persistence.IsWorkflowNotFound(workflowErr))
		assert.True(t, persistence.IsLeadNotFound(leadErr))
		assert.False(t, persistence.IsWorkflowNotFound(executionErr))

		assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", executionErr), persistence.ErrExecutionNotFound))
	})

	t.Run("execution error contains context", func(t *testing.T) {
		err := &persistence.ExecutionError{Op: "UpdateStatus", ExecutionID: "exec-9", Node: "send", Err: persistence.ErrInvalidStatus}

		assert.Contains(t, err.Error(), "UpdateStatus")
		assert.Contains(t, err.Error(), "exec-9")
		assert.Contains(t, err.Error(), "node send")
		assert.Contains(t, err.Error(), "invalid execution status")

		var target *persistence.ExecutionError
		assert.True(t, errors.As(fmt.Errorf("outer: %w", err), &target))
		assert.Equal(t, "send", target.Node)
	})

	t.Run("workflow error contains context", func(t *testing.T) {
		err := persistence.NewWorkflowError("SaveDefinition", "wf-42", persistence.ErrInvalidDefinition)

		assert.Contains(t, err.Error(), "SaveDefinition")
		assert.Contains(t, err.Error(), "wf-42")
		assert.Contains(t, err.Error(), "invalid workflow definition")
	})
}
