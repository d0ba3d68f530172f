package saga

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dashcrm/flowsaga/pkg/log"
	"github.com/dashcrm/flowsaga/pkg/mocks"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestLifecycle_Transitions(t *testing.T) {
	store := &mocks.MockExecutionStore{}
	store.On("UpdateExecutionStatus", mock.Anything, "exec-1", mock.Anything, mock.Anything).Return(nil)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	record := persistence.NewRecord(persistence.NewExecution{ID: "exec-1", WorkflowID: "wf"}, now)
	l := newLifecycle(store, log.Discard(), record, func() time.Time { return now })

	assert.Equal(t, models.ExecutionStatusPending, l.status())

	l.begin(context.Background())
	l.advance(context.Background(), "next", models.StepRecord{Node: "start", Action: "noop", Status: models.StepStatusCompleted},
		models.Payload{"greeting": "hi"})
	assert.Equal(t, models.Payload{"greeting": "hi"}, record.Payload)
	assert.Equal(t, "next", record.CurrentNode)

	l.complete(context.Background(), models.Payload{"done": true})

	assert.Equal(t, models.ExecutionStatusCompleted, l.status())
	assert.Equal(t, models.ExecutionStatusCompleted, record.Status)
	assert.Equal(t, models.EndNode, record.CurrentNode)
	assert.Equal(t, models.Payload{"done": true}, record.Payload)
	assert.Len(t, record.Steps, 1)
	assert.Equal(t, &now, record.CompletedAt)

	var statuses []models.ExecutionStatus

	for _, call := range store.Calls {
		statuses = append(statuses, call.Arguments.Get(2).(models.ExecutionStatus))
	}

	assert.Equal(t, []models.ExecutionStatus{
		models.ExecutionStatusInProgress,
		models.ExecutionStatusInProgress,
		models.ExecutionStatusCompleted,
	}, statuses)

	l.fail(context.Background(), "late", errors.New("too late"), nil)
	assert.Equal(t, models.ExecutionStatusCompleted, l.status())
	store.AssertNumberOfCalls(t, "UpdateExecutionStatus", 3)
}

func TestLifecycle_FailFromPending(t *testing.T) {
	store := &mocks.MockExecutionStore{}
	store.On("UpdateExecutionStatus", mock.Anything, "exec-1", models.ExecutionStatusFailed, mock.Anything).
		Return(errors.New("store offline"))

	record := persistence.NewRecord(persistence.NewExecution{ID: "exec-1"}, time.Now())
	l := newLifecycle(store, log.Discard(), record, time.Now)

	l.fail(context.Background(), models.StartNode, errors.New("workflow not found"), nil)

	assert.Equal(t, models.ExecutionStatusFailed, l.status())
	assert.Equal(t, "workflow not found", record.Error)
	store.AssertExpectations(t)
}
