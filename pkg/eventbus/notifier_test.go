package eventbus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dashcrm/flowsaga/pkg/eventbus"
	"github.com/dashcrm/flowsaga/pkg/events"
	"github.com/dashcrm/flowsaga/pkg/log"
	"github.com/dashcrm/flowsaga/pkg/mocks"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNotifier_PublishesOutcomes(t *testing.T) {
	bus := &mocks.MockEventBus{}
	notifier := eventbus.NewNotifier(bus, log.Discard(), "worker-1")
	record := &models.ExecutionRecord{ID: "exec-1", WorkflowID: "wf", Variant: models.VariantWorkflow, CurrentNode: "ghost", Payload: models.Payload{"a": 1}}

	bus.On("Publish", mock.Anything, "exec-1", mock.MatchedBy(func(e events.WorkflowCompleted) bool {
		return e.ExecutionID == "exec-1" && e.WorkerID == "worker-1" && e.Result["a"] == 1
	})).Return(nil).Once()

	bus.On("Publish", mock.Anything, "exec-1", mock.MatchedBy(func(e events.WorkflowFailed) bool {
		return e.Node == "ghost" && e.Error == "boom" && e.Compensated
	})).Return(nil).Once()

	notifier.NotifyCompleted(context.Background(), record, time.Second)
	notifier.NotifyFailed(context.Background(), record, errors.New("boom"), true, time.Second)

	bus.AssertExpectations(t)
}

func TestNotifier_SwallowsPublishErrors(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	notifier := eventbus.NewNotifier(bus, log.Discard(), "")

	assert.NotPanics(t, func() {
		notifier.NotifyCompleted(context.Background(), &models.ExecutionRecord{ID: "x"}, 0)
	})
	bus.AssertNumberOfCalls(t, "Publish", 1)
}

func TestRequestExecution_KeysByLead(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "lead-9", mock.MatchedBy(func(e events.ExecutionRequested) bool {
		return e.ID != "" && e.Type == events.ExecutionRequestedEvent && e.Variant == models.VariantLead
	})).Return(nil)

	err := eventbus.RequestExecution(context.Background(), bus, events.ExecutionRequested{
		BaseEvent: events.BaseEvent{WorkflowID: "lead_nurturing"},
		Variant:   models.VariantLead,
		LeadID:    "lead-9",
	})
	require.NoError(t, err)
	bus.AssertExpectations(t)
}
