package main

import (
	"context"
	"errors"
	"testing"

	"github.com/dashcrm/flowsaga/pkg/config"
	"github.com/dashcrm/flowsaga/pkg/events"
	"github.com/dashcrm/flowsaga/pkg/log"
	"github.com/dashcrm/flowsaga/pkg/mocks"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewScheduler(t *testing.T) {
	schedules := []config.Schedule{
		{Name: "nightly", Cron: "0 2 * * *", Variant: models.VariantLead, LeadID: "lead-1"},
		{Name: "hourly", Cron: "@hourly", Variant: models.VariantWorkflow, WorkflowID: "cleanup"},
	}

	s, err := NewScheduler(&mocks.MockEventBus{}, schedules, log.Discard())
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 2)

	_, err = NewScheduler(&mocks.MockEventBus{}, []config.Schedule{{Name: "bad", Cron: "every day"}}, log.Discard())
	require.Error(t, err)
}

func TestScheduler_Fire(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "lead-1", mock.MatchedBy(func(e events.ExecutionRequested) bool {
		return e.ID != "" &&
			e.Variant == models.VariantLead &&
			e.WorkflowType == "reactivation" &&
			e.Metadata["schedule"] == "nightly" &&
			e.Payload["source"] == "cron"
	})).Return(nil).Once()

	s, err := NewScheduler(bus, nil, log.Discard())
	require.NoError(t, err)

	s.fire(context.Background(), config.Schedule{
		Name:         "nightly",
		Cron:         "@daily",
		Variant:      models.VariantLead,
		LeadID:       "lead-1",
		WorkflowType: "reactivation",
		Payload:      map[string]any{"source": "cron"},
	})

	bus.AssertExpectations(t)
}

func TestScheduler_FireSwallowsPublishErrors(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	s, err := NewScheduler(bus, nil, log.Discard())
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		s.fire(context.Background(), config.Schedule{Name: "x", WorkflowID: "wf"})
	})
}
