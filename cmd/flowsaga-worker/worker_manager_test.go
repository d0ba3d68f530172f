package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dashcrm/flowsaga/pkg/events"
	"github.com/dashcrm/flowsaga/pkg/log"
	"github.com/dashcrm/flowsaga/pkg/mocks"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/persistence"
	"github.com/dashcrm/flowsaga/pkg/saga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingStarter struct {
	mu       sync.Mutex
	requests []saga.StartRequest
	err      error
	delay    time.Duration
	running  atomic.Int32
	peak     atomic.Int32
}

func (s *recordingStarter) Start(_ context.Context, req saga.StartRequest) (models.Payload, error) {
	current := s.running.Add(1)
	defer s.running.Add(-1)

	for {
		peak := s.peak.Load()
		if current <= peak || s.peak.CompareAndSwap(peak, current) {
			break
		}
	}

	time.Sleep(s.delay)

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	return models.Payload{}, s.err
}

func TestWorkerManager_DispatchesByVariant(t *testing.T) {
	workflows := &recordingStarter{}
	leads := &recordingStarter{}
	wm := NewWorkerManager("worker-1", &mocks.MockEventBus{}, workflows, leads, 2, log.Discard())

	tests := []struct {
		name    string
		event   any
		starter *recordingStarter
		want    saga.StartRequest
	}{
		{
			name: "workflow variant",
			event: &events.ExecutionRequested{
				BaseEvent: events.BaseEvent{ID: "evt-1", WorkflowID: "onboarding"},
				Variant:   models.VariantWorkflow,
				Payload:   models.Payload{"a": 1},
			},
			starter: workflows,
			want:    saga.StartRequest{ExecutionID: "evt-1", WorkflowID: "onboarding", InitialPayload: models.Payload{"a": 1}},
		},
		{
			name: "missing variant defaults to workflow",
			event: &events.ExecutionRequested{
				BaseEvent: events.BaseEvent{ID: "evt-2", WorkflowID: "cleanup"},
			},
			starter: workflows,
			want:    saga.StartRequest{ExecutionID: "evt-2", WorkflowID: "cleanup"},
		},
		{
			name: "lead variant",
			event: &events.ExecutionRequested{
				BaseEvent:    events.BaseEvent{ID: "evt-3"},
				Variant:      models.VariantLead,
				LeadID:       "lead-1",
				WorkflowType: "reactivation",
			},
			starter: leads,
			want:    saga.StartRequest{ExecutionID: "evt-3", LeadID: "lead-1", WorkflowType: "reactivation"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, wm.handleExecutionRequested(context.Background(), tt.event))
			require.NoError(t, wm.Wait())

			tt.starter.mu.Lock()
			defer tt.starter.mu.Unlock()

			assert.Equal(t, tt.want, tt.starter.requests[len(tt.starter.requests)-1])
		})
	}
}

func TestWorkerManager_IgnoresBadEvents(t *testing.T) {
	workflows := &recordingStarter{}
	wm := NewWorkerManager("worker-1", &mocks.MockEventBus{}, workflows, nil, 1, log.Discard())

	require.NoError(t, wm.handleExecutionRequested(context.Background(), "not an event"))
	require.NoError(t, wm.handleExecutionRequested(context.Background(), &events.ExecutionRequested{Variant: "order"}))
	require.NoError(t, wm.handleExecutionRequested(context.Background(), &events.ExecutionRequested{Variant: models.VariantLead}))
	require.NoError(t, wm.Wait())

	assert.Empty(t, workflows.requests)
}

func TestWorkerManager_BoundsConcurrency(t *testing.T) {
	workflows := &recordingStarter{delay: 20 * time.Millisecond}
	wm := NewWorkerManager("worker-1", &mocks.MockEventBus{}, workflows, nil, 2, log.Discard())

	for range 6 {
		require.NoError(t, wm.handleExecutionRequested(context.Background(), &events.ExecutionRequested{
			BaseEvent: events.BaseEvent{WorkflowID: "wf"},
		}))
	}

	require.NoError(t, wm.Wait())
	assert.Len(t, workflows.requests, 6)
	assert.LessOrEqual(t, workflows.peak.Load(), int32(2))
}

type gatedStarter struct {
	started chan struct{}
	release chan struct{}
}

func (s *gatedStarter) Start(context.Context, saga.StartRequest) (models.Payload, error) {
	close(s.started)
	<-s.release

	return models.Payload{}, nil
}

func TestWorkerManager_AcksBeforeExecutionFinishes(t *testing.T) {
	workflows := &gatedStarter{started: make(chan struct{}), release: make(chan struct{})}
	wm := NewWorkerManager("worker-1", &mocks.MockEventBus{}, workflows, nil, 1, log.Discard())

	require.NoError(t, wm.handleExecutionRequested(context.Background(), &events.ExecutionRequested{
		BaseEvent: events.BaseEvent{ID: "evt-1", WorkflowID: "wf"},
	}))

	select {
	case <-workflows.started:
	case <-time.After(time.Second):
		t.Fatal("execution did not start")
	}

	close(workflows.release)
	require.NoError(t, wm.Wait())
}

func TestWorkerManager_ExecutionErrorsDoNotStopTheWorker(t *testing.T) {
	for _, err := range []error{persistence.ErrExecutionAlreadyExists, errors.New("boom")} {
		workflows := &recordingStarter{err: err}
		wm := NewWorkerManager("worker-1", &mocks.MockEventBus{}, workflows, nil, 1, log.Discard())

		require.NoError(t, wm.handleExecutionRequested(context.Background(), &events.ExecutionRequested{
			BaseEvent: events.BaseEvent{WorkflowID: "wf"},
		}))
		require.NoError(t, wm.Wait())
	}
}

func TestWorkerManager_Start(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Handle", events.ExecutionRequestedEvent, mock.Anything).Return(nil)
	bus.On("Subscribe", mock.Anything).Return(nil)

	wm := NewWorkerManager("worker-1", bus, &recordingStarter{}, &recordingStarter{}, 1, log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, wm.Start(ctx))
	bus.AssertExpectations(t)

	failing := &mocks.MockEventBus{}
	failing.On("Handle", mock.Anything, mock.Anything).Return(nil)
	failing.On("Subscribe", mock.Anything).Return(errors.New("broker down"))

	wm = NewWorkerManager("worker-2", failing, &recordingStarter{}, &recordingStarter{}, 1, log.Discard())
	require.Error(t, wm.Start(context.Background()))
}
