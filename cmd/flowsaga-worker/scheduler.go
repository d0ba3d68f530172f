package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dashcrm/flowsaga/pkg/config"
	"github.com/dashcrm/flowsaga/pkg/eventbus"
	"github.com/dashcrm/flowsaga/pkg/events"
	"github.com/robfig/cron/v3"
)

// Scheduler requests the executions of the configured schedules when their cron
// expressions fire.
type Scheduler struct {
	cron      *cron.Cron
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func NewScheduler(publisher eventbus.EventPublisher, schedules []config.Schedule, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(),
		publisher: publisher,
		logger:    logger.With("module", "scheduler"),
	}

	for _, schedule := range schedules {
		_, err := s.cron.AddFunc(schedule.Cron, func() {
			s.fire(context.Background(), schedule)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to schedule %s: %w", schedule.Name, err)
		}
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler", "schedules", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop prevents new runs and waits for the ones in flight.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) fire(ctx context.Context, schedule config.Schedule) {
	request := events.ExecutionRequested{
		BaseEvent:    events.NewBaseEvent(events.ExecutionRequestedEvent, schedule.WorkflowID),
		Variant:      schedule.Variant,
		LeadID:       schedule.LeadID,
		WorkflowType: schedule.WorkflowType,
		Payload:      schedule.Payload,
	}
	request.Metadata["schedule"] = schedule.Name

	if err := eventbus.RequestExecution(ctx, s.publisher, request); err != nil {
		s.logger.ErrorContext(ctx, "Failed to request scheduled execution", "schedule", schedule.Name, "error", err)

		return
	}

	s.logger.InfoContext(ctx, "Scheduled execution requested", "schedule", schedule.Name, "request_id", request.ID)
}
