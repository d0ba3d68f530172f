package saga

import (
	"context"
	"log/slog"
	"time"

	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/persistence"
	"github.com/qmuntal/stateless"
)

type trigger string

const (
	triggerBegin    trigger = "begin"
	triggerAdvance  trigger = "advance"
	triggerComplete trigger = "complete"
	triggerFail     trigger = "fail"
)

// lifecycle drives the status of one execution record:
//
//	pending -> in_progress -> (in_progress)* -> completed
//	pending | in_progress -> failed
//
// Every entered state is applied to an in-memory mirror of the record and written to the
// store. Store errors are logged and never stop the machine.
type lifecycle struct {
	machine *stateless.StateMachine
	store   persistence.ExecutionStore
	logger  *slog.Logger
	record  *models.ExecutionRecord
	now     func() time.Time
}

func newLifecycle(store persistence.ExecutionStore, logger *slog.Logger, record *models.ExecutionRecord, now func() time.Time) *lifecycle {
	l := &lifecycle{
		machine: stateless.NewStateMachine(models.ExecutionStatusPending),
		store:   store,
		logger:  logger,
		record:  record,
		now:     now,
	}

	l.machine.Configure(models.ExecutionStatusPending).
		Permit(triggerBegin, models.ExecutionStatusInProgress).
		Permit(triggerFail, models.ExecutionStatusFailed)

	l.machine.Configure(models.ExecutionStatusInProgress).
		OnEntry(l.persist(models.ExecutionStatusInProgress)).
		PermitReentry(triggerAdvance).
		Permit(triggerComplete, models.ExecutionStatusCompleted).
		Permit(triggerFail, models.ExecutionStatusFailed)

	l.machine.Configure(models.ExecutionStatusCompleted).
		OnEntry(l.persist(models.ExecutionStatusCompleted))

	l.machine.Configure(models.ExecutionStatusFailed).
		OnEntry(l.persist(models.ExecutionStatusFailed))

	return l
}

func (l *lifecycle) persist(status models.ExecutionStatus) func(context.Context, ...any) error {
	return func(ctx context.Context, args ...any) error {
		var update persistence.Update
		if len(args) > 0 {
			if u, ok := args[0].(persistence.Update); ok {
				update = u
			}
		}

		persistence.Apply(l.record, status, update, l.now())

		if err := l.store.UpdateExecutionStatus(ctx, l.record.ID, status, update); err != nil {
			l.logger.ErrorContext(ctx, "Failed to persist execution status",
				"status", status,
				"current_node", update.CurrentNode,
				"error", err)
		}

		return nil
	}
}

func (l *lifecycle) fire(ctx context.Context, t trigger, update persistence.Update) {
	if err := l.machine.FireCtx(ctx, t, update); err != nil {
		l.logger.ErrorContext(ctx, "Invalid execution transition", "trigger", t, "status", l.status(), "error", err)
	}
}

func (l *lifecycle) begin(ctx context.Context) {
	l.fire(ctx, triggerBegin, persistence.Update{CurrentNode: models.StartNode})
}

func (l *lifecycle) advance(ctx context.Context, next string, step models.StepRecord, payload models.Payload) {
	l.fire(ctx, triggerAdvance, persistence.Update{CurrentNode: next, Step: &step, Payload: payload})
}

func (l *lifecycle) complete(ctx context.Context, payload models.Payload) {
	l.fire(ctx, triggerComplete, persistence.Update{CurrentNode: models.EndNode, Payload: payload})
}

func (l *lifecycle) fail(ctx context.Context, node string, cause error, payload models.Payload) {
	l.fire(ctx, triggerFail, persistence.Update{CurrentNode: node, Error: cause.Error(), Payload: payload})
}

func (l *lifecycle) status() models.ExecutionStatus {
	status, _ := l.machine.MustState().(models.ExecutionStatus)

	return status
}
