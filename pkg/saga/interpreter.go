// Package saga interprets workflow definitions as sagas: it walks the node graph one node at a
// time, records every transition in an execution store and compensates completed steps when
// the run fails structurally.
//
// The traversal loop lives in Interpreter and is shared by every entity context type.
// NewWorkflowSaga and NewLeadSaga bind it to the generic workflow and lead contexts.
package saga

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dashcrm/flowsaga/pkg/condition"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/otelhelper"
	"github.com/dashcrm/flowsaga/pkg/persistence"
	"github.com/dashcrm/flowsaga/pkg/protocol"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
)

// ActionResolver maps action identifiers to executors and compensators.
// *registry.Registry implements it.
type ActionResolver[C models.Entity] interface {
	Resolve(actionID string) (protocol.Action[C], error)
	Compensator(actionID string) (protocol.Compensator[C], bool)
}

// FailurePolicy turns an executor error into the keys merged into the payload.
type FailurePolicy func(action string, err error, payload models.Payload, now time.Time) map[string]any

// Variant binds the traversal loop to one entity context type.
type Variant[C models.Entity] struct {
	Name models.Variant
	// Prepare fills request defaults and validates the request.
	Prepare      func(validate *validator.Validate, req StartRequest) (StartRequest, error)
	DefinitionID func(req StartRequest) string
	// Entity builds the entity context of an execution from its record.
	Entity    func(ctx context.Context, record *models.ExecutionRecord) (C, error)
	OnFailure FailurePolicy
}

// Interpreter runs workflow definitions against entities of type C.
type Interpreter[C models.Entity] struct {
	variant     Variant[C]
	definitions persistence.DefinitionProvider
	store       persistence.ExecutionStore
	actions     ActionResolver[C]
	evaluator   condition.Evaluator[C]
	logger      *slog.Logger
	validate    *validator.Validate
	settings
}

func New[C models.Entity](
	variant Variant[C],
	definitions persistence.DefinitionProvider,
	store persistence.ExecutionStore,
	actions ActionResolver[C],
	evaluator condition.Evaluator[C],
	logger *slog.Logger,
	opts ...Option,
) *Interpreter[C] {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}

	return &Interpreter[C]{
		variant:     variant,
		definitions: definitions,
		store:       store,
		actions:     actions,
		evaluator:   evaluator,
		logger:      logger.With("module", "saga", "variant", variant.Name),
		validate:    validator.New(),
		settings:    s,
	}
}

// run is the in-memory state of one Start call.
type run[C models.Entity] struct {
	record    *models.ExecutionRecord
	lifecycle *lifecycle
	logger    *slog.Logger
	payload   models.Payload
	current   string
	entity    C
	loaded    bool
	startedAt time.Time
}

// Start executes a workflow from its start node to the end node and returns the final
// payload. Executor errors are recorded in the payload and do not stop the run. Structural
// errors mark the execution failed, trigger compensation and are returned wrapped in a
// *persistence.ExecutionError.
func (i *Interpreter[C]) Start(ctx context.Context, req StartRequest) (models.Payload, error) {
	req, err := i.variant.Prepare(i.validate, req)
	if err != nil {
		return nil, err
	}

	execution := persistence.NewExecution{
		ID:           req.ExecutionID,
		Variant:      i.variant.Name,
		WorkflowID:   i.variant.DefinitionID(req),
		WorkflowType: req.WorkflowType,
		LeadID:       req.LeadID,
		Payload:      req.InitialPayload.Clone(),
	}
	if execution.ID == "" {
		execution.ID = i.generateID()
	}

	logger := i.logger.With("execution_id", execution.ID, "workflow_id", execution.WorkflowID)

	record, err := i.store.CreateExecution(ctx, execution)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to create execution record", "error", err)

		return nil, persistence.NewExecutionError("Start", execution.ID, fmt.Errorf("failed to create execution record: %w", err))
	}

	if record == nil {
		record = persistence.NewRecord(execution, i.now())
	}

	ctx, span := otelhelper.StartSpan(ctx, i.tracer, "saga.execution",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.WorkflowIDKey, execution.WorkflowID),
		attribute.String(otelhelper.VariantKey, string(i.variant.Name)),
		attribute.String(otelhelper.LeadIDKey, execution.LeadID),
	)
	defer span.End()

	r := &run[C]{
		record:    record,
		lifecycle: newLifecycle(i.store, logger, record, i.now),
		logger:    logger,
		payload:   execution.Payload,
		current:   models.StartNode,
		startedAt: i.now(),
	}

	i.metrics.ExecutionStarted(string(i.variant.Name))
	logger.InfoContext(ctx, "Starting execution")

	if err := i.traverse(ctx, r); err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.NodeKey, r.current))

		return nil, i.abort(ctx, r, err)
	}

	r.lifecycle.complete(ctx, r.payload)

	duration := i.now().Sub(r.startedAt)
	i.metrics.ExecutionFinished(string(i.variant.Name), string(models.ExecutionStatusCompleted), duration)

	if i.notifier != nil {
		i.notifier.NotifyCompleted(ctx, r.record, duration)
	}

	logger.InfoContext(ctx, "Execution completed", "steps", len(r.record.Steps), "duration", duration)

	return r.payload, nil
}

func (i *Interpreter[C]) traverse(ctx context.Context, r *run[C]) error {
	definition, err := i.definitions.Definition(ctx, r.record.WorkflowID)
	if err != nil {
		return fmt.Errorf("failed to resolve workflow %s: %w", r.record.WorkflowID, err)
	}

	if definition == nil {
		return fmt.Errorf("failed to resolve workflow %s: %w", r.record.WorkflowID, ErrWorkflowNotFound)
	}

	if !definition.Active {
		return fmt.Errorf("%w: %s", ErrWorkflowInactive, definition.ID)
	}

	if _, ok := definition.Node(models.StartNode); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, models.StartNode)
	}

	entity, err := i.variant.Entity(ctx, r.record)
	if err != nil {
		return fmt.Errorf("failed to load execution context: %w", err)
	}

	r.entity = entity
	r.loaded = true

	r.lifecycle.begin(ctx)

	for steps := 1; r.current != models.EndNode; steps++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("execution cancelled before node %s: %w", r.current, err)
		}

		if steps > i.maxSteps {
			return fmt.Errorf("%w: more than %d nodes visited", ErrStepLimitExceeded, i.maxSteps)
		}

		node, ok := definition.Node(r.current)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNode, r.current)
		}

		action, err := i.actions.Resolve(node.Action)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrUnknownAction, node.Action, err)
		}

		step := i.step(ctx, r, node, action)
		next := i.route(ctx, r, node)

		r.logger.DebugContext(ctx, "Node executed", "node", r.current, "action", node.Action, "next", next)

		r.lifecycle.advance(ctx, next, step, r.payload)
		r.current = next
	}

	return nil
}

func (i *Interpreter[C]) step(ctx context.Context, r *run[C], node models.NodeConfig, action protocol.Action[C]) models.StepRecord {
	ctx, span := otelhelper.StartSpan(ctx, i.tracer, "saga.node",
		attribute.String(otelhelper.NodeKey, r.current),
		attribute.String(otelhelper.ActionIDKey, node.Action),
	)
	defer span.End()

	startedAt := i.now()
	step := models.StepRecord{
		Node:       r.current,
		Action:     node.Action,
		Parameters: node.Parameters,
		ExecutedAt: startedAt,
	}

	result, err := execute(ctx, action, node.Parameters, r.payload.Clone(), r.entity)
	i.metrics.NodeExecuted(node.Action, err != nil, i.now().Sub(startedAt))

	if err != nil {
		otelhelper.RecordActionError(span, err, node.Action)
		r.logger.WarnContext(ctx, "Action failed, continuing with the next node",
			"node", r.current,
			"action", node.Action,
			"error", err)

		step.Status = models.StepStatusFailed
		step.Error = err.Error()
		r.payload.Merge(i.variant.OnFailure(node.Action, err, r.payload, i.now()))

		return step
	}

	step.Status = models.StepStatusCompleted
	step.Compensation, step.Result = splitCompensation(result)
	r.payload.Merge(step.Result)

	return step
}

func (i *Interpreter[C]) route(ctx context.Context, r *run[C], node models.NodeConfig) string {
	if node.HasCondition() {
		return node.Branch(i.evaluator.Evaluate(ctx, *node.Condition, r.payload, r.entity))
	}

	return node.NextNode()
}

// abort records a structural failure, compensates and returns the error handed to the caller.
// It runs detached from ctx cancellation so a cancelled run is still recorded.
func (i *Interpreter[C]) abort(ctx context.Context, r *run[C], cause error) error {
	ctx = context.WithoutCancel(ctx)

	r.logger.ErrorContext(ctx, "Execution failed", "node", r.current, "error", cause)
	r.lifecycle.fail(ctx, r.current, cause, r.payload)

	compensated := i.compensate(ctx, r.record, func(ctx context.Context) (C, error) {
		if r.loaded {
			return r.entity, nil
		}

		return i.variant.Entity(ctx, r.record)
	}, r.payload)

	duration := i.now().Sub(r.startedAt)
	i.metrics.ExecutionFinished(string(i.variant.Name), string(models.ExecutionStatusFailed), duration)

	if i.notifier != nil {
		i.notifier.NotifyFailed(ctx, r.record, cause, compensated, duration)
	}

	return &persistence.ExecutionError{
		Op:          "Start",
		ExecutionID: r.record.ID,
		Node:        r.current,
		Err:         cause,
	}
}

// Continue resumes a suspended execution. state is the execution id. Without a Resumer it
// only logs and returns nil.
func (i *Interpreter[C]) Continue(ctx context.Context, state string, data map[string]any) (any, error) {
	logger := i.logger.With("execution_id", state)

	if i.resumer == nil {
		logger.InfoContext(ctx, "Continue requested but no resumer is installed", "data_keys", len(data))

		return nil, nil
	}

	record, err := i.store.GetExecution(ctx, state)
	if err != nil {
		return nil, persistence.NewExecutionError("Continue", state, err)
	}

	return i.resumer(ctx, record, data)
}

// Compensate undoes the completed steps of a stored execution in reverse order. It returns
// false when the record cannot be loaded or any compensator fails.
func (i *Interpreter[C]) Compensate(ctx context.Context, failedState string, data map[string]any) bool {
	record, err := i.store.GetExecution(ctx, failedState)
	if err != nil {
		i.logger.ErrorContext(ctx, "Failed to load execution for compensation", "execution_id", failedState, "error", err)

		return false
	}

	return i.compensate(ctx, record, func(ctx context.Context) (C, error) {
		return i.variant.Entity(ctx, record)
	}, data)
}

func (i *Interpreter[C]) compensate(
	ctx context.Context,
	record *models.ExecutionRecord,
	entity func(context.Context) (C, error),
	data map[string]any,
) bool {
	logger := i.logger.With("execution_id", record.ID)

	var completed []models.StepRecord

	for idx := len(record.Steps) - 1; idx >= 0; idx-- {
		if record.Steps[idx].Status == models.StepStatusCompleted {
			completed = append(completed, record.Steps[idx])
		}
	}

	logger.InfoContext(ctx, "Compensating execution", "steps", len(completed), "data_keys", len(data))

	if len(completed) == 0 {
		return true
	}

	target, err := entity(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load execution context for compensation", "error", err)

		return false
	}

	ok := true
	records := make([]models.CompensationRecord, 0, len(completed))

	for _, step := range completed {
		compensator, found := i.actions.Compensator(step.Action)
		if !found {
			continue
		}

		err := undo(ctx, compensator, step, target)
		i.metrics.Compensated(step.Action, err == nil)

		compensation := models.CompensationRecord{
			Node:          step.Node,
			Action:        step.Action,
			Compensated:   err == nil,
			CompensatedAt: i.now(),
		}

		if err != nil {
			ok = false
			compensation.Error = err.Error()
			logger.WarnContext(ctx, "Compensation failed", "node", step.Node, "action", step.Action, "error", err)
		}

		records = append(records, compensation)
	}

	if len(records) == 0 {
		return ok
	}

	record.Compensations = records

	if err := i.store.UpdateExecutionStatus(ctx, record.ID, record.Status, persistence.Update{Compensations: records}); err != nil {
		logger.ErrorContext(ctx, "Failed to persist compensations", "error", err)
	}

	return ok
}

func execute[C models.Entity](
	ctx context.Context,
	action protocol.Action[C],
	parameters map[string]any,
	payload models.Payload,
	entity C,
) (result map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("action panicked: %v", rec)
		}
	}()

	return action.Execute(ctx, parameters, payload, entity)
}

func undo[C models.Entity](ctx context.Context, compensator protocol.Compensator[C], step models.StepRecord, entity C) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("compensator panicked: %v", rec)
		}
	}()

	return compensator.Compensate(ctx, step, entity)
}

// splitCompensation separates the compensation data an action handed back from the result
// that is merged into the payload.
func splitCompensation(result map[string]any) (map[string]any, map[string]any) {
	raw, ok := result[models.CompensationKey]
	if !ok {
		return nil, result
	}

	rest := make(map[string]any, len(result)-1)

	for k, v := range result {
		if k != models.CompensationKey {
			rest[k] = v
		}
	}

	switch data := raw.(type) {
	case map[string]any:
		return data, rest
	case models.Payload:
		return data, rest
	default:
		return map[string]any{"value": raw}, rest
	}
}
