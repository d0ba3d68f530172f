package web

import (
	"log/slog"
	"time"

	"github.com/dashcrm/flowsaga/pkg/eventbus"
	"github.com/dashcrm/flowsaga/pkg/events"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type Handlers struct {
	executions  persistence.ExecutionStore
	definitions persistence.DefinitionStore
	publisher   eventbus.EventPublisher
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewHandlers(
	executions persistence.ExecutionStore,
	definitions persistence.DefinitionStore,
	publisher eventbus.EventPublisher,
	validator *validator.Validate,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		executions:  executions,
		definitions: definitions,
		publisher:   publisher,
		validator:   validator,
		logger:      logger.With("module", "web"),
	}
}

// HealthCheck answers 503 with a problem document while the execution store is unreachable.
func (h *Handlers) HealthCheck(c fiber.Ctx) error {
	if err := h.executions.HealthCheck(c.Context()); err != nil {
		h.logger.WarnContext(c.Context(), "Health check failed", "error", err)

		return unavailable(c, err)
	}

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (h *Handlers) GetExecution(c fiber.Ctx) error {
	record, err := h.executions.GetExecution(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(record)
}

// ListExecutions requires a status query parameter.
func (h *Handlers) ListExecutions(c fiber.Ctx) error {
	status := models.ExecutionStatus(c.Query("status"))
	if !status.Valid() {
		return badRequest(c, "status must be one of pending, in_progress, completed, failed")
	}

	records, err := h.executions.ExecutionsByStatus(c.Context(), status)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions":  records,
		"total_count": len(records),
	})
}

// RequestExecution publishes an execution.requested event for the workers and answers 202.
func (h *Handlers) RequestExecution(c fiber.Ctx) error {
	var req ExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	base := events.NewBaseEvent(events.ExecutionRequestedEvent, req.WorkflowID)

	err := eventbus.RequestExecution(c.Context(), h.publisher, events.ExecutionRequested{
		BaseEvent:    base,
		Variant:      req.Variant,
		LeadID:       req.LeadID,
		WorkflowType: req.WorkflowType,
		Payload:      req.Payload,
	})
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(ExecutionAccepted{RequestID: base.ID})
}

func (h *Handlers) GetWorkflows(c fiber.Ctx) error {
	definitions, err := h.definitions.Definitions(c.Context())
	if err != nil {
		return handleStoreError(c, err)
	}

	summaries := make([]WorkflowSummary, 0, len(definitions))
	for _, definition := range definitions {
		summaries = append(summaries, summarize(definition))
	}

	return c.JSON(fiber.Map{
		"workflows":   summaries,
		"total_count": len(summaries),
	})
}

func (h *Handlers) GetWorkflow(c fiber.Ctx) error {
	definition, err := h.definitions.Definition(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(definition)
}
