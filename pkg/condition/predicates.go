package condition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dashcrm/flowsaga/pkg/models"
)

// Named lead conditions.
const (
	PredicateCreatedRecently = "created_recently"
	PredicateHasEmail        = "has_email"
	PredicateHasPhone        = "has_phone"
	PredicateHasPayload      = "has_payload"
	PredicateHighScore       = "high_score"
)

const (
	recentWindow       = 24 * time.Hour
	highScoreThreshold = 70
)

var errNoLead = errors.New("lead context has no lead")

type predicate func(payload models.Payload, lead *models.Lead, now time.Time) bool

// LeadPredicates evaluates named lead conditions, deferring unknown names to the
// template strategy over the lead fields overlaid with the payload.
type LeadPredicates struct {
	logger     *slog.Logger
	now        func() time.Time
	predicates map[string]predicate
}

func NewLeadPredicates(logger *slog.Logger) *LeadPredicates {
	createdRecently := func(_ models.Payload, lead *models.Lead, now time.Time) bool {
		return !lead.CreatedAt.IsZero() && now.Sub(lead.CreatedAt) <= recentWindow
	}
	highScore := func(_ models.Payload, lead *models.Lead, _ time.Time) bool {
		return lead.Score > highScoreThreshold
	}

	return &LeadPredicates{
		logger: logger.With("module", "condition_lead"),
		now:    time.Now,
		predicates: map[string]predicate{
			PredicateCreatedRecently:    createdRecently,
			"lead_created_within_1_day": createdRecently,
			PredicateHasEmail: func(_ models.Payload, lead *models.Lead, _ time.Time) bool {
				return strings.TrimSpace(lead.Email) != ""
			},
			PredicateHasPhone: func(_ models.Payload, lead *models.Lead, _ time.Time) bool {
				return strings.TrimSpace(lead.Phone) != ""
			},
			PredicateHasPayload: func(payload models.Payload, _ *models.Lead, _ time.Time) bool {
				return len(payload) > 0
			},
			PredicateHighScore: highScore,
			"score_above_70":   highScore,
		},
	}
}

// WithClock replaces the time source used by time-based predicates.
func (e *LeadPredicates) WithClock(now func() time.Time) *LeadPredicates {
	e.now = now

	return e
}

func (e *LeadPredicates) Evaluate(ctx context.Context, expression string, payload models.Payload, entity models.LeadContext) bool {
	result, err := e.evaluate(ctx, expression, payload, entity)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to evaluate lead condition, defaulting to false",
			"condition", expression,
			"lead", entity.Ref(),
			"error", err,
		)

		return false
	}

	return result
}

func (e *LeadPredicates) evaluate(ctx context.Context, expression string, payload models.Payload, entity models.LeadContext) (result bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("condition %q panicked: %v", expression, r)
		}
	}()

	if entity.Lead == nil {
		return false, errNoLead
	}

	name := strings.TrimSpace(expression)
	if p, ok := e.predicates[name]; ok {
		return p(payload, entity.Lead, e.now()), nil
	}

	data := models.Payload(entity.Lead.Fields())
	data.Merge(payload)

	return EvaluateExpression(ctx, e.logger, expression, data), nil
}
