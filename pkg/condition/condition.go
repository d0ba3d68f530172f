// Package condition evaluates the routing conditions of workflow nodes.
//
// Two strategies are provided. Template evaluates comparison expressions such as
// "{{score}} > 70" against the payload. LeadPredicates resolves a fixed vocabulary of
// named lead conditions and falls back to the template strategy for anything else.
//
// Evaluators never return errors. A payload key that cannot be found defaults to true,
// while an internal failure of the lead predicates defaults to false.
package condition

import (
	"context"

	"github.com/dashcrm/flowsaga/pkg/models"
)

// Evaluator turns a condition expression into a routing decision.
type Evaluator[C models.Entity] interface {
	Evaluate(ctx context.Context, expression string, payload models.Payload, entity C) bool
}
