package condition

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dashcrm/flowsaga/pkg/models"
)

// Supported comparison operators. Two-character operators are listed first so that
// ">=" wins over ">" when both start at the same position.
var operators = []string{"==", "!=", ">=", "<=", ">", "<"}

// Template evaluates "{{key}} op value" expressions against a payload. The entity is ignored.
type Template[C models.Entity] struct {
	logger *slog.Logger
}

func NewTemplate[C models.Entity](logger *slog.Logger) *Template[C] {
	return &Template[C]{logger: logger.With("module", "condition_template")}
}

func (t *Template[C]) Evaluate(ctx context.Context, expression string, payload models.Payload, _ C) bool {
	return EvaluateExpression(ctx, t.logger, expression, payload)
}

// EvaluateExpression substitutes {{key}} placeholders with payload values and then applies
// the first comparison operator found in the result. Without an operator the expression
// names a payload key whose truthiness is returned; a missing key yields true.
func EvaluateExpression(ctx context.Context, logger *slog.Logger, expression string, data models.Payload) bool {
	expr := strings.TrimSpace(expression)

	switch expr {
	case "true":
		return true
	case "false":
		return false
	}

	left, op, right, found := splitComparison(substitute(expr, data))
	if !found {
		key := placeholderKey(expr)

		value, ok := data.Lookup(key)
		if !ok {
			logger.WarnContext(ctx, "Condition key not found in payload, defaulting to true", "condition", expression, "key", key)

			return true
		}

		return truthy(value)
	}

	if !strings.Contains(expr, "{{") {
		left = resolveKey(left, data)
	}

	return compare(unquote(left), op, unquote(right))
}

// resolveKey reads the left operand of a placeholder-free expression such as "score > 70"
// as a payload key. Operands that are quoted or name no key are kept as literals.
func resolveKey(operand string, data models.Payload) string {
	if operand == "" || isQuoted(operand) {
		return operand
	}

	if value, ok := data.Lookup(operand); ok {
		return stringify(value)
	}

	return operand
}

// splitComparison finds the leftmost operator occurrence outside quoted literals.
func splitComparison(expr string) (string, string, string, bool) {
	var quote byte

	for i := 0; i < len(expr); i++ {
		c := expr[i]

		if quote != 0 {
			if c == quote {
				quote = 0
			}

			continue
		}

		if c == '"' || c == '\'' {
			quote = c

			continue
		}

		for _, op := range operators {
			if strings.HasPrefix(expr[i:], op) {
				return strings.TrimSpace(expr[:i]), op, strings.TrimSpace(expr[i+len(op):]), true
			}
		}
	}

	return "", "", "", false
}

// placeholderKey strips the braces of an expression made of a single placeholder.
func placeholderKey(expr string) string {
	if strings.HasPrefix(expr, "{{") && strings.HasSuffix(expr, "}}") && strings.Count(expr, "{{") == 1 {
		return strings.TrimSpace(expr[2 : len(expr)-2])
	}

	return expr
}

// substitute replaces every {{key}} with its stringified payload value. Unknown keys are
// left untouched.
func substitute(operand string, data models.Payload) string {
	var out strings.Builder

	rest := operand

	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			out.WriteString(rest)

			break
		}

		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			out.WriteString(rest)

			break
		}

		end += start

		out.WriteString(rest[:start])

		key := strings.TrimSpace(rest[start+2 : end])
		if value, ok := data.Lookup(key); ok {
			out.WriteString(stringify(value))
		} else {
			out.WriteString(rest[start : end+2])
		}

		rest = rest[end+2:]
	}

	return strings.TrimSpace(out.String())
}

func compare(left, op, right string) bool {
	lnum, lerr := strconv.ParseFloat(left, 64)
	rnum, rerr := strconv.ParseFloat(right, 64)

	if lerr == nil && rerr == nil {
		switch op {
		case "==":
			return lnum == rnum
		case "!=":
			return lnum != rnum
		case ">":
			return lnum > rnum
		case "<":
			return lnum < rnum
		case ">=":
			return lnum >= rnum
		case "<=":
			return lnum <= rnum
		}

		return false
	}

	cmp := strings.Compare(left, right)

	switch op {
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case ">":
		return cmp > 0
	case "<":
		return cmp < 0
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	}

	return false
}

func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}

	first, last := s[0], s[len(s)-1]

	return (first == '"' || first == '\'') && first == last
}

func unquote(s string) string {
	if isQuoted(s) {
		return s[1 : len(s)-1]
	}

	return s
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case json.Number:
		return v.String()
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}

		return string(encoded)
	}
}

// truthy follows loose scripting semantics: zero values, "0", empty strings and empty
// collections are false.
func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != "" && v != "0"
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case float32:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	case models.Payload:
		return len(v) > 0
	default:
		return true
	}
}
