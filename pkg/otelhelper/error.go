package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks span as failed by a structural error that aborted the execution.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err == nil {
		return
	}

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("execution_aborted", trace.WithAttributes(attrs...))
}

// RecordActionError records an executor error on a node span. The span status is left
// unset because the run continues with the next node.
func RecordActionError(span trace.Span, err error, action string) {
	if err == nil {
		return
	}

	span.RecordError(err, trace.WithAttributes(attribute.String(ActionIDKey, action)))
	span.AddEvent("action_failed", trace.WithAttributes(
		attribute.String(ActionIDKey, action),
		attribute.String("error.message", err.Error()),
	))
}
