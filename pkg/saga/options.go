package saga

import (
	"context"
	"time"

	"github.com/dashcrm/flowsaga/pkg/metrics"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/otelhelper"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxSteps bounds the number of nodes one execution may visit.
const DefaultMaxSteps = 1000

// Notifier receives the outcome of every execution.
type Notifier interface {
	NotifyCompleted(ctx context.Context, record *models.ExecutionRecord, duration time.Duration)
	NotifyFailed(ctx context.Context, record *models.ExecutionRecord, cause error, compensated bool, duration time.Duration)
}

// Resumer resumes a suspended execution from its stored record.
type Resumer func(ctx context.Context, record *models.ExecutionRecord, data map[string]any) (any, error)

type settings struct {
	maxSteps   int
	notifier   Notifier
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	now        func() time.Time
	resumer    Resumer
	generateID func() string
}

// Option customises an interpreter.
type Option func(*settings)

func defaultSettings() settings {
	return settings{
		maxSteps:   DefaultMaxSteps,
		tracer:     otelhelper.NoopTracer(),
		now:        time.Now,
		generateID: uuid.NewString,
	}
}

// WithMaxSteps overrides DefaultMaxSteps. Values below one are ignored.
func WithMaxSteps(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxSteps = n
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *settings) {
		s.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *settings) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithResumer installs the hook behind Continue.
func WithResumer(r Resumer) Option {
	return func(s *settings) {
		s.resumer = r
	}
}

func WithIDGenerator(generate func() string) Option {
	return func(s *settings) {
		if generate != nil {
			s.generateID = generate
		}
	}
}
