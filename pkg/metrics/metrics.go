// Package metrics provides Prometheus metrics for saga executions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the execution metrics. A nil *Metrics records nothing.
type Metrics struct {
	ExecutionsStarted  *prometheus.CounterVec
	ExecutionsFinished *prometheus.CounterVec
	ExecutionDuration  *prometheus.HistogramVec
	ActiveExecutions   prometheus.Gauge
	NodesExecuted      *prometheus.CounterVec
	NodeDuration       *prometheus.HistogramVec
	Compensations      *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		ExecutionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsaga_executions_started_total",
			Help: "Total number of executions started",
		}, []string{"variant"}),
		ExecutionsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsaga_executions_finished_total",
			Help: "Total number of executions that reached a terminal status",
		}, []string{"variant", "status"}),
		ExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowsaga_execution_duration_seconds",
			Help:    "Duration of executions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}, []string{"variant"}),
		ActiveExecutions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flowsaga_active_executions",
			Help: "Number of executions currently running",
		}),
		NodesExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsaga_nodes_executed_total",
			Help: "Total number of node actions executed by outcome",
		}, []string{"action", "outcome"}),
		NodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowsaga_node_duration_seconds",
			Help:    "Duration of node actions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{"action"}),
		Compensations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsaga_compensations_total",
			Help: "Total number of step compensations by outcome",
		}, []string{"action", "outcome"}),
	}
}

func (m *Metrics) ExecutionStarted(variant string) {
	if m == nil {
		return
	}

	m.ExecutionsStarted.WithLabelValues(variant).Inc()
	m.ActiveExecutions.Inc()
}

func (m *Metrics) ExecutionFinished(variant, status string, duration time.Duration) {
	if m == nil {
		return
	}

	m.ExecutionsFinished.WithLabelValues(variant, status).Inc()
	m.ExecutionDuration.WithLabelValues(variant).Observe(duration.Seconds())
	m.ActiveExecutions.Dec()
}

func (m *Metrics) NodeExecuted(action string, failed bool, duration time.Duration) {
	if m == nil {
		return
	}

	m.NodesExecuted.WithLabelValues(action, outcome(!failed)).Inc()
	m.NodeDuration.WithLabelValues(action).Observe(duration.Seconds())
}

func (m *Metrics) Compensated(action string, ok bool) {
	if m == nil {
		return
	}

	m.Compensations.WithLabelValues(action, outcome(ok)).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}

	return "failure"
}
