// Package diag implements the optional diagnostics listener: health
// and Prometheus metrics on a side port, never tool functionality.
package diag

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics implements the executor observation hooks on Prometheus
// collectors.
type Metrics struct {
	registry *prometheus.Registry

	calls     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	auditFail prometheus.Counter
	artifacts prometheus.Counter
}

// NewMetrics builds and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsgate",
			Name:      "calls_total",
			Help:      "Tool calls by tool and outcome.",
		}, []string{"tool", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "opsgate",
			Name:      "call_duration_seconds",
			Help:      "Tool call duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		auditFail: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opsgate",
			Name:      "audit_failures_total",
			Help:      "Audit appends that failed and withheld an envelope.",
		}),
		artifacts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opsgate",
			Name:      "artifacts_written_total",
			Help:      "Artifacts written by the executor.",
		}),
	}
	m.registry.MustRegister(m.calls, m.duration, m.auditFail, m.artifacts)
	return m
}

// ObserveCall implements executor.Metrics.
func (m *Metrics) ObserveCall(toolName, outcome string, d time.Duration) {
	m.calls.WithLabelValues(toolName, outcome).Inc()
	m.duration.WithLabelValues(toolName).Observe(d.Seconds())
}

// AuditFailure implements executor.Metrics.
func (m *Metrics) AuditFailure() { m.auditFail.Inc() }

// ArtifactWritten implements executor.Metrics.
func (m *Metrics) ArtifactWritten() { m.artifacts.Inc() }

// Registry exposes the collectors for the HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
