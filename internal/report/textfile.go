package report

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics counts the outcomes of a run for the node exporter textfile
// collector. A nil *RunMetrics ignores every call.
type RunMetrics struct {
	registry    *prometheus.Registry
	subjects    *prometheus.CounterVec
	diagnostics *prometheus.CounterVec
	anomalies   *prometheus.CounterVec
	duration    prometheus.Gauge
	lastRun     prometheus.Gauge
}

// NewRunMetrics registers the run metrics on a private registry
func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		subjects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nqc",
			Name:      "subjects_total",
			Help:      "Subjects processed, by action (generate, relink, skip).",
		}, []string{"action"}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nqc",
			Name:      "diagnostics_total",
			Help:      "Diagnostic routines run, by kind and result.",
		}, []string{"kind", "result"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nqc",
			Name:      "reconciliation_anomalies_total",
			Help:      "Reconciliation rows that are not plain matches, by type.",
		}, []string{"type"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nqc",
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nqc",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
	m.registry.MustRegister(m.subjects, m.diagnostics, m.anomalies, m.duration, m.lastRun)
	return m
}

// ObserveSubject counts a subject state decision
func (m *RunMetrics) ObserveSubject(action string) {
	if m == nil {
		return
	}
	m.subjects.WithLabelValues(action).Inc()
}

// ObserveDiagnostic counts one dispatched routine
func (m *RunMetrics) ObserveDiagnostic(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.diagnostics.WithLabelValues(kind, result).Inc()
}

// ObserveAnomaly counts a reconciliation anomaly (repeated, missing, extra)
func (m *RunMetrics) ObserveAnomaly(kind string) {
	if m == nil {
		return
	}
	m.anomalies.WithLabelValues(kind).Inc()
}

// Finish records the run duration and completion time
func (m *RunMetrics) Finish(started time.Time) {
	if m == nil {
		return
	}
	now := time.Now()
	m.duration.Set(now.Sub(started).Seconds())
	m.lastRun.Set(float64(now.Unix()))
}

// WriteTextfile atomically writes the metrics in the text exposition format
func (m *RunMetrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
