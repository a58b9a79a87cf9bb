package supervisor

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for form submissions.
type Metrics struct {
	submissionsTotal   *prometheus.CounterVec
	submissionDuration *prometheus.HistogramVec
	rowsFetched        *prometheus.CounterVec
	staleTotal         *prometheus.CounterVec
	rejectedTotal      *prometheus.CounterVec
	inFlight           prometheus.Gauge
	backendHealthy     prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

// NewMetrics returns the process-wide metrics collector.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInst = &Metrics{
			submissionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "polltool_submissions_total",
					Help: "Total number of form submissions by outcome",
				},
				[]string{"provider", "status"},
			),
			submissionDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "polltool_submission_duration_seconds",
					Help:    "Time from submit to backend reply",
					Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
				},
				[]string{"provider"},
			),
			rowsFetched: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "polltool_rows_fetched_total",
					Help: "Total report rows returned by successful polls",
				},
				[]string{"provider"},
			),
			staleTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "polltool_stale_responses_total",
					Help: "Replies discarded because a newer submission superseded them",
				},
				[]string{"provider"},
			),
			rejectedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "polltool_rejected_submissions_total",
					Help: "Submissions refused because one was already in flight",
				},
				[]string{"provider"},
			),
			inFlight: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "polltool_submissions_in_flight",
					Help: "Number of submissions awaiting a backend reply",
				},
			),
			backendHealthy: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "polltool_backend_healthy",
					Help: "Polling backend health status (1 = healthy, 0 = unhealthy)",
				},
			),
		}
	})
	return metricsInst
}

// RecordSubmission records a finished submission.
func (m *Metrics) RecordSubmission(provider string, status SubmissionStatus, duration time.Duration, rows int) {
	if m == nil {
		return
	}

	providerLabel := provider
	if providerLabel == "" {
		providerLabel = "unknown"
	}
	statusLabel := string(status)
	if statusLabel == "" {
		statusLabel = "unknown"
	}

	m.submissionsTotal.WithLabelValues(providerLabel, statusLabel).Inc()
	m.submissionDuration.WithLabelValues(providerLabel).Observe(duration.Seconds())

	if status == StatusStale {
		m.staleTotal.WithLabelValues(providerLabel).Inc()
	}
	if status == StatusSuccess && rows > 0 {
		m.rowsFetched.WithLabelValues(providerLabel).Add(float64(rows))
	}
}

// RecordRejected records a submission refused by the single-flight policy.
func (m *Metrics) RecordRejected(provider string) {
	if m == nil {
		return
	}
	m.rejectedTotal.WithLabelValues(provider).Inc()
}

// UpdateInFlight updates the in-flight submissions gauge.
func (m *Metrics) UpdateInFlight(count int) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(count))
}

// UpdateBackendHealth updates the backend health gauge.
func (m *Metrics) UpdateBackendHealth(healthy bool) {
	if m == nil {
		return
	}
	if healthy {
		m.backendHealthy.Set(1)
	} else {
		m.backendHealthy.Set(0)
	}
}
