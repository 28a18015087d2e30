package service

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the engine.
// All methods are nil-safe so services can run without metrics wired.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	enrollments       prometheus.Counter
	withdrawals       prometheus.Counter
	cancellations     prometheus.Counter
	recomputations    prometheus.Counter
	recomputeDuration prometheus.Histogram
	statusTransitions *prometheus.CounterVec
	notifierFailures  prometheus.Counter
}

// NewMetricsService registers the engine collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	enrollments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_created_total",
		Help: "Total enrollments created",
	})

	withdrawals := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_withdrawn_total",
		Help: "Total enrollments withdrawn",
	})

	cancellations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_cancelled_total",
		Help: "Total enrollments cancelled",
	})

	recomputations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grade_recomputations_total",
		Help: "Total final grade recomputations",
	})

	recomputeDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "grade_recompute_duration_seconds",
		Help:    "Duration of final grade recomputations",
		Buckets: prometheus.DefBuckets,
	})

	statusTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_status_transitions_total",
		Help: "Total enrollment status transitions by target status",
	}, []string{"to"})

	notifierFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifier_failures_total",
		Help: "Total change notifier dispatch failures",
	})

	registry.MustRegister(enrollments, withdrawals, cancellations, recomputations, recomputeDuration, statusTransitions, notifierFailures)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		enrollments:       enrollments,
		withdrawals:       withdrawals,
		cancellations:     cancellations,
		recomputations:    recomputations,
		recomputeDuration: recomputeDuration,
		statusTransitions: statusTransitions,
		notifierFailures:  notifierFailures,
	}
}

// Handler exposes the Prometheus handler for the hosting process to mount.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// RecordEnrollment counts a created enrollment.
func (m *MetricsService) RecordEnrollment() {
	if m == nil {
		return
	}
	m.enrollments.Inc()
}

// RecordWithdrawal counts a withdrawal.
func (m *MetricsService) RecordWithdrawal() {
	if m == nil {
		return
	}
	m.withdrawals.Inc()
}

// RecordCancellation counts an administrative cancellation.
func (m *MetricsService) RecordCancellation() {
	if m == nil {
		return
	}
	m.cancellations.Inc()
}

// RecordRecomputation counts a final grade recomputation and its duration.
func (m *MetricsService) RecordRecomputation(duration time.Duration) {
	if m == nil {
		return
	}
	m.recomputations.Inc()
	m.recomputeDuration.Observe(duration.Seconds())
}

// RecordStatusTransition counts a transition by target status.
func (m *MetricsService) RecordStatusTransition(to string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(to).Inc()
}

// RecordNotifierFailure counts a failed notifier dispatch.
func (m *MetricsService) RecordNotifierFailure() {
	if m == nil {
		return
	}
	m.notifierFailures.Inc()
}
