// Package metrics exposes the Prometheus collectors of the pipeline.
//
// All methods are safe on a nil *Metrics, so components can take an
// optional collector set without nil checks at every call site.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Evaluation outcomes.
const (
	Satisfied   = "satisfied"
	Unsatisfied = "unsatisfied"
	Errored     = "error"
)

// Delivery outcomes.
const (
	Delivered = "delivered"
	Failed    = "failed"
	Retried   = "retried"
	Skipped   = "skipped"
)

// Metrics holds the pipeline collectors.
type Metrics struct {
	dataPoints  *prometheus.CounterVec
	evaluations *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	latency     prometheus.Histogram
	tasks       *prometheus.CounterVec
	taskErrors  *prometheus.CounterVec
	taskTime    *prometheus.HistogramVec
	rateLimited prometheus.Counter
	pruned      prometheus.Counter
}

// New creates the collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to keep them isolated.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dataPoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wot_data_points_total",
			Help: "Data points received, by result (accepted or rejected).",
		}, []string{"result"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wot_event_evaluations_total",
			Help: "Event condition evaluations, by result.",
		}, []string{"result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wot_deliveries_total",
			Help: "Webhook delivery attempts, by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wot_delivery_duration_seconds",
			Help:    "Webhook POST round-trip time.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wot_tasks_submitted_total",
			Help: "Tasks submitted to the task queue, by task name.",
		}, []string{"task"}),
		taskErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wot_task_errors_total",
			Help: "Tasks that returned an error or panicked, by task name.",
		}, []string{"task"}),
		taskTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wot_task_duration_seconds",
			Help:    "Task handler run time, by task name.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"task"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wot_rate_limited_total",
			Help: "Data point writes rejected by the per-client rate limiter.",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wot_jobs_pruned_total",
			Help: "Terminal notification jobs removed by retention.",
		}),
	}

	reg.MustRegister(
		m.dataPoints,
		m.evaluations,
		m.deliveries,
		m.latency,
		m.tasks,
		m.taskErrors,
		m.taskTime,
		m.rateLimited,
		m.pruned,
	)
	return m
}

// Handler serves the exposition format for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// DataPoint counts an accepted or rejected data point.
func (m *Metrics) DataPoint(accepted bool) {
	if m == nil {
		return
	}
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	m.dataPoints.WithLabelValues(result).Inc()
}

// Evaluation counts an event evaluation outcome.
func (m *Metrics) Evaluation(result string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(result).Inc()
}

// Delivery counts a delivery outcome and, for attempts that reached the
// network, records the round-trip time.
func (m *Metrics) Delivery(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
	if outcome != Skipped {
		m.latency.Observe(elapsed.Seconds())
	}
}

// RateLimited counts a rejected write.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// Pruned counts removed delivery log rows.
func (m *Metrics) Pruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.pruned.Add(float64(n))
}

// TaskSubmitted implements taskqueue.Observer.
func (m *Metrics) TaskSubmitted(name string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(name).Inc()
}

// TaskFinished implements taskqueue.Observer.
func (m *Metrics) TaskFinished(name string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.taskTime.WithLabelValues(name).Observe(elapsed.Seconds())
	if err != nil {
		m.taskErrors.WithLabelValues(name).Inc()
	}
}
