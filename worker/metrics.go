/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Task statuses used in metrics.
const (
	TaskStatusOK    = "ok"
	TaskStatusError = "error"
)

// MetricsCollector represents a collector of metrics for executed tasks.
type MetricsCollector interface {
	// ObserveTask registers a finished task with its type, status and execution duration.
	ObserveTask(taskType, status string, duration time.Duration)

	// IncInFlight increments the number of tasks being executed.
	IncInFlight()

	// DecInFlight decrements the number of tasks being executed.
	DecInFlight()
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// DurationBuckets is a list of buckets for the task duration histogram.
	// Default is prometheus.DefBuckets.
	DurationBuckets []float64

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics represents Prometheus metrics for the worker.
type PrometheusMetrics struct {
	TasksTotal    *prometheus.CounterVec
	TaskDuration  *prometheus.HistogramVec
	TasksInFlight prometheus.Gauge
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	buckets := opts.DurationBuckets
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	return &PrometheusMetrics{
		TasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "worker_tasks_total",
			Help:        "Number of executed tasks.",
			ConstLabels: opts.ConstLabels,
		}, []string{"task_type", "status"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "worker_task_duration_seconds",
			Help:        "Task execution duration.",
			Buckets:     buckets,
			ConstLabels: opts.ConstLabels,
		}, []string{"task_type", "status"}),
		TasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "worker_tasks_in_flight",
			Help:        "Number of tasks being executed.",
			ConstLabels: opts.ConstLabels,
		}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.TasksTotal, pm.TaskDuration, pm.TasksInFlight)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.TasksTotal)
	prometheus.Unregister(pm.TaskDuration)
	prometheus.Unregister(pm.TasksInFlight)
}

// ObserveTask registers a finished task with its type, status and execution duration.
func (pm *PrometheusMetrics) ObserveTask(taskType, status string, duration time.Duration) {
	pm.TasksTotal.WithLabelValues(taskType, status).Inc()
	pm.TaskDuration.WithLabelValues(taskType, status).Observe(duration.Seconds())
}

// IncInFlight increments the number of tasks being executed.
func (pm *PrometheusMetrics) IncInFlight() {
	pm.TasksInFlight.Inc()
}

// DecInFlight decrements the number of tasks being executed.
func (pm *PrometheusMetrics) DecInFlight() {
	pm.TasksInFlight.Dec()
}

type disabledMetrics struct{}

func (disabledMetrics) ObserveTask(string, string, time.Duration) {}
func (disabledMetrics) IncInFlight()                              {}
func (disabledMetrics) DecInFlight()                              {}
