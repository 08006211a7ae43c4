/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package asynclimit

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector represents a collector of metrics for the Executor.
type MetricsCollector interface {
	// SetActive sets the number of currently running invocations.
	SetActive(int)

	// SetQueued sets the number of calls waiting for a slot.
	SetQueued(int)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics represents Prometheus metrics for the Executor.
type PrometheusMetrics struct {
	ActiveCalls prometheus.Gauge
	QueuedCalls prometheus.Gauge
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	return &PrometheusMetrics{
		ActiveCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "async_limit_active_calls",
			Help:        "Number of currently running calls.",
			ConstLabels: opts.ConstLabels,
		}),
		QueuedCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "async_limit_queued_calls",
			Help:        "Number of calls waiting for a free slot.",
			ConstLabels: opts.ConstLabels,
		}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.ActiveCalls, pm.QueuedCalls)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.ActiveCalls)
	prometheus.Unregister(pm.QueuedCalls)
}

// SetActive sets the number of currently running invocations.
func (pm *PrometheusMetrics) SetActive(n int) {
	pm.ActiveCalls.Set(float64(n))
}

// SetQueued sets the number of calls waiting for a slot.
func (pm *PrometheusMetrics) SetQueued(n int) {
	pm.QueuedCalls.Set(float64(n))
}

type disabledMetrics struct{}

func (disabledMetrics) SetActive(int) {}
func (disabledMetrics) SetQueued(int) {}
