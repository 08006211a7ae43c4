/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package memoize

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector represents a collector of metrics to analyze how effectively results are reused.
type MetricsCollector interface {
	// IncHits increments the number of calls served from the cache.
	IncHits()

	// IncMisses increments the number of calls that invoked the operation.
	IncMisses()

	// IncExpirations increments the number of stale entries evicted on lookup.
	IncExpirations()
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics represents Prometheus metrics for the memoization cache.
type PrometheusMetrics struct {
	HitsTotal        prometheus.Counter
	MissesTotal      prometheus.Counter
	ExpirationsTotal prometheus.Counter
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	newCounter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        name,
			Help:        help,
			ConstLabels: opts.ConstLabels,
		})
	}
	return &PrometheusMetrics{
		HitsTotal:        newCounter("memoize_hits_total", "Number of calls served from the cache."),
		MissesTotal:      newCounter("memoize_misses_total", "Number of calls that invoked the operation."),
		ExpirationsTotal: newCounter("memoize_expirations_total", "Number of expired entries evicted on lookup."),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.HitsTotal, pm.MissesTotal, pm.ExpirationsTotal)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.HitsTotal)
	prometheus.Unregister(pm.MissesTotal)
	prometheus.Unregister(pm.ExpirationsTotal)
}

// IncHits increments the number of calls served from the cache.
func (pm *PrometheusMetrics) IncHits() {
	pm.HitsTotal.Inc()
}

// IncMisses increments the number of calls that invoked the operation.
func (pm *PrometheusMetrics) IncMisses() {
	pm.MissesTotal.Inc()
}

// IncExpirations increments the number of stale entries evicted on lookup.
func (pm *PrometheusMetrics) IncExpirations() {
	pm.ExpirationsTotal.Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) IncHits()        {}
func (disabledMetrics) IncMisses()      {}
func (disabledMetrics) IncExpirations() {}
