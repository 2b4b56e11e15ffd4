package lindex

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetricsCollector exports operation metrics through a Prometheus
// registerer. All metrics live under the "lindex" namespace.
type PrometheusMetricsCollector struct {
	getDuration    prometheus.Histogram
	getMisses      prometheus.Counter
	putDuration    prometheus.Histogram
	putRetries     prometheus.Counter
	removeDuration prometheus.Histogram
	removeMisses   prometheus.Counter
	scanDuration   prometheus.Histogram
	scanResults    prometheus.Counter
	adjustDuration prometheus.Histogram
	rootRebuilds   prometheus.Counter
}

// NewPrometheusMetricsCollector registers lindex metrics with the given
// registerer. Pass prometheus.DefaultRegisterer to use the global registry.
func NewPrometheusMetricsCollector(reg prometheus.Registerer) *PrometheusMetricsCollector {
	factory := promauto.With(reg)

	return &PrometheusMetricsCollector{
		getDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lindex",
			Name:      "get_duration_seconds",
			Help:      "Point lookup latency.",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 4, 12),
		}),
		getMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "lindex",
			Name:      "get_misses_total",
			Help:      "Negative point lookups.",
		}),
		putDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lindex",
			Name:      "put_duration_seconds",
			Help:      "Insert/overwrite latency, re-route retries included.",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 4, 12),
		}),
		putRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "lindex",
			Name:      "put_retries_total",
			Help:      "Put re-routes caused by concurrent structural changes.",
		}),
		removeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lindex",
			Name:      "remove_duration_seconds",
			Help:      "Delete latency.",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 4, 12),
		}),
		removeMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "lindex",
			Name:      "remove_misses_total",
			Help:      "Deletes of absent keys.",
		}),
		scanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lindex",
			Name:      "scan_duration_seconds",
			Help:      "Scan and range scan latency.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
		scanResults: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "lindex",
			Name:      "scan_results_total",
			Help:      "Pairs returned by scans and range scans.",
		}),
		adjustDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lindex",
			Name:      "adjustment_duration_seconds",
			Help:      "Adjustment round latency.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 12),
		}),
		rootRebuilds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "lindex",
			Name:      "root_rebuilds_total",
			Help:      "Adjustment rounds that rebuilt the root.",
		}),
	}
}

// RecordGet implements MetricsCollector.
func (p *PrometheusMetricsCollector) RecordGet(duration time.Duration, found bool) {
	p.getDuration.Observe(duration.Seconds())
	if !found {
		p.getMisses.Inc()
	}
}

// RecordPut implements MetricsCollector.
func (p *PrometheusMetricsCollector) RecordPut(duration time.Duration, retries int) {
	p.putDuration.Observe(duration.Seconds())
	if retries > 0 {
		p.putRetries.Add(float64(retries))
	}
}

// RecordRemove implements MetricsCollector.
func (p *PrometheusMetricsCollector) RecordRemove(duration time.Duration, found bool) {
	p.removeDuration.Observe(duration.Seconds())
	if !found {
		p.removeMisses.Inc()
	}
}

// RecordScan implements MetricsCollector.
func (p *PrometheusMetricsCollector) RecordScan(results int, duration time.Duration) {
	p.scanDuration.Observe(duration.Seconds())
	p.scanResults.Add(float64(results))
}

// RecordAdjustment implements MetricsCollector.
func (p *PrometheusMetricsCollector) RecordAdjustment(duration time.Duration, structural bool) {
	p.adjustDuration.Observe(duration.Seconds())
	if structural {
		p.rootRebuilds.Inc()
	}
}
