package crawler

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusExpanded      prometheus.Counter
	prometheusCrawlDuration prometheus.Histogram

	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusExpanded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cielo",
			Subsystem: "crawler",
			Name:      "expanded_total",
			Help:      "Wallets whose relations produced at least one edge",
		},
	)

	prometheusCrawlDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cielo",
			Subsystem: "crawler",
			Name:      "crawl_duration_seconds",
			Help:      "Duration of a full crawl",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)
}
