package relations

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusRequests        *prometheus.CounterVec
	prometheusRequestDuration prometheus.Histogram
	prometheusCacheHits       prometheus.Counter

	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cielo",
			Subsystem: "relations",
			Name:      "requests_total",
			Help:      "Related-wallets lookups by outcome",
		},
		[]string{"outcome"},
	)

	prometheusRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cielo",
			Subsystem: "relations",
			Name:      "request_duration_seconds",
			Help:      "Duration of a single related-wallets HTTP request",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	prometheusCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cielo",
			Subsystem: "relations",
			Name:      "cache_hits_total",
			Help:      "Lookups answered from the relations cache",
		},
	)
}
