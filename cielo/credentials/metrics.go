package credentials

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusRenewals *prometheus.CounterVec

	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusRenewals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cielo",
			Subsystem: "credential",
			Name:      "renewals_total",
			Help:      "Number of bearer token renewals by result",
		},
		[]string{"result"},
	)
}
