package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsOnce sync.Once

	opsTotal    *prometheus.CounterVec
	opsDuration *prometheus.HistogramVec
)

// registerMetrics initializes the operation metrics once and returns the
// /metrics handler.
func registerMetrics(registry *prometheus.Registry) http.Handler {
	metricsOnce.Do(func() {
		opsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "locstore_ops_total",
			Help: "Location-store operations by outcome",
		}, []string{"op", "outcome"})

		opsDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "locstore_op_duration_seconds",
			Help:    "Location-store operation latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"})
	})

	if registry != nil {
		registry.MustRegister(opsTotal, opsDuration)
		return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}
	prometheus.DefaultRegisterer.MustRegister(opsTotal, opsDuration)
	return promhttp.Handler()
}

// observe records one routed operation.
func observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	opsTotal.WithLabelValues(op, outcome).Inc()
	opsDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
