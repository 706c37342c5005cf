package proxy

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// proxyMetrics contains Prometheus metrics for backend calls.
type proxyMetrics struct {
	errorsTotal     *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
}

var (
	proxyMetricsInstance *proxyMetrics
	proxyMetricsOnce     sync.Once
)

// initProxyMetrics registers the proxy metrics with registry, or with the
// default registerer when registry is nil. Later calls are no-ops.
func initProxyMetrics(registry prometheus.Registerer) {
	proxyMetricsOnce.Do(func() {
		if registry == nil {
			registry = prometheus.DefaultRegisterer
		}
		factory := promauto.With(registry)
		proxyMetricsInstance = &proxyMetrics{
			errorsTotal: factory.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "proxy",
					Name:      "errors_total",
					Help:      "Total number of failed backend calls",
				},
				[]string{"service", "error_type"},
			),
			backendDuration: factory.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "gateway",
					Subsystem: "proxy",
					Name:      "backend_duration_seconds",
					Help:      "Duration of backend calls in seconds",
					Buckets: []float64{
						.001, .005, .01, .025,
						.05, .1, .25, .5,
						1, 2.5, 5, 10,
					},
				},
				[]string{"service"},
			),
		}
	})
}

// getProxyMetrics returns the singleton proxy metrics instance.
func getProxyMetrics() *proxyMetrics {
	initProxyMetrics(nil)
	return proxyMetricsInstance
}

func recordBackendError(service, errorType string) {
	getProxyMetrics().errorsTotal.WithLabelValues(service, errorType).Inc()
}

func recordBackendDuration(service string, d time.Duration) {
	getProxyMetrics().backendDuration.WithLabelValues(service).Observe(d.Seconds())
}
