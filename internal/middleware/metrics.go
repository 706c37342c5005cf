package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vyrodovalexey/edgerouter/internal/observability"
	"github.com/vyrodovalexey/edgerouter/internal/util"
)

// MiddlewareMetrics holds Prometheus metrics for middleware
// operations.
type MiddlewareMetrics struct {
	bodyLimitRejected prometheus.Counter
	panicsRecovered   prometheus.Counter
}

var (
	middlewareMetrics     *MiddlewareMetrics
	middlewareMetricsOnce sync.Once
)

// GetMiddlewareMetrics returns the singleton middleware metrics
// instance.
func GetMiddlewareMetrics() *MiddlewareMetrics {
	middlewareMetricsOnce.Do(func() {
		middlewareMetrics = &MiddlewareMetrics{
			bodyLimitRejected: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "middleware",
					Name:      "body_limit_rejected_total",
					Help: "Total number of requests " +
						"rejected due to body size limit",
				},
			),
			panicsRecovered: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "middleware",
					Name:      "panics_recovered_total",
					Help: "Total number of panics " +
						"recovered",
				},
			),
		}
	})
	return middlewareMetrics
}

// Metrics returns a middleware recording request metrics labelled with the
// matched route id.
func Metrics(m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.IncActiveRequests()
			defer m.DecActiveRequests()

			r, info := withInfo(r)
			rw := util.NewStatusCapturingResponseWriter(w)
			next.ServeHTTP(rw, r)

			m.RecordRequest(r.Method, info.RouteID, rw.StatusCode, time.Since(start), int(rw.BytesWritten))
			if info.Outcome != "" {
				m.RecordOutcome(info.RouteID, info.Outcome)
			}
		})
	}
}
