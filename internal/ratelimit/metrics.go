package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal counts admission decisions per limiter.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Total number of rate limit decisions",
		},
		[]string{"limiter", "result"},
	)

	redisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "ratelimit",
			Name:      "redis_duration_seconds",
			Help:      "Duration of Redis rate limit operations in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
		[]string{"limiter"},
	)

	redisFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "ratelimit",
			Name:      "redis_fallback_total",
			Help:      "Total number of decisions made locally because Redis failed",
		},
		[]string{"limiter"},
	)

	redisHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gateway",
			Subsystem: "ratelimit",
			Name:      "redis_healthy",
			Help:      "Whether Redis is used for decisions (1) or bypassed (0)",
		},
		[]string{"limiter"},
	)
)

// RecordDecision records an admission decision.
func RecordDecision(limiter string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	DecisionsTotal.WithLabelValues(limiter, result).Inc()
}
