package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultAllowed = "allowed"
	resultDenied  = "denied"
)

var (
	// DecisionsTotal counts gate decisions on protected requests.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "auth",
			Name:      "decisions_total",
			Help:      "Total number of authorization decisions on protected requests",
		},
		[]string{"result", "reason"},
	)

	// ValidationDuration observes token validation latency.
	ValidationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "auth",
			Name:      "validation_duration_seconds",
			Help:      "Bearer token validation duration in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"result"},
	)

	// JWKSRefreshTotal counts JWKS refreshes by result.
	JWKSRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "auth",
			Name:      "jwks_refresh_total",
			Help:      "Total number of JWKS refresh attempts",
		},
		[]string{"result"},
	)
)

func recordDecision(result, reason string, d time.Duration) {
	DecisionsTotal.WithLabelValues(result, reason).Inc()
	ValidationDuration.WithLabelValues(result).Observe(d.Seconds())
}
