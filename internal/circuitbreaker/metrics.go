package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "gateway"
	metricsSubsystem = "circuit_breaker"
)

var (
	// StateGauge shows the current state of each breaker.
	StateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "state",
			Help:      "Current state of the circuit breaker (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	// RequestsTotal counts calls offered to each breaker.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "requests_total",
			Help:      "Total number of calls offered to circuit breakers",
		},
		[]string{"name", "result"},
	)

	// OutcomesTotal counts recorded call outcomes.
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "outcomes_total",
			Help:      "Total number of call outcomes recorded by circuit breakers",
		},
		[]string{"name", "outcome"},
	)

	// StateChangesTotal counts transitions.
	StateChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "state_changes_total",
			Help:      "Total number of circuit breaker state changes",
		},
		[]string{"name", "from", "to"},
	)
)

// RecordState records the current state of a circuit breaker.
func RecordState(name string, state State) {
	StateGauge.WithLabelValues(name).Set(float64(state))
}

// RecordRequest records whether a call was admitted.
func RecordRequest(name string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	RequestsTotal.WithLabelValues(name, result).Inc()
}

// RecordFailure records a failure.
func RecordFailure(name string) {
	OutcomesTotal.WithLabelValues(name, "failure").Inc()
}

// RecordSuccess records a success.
func RecordSuccess(name string) {
	OutcomesTotal.WithLabelValues(name, "success").Inc()
}

// RecordStateChange records a state change.
func RecordStateChange(name string, from, to State) {
	StateChangesTotal.WithLabelValues(name, from.String(), to.String()).Inc()
	RecordState(name, to)
}
