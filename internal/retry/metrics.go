package retry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal counts every attempt, including the first.
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Total number of call attempts",
		},
		[]string{"name", "attempt"},
	)

	// SuccessTotal counts calls that succeeded after at least one retry.
	SuccessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "retry",
			Name:      "success_total",
			Help:      "Total number of calls that succeeded after retrying",
		},
		[]string{"name"},
	)

	// FailureTotal counts calls that failed after their last attempt.
	FailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "retry",
			Name:      "failure_total",
			Help:      "Total number of calls that failed after all attempts",
		},
		[]string{"name"},
	)

	// Duration measures the total duration of retried calls.
	Duration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "retry",
			Name:      "duration_seconds",
			Help:      "Total duration of calls including retries in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"name", "result"},
	)

	// BackoffDuration measures backoff waits.
	BackoffDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "retry",
			Name:      "backoff_duration_seconds",
			Help:      "Duration of backoff waits in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"name", "attempt"},
	)
)

// RecordAttempt records an attempt.
func RecordAttempt(name string, attempt int) {
	AttemptsTotal.WithLabelValues(name, strconv.Itoa(attempt)).Inc()
}

// RecordSuccess records a call that succeeded after retrying.
func RecordSuccess(name string) {
	SuccessTotal.WithLabelValues(name).Inc()
}

// RecordFailure records a call that failed after its last attempt.
func RecordFailure(name string) {
	FailureTotal.WithLabelValues(name).Inc()
}

// RecordDuration records the total duration of a call.
func RecordDuration(name string, success bool, seconds float64) {
	result := "success"
	if !success {
		result = "failure"
	}
	Duration.WithLabelValues(name, result).Observe(seconds)
}

// RecordBackoff records a backoff wait.
func RecordBackoff(name string, attempt int, seconds float64) {
	BackoffDuration.WithLabelValues(name, strconv.Itoa(attempt)).Observe(seconds)
}
