package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Schedule yields the delays between consecutive attempts of one call.
// It is not safe for concurrent use; create one per call.
type Schedule struct {
	b   *backoff.ExponentialBackOff
	max time.Duration
}

// NewSchedule creates a schedule starting at cfg.Initial, growing by
// cfg.Multiplier and never exceeding cfg.Max.
func NewSchedule(cfg BackoffConfig) *Schedule {
	randomization := 0.0
	if cfg.Jitter {
		randomization = jitterFactor
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.Initial,
		RandomizationFactor: randomization,
		Multiplier:          cfg.Multiplier,
		MaxInterval:         cfg.Max,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	return &Schedule{b: b, max: cfg.Max}
}

// Next returns the delay before the next attempt.
func (s *Schedule) Next() time.Duration {
	d := s.b.NextBackOff()
	if d == backoff.Stop || d > s.max {
		return s.max
	}
	if d < 0 {
		return 0
	}
	return d
}
