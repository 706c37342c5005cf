package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// AttemptFunc performs one attempt. attempt starts at 1.
type AttemptFunc func(ctx context.Context, attempt int) error

// OnRetryFunc is called before each backoff wait.
type OnRetryFunc func(attempt int, err error, delay time.Duration)

// AttemptsError is the single failure reported after the last attempt.
type AttemptsError struct {
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *AttemptsError) Error() string {
	if e.Attempts == 1 {
		return e.Last.Error()
	}
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the last attempt's error.
func (e *AttemptsError) Unwrap() error {
	return e.Last
}

// Permanent marks err as not retryable.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *backoff.PermanentError
	return errors.As(err, &pe)
}

func unwrapPermanent(err error) error {
	var pe *backoff.PermanentError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

// Executor runs calls under a retry Policy.
type Executor struct {
	name    string
	policy  *Policy
	logger  *zap.Logger
	onRetry OnRetryFunc
}

// Option configures an Executor.
type Option func(*Executor)

// WithOnRetry sets a callback invoked before each backoff wait.
func WithOnRetry(fn OnRetryFunc) Option {
	return func(e *Executor) {
		e.onRetry = fn
	}
}

// NewExecutor creates an Executor. A nil policy means DefaultPolicy.
func NewExecutor(name string, policy *Policy, logger *zap.Logger, opts ...Option) *Executor {
	if policy == nil {
		policy = DefaultPolicy()
	}
	p := *policy
	p.Validate()

	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Executor{
		name:   name,
		policy: &p,
		logger: logger.With(zap.String("retry", name)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the executor name.
func (e *Executor) Name() string {
	return e.name
}

// Policy returns a copy of the effective policy.
func (e *Executor) Policy() Policy {
	return *e.policy
}

// Execute calls fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. Calls whose method the policy does not allow are
// attempted once. Every failure is reported as a single *AttemptsError.
func (e *Executor) Execute(ctx context.Context, method string, fn AttemptFunc) error {
	maxAttempts := e.policy.MaxAttempts
	if !e.policy.AllowsMethod(method) {
		maxAttempts = 1
	}

	start := time.Now()
	schedule := NewSchedule(e.policy.Backoff)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return e.exhausted(attempt-1, lastErr, err, start)
		}

		RecordAttempt(e.name, attempt)
		lastErr = e.attempt(ctx, attempt, fn)
		if lastErr == nil {
			if attempt > 1 {
				RecordSuccess(e.name)
			}
			RecordDuration(e.name, true, time.Since(start).Seconds())
			return nil
		}

		if attempt == maxAttempts || !e.policy.ShouldRetry(lastErr) {
			return e.exhausted(attempt, lastErr, nil, start)
		}

		delay := schedule.Next()
		if e.onRetry != nil {
			e.onRetry(attempt, lastErr, delay)
		}
		e.logger.Debug("retrying call",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)
		RecordBackoff(e.name, attempt, delay.Seconds())

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return e.exhausted(attempt, lastErr, ctx.Err(), start)
		case <-timer.C:
		}
	}

	return e.exhausted(maxAttempts, lastErr, nil, start)
}

func (e *Executor) attempt(ctx context.Context, attempt int, fn AttemptFunc) error {
	if e.policy.PerTryTimeout <= 0 {
		return fn(ctx, attempt)
	}
	tryCtx, cancel := context.WithTimeout(ctx, e.policy.PerTryTimeout)
	defer cancel()
	return fn(tryCtx, attempt)
}

func (e *Executor) exhausted(attempts int, last, ctxErr error, start time.Time) error {
	RecordFailure(e.name)
	RecordDuration(e.name, false, time.Since(start).Seconds())

	last = unwrapPermanent(last)
	switch {
	case last == nil:
		last = ctxErr
	case ctxErr != nil:
		last = errors.Join(last, ctxErr)
	}

	if attempts > 1 {
		e.logger.Debug("retries exhausted", zap.Int("attempts", attempts), zap.Error(last))
	}
	return &AttemptsError{Attempts: attempts, Last: last}
}

// Do runs fn under policy regardless of method. It is used for connecting
// to external dependencies at startup.
func Do(ctx context.Context, name string, policy *Policy, logger *zap.Logger, fn func(ctx context.Context) error) error {
	if policy == nil {
		policy = DefaultPolicy()
	}
	p := *policy
	p.Methods = []string{"*"}
	if len(p.RetryOn) == 0 {
		p.RetryOn = []Condition{ConditionFunc(func(err error) bool {
			return !errors.Is(err, context.Canceled)
		})}
	}

	return NewExecutor(name, &p, logger).Execute(ctx, "*", func(ctx context.Context, _ int) error {
		return fn(ctx)
	})
}
