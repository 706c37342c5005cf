package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/edgerouter/internal/util"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed indicates the circuit is closed and requests are allowed.
	StateClosed State = iota

	// StateOpen indicates the circuit is open and requests are rejected.
	StateOpen

	// StateHalfOpen indicates the circuit is testing if the backend is healthy.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	name   string
	config Config
	logger *zap.Logger

	mu    sync.Mutex
	state State

	// generation changes on every transition; outcomes of calls admitted
	// in an older generation are dropped.
	generation uint64

	window           *outcomeWindow
	consecutiveFails int

	halfOpenAdmitted  int
	halfOpenSucceeded int

	openedAt        time.Time
	lastFailure     time.Time
	lastStateChange time.Time
}

// NewCircuitBreaker creates a new circuit breaker. config is copied.
func NewCircuitBreaker(name string, config *Config, logger *zap.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	cfg.Validate()

	if logger == nil {
		logger = zap.NewNop()
	}

	cb := &CircuitBreaker{
		name:            name,
		config:          cfg,
		logger:          logger,
		state:           StateClosed,
		window:          newOutcomeWindow(cfg.WindowSize),
		lastStateChange: cfg.Now(),
	}
	RecordState(name, StateClosed)
	return cb
}

// Execute calls fn unless the circuit rejects the call, in which case it
// returns a *util.CircuitOpenError without calling fn. The outcome of fn
// is recorded, including cancellations of calls that already started.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	generation, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)
	cb.record(generation, cb.isSuccessful(err))
	return err
}

// admit decides whether a call may proceed and returns the generation it
// was admitted in.
func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	allowed := false

	switch cb.state {
	case StateClosed:
		allowed = true

	case StateOpen:
		if cb.config.Now().Sub(cb.openedAt) >= cb.config.Timeout {
			cb.transitionTo(StateHalfOpen)
			cb.halfOpenAdmitted = 1
			allowed = true
		}

	case StateHalfOpen:
		if cb.halfOpenAdmitted < cb.config.HalfOpenMax {
			cb.halfOpenAdmitted++
			allowed = true
		}
	}

	RecordRequest(cb.name, allowed)
	if !allowed {
		return 0, util.NewCircuitOpenError(cb.name, cb.state.String())
	}
	return cb.generation, nil
}

// record applies the outcome of a call admitted in generation.
func (cb *CircuitBreaker) record(generation uint64, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if generation != cb.generation {
		cb.logger.Debug("dropping stale circuit breaker outcome",
			zap.String("name", cb.name),
			zap.Uint64("generation", generation),
			zap.Uint64("current", cb.generation),
		)
		return
	}

	if success {
		RecordSuccess(cb.name)
		cb.onSuccess()
		return
	}

	RecordFailure(cb.name)
	cb.lastFailure = cb.config.Now()
	cb.onFailure()
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateClosed:
		cb.consecutiveFails = 0
		cb.window.add(false)
	case StateHalfOpen:
		cb.halfOpenSucceeded++
		if cb.halfOpenSucceeded >= cb.config.HalfOpenMax {
			cb.transitionTo(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) onFailure() {
	switch cb.state {
	case StateClosed:
		cb.consecutiveFails++
		cb.window.add(true)
		if cb.shouldOpen() {
			cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		cb.transitionTo(StateOpen)
	}
}

// shouldOpen determines if the circuit should open.
func (cb *CircuitBreaker) shouldOpen() bool {
	if cb.consecutiveFails >= cb.config.MaxFailures {
		return true
	}

	total, failures := cb.window.counts()
	if total < cb.config.MinRequests {
		return false
	}
	return float64(failures)/float64(total) >= cb.config.FailureRatio
}

// transitionTo moves to newState and starts a new generation.
// Must be called with cb.mu held.
func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := cb.state
	now := cb.config.Now()

	cb.state = newState
	cb.generation++
	cb.lastStateChange = now
	cb.resetCounters()

	if newState == StateOpen {
		cb.openedAt = now
	}

	RecordStateChange(cb.name, oldState, newState)

	cb.logger.Info("circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()),
	)

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(cb.name, oldState, newState)
	}
}

func (cb *CircuitBreaker) resetCounters() {
	cb.window.reset()
	cb.consecutiveFails = 0
	cb.halfOpenAdmitted = 0
	cb.halfOpenSucceeded = 0
}

func (cb *CircuitBreaker) isSuccessful(err error) bool {
	if cb.config.IsSuccessful != nil {
		return cb.config.IsSuccessful(err)
	}
	return err == nil
}

// State returns the current state. An open circuit whose timeout has
// elapsed still reports open until the next call arrives.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the circuit closed and clears its statistics.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateClosed {
		cb.transitionTo(StateClosed)
		return
	}
	cb.generation++
	cb.resetCounters()
	cb.lastStateChange = cb.config.Now()
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Stats returns the current statistics of the circuit breaker.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	total, failures := cb.window.counts()
	return Stats{
		State:            cb.state,
		Failures:         failures,
		Successes:        total - failures,
		ConsecutiveFails: cb.consecutiveFails,
		TotalRequests:    total,
		Generation:       cb.generation,
		LastFailure:      cb.lastFailure,
		LastStateChange:  cb.lastStateChange,
	}
}

// Stats holds circuit breaker statistics. Counts cover the sliding
// window of the closed state.
type Stats struct {
	State            State
	Failures         int
	Successes        int
	ConsecutiveFails int
	TotalRequests    int
	Generation       uint64
	LastFailure      time.Time
	LastStateChange  time.Time
}

// FailureRatio returns the current failure ratio.
func (s Stats) FailureRatio() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.TotalRequests)
}

// outcomeWindow is a count-based ring of the most recent outcomes.
type outcomeWindow struct {
	failed   []bool
	next     int
	size     int
	failures int
}

func newOutcomeWindow(capacity int) *outcomeWindow {
	return &outcomeWindow{failed: make([]bool, capacity)}
}

func (w *outcomeWindow) add(failed bool) {
	if w.size == len(w.failed) {
		if w.failed[w.next] {
			w.failures--
		}
	} else {
		w.size++
	}

	w.failed[w.next] = failed
	if failed {
		w.failures++
	}
	w.next = (w.next + 1) % len(w.failed)
}

func (w *outcomeWindow) counts() (total, failures int) {
	return w.size, w.failures
}

func (w *outcomeWindow) reset() {
	for i := range w.failed {
		w.failed[i] = false
	}
	w.next = 0
	w.size = 0
	w.failures = 0
}
