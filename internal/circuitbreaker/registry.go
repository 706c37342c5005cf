package circuitbreaker

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry manages breakers by name. Breakers survive configuration
// reloads as long as their name is unchanged.
type Registry struct {
	breakers sync.Map
	config   *Config
	logger   *zap.Logger
}

// NewRegistry creates a new circuit breaker registry.
func NewRegistry(config *Config, logger *zap.Logger) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		config: config,
		logger: logger,
	}
}

// Get returns a circuit breaker by name, or nil if not found.
func (r *Registry) Get(name string) *CircuitBreaker {
	value, ok := r.breakers.Load(name)
	if !ok {
		return nil
	}
	return value.(*CircuitBreaker)
}

// GetOrCreate returns an existing circuit breaker or creates one with the
// registry's default configuration.
func (r *Registry) GetOrCreate(name string) *CircuitBreaker {
	return r.GetOrCreateWithConfig(name, r.config)
}

// GetOrCreateWithConfig returns the circuit breaker registered under name.
// When none exists, or the existing one was built with different
// thresholds, a new closed breaker is created from config and replaces it.
func (r *Registry) GetOrCreateWithConfig(name string, config *Config) *CircuitBreaker {
	if config == nil {
		config = r.config
	}

	if value, ok := r.breakers.Load(name); ok {
		existing := value.(*CircuitBreaker)
		if existing.config.sameThresholds(config) {
			return existing
		}

		cb := NewCircuitBreaker(name, config, r.logger)
		if r.breakers.CompareAndSwap(name, existing, cb) {
			r.logger.Info("reconfigured circuit breaker", zap.String("name", name))
			return cb
		}
		return r.GetOrCreateWithConfig(name, config)
	}

	cb := NewCircuitBreaker(name, config, r.logger)

	actual, loaded := r.breakers.LoadOrStore(name, cb)
	if loaded {
		return actual.(*CircuitBreaker)
	}

	r.logger.Debug("created circuit breaker", zap.String("name", name))
	return cb
}

// Remove removes a circuit breaker from the registry.
func (r *Registry) Remove(name string) {
	r.breakers.Delete(name)
}

// Names returns the sorted names of all breakers.
func (r *Registry) Names() []string {
	var names []string
	r.breakers.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Retain drops every breaker whose name is not in keep.
func (r *Registry) Retain(keep map[string]struct{}) {
	r.breakers.Range(func(key, _ any) bool {
		if _, ok := keep[key.(string)]; !ok {
			r.breakers.Delete(key)
			r.logger.Debug("removed circuit breaker", zap.String("name", key.(string)))
		}
		return true
	})
}

// ResetAll resets all circuit breakers to closed state.
func (r *Registry) ResetAll() {
	r.breakers.Range(func(_, value any) bool {
		value.(*CircuitBreaker).Reset()
		return true
	})
	r.logger.Info("reset all circuit breakers")
}

// Stats returns statistics for all circuit breakers.
func (r *Registry) Stats() map[string]Stats {
	stats := make(map[string]Stats)
	r.breakers.Range(func(key, value any) bool {
		stats[key.(string)] = value.(*CircuitBreaker).Stats()
		return true
	})
	return stats
}

// Count returns the number of circuit breakers in the registry.
func (r *Registry) Count() int {
	count := 0
	r.breakers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}
