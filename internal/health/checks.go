package health

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/edgerouter/internal/circuitbreaker"
)

// DependencyType represents the type of dependency.
type DependencyType string

const (
	// DependencyTypeRedis represents a Redis dependency.
	DependencyTypeRedis DependencyType = "redis"
	// DependencyTypeDiscovery represents a service registry dependency.
	DependencyTypeDiscovery DependencyType = "discovery"
	// DependencyTypeBreakers represents the circuit breaker set.
	DependencyTypeBreakers DependencyType = "circuit_breakers"
	// DependencyTypeCustom represents a custom dependency.
	DependencyTypeCustom DependencyType = "custom"
)

// Pinger is anything that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DependencyCheck checks one external dependency.
type DependencyCheck struct {
	name     string
	depType  DependencyType
	check    func(ctx context.Context) error
	critical bool
}

// DependencyCheckOption configures a DependencyCheck.
type DependencyCheckOption func(*DependencyCheck)

// WithCritical marks the dependency as critical. A failing critical
// dependency makes readiness unhealthy instead of degraded.
func WithCritical(critical bool) DependencyCheckOption {
	return func(d *DependencyCheck) {
		d.critical = critical
	}
}

// NewDependencyCheck creates a dependency check.
func NewDependencyCheck(
	name string,
	depType DependencyType,
	check func(ctx context.Context) error,
	opts ...DependencyCheckOption,
) *DependencyCheck {
	d := &DependencyCheck{
		name:    name,
		depType: depType,
		check:   check,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the check name.
func (d *DependencyCheck) Name() string {
	return d.name
}

// Type returns the dependency type.
func (d *DependencyCheck) Type() DependencyType {
	return d.depType
}

// IsCritical reports whether the dependency is critical.
func (d *DependencyCheck) IsCritical() bool {
	return d.critical
}

// Check runs the check.
func (d *DependencyCheck) Check(ctx context.Context) error {
	if d.check == nil {
		return nil
	}
	return d.check(ctx)
}

// CheckFunc adapts the dependency check for Checker.RegisterCheck.
func (d *DependencyCheck) CheckFunc() CheckFunc {
	return func(ctx context.Context) Check {
		start := time.Now()
		err := d.Check(ctx)
		result := Check{
			Status:   StatusHealthy,
			Duration: time.Since(start).Round(time.Microsecond).String(),
		}
		if err != nil {
			result.Status = StatusDegraded
			if d.critical {
				result.Status = StatusUnhealthy
			}
			result.Message = err.Error()
		}
		return result
	}
}

// RedisHealthCheck checks a Redis connection with PING.
func RedisHealthCheck(name string, client redis.UniversalClient, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck(name, DependencyTypeRedis, func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		return nil
	}, opts...)
}

// PingHealthCheck checks any Pinger.
func PingHealthCheck(name string, depType DependencyType, p Pinger, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck(name, depType, p.Ping, opts...)
}

// BreakerStatsFunc returns breaker statistics by name.
type BreakerStatsFunc func() map[string]circuitbreaker.Stats

// BreakerHealthCheck fails while any circuit breaker is open. It is never
// critical: an open breaker is served by its fallback.
func BreakerHealthCheck(name string, stats BreakerStatsFunc) *DependencyCheck {
	return NewDependencyCheck(name, DependencyTypeBreakers, func(context.Context) error {
		var open []string
		for breaker, s := range stats() {
			if s.State == circuitbreaker.StateOpen {
				open = append(open, breaker)
			}
		}
		if len(open) == 0 {
			return nil
		}
		sort.Strings(open)
		return fmt.Errorf("open circuit breakers: %s", strings.Join(open, ", "))
	}, WithCritical(false))
}
