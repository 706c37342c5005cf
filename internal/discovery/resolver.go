package discovery

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vyrodovalexey/edgerouter/internal/observability"
	"github.com/vyrodovalexey/edgerouter/internal/util"
)

// ErrUnknownService indicates a service name no source knows about.
var ErrUnknownService = errors.New("unknown service")

// Balancer picks one instance out of a non-empty list.
type Balancer interface {
	Pick(service string, instances []Instance) Instance
}

// RoundRobinBalancer cycles through instances, with one counter per
// service.
type RoundRobinBalancer struct {
	counters sync.Map
}

// NewRoundRobinBalancer creates a RoundRobinBalancer.
func NewRoundRobinBalancer() *RoundRobinBalancer {
	return &RoundRobinBalancer{}
}

// Pick implements Balancer.
func (b *RoundRobinBalancer) Pick(service string, instances []Instance) Instance {
	v, _ := b.counters.LoadOrStore(service, new(atomic.Uint64))
	idx := v.(*atomic.Uint64).Add(1) - 1
	return instances[idx%uint64(len(instances))]
}

// RandomBalancer picks a uniformly random instance.
type RandomBalancer struct{}

// Pick implements Balancer.
func (RandomBalancer) Pick(_ string, instances []Instance) Instance {
	return instances[secureRandomInt(len(instances))]
}

func secureRandomInt(n int) int {
	if n <= 1 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return int(binary.BigEndian.Uint64(b[:]) % uint64(n))
}

// Resolver maps a service name to the base URL of one of its instances.
// Absolute http and https URLs are returned unchanged.
type Resolver struct {
	source   Source
	balancer Balancer
	logger   observability.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithBalancer replaces the round-robin balancer.
func WithBalancer(b Balancer) ResolverOption {
	return func(r *Resolver) {
		r.balancer = b
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a Resolver over source.
func NewResolver(source Source, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		source:   source,
		balancer: NewRoundRobinBalancer(),
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve implements proxy.Resolver. Failures are
// *util.ServiceUnavailableError.
func (r *Resolver) Resolve(ctx context.Context, service string) (string, error) {
	if strings.HasPrefix(service, "http://") || strings.HasPrefix(service, "https://") {
		return strings.TrimRight(service, "/"), nil
	}

	name := normalizeService(service)
	instances, err := r.source.Instances(ctx, name)
	if err != nil {
		resolutions.WithLabelValues(name, "error").Inc()
		r.logger.WithContext(ctx).Warn("service lookup failed",
			observability.String("service", name),
			observability.Error(err),
		)
		return "", util.NewServiceUnavailableError(name, err)
	}
	if len(instances) == 0 {
		resolutions.WithLabelValues(name, "empty").Inc()
		return "", util.NewServiceUnavailableError(name, nil)
	}

	resolutions.WithLabelValues(name, "success").Inc()
	return r.balancer.Pick(name, instances).URL, nil
}
