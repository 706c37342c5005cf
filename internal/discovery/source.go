// Package discovery resolves logical service names to backend base URLs.
//
// A Source lists the instances of a service. StaticSource reads them from
// configuration, ConsulSource asks the Consul health API for passing
// instances, and CachedSource puts a TTL cache in front of either one.
// Resolver picks one instance per call and implements proxy.Resolver.
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Instance is one reachable instance of a service.
type Instance struct {
	ID      string
	Service string

	// URL is the base URL requests are sent to, without a trailing slash.
	URL string

	Tags []string
}

// Source lists the instances of a service. An empty list with a nil error
// means the service is known but has no instance available.
type Source interface {
	Instances(ctx context.Context, service string) ([]Instance, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, service string) ([]Instance, error)

// Instances implements Source.
func (f SourceFunc) Instances(ctx context.Context, service string) ([]Instance, error) {
	return f(ctx, service)
}

// StaticSource serves a fixed service table. Lookups are case-insensitive.
type StaticSource struct {
	mu       sync.RWMutex
	services map[string][]Instance
}

// NewStaticSource builds a StaticSource from service name to base URLs.
func NewStaticSource(services map[string][]string) (*StaticSource, error) {
	s := &StaticSource{}
	if err := s.Update(services); err != nil {
		return nil, err
	}
	return s, nil
}

// Update replaces the service table.
func (s *StaticSource) Update(services map[string][]string) error {
	table := make(map[string][]Instance, len(services))
	for name, urls := range services {
		key := normalizeService(name)
		instances := make([]Instance, 0, len(urls))
		for i, raw := range urls {
			base, err := normalizeURL(raw)
			if err != nil {
				return fmt.Errorf("service %s instance %d: %w", name, i, err)
			}
			instances = append(instances, Instance{
				ID:      fmt.Sprintf("%s-%d", key, i),
				Service: key,
				URL:     base,
			})
		}
		table[key] = instances
	}

	s.mu.Lock()
	s.services = table
	s.mu.Unlock()
	return nil
}

// Instances implements Source. An unknown service is an error.
func (s *StaticSource) Instances(_ context.Context, service string) ([]Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instances, ok := s.services[normalizeService(service)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	out := make([]Instance, len(instances))
	copy(out, instances)
	return out, nil
}

// Services returns the configured service names, sorted.
func (s *StaticSource) Services() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.services))
	for name := range s.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// normalizeService strips the lb:// scheme and upper-cases the name.
func normalizeService(service string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(service), "lb://"))
}

func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme in %q", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}
