package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	consulapi "github.com/hashicorp/consul/api"
)

// ConsulConfig configures a ConsulSource.
type ConsulConfig struct {
	Address    string
	Scheme     string
	Datacenter string
	Token      string

	// Tag, when set, restricts instances to those carrying it.
	Tag string

	// InstanceScheme is the scheme of instance URLs. Defaults to http.
	InstanceScheme string
}

// ConsulSource lists passing instances from the Consul health API.
type ConsulSource struct {
	client         *consulapi.Client
	datacenter     string
	tag            string
	instanceScheme string
}

// NewConsulSource creates a ConsulSource. No request is made until the
// first lookup.
func NewConsulSource(cfg ConsulConfig) (*ConsulSource, error) {
	consulCfg := consulapi.DefaultConfig()
	if cfg.Address != "" {
		consulCfg.Address = cfg.Address
	}
	if cfg.Scheme != "" {
		consulCfg.Scheme = cfg.Scheme
	}
	consulCfg.Datacenter = cfg.Datacenter
	if cfg.Token != "" {
		consulCfg.Token = cfg.Token
	}

	client, err := consulapi.NewClient(consulCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}

	scheme := cfg.InstanceScheme
	if scheme == "" {
		scheme = "http"
	}

	return &ConsulSource{
		client:         client,
		datacenter:     cfg.Datacenter,
		tag:            cfg.Tag,
		instanceScheme: scheme,
	}, nil
}

// Instances implements Source. Consul service names are matched in lower
// case.
func (s *ConsulSource) Instances(ctx context.Context, service string) ([]Instance, error) {
	name := strings.ToLower(normalizeService(service))
	opts := (&consulapi.QueryOptions{Datacenter: s.datacenter}).WithContext(ctx)

	entries, _, err := s.client.Health().Service(name, s.tag, true, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to discover %s in Consul: %w", name, err)
	}

	instances := make([]Instance, 0, len(entries))
	for _, entry := range entries {
		if entry.Service == nil {
			continue
		}
		addr := entry.Service.Address
		if addr == "" && entry.Node != nil {
			addr = entry.Node.Address
		}
		if addr == "" {
			continue
		}
		instances = append(instances, Instance{
			ID:      entry.Service.ID,
			Service: normalizeService(service),
			URL:     s.instanceScheme + "://" + net.JoinHostPort(addr, strconv.Itoa(entry.Service.Port)),
			Tags:    entry.Service.Tags,
		})
	}
	return instances, nil
}

// Ping checks that the Consul agent answers.
func (s *ConsulSource) Ping(_ context.Context) error {
	if _, err := s.client.Status().Leader(); err != nil {
		return fmt.Errorf("consul unavailable: %w", err)
	}
	return nil
}
