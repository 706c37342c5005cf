package gateway

import (
	"fmt"

	"github.com/vyrodovalexey/edgerouter/internal/config"
	"github.com/vyrodovalexey/edgerouter/internal/correlation"
	"github.com/vyrodovalexey/edgerouter/internal/filter"
	"github.com/vyrodovalexey/edgerouter/internal/router"
)

// snapshot is one compiled configuration. It is never mutated after
// compile returns.
type snapshot struct {
	table     *router.RouteTable
	chains    map[string]*filter.Chain
	tracer    *correlation.Tracer
	fallbacks *Fallbacks
	maxBody   int64

	// breakers and limiters name the registry entries the chains use.
	breakers map[string]struct{}
	limiters map[string]bool
}

// compile builds the route table and one filter chain per route. The
// factory must use tracer and fallbacks.
func compile(cfg *config.GatewayConfig, factory *filter.Factory, tracer *correlation.Tracer, fallbacks *Fallbacks) (*snapshot, error) {
	routes := make([]router.Route, 0, len(cfg.Routes))
	for _, rc := range cfg.Routes {
		specs, err := filter.SpecsFromRoute(rc)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", rc.ID, err)
		}
		routes = append(routes, router.Route{
			ID:      rc.ID,
			Pattern: rc.Path,
			Methods: rc.Methods,
			Service: rc.Service,
			Filters: specs,
		})
	}

	table, err := router.New(routes...)
	if err != nil {
		return nil, err
	}

	s := &snapshot{
		table:     table,
		chains:    make(map[string]*filter.Chain, len(routes)),
		tracer:    tracer,
		fallbacks: fallbacks,
		maxBody:   cfg.Server.MaxBodyBytes,
		breakers:  make(map[string]struct{}),
		limiters:  make(map[string]bool),
	}

	for _, r := range routes {
		chain, err := factory.Build(r.ID, r.Filters)
		if err != nil {
			return nil, err
		}
		s.chains[r.ID] = chain

		for _, spec := range r.Filters {
			switch spec.Kind {
			case filter.KindCircuitBreaker:
				name := spec.CircuitBreaker.Name
				if name == "" {
					name = r.ID
				}
				s.breakers[name] = struct{}{}
			case filter.KindRateLimit:
				s.limiters[r.ID] = true
			}
		}
	}

	return s, nil
}

// RouteInfo describes a compiled route for the admin endpoint.
type RouteInfo struct {
	ID      string   `json:"id"`
	Pattern string   `json:"pattern"`
	Methods []string `json:"methods,omitempty"`
	Service string   `json:"service"`
	Filters []string `json:"filters"`
}

func (s *snapshot) describe() []RouteInfo {
	compiled := s.table.Routes()
	infos := make([]RouteInfo, 0, len(compiled))
	for _, r := range compiled {
		var names []string
		if chain, ok := s.chains[r.ID]; ok {
			names = chain.Names()
		}
		infos = append(infos, RouteInfo{
			ID:      r.ID,
			Pattern: r.Pattern,
			Methods: r.Methods,
			Service: r.Service,
			Filters: names,
		})
	}
	return infos
}
