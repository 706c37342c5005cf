package router

import (
	"fmt"

	"github.com/vyrodovalexey/edgerouter/internal/filter"
	"github.com/vyrodovalexey/edgerouter/internal/util"
)

// Route declares one route.
type Route struct {
	ID      string
	Pattern string
	Methods []string
	Service string
	Filters []filter.Spec
}

// CompiledRoute is a route with its matchers built.
type CompiledRoute struct {
	Route
	pattern *Pattern
	methods *MethodMatcher
}

// MatchResult contains the result of a route match.
type MatchResult struct {
	Route    *CompiledRoute
	Captures map[string]string
}

// RouteTable is an immutable, ordered route list. The first route whose
// pattern and methods match wins; routes are never reordered.
type RouteTable struct {
	routes []*CompiledRoute
	byID   map[string]*CompiledRoute
}

// New compiles routes in the given order.
func New(routes ...Route) (*RouteTable, error) {
	t := &RouteTable{
		routes: make([]*CompiledRoute, 0, len(routes)),
		byID:   make(map[string]*CompiledRoute, len(routes)),
	}

	for _, r := range routes {
		if r.ID == "" {
			return nil, fmt.Errorf("route for %q has no id", r.Pattern)
		}
		if _, exists := t.byID[r.ID]; exists {
			return nil, fmt.Errorf("duplicate route id: %s", r.ID)
		}

		pattern, err := CompilePattern(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to compile route %s: %w", r.ID, err)
		}

		compiled := &CompiledRoute{
			Route:   r,
			pattern: pattern,
			methods: NewMethodMatcher(r.Methods),
		}
		t.routes = append(t.routes, compiled)
		t.byID[r.ID] = compiled
	}

	return t, nil
}

// Match returns the first route matching method and path.
func (t *RouteTable) Match(method, path string) (*MatchResult, error) {
	for _, route := range t.routes {
		if !route.methods.Match(method) {
			continue
		}
		captures, ok := route.pattern.Match(path)
		if !ok {
			continue
		}
		getRouterMetrics().matches.WithLabelValues(route.ID).Inc()
		return &MatchResult{Route: route, Captures: captures}, nil
	}

	getRouterMetrics().notFound.Inc()
	return nil, util.NewRouteNotFoundError(method, path)
}

// Get returns a route by id.
func (t *RouteTable) Get(id string) (*CompiledRoute, bool) {
	r, ok := t.byID[id]
	return r, ok
}

// Routes returns the routes in registration order.
func (t *RouteTable) Routes() []*CompiledRoute {
	routes := make([]*CompiledRoute, len(t.routes))
	copy(routes, t.routes)
	return routes
}

// Len returns the number of routes.
func (t *RouteTable) Len() int {
	return len(t.routes)
}
