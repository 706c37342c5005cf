package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/edgerouter/internal/config"
	"github.com/vyrodovalexey/edgerouter/internal/filter"
	"github.com/vyrodovalexey/edgerouter/internal/proxy"
)

// Fallbacks serves the local fallback endpoints. Breakers invoke them
// in-process; clients reach them with GET or HEAD. It is immutable.
type Fallbacks struct {
	endpoints map[string]config.FallbackConfig
}

var _ filter.FallbackInvoker = (*Fallbacks)(nil)

// NewFallbacks creates the fallback registry.
func NewFallbacks(cfgs []config.FallbackConfig) *Fallbacks {
	endpoints := make(map[string]config.FallbackConfig, len(cfgs))
	for _, c := range cfgs {
		endpoints[c.Path] = c
	}
	return &Fallbacks{endpoints: endpoints}
}

// Lookup returns the response of the endpoint at path.
func (f *Fallbacks) Lookup(path string) (*proxy.Response, bool) {
	c, ok := f.endpoints[path]
	if !ok {
		return nil, false
	}
	status := c.Status
	if status == 0 {
		status = http.StatusOK
	}
	return proxy.NewResponse(status, c.ContentType, []byte(c.Body)), true
}

// Invoke implements filter.FallbackInvoker.
func (f *Fallbacks) Invoke(_ context.Context, path string, _ *filter.Exchange) (*proxy.Response, error) {
	resp, ok := f.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFallback, path)
	}
	return resp, nil
}

// Len returns the number of endpoints.
func (f *Fallbacks) Len() int {
	return len(f.endpoints)
}
