package filter

import (
	"context"

	"github.com/vyrodovalexey/edgerouter/internal/proxy"
)

// PreFilter runs before dispatch. Returning an error stops the pipeline.
type PreFilter interface {
	Name() string
	Pre(ctx context.Context, ex *Exchange) error
}

// PostFilter runs after the response is known, whatever produced it.
type PostFilter interface {
	Name() string
	Post(ctx context.Context, ex *Exchange)
}

// DispatchFunc sends the exchange's request to its backend.
type DispatchFunc func(ctx context.Context, ex *Exchange) (*proxy.Response, error)

// Decorator wraps a DispatchFunc.
type Decorator func(next DispatchFunc) DispatchFunc

// ErrorRenderer turns a pipeline error into a client response.
type ErrorRenderer func(ctx context.Context, ex *Exchange, err error) *proxy.Response

// Chain is a compiled route filter chain. It is immutable and safe for
// concurrent use.
type Chain struct {
	admission []PreFilter
	pre       []PreFilter
	post      []PostFilter

	// decorators are applied innermost first.
	decorators []Decorator
	render     ErrorRenderer
}

// Run executes the chain. Admission filters run first, then pre filters
// in declared order, then the decorated dispatch. Post filters run exactly
// once, after a rejection, a failure, a fallback or a dispatch, and always
// see a response.
func (c *Chain) Run(ctx context.Context, ex *Exchange, dispatch DispatchFunc) (err error) {
	defer func() {
		if err != nil {
			ex.Err = err
			if ex.Outcome == "" || ex.Outcome == OutcomeDispatched {
				ex.Outcome = OutcomeFailed
			}
			ex.Response = c.render(ctx, ex, err)
		} else if ex.Outcome == "" {
			ex.Outcome = OutcomeDispatched
		}
		c.runPost(ctx, ex)
	}()

	for _, f := range c.admission {
		if err := f.Pre(ctx, ex); err != nil {
			return err
		}
	}
	for _, f := range c.pre {
		if err := f.Pre(ctx, ex); err != nil {
			return err
		}
	}

	resp, err := c.decorate(dispatch)(ctx, ex)
	if err != nil {
		return err
	}
	ex.Response = resp
	return nil
}

func (c *Chain) decorate(dispatch DispatchFunc) DispatchFunc {
	d := dispatch
	for _, dec := range c.decorators {
		d = dec(d)
	}
	return d
}

func (c *Chain) runPost(ctx context.Context, ex *Exchange) {
	if ex.Response == nil {
		ex.Response = proxy.NewResponse(0, "", nil)
	}
	if ex.Response.Header == nil {
		ex.Response.Header = make(map[string][]string)
	}
	for _, f := range c.post {
		f.Post(ctx, ex)
	}
}

// Names returns the filter names in execution order, for logging.
func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.admission)+len(c.pre)+len(c.post))
	for _, f := range c.admission {
		names = append(names, f.Name())
	}
	for _, f := range c.pre {
		names = append(names, f.Name())
	}
	for _, f := range c.post {
		names = append(names, f.Name())
	}
	return names
}
