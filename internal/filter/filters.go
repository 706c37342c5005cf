package filter

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/vyrodovalexey/edgerouter/internal/correlation"
)

// captureRef matches ${name} references in a replacement.
var captureRef = regexp.MustCompile(`\$\{(\w+)\}`)

// rewritePathFilter replaces the outbound path.
type rewritePathFilter struct {
	re          *regexp.Regexp
	replacement string
}

func newRewritePathFilter(s *RewritePathSpec) (*rewritePathFilter, error) {
	f := &rewritePathFilter{replacement: s.Replacement}
	if s.Regexp == "" {
		return f, nil
	}
	re, err := regexp.Compile(s.Regexp)
	if err != nil {
		return nil, fmt.Errorf("invalid rewrite regexp %q: %w", s.Regexp, err)
	}
	f.re = re
	return f, nil
}

func (f *rewritePathFilter) Name() string { return string(KindRewritePath) }

func (f *rewritePathFilter) Pre(_ context.Context, ex *Exchange) error {
	if f.re == nil {
		ex.Request.Path = expandCaptures(f.replacement, ex.Captures)
		return nil
	}
	ex.Request.Path = f.re.ReplaceAllString(ex.Request.Path, f.replacement)
	if ex.Request.Path == "" {
		ex.Request.Path = "/"
	}
	return nil
}

// expandCaptures substitutes ${name} with route captures. Unknown names
// expand to the empty string.
func expandCaptures(template string, captures map[string]string) string {
	out := captureRef.ReplaceAllStringFunc(template, func(ref string) string {
		name := captureRef.FindStringSubmatch(ref)[1]
		return captures[name]
	})
	if out == "" {
		return "/"
	}
	return out
}

// addRequestHeaderFilter sets a header on the outbound request.
type addRequestHeaderFilter struct {
	name  string
	value string
}

func (f *addRequestHeaderFilter) Name() string { return string(KindAddRequestHeader) }

func (f *addRequestHeaderFilter) Pre(_ context.Context, ex *Exchange) error {
	ex.Request.Header.Set(f.name, f.value)
	return nil
}

// addResponseHeaderFilter sets a header on the client response.
type addResponseHeaderFilter struct {
	name     string
	value    string
	producer Producer
	now      func() time.Time
}

func (f *addResponseHeaderFilter) Name() string { return string(KindAddResponseHeader) }

func (f *addResponseHeaderFilter) Post(_ context.Context, ex *Exchange) {
	var value string
	switch f.producer {
	case ProducerTimestamp:
		value = f.now().Format(time.RFC3339Nano)
	case ProducerDuration:
		value = f.now().Sub(ex.Start).String()
	default:
		value = f.value
	}
	ex.Response.Header.Set(f.name, value)
}

// correlationFilter carries the correlation id to the backend and back to
// the client.
type correlationFilter struct {
	tracer *correlation.Tracer
}

func (f *correlationFilter) Name() string { return "correlation" }

func (f *correlationFilter) Pre(_ context.Context, ex *Exchange) error {
	f.tracer.Propagate(ex.Request.Header, ex.Correlation)
	return nil
}

func (f *correlationFilter) Post(_ context.Context, ex *Exchange) {
	f.tracer.Echo(ex.Response.Header, ex.Correlation)
}
