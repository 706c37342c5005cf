package filter

import (
	"net/http"
	"time"

	"github.com/vyrodovalexey/edgerouter/internal/correlation"
	"github.com/vyrodovalexey/edgerouter/internal/proxy"
	"github.com/vyrodovalexey/edgerouter/internal/ratelimit"
)

// Outcome summarizes how a request left the pipeline.
type Outcome string

// Pipeline outcomes.
const (
	OutcomeDispatched   Outcome = "dispatched"
	OutcomeFallback     Outcome = "fallback"
	OutcomeRejected     Outcome = "rejected"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeFailed       Outcome = "failed"
	OutcomeNotFound     Outcome = "not_found"
)

// Exchange is the per-request state shared by the filters of one chain.
// It is owned by a single request goroutine.
type Exchange struct {
	RouteID  string
	Service  string
	Captures map[string]string

	// Inbound is the client request as received.
	Inbound *http.Request

	// Request is the outbound request. Pre filters mutate it.
	Request *proxy.Request

	// Response is set by dispatch, by a fallback or by the error renderer
	// before post filters run.
	Response *proxy.Response

	Correlation correlation.Context
	Start       time.Time

	// Err is the error the pipeline ended with, if any.
	Err     error
	Outcome Outcome

	// RateLimit is the last admission decision, used for response headers.
	RateLimit *ratelimit.Result
}

// NewExchange creates an Exchange for an inbound request.
func NewExchange(inbound *http.Request, req *proxy.Request, c correlation.Context, start time.Time) *Exchange {
	return &Exchange{
		Inbound:     inbound,
		Request:     req,
		Correlation: c,
		Start:       start,
	}
}

// Elapsed returns the processing time so far.
func (ex *Exchange) Elapsed() time.Duration {
	return time.Since(ex.Start)
}
