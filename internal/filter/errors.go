package filter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/vyrodovalexey/edgerouter/internal/proxy"
	"github.com/vyrodovalexey/edgerouter/internal/util"
)

// ErrorBody is the JSON body of a gateway error response.
type ErrorBody struct {
	Timestamp     string `json:"timestamp"`
	Status        int    `json:"status"`
	Error         string `json:"error"`
	Message       string `json:"message"`
	Path          string `json:"path"`
	CorrelationID string `json:"correlationId"`
}

// StatusFor maps a pipeline error to a client status code.
func StatusFor(err error) int {
	var de *util.DispatchError
	switch {
	case errors.Is(err, util.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, util.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, util.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, util.ErrFallbackFailure), errors.Is(err, util.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.As(err, &de):
		if de.StatusCode != 0 {
			return de.StatusCode
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.Is(err, util.ErrServiceUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// RenderError is the default ErrorRenderer. A backend server error is
// passed through with its own status, headers and body; every other error
// becomes a JSON body carrying the correlation id.
func RenderError(_ context.Context, ex *Exchange, err error) *proxy.Response {
	var de *util.DispatchError
	if errors.As(err, &de) && de.StatusCode != 0 {
		h := de.Header.Clone()
		if h == nil {
			h = http.Header{}
		}
		return &proxy.Response{StatusCode: de.StatusCode, Header: h, Body: de.Body}
	}

	status := StatusFor(err)
	path := ""
	if ex.Inbound != nil {
		path = ex.Inbound.URL.Path
	}

	resp := JSONError(status, errorMessage(status, err), path, ex.Correlation.ID)

	var rle *util.RateLimitError
	if errors.As(err, &rle) {
		resp.Header.Set("Retry-After", retryAfterSeconds(rle.RetryAfter))
		resp.Header.Set("X-RateLimit-Limit", strconv.Itoa(rle.Limit))
	}
	if status == http.StatusUnauthorized {
		resp.Header.Set("WWW-Authenticate", "Bearer")
	}
	return resp
}

// JSONError builds a JSON error response.
func JSONError(status int, message, path, correlationID string) *proxy.Response {
	body, _ := json.Marshal(ErrorBody{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Status:        status,
		Error:         http.StatusText(status),
		Message:       message,
		Path:          path,
		CorrelationID: correlationID,
	})
	return proxy.NewResponse(status, "application/json", body)
}

// errorMessage keeps backend and internal details out of client
// responses.
func errorMessage(status int, err error) string {
	switch status {
	case http.StatusNotFound, http.StatusUnauthorized, http.StatusTooManyRequests:
		return err.Error()
	case http.StatusServiceUnavailable:
		return "service temporarily unavailable, please try again later"
	case http.StatusGatewayTimeout:
		return "backend did not respond in time"
	case http.StatusBadGateway:
		return "backend unavailable"
	default:
		return "internal gateway error"
	}
}
