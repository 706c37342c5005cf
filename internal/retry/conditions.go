package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"

	"github.com/vyrodovalexey/edgerouter/internal/util"
)

// Condition decides whether an error is worth another attempt.
type Condition interface {
	ShouldRetry(err error) bool
}

// ConditionFunc adapts a function to Condition.
type ConditionFunc func(err error) bool

// ShouldRetry implements Condition.
func (f ConditionFunc) ShouldRetry(err error) bool {
	return f(err)
}

// backendStatus returns the status code of a backend server error.
func backendStatus(err error) (int, bool) {
	var de *util.DispatchError
	if errors.As(err, &de) && de.StatusCode != 0 {
		return de.StatusCode, true
	}
	return 0, false
}

// StatusCodeCondition retries backend answers with specific status codes.
type StatusCodeCondition struct {
	codes map[int]bool
}

// RetryOnStatusCodes creates a condition that retries on specific status
// codes.
func RetryOnStatusCodes(statusCodes ...int) *StatusCodeCondition {
	codeMap := make(map[int]bool, len(statusCodes))
	for _, code := range statusCodes {
		codeMap[code] = true
	}
	return &StatusCodeCondition{codes: codeMap}
}

// ShouldRetry implements Condition.
func (c *StatusCodeCondition) ShouldRetry(err error) bool {
	status, ok := backendStatus(err)
	return ok && c.codes[status]
}

// Retry5xxCondition retries every backend server error.
type Retry5xxCondition struct{}

// RetryOn5xx creates a condition that retries on 5xx status codes.
func RetryOn5xx() *Retry5xxCondition {
	return &Retry5xxCondition{}
}

// ShouldRetry implements Condition.
func (c *Retry5xxCondition) ShouldRetry(err error) bool {
	status, ok := backendStatus(err)
	return ok && status >= 500 && status < 600
}

// TransportErrorCondition retries failures that produced no backend
// answer: resolution failures, refused or reset connections, timeouts.
type TransportErrorCondition struct{}

// RetryOnTransportErrors creates a TransportErrorCondition.
func RetryOnTransportErrors() *TransportErrorCondition {
	return &TransportErrorCondition{}
}

// ShouldRetry implements Condition.
func (c *TransportErrorCondition) ShouldRetry(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if _, ok := backendStatus(err); ok {
		return false
	}

	if errors.Is(err, util.ErrServiceUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, util.ErrDispatchFailure)
}

// RetryOnErrors creates a condition that retries errors matching any of
// errs.
func RetryOnErrors(errs ...error) Condition {
	return ConditionFunc(func(err error) bool {
		for _, target := range errs {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	})
}

// NeverRetry creates a condition that never retries.
func NeverRetry() Condition {
	return ConditionFunc(func(error) bool { return false })
}
