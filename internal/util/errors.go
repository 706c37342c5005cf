package util

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Common sentinel errors.
var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrDispatchFailure    = errors.New("dispatch failure")
	ErrCircuitOpen        = errors.New("circuit breaker open")
	ErrFallbackFailure    = errors.New("fallback failure")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrConfigInvalid      = errors.New("invalid configuration")
)

// ConfigError represents a configuration-related error.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError with a cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// RouteNotFoundError represents a route not found error.
type RouteNotFoundError struct {
	Path   string
	Method string
}

// Error implements the error interface.
func (e *RouteNotFoundError) Error() string {
	return fmt.Sprintf("no route found for %s %s", e.Method, e.Path)
}

// Is checks if the error matches the target.
func (e *RouteNotFoundError) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	_, ok := target.(*RouteNotFoundError)
	return ok
}

// NewRouteNotFoundError creates a new RouteNotFoundError.
func NewRouteNotFoundError(method, path string) *RouteNotFoundError {
	return &RouteNotFoundError{Path: path, Method: method}
}

// UnauthorizedError is returned by the authorization gate.
type UnauthorizedError struct {
	Path   string
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *UnauthorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("unauthorized request to %s: %s: %v", e.Path, e.Reason, e.Cause)
	}
	return fmt.Sprintf("unauthorized request to %s: %s", e.Path, e.Reason)
}

// Unwrap returns the underlying error.
func (e *UnauthorizedError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *UnauthorizedError) Is(target error) bool {
	if target == ErrUnauthorized {
		return true
	}
	_, ok := target.(*UnauthorizedError)
	return ok || errors.Is(e.Cause, target)
}

// NewUnauthorizedError creates a new UnauthorizedError.
func NewUnauthorizedError(path, reason string, cause error) *UnauthorizedError {
	return &UnauthorizedError{Path: path, Reason: reason, Cause: cause}
}

// RateLimitError represents a rate limit exceeded error.
type RateLimitError struct {
	Key        string
	Limit      int
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q (limit: %d, retry after: %v)", e.Key, e.Limit, e.RetryAfter)
}

// Is checks if the error matches the target.
func (e *RateLimitError) Is(target error) bool {
	if target == ErrRateLimited {
		return true
	}
	_, ok := target.(*RateLimitError)
	return ok
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(key string, limit int, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Key: key, Limit: limit, RetryAfter: retryAfter}
}

// DispatchError represents a failed backend call. StatusCode is non-zero
// when the backend answered with a server error; the body of that answer
// is kept in Body so it can be passed through to the client.
type DispatchError struct {
	Service    string
	Address    string
	StatusCode int
	Header     http.Header
	Body       []byte
	Cause      error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("dispatch to %s failed: %v", e.Service, e.Cause)
	case e.StatusCode != 0:
		return fmt.Sprintf("dispatch to %s failed: backend returned %d", e.Service, e.StatusCode)
	default:
		return fmt.Sprintf("dispatch to %s failed", e.Service)
	}
}

// Unwrap returns the underlying error.
func (e *DispatchError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *DispatchError) Is(target error) bool {
	if target == ErrDispatchFailure {
		return true
	}
	_, ok := target.(*DispatchError)
	return ok || errors.Is(e.Cause, target)
}

// NewDispatchError creates a DispatchError for a transport-level failure.
func NewDispatchError(service, address string, cause error) *DispatchError {
	return &DispatchError{Service: service, Address: address, Cause: cause}
}

// NewDispatchStatusError creates a DispatchError for a backend server error.
func NewDispatchStatusError(service, address string, status int, header http.Header, body []byte) *DispatchError {
	return &DispatchError{Service: service, Address: address, StatusCode: status, Header: header, Body: body}
}

// ServiceUnavailableError is returned by a resolver that has no healthy
// instance for a service.
type ServiceUnavailableError struct {
	Service string
	Cause   error
}

// Error implements the error interface.
func (e *ServiceUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("service %s unavailable: %v", e.Service, e.Cause)
	}
	return fmt.Sprintf("service %s unavailable", e.Service)
}

// Unwrap returns the underlying error.
func (e *ServiceUnavailableError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ServiceUnavailableError) Is(target error) bool {
	if target == ErrServiceUnavailable {
		return true
	}
	_, ok := target.(*ServiceUnavailableError)
	return ok || errors.Is(e.Cause, target)
}

// NewServiceUnavailableError creates a new ServiceUnavailableError.
func NewServiceUnavailableError(service string, cause error) *ServiceUnavailableError {
	return &ServiceUnavailableError{Service: service, Cause: cause}
}

// CircuitOpenError represents a circuit breaker short-circuit.
type CircuitOpenError struct {
	Name  string
	State string
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %s is %s", e.Name, e.State)
}

// Is checks if the error matches the target.
func (e *CircuitOpenError) Is(target error) bool {
	if target == ErrCircuitOpen {
		return true
	}
	_, ok := target.(*CircuitOpenError)
	return ok
}

// NewCircuitOpenError creates a new CircuitOpenError.
func NewCircuitOpenError(name, state string) *CircuitOpenError {
	return &CircuitOpenError{Name: name, State: state}
}

// FallbackError is returned when the fallback handler cannot produce a
// response.
type FallbackError struct {
	Path  string
	Cause error
}

// Error implements the error interface.
func (e *FallbackError) Error() string {
	return fmt.Sprintf("fallback %s failed: %v", e.Path, e.Cause)
}

// Unwrap returns the underlying error.
func (e *FallbackError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *FallbackError) Is(target error) bool {
	if target == ErrFallbackFailure {
		return true
	}
	_, ok := target.(*FallbackError)
	return ok
}

// NewFallbackError creates a new FallbackError.
func NewFallbackError(path string, cause error) *FallbackError {
	return &FallbackError{Path: path, Cause: cause}
}

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsClientError returns true if the error is caused by the client (4xx).
func IsClientError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrRateLimited)
}

// IsServerError returns true if the error maps to a 5xx response.
func IsServerError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrDispatchFailure) ||
		errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, ErrFallbackFailure) ||
		errors.Is(err, ErrServiceUnavailable)
}
