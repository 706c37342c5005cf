package util

import (
	"context"
	"time"
)

// Context keys.
type ctxKey string

const (
	ctxKeyStartTime ctxKey = "start_time"
	ctxKeyRouteID   ctxKey = "route_id"
	ctxKeyService   ctxKey = "service"
	ctxKeyCaptures  ctxKey = "captures"
)

// ContextWithStartTime adds the request start time to the context.
func ContextWithStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyStartTime, t)
}

// StartTimeFromContext extracts the request start time from context.
func StartTimeFromContext(ctx context.Context) time.Time {
	if v, ok := ctx.Value(ctxKeyStartTime).(time.Time); ok {
		return v
	}
	return time.Time{}
}

// ContextWithRouteID adds the matched route id to the context.
func ContextWithRouteID(ctx context.Context, routeID string) context.Context {
	return context.WithValue(ctx, ctxKeyRouteID, routeID)
}

// RouteIDFromContext extracts the matched route id from context.
func RouteIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRouteID).(string); ok {
		return v
	}
	return ""
}

// ContextWithService adds the target service name to the context.
func ContextWithService(ctx context.Context, service string) context.Context {
	return context.WithValue(ctx, ctxKeyService, service)
}

// ServiceFromContext extracts the target service name from context.
func ServiceFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyService).(string); ok {
		return v
	}
	return ""
}

// ContextWithCaptures adds the route pattern captures to the context.
func ContextWithCaptures(ctx context.Context, captures map[string]string) context.Context {
	return context.WithValue(ctx, ctxKeyCaptures, captures)
}

// CapturesFromContext extracts the route pattern captures from context.
func CapturesFromContext(ctx context.Context) map[string]string {
	if v, ok := ctx.Value(ctxKeyCaptures).(map[string]string); ok {
		return v
	}
	return nil
}

// ElapsedTime returns the elapsed time since the start time in context.
func ElapsedTime(ctx context.Context) time.Duration {
	startTime := StartTimeFromContext(ctx)
	if startTime.IsZero() {
		return 0
	}
	return time.Since(startTime)
}
