package middleware

import (
	"net/http"
	"time"

	"github.com/vyrodovalexey/edgerouter/internal/observability"
	"github.com/vyrodovalexey/edgerouter/internal/util"
)

// Logging returns a middleware that writes one access log line per
// request. Server errors log at warn level.
func Logging(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			r, info := withInfo(r)
			r = r.WithContext(util.ContextWithStartTime(r.Context(), start))

			rw := util.NewStatusCapturingResponseWriter(w)
			next.ServeHTTP(rw, r)

			fields := []observability.Field{
				observability.String("method", r.Method),
				observability.String("path", r.URL.Path),
				observability.String("query", r.URL.RawQuery),
				observability.Int("status", rw.StatusCode),
				observability.Int64("size", rw.BytesWritten),
				observability.Duration("duration", time.Since(start)),
				observability.String("remote_addr", r.RemoteAddr),
				observability.String("user_agent", r.UserAgent()),
				observability.String("route", info.RouteID),
				observability.String("service", info.Service),
				observability.String("outcome", info.Outcome),
				observability.String("correlation_id", info.CorrelationID),
			}

			if rw.StatusCode >= http.StatusInternalServerError {
				logger.Warn("http request", fields...)
				return
			}
			logger.Info("http request", fields...)
		})
	}
}
