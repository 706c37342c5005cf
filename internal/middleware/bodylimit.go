package middleware

import (
	"io"
	"net/http"

	"github.com/vyrodovalexey/edgerouter/internal/observability"
)

// BodyLimit returns a middleware that rejects requests whose declared
// Content-Length exceeds maxSize with 413. Bodies without a declared
// length are capped while the pipeline reads them.
func BodyLimit(maxSize int64, logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if maxSize <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxSize {
				logger.Warn("request body too large",
					observability.Int64("content_length", r.ContentLength),
					observability.Int64("max_size", maxSize),
					observability.String("path", r.URL.Path),
				)

				GetMiddlewareMetrics().bodyLimitRejected.Inc()
				if info := InfoFromContext(r.Context()); info != nil {
					info.Outcome = "rejected"
				}

				w.Header().Set(HeaderContentType, ContentTypeJSON)
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				_, _ = io.WriteString(w, ErrRequestEntityTooLarge)
				return
			}

			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxSize)
			}
			next.ServeHTTP(w, r)
		})
	}
}
