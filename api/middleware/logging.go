package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

// Logging writes one request.complete line per request. Health probes are
// logged at debug so they do not drown the access log.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := logg.WithFields(r.Context(), map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ctx = logg.WithFields(ctx, map[string]any{
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
			if isProbe(r.URL.Path) {
				logg.Debug(ctx, "request.complete")
				return
			}
			logg.Info(ctx, "request.complete")
		})
	}
}

func isProbe(path string) bool {
	return path == "/health/live" || path == "/health/ready" || path == "/metrics"
}
