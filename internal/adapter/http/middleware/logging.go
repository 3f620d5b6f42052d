package middleware

import (
	"net/http"
	"time"
)

// Logging writes one line per finished request. Health and metrics requests go to DEBUG.
func (m *Middleware) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newStatusRecorder(w)

		next.ServeHTTP(rw, r)

		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.Status(),
			"bytes", rw.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		}

		switch {
		case r.URL.Path == "/health" || r.URL.Path == "/metrics":
			m.log.Debug(r.Context(), "request completed", args...)
		case rw.Status() >= http.StatusInternalServerError:
			m.log.Warn(r.Context(), "request failed", args...)
		default:
			m.log.Info(r.Context(), "request completed", args...)
		}
	})
}
