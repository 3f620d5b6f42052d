package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	wrap "github.com/Temutjin2k/ride-pooling/pkg/logger/wrapper"
)

// Recover turns a handler panic into a 500 and closes the connection.
func (m *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}

			ctx := wrap.WithAction(r.Context(), "panic_recovered")
			m.log.Error(ctx, "panic while serving request", fmt.Errorf("panic: %v", p),
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)

			w.Header().Set("Connection", "close")
			errorResponse(w, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
		}()

		next.ServeHTTP(w, r)
	})
}
