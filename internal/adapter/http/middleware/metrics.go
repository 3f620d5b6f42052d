package middleware

import (
	"net/http"
	"time"

	"github.com/Temutjin2k/ride-pooling/pkg/metrics"
)

// Metrics records request count, latency and in-flight gauge. Series are
// labelled by the matched route pattern, so it has to run inside the mux
// chain after any middleware that copies the request.
func (m *Middleware) Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		inFlight := metrics.HttpRequestsInFlight.WithLabelValues(m.service)
		inFlight.Inc()
		defer inFlight.Dec()

		rw := newStatusRecorder(w)
		next.ServeHTTP(rw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPMetrics(m.service, r.Method, route, rw.Status(), time.Since(start))
	})
}
