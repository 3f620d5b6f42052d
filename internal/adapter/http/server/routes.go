package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/Temutjin2k/ride-pooling/docs"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
)

// setupRoutes - setups http routes
func setupRoutes(mux *http.ServeMux, routes *handlers, mode types.ServiceMode) {
	// System Health
	mux.HandleFunc("GET /health", routes.health.HealthCheck)
	setupMetricsRoute(mux)

	if mode == types.PoolService {
		setupSwaggerRoutes(mux)
		setupPoolingRoutes(mux, routes)
	}
}

// setupPoolingRoutes setups routes for the pool service
func setupPoolingRoutes(mux *http.ServeMux, routes *handlers) {
	mux.HandleFunc("POST /rides", routes.pooling.CreateRide)                        // Request a pooled ride
	mux.HandleFunc("GET /rides/{ride_id}", routes.pooling.GetRide)                  // Ride status
	mux.HandleFunc("POST /rides/{ride_id}/cancel", routes.pooling.CancelRide)       // Cancel a ride
	mux.HandleFunc("GET /pools/{pool_id}", routes.pooling.GetPool)                  // Pool status
	mux.HandleFunc("POST /pools/{pool_id}/{action}", routes.pooling.TransitionPool) // confirm | start | complete | cancel
	mux.HandleFunc("GET /ws/passengers/{passenger_id}", routes.passengers.HandleWebSocket)
}

// setupSwaggerRoutes configures Swagger UI endpoints
func setupSwaggerRoutes(mux *http.ServeMux) {
	swaggerURL := httpSwagger.InstanceName(docs.InstanceName)
	mux.HandleFunc("/swagger/", httpSwagger.Handler(swaggerURL))
}

// setupMetricsRoute configures the Prometheus metrics endpoint
func setupMetricsRoute(mux *http.ServeMux) {
	mux.Handle("GET /metrics", promhttp.Handler())
}
