package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Temutjin2k/ride-pooling/config"
	"github.com/Temutjin2k/ride-pooling/internal/adapter/http/handler"
	"github.com/Temutjin2k/ride-pooling/internal/adapter/http/middleware"
	wshandler "github.com/Temutjin2k/ride-pooling/internal/adapter/http/ws"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	"github.com/Temutjin2k/ride-pooling/pkg/logger"
	wrap "github.com/Temutjin2k/ride-pooling/pkg/logger/wrapper"
)

const serverIPAddress = "%s:%s"

type API struct {
	mode   types.ServiceMode
	mux    *http.ServeMux
	server *http.Server
	routes *handlers // routes/handlers
	m      *middleware.Middleware

	addr string
	cfg  config.Config
	log  logger.Logger
}

type handlers struct {
	health     *handler.Health
	pooling    *handler.Pooling
	passengers *wshandler.PassengerHub
}

// New builds the HTTP API for the configured mode. The worker only serves
// health and metrics, so poolingService and passengers may be nil there.
func New(
	cfg config.Config,
	poolingService handler.PoolingService,
	passengers *wshandler.PassengerHub,
	logger logger.Logger,
	checks ...handler.DependencyCheck,
) (*API, error) {
	var addr string
	handlers := &handlers{
		health: handler.NewHealth(string(cfg.Mode), logger, checks...),
	}

	switch cfg.Mode {
	case types.PoolService:
		if poolingService == nil || passengers == nil {
			return nil, errors.New("pooling service and passenger hub are required")
		}
		addr = fmt.Sprintf(serverIPAddress, "0.0.0.0", cfg.Services.PoolService)
		handlers.pooling = handler.NewPooling(poolingService, logger)
		handlers.passengers = passengers
	case types.PoolWorker:
		addr = fmt.Sprintf(serverIPAddress, "0.0.0.0", cfg.Services.PoolWorker)
	default:
		return nil, fmt.Errorf("invalid mode: %s", cfg.Mode)
	}

	var verifier *middleware.TokenVerifier
	if cfg.Auth.Enabled {
		verifier = middleware.NewTokenVerifier(cfg.Auth.JWTSecret)
	}
	mid := middleware.NewMiddleware(verifier, string(cfg.Mode), logger)

	api := &API{
		mode: cfg.Mode,

		mux:    http.NewServeMux(),
		routes: handlers,
		m:      mid,
		addr:   addr,
		cfg:    cfg,
		log:    logger,
	}

	setupRoutes(api.mux, api.routes, api.mode)

	api.server = &http.Server{
		Addr:              api.addr,
		Handler:           api.withMiddleware(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
	}

	return api, nil
}

func (a *API) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ctx = wrap.WithAction(ctx, "http_server_stop")

	a.log.Debug(ctx, "shutting down HTTP server...", "address", a.addr)
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	a.log.Debug(ctx, "shutting down HTTP server completed")

	return nil
}

// Run blocks until the server stops. A clean Shutdown returns nil.
func (a *API) Run(ctx context.Context) error {
	ctx = wrap.WithAction(ctx, "http_server_start")
	a.log.Info(ctx, "started http server", "address", a.addr)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Handler exposes the fully wrapped handler.
func (a *API) Handler() http.Handler {
	return a.server.Handler
}

// withMiddleware applies middlewares to the mux.
// Metrics sits right on the mux so it sees the request the mux fills r.Pattern on.
func (a *API) withMiddleware() http.Handler {
	return a.m.Recover(a.m.RequestID(a.m.Logging(a.m.Auth(a.m.Metrics(a.mux)))))
}
