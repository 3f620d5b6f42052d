package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/Temutjin2k/ride-pooling/config"
	"github.com/Temutjin2k/ride-pooling/internal/app/microservices"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	"github.com/Temutjin2k/ride-pooling/pkg/logger"
)

var (
	ErrInvalidMode           = errors.New("invalid mode")
	ErrServiceNotInitialized = errors.New("service not initialized")
)

type Service interface {
	Start(ctx context.Context) error
}

type constructor func(ctx context.Context, cfg config.Config, log logger.Logger) (Service, error)

// modes lists what each -mode value runs
var modes = map[types.ServiceMode]constructor{
	types.PoolService: func(ctx context.Context, cfg config.Config, log logger.Logger) (Service, error) {
		return microservices.NewPoolService(ctx, cfg, log)
	},
	types.PoolWorker: func(ctx context.Context, cfg config.Config, log logger.Logger) (Service, error) {
		return microservices.NewPoolWorker(ctx, cfg, log)
	},
}

type App struct {
	mode    types.ServiceMode
	service Service

	cfg config.Config
	log logger.Logger
}

// NewApplication builds the service selected by cfg.Mode.
func NewApplication(ctx context.Context, cfg config.Config, log logger.Logger) (*App, error) {
	build, ok := modes[cfg.Mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, cfg.Mode)
	}

	service, err := build(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init %s: %w", cfg.Mode, err)
	}

	return &App{
		mode:    cfg.Mode,
		service: service,
		cfg:     cfg,
		log:     log,
	}, nil
}

// Run blocks until the service stops or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.service == nil {
		return ErrServiceNotInitialized
	}
	return a.service.Start(ctx)
}
