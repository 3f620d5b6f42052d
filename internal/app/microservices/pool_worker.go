package microservices

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Temutjin2k/ride-pooling/config"
	"github.com/Temutjin2k/ride-pooling/internal/adapter/http/server"
	"github.com/Temutjin2k/ride-pooling/pkg/logger"
	wrap "github.com/Temutjin2k/ride-pooling/pkg/logger/wrapper"
)

// PoolWorker expires stale forming pools and backfills missing prices.
// It only serves health and metrics over HTTP.
type PoolWorker struct {
	stack      *poolingStack
	httpServer *server.API

	cfg config.Config
	log logger.Logger
}

func NewPoolWorker(ctx context.Context, cfg config.Config, log logger.Logger) (*PoolWorker, error) {
	stack, err := newPoolingStack(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	httpServer, err := server.New(cfg, nil, nil, log, stack.checks()...)
	if err != nil {
		log.Error(ctx, "Failed to setup http server", err)
		stack.close(ctx)
		return nil, err
	}

	return &PoolWorker{
		stack:      stack,
		httpServer: httpServer,
		cfg:        cfg,
		log:        log,
	}, nil
}

func (w *PoolWorker) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	defer func() {
		w.stack.close(context.WithoutCancel(ctx))
		w.log.Info(context.WithoutCancel(ctx), "pool worker closed")
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.httpServer.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return w.httpServer.Stop(context.WithoutCancel(gctx))
	})

	g.Go(func() error {
		runEvery(gctx, w.cfg.Worker.ReapInterval, func(ctx context.Context) {
			ctx = wrap.WithAction(ctx, "reap_expired_pools")
			n, err := w.stack.service.ExpireForming(ctx, time.Now().UTC())
			if err != nil {
				w.log.Error(wrap.ErrorCtx(ctx, err), "failed to expire forming pools", err)
				return
			}
			if n > 0 {
				w.log.Info(ctx, "expired forming pools", "count", n)
			}
		})
		return nil
	})

	g.Go(func() error {
		runEvery(gctx, w.cfg.Worker.BackfillInterval, func(ctx context.Context) {
			ctx = wrap.WithAction(ctx, "backfill_prices")
			n, err := w.stack.service.BackfillPrices(ctx)
			if err != nil {
				w.log.Error(wrap.ErrorCtx(ctx, err), "failed to backfill prices", err)
				return
			}
			if n > 0 {
				w.log.Info(ctx, "backfilled ride prices", "count", n)
			}
		})
		return nil
	})

	w.log.Info(ctx, "pool worker has been started",
		"reap_interval", w.cfg.Worker.ReapInterval.String(),
		"backfill_interval", w.cfg.Worker.BackfillInterval.String())

	return g.Wait()
}

// runEvery calls fn on every tick until ctx is done. Ticks are not queued
// while fn runs.
func runEvery(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
