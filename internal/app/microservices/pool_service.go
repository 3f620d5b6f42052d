package microservices

import (
	"context"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Temutjin2k/ride-pooling/config"
	"github.com/Temutjin2k/ride-pooling/internal/adapter/http/server"
	wshandler "github.com/Temutjin2k/ride-pooling/internal/adapter/http/ws"
	rabbitadapter "github.com/Temutjin2k/ride-pooling/internal/adapter/rabbit"
	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/pkg/logger"
	wrap "github.com/Temutjin2k/ride-pooling/pkg/logger/wrapper"
	ws "github.com/Temutjin2k/ride-pooling/pkg/wsHub"
)

// PoolService serves the HTTP API, the passenger websocket feed and the
// ride request queue.
type PoolService struct {
	stack      *poolingStack
	hub        *ws.ConnectionHub
	httpServer *server.API
	consumer   *rabbitadapter.RideRequestConsumer

	cfg config.Config
	log logger.Logger
}

func NewPoolService(ctx context.Context, cfg config.Config, log logger.Logger) (*PoolService, error) {
	hub := ws.NewConnHub(log)
	passengers := wshandler.NewPassengerHub(hub, string(cfg.Mode), log)

	stack, err := newPoolingStack(ctx, cfg, log, passengers)
	if err != nil {
		return nil, err
	}

	httpServer, err := server.New(cfg, stack.service, passengers, log, stack.checks()...)
	if err != nil {
		log.Error(ctx, "Failed to setup http server", err)
		stack.close(ctx)
		return nil, err
	}

	s := &PoolService{
		stack:      stack,
		hub:        hub,
		httpServer: httpServer,
		cfg:        cfg,
		log:        log,
	}
	if stack.rabbit != nil {
		s.consumer = rabbitadapter.NewRideRequestConsumer(stack.rabbit, string(cfg.Mode), log)
	}

	return s, nil
}

func (s *PoolService) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	defer func() {
		s.close(context.WithoutCancel(ctx))
		s.log.Info(context.WithoutCancel(ctx), "pool service closed")
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.httpServer.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.httpServer.Stop(context.WithoutCancel(gctx))
	})

	if s.consumer != nil {
		g.Go(func() error {
			return s.consumer.Consume(gctx, s.handleRideRequest)
		})
	}

	s.log.Info(ctx, "pool service has been started")

	return g.Wait()
}

func (s *PoolService) handleRideRequest(ctx context.Context, msg models.RideRequestedMessage) error {
	ctx = wrap.WithAction(ctx, "consume_ride_request")

	res, err := s.stack.service.RequestRide(ctx, models.RideRequest{
		PassengerID:   msg.PassengerID,
		Pickup:        msg.Pickup,
		Dropoff:       msg.Dropoff,
		Luggage:       msg.Luggage,
		CorrelationID: msg.CorrelationID,
	})
	if err != nil {
		return err
	}

	if res.Pool == nil {
		s.log.Info(ctx, "ride accepted, matching deferred", "ride_id", res.Ride.ID)
	}
	return nil
}

func (s *PoolService) close(ctx context.Context) {
	s.hub.Close()
	s.stack.close(ctx)
}
