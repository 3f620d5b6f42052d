package microservices

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Temutjin2k/ride-pooling/config"
	"github.com/Temutjin2k/ride-pooling/internal/adapter/http/handler"
	kafkaadapter "github.com/Temutjin2k/ride-pooling/internal/adapter/kafka"
	"github.com/Temutjin2k/ride-pooling/internal/adapter/memory"
	repo "github.com/Temutjin2k/ride-pooling/internal/adapter/postgres"
	rabbitadapter "github.com/Temutjin2k/ride-pooling/internal/adapter/rabbit"
	redisadapter "github.com/Temutjin2k/ride-pooling/internal/adapter/redis"
	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	"github.com/Temutjin2k/ride-pooling/internal/service/pooling"
	"github.com/Temutjin2k/ride-pooling/internal/service/pricing"
	"github.com/Temutjin2k/ride-pooling/migrations"
	"github.com/Temutjin2k/ride-pooling/pkg/logger"
	wrap "github.com/Temutjin2k/ride-pooling/pkg/logger/wrapper"
	"github.com/Temutjin2k/ride-pooling/pkg/postgres"
	"github.com/Temutjin2k/ride-pooling/pkg/rabbit"
	"github.com/Temutjin2k/ride-pooling/pkg/trm"
)

// poolingStack holds the pooling service and the infrastructure behind it.
type poolingStack struct {
	service *pooling.Service

	postgresDB  *postgres.PostgreDB
	redisClient *redis.Client
	rabbit      *rabbit.RabbitMQ
	kafka       *kafkaadapter.PoolEventWriter

	log logger.Logger
}

// newPoolingStack wires storage, the optional geo index and the event publishers.
// extra publishers (the websocket hub) are added to the fan-out.
func newPoolingStack(ctx context.Context, cfg config.Config, log logger.Logger, extra ...pooling.Publisher) (*poolingStack, error) {
	ctx = wrap.WithAction(ctx, "init_pooling_stack")
	s := &poolingStack{log: log}

	var (
		poolRepo pooling.PoolRepo
		rideRepo pooling.RideRepo
		finder   pooling.CandidateFinder
		tx       trm.TxManager
		opts     []pooling.Option
	)

	switch cfg.Storage.Driver {
	case types.StoragePostgres:
		db, err := postgres.New(ctx, cfg.Database)
		if err != nil {
			log.Error(ctx, "failed to setup database", err)
			return nil, err
		}
		s.postgresDB = db

		if cfg.Database.Migrate {
			applied, err := postgres.Migrate(ctx, db.Pool, migrations.FS)
			if err != nil {
				s.close(ctx)
				return nil, fmt.Errorf("failed to apply migrations: %w", err)
			}
			log.Info(ctx, "migrations applied", "applied", applied)
		}

		pools := repo.NewPoolRepo(db.Pool)
		poolRepo, rideRepo, finder = pools, repo.NewRideRepo(db.Pool), pools
		tx = trm.New(db.Pool)
	case types.StorageMemory:
		log.Warn(ctx, "using in-memory storage, data is lost on restart and not shared between processes")
		store := memory.NewStore()
		pools := store.Pools()
		poolRepo, rideRepo, finder = pools, store.Rides(), pools
		tx = store
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Storage.Driver)
	}

	if cfg.Redis.Enabled {
		client, err := redisadapter.NewClient(ctx, cfg.Redis)
		if err != nil {
			// индекс необязателен, работаем без него
			log.Warn(ctx, "redis unavailable, geo index disabled", "error", err)
		} else {
			s.redisClient = client
			idx := redisadapter.NewPoolGeoIndex(client, cfg.Redis.GeoKey, finder, log)
			finder = idx
			opts = append(opts, pooling.WithGeoIndex(idx))
		}
	}

	publishers := pooling.Publishers(extra)

	if cfg.RabbitMQ.Enabled {
		client, err := rabbit.New(ctx, cfg.RabbitMQ.GetDSN(), log)
		if err != nil {
			log.Error(ctx, "failed to connect to rabbitmq", err)
			s.close(ctx)
			return nil, err
		}
		s.rabbit = client

		broker := rabbitadapter.NewPoolBroker(client, string(cfg.Mode), log)
		if err := broker.Setup(ctx); err != nil {
			s.close(ctx)
			return nil, fmt.Errorf("failed to declare pool exchange: %w", err)
		}
		publishers = append(publishers, broker)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		s.kafka = kafkaadapter.NewPoolEventWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		publishers = append(publishers, s.kafka)
	}

	if len(publishers) > 0 {
		opts = append(opts, pooling.WithPublisher(publishers))
	}

	s.service = pooling.New(poolRepo, rideRepo, finder, newPricer(cfg.Pricing), tx, newPoolingConfig(cfg), log, opts...)

	return s, nil
}

// checks returns the dependency checks reported by /health.
func (s *poolingStack) checks() []handler.DependencyCheck {
	var checks []handler.DependencyCheck
	if s.postgresDB != nil {
		checks = append(checks, handler.DependencyCheck{Name: "postgres", Check: s.postgresDB.Pool.Ping})
	}
	if s.redisClient != nil {
		checks = append(checks, handler.DependencyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return s.redisClient.Ping(ctx).Err()
		}})
	}
	return checks
}

func newPoolingConfig(cfg config.Config) pooling.Config {
	return pooling.Config{
		Limits: models.PoolLimits{
			MaxSeats:   cfg.Pooling.MaxSeats,
			MaxLuggage: cfg.Pooling.MaxLuggage,
		},
		MaxDetourKm:    cfg.Pooling.MaxDetourKm,
		Expiry:         cfg.Pooling.Expiry(),
		SearchRadiusKm: cfg.Pooling.SearchRadiusKm,
		CandidateLimit: cfg.Pooling.CandidateLimit,
		RetryBudget:    cfg.Pooling.RetryBudget,
		RetryBackoff:   cfg.Pooling.RetryBackoff,
		ReapBatch:      cfg.Worker.ReapBatch,
		BackfillBatch:  cfg.Worker.BackfillBatch,
	}
}

func newPricer(cfg config.PricingConfig) *pricing.TariffPricer {
	return pricing.New(pricing.Tariff{
		BaseFare:        cfg.BaseFare,
		RatePerKm:       cfg.RatePerKm,
		RatePerMin:      cfg.RatePerMin,
		LuggageFee:      cfg.LuggageFee,
		SharingDiscount: cfg.SharingDiscount,
		MaxDiscount:     cfg.MaxDiscount,
	})
}

func (s *poolingStack) close(ctx context.Context) {
	var errs []error

	if s.kafka != nil {
		if err := s.kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka: %w", err))
		}
	}
	if s.rabbit != nil {
		if err := s.rabbit.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("rabbitmq: %w", err))
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	s.postgresDB.Close()

	if err := errors.Join(errs...); err != nil {
		s.log.Warn(ctx, "failed to close pooling stack cleanly", "error", err)
	}
}
