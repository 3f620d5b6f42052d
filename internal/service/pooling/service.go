package pooling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	"github.com/Temutjin2k/ride-pooling/pkg/geo"
	"github.com/Temutjin2k/ride-pooling/pkg/logger"
	wrap "github.com/Temutjin2k/ride-pooling/pkg/logger/wrapper"
	"github.com/Temutjin2k/ride-pooling/pkg/metrics"
	"github.com/Temutjin2k/ride-pooling/pkg/trm"
)

// Config holds the pooling constraints and retry policy.
type Config struct {
	Limits         models.PoolLimits
	MaxDetourKm    float64
	Expiry         time.Duration
	SearchRadiusKm float64
	CandidateLimit int
	RetryBudget    int
	RetryBackoff   time.Duration

	ReapBatch     int
	BackfillBatch int
}

func DefaultConfig() Config {
	return Config{
		Limits:         models.PoolLimits{MaxSeats: 4, MaxLuggage: 6},
		MaxDetourKm:    3,
		Expiry:         15 * time.Minute,
		SearchRadiusKm: 5,
		CandidateLimit: 20,
		RetryBudget:    3,
		RetryBackoff:   10 * time.Millisecond,
		ReapBatch:      100,
		BackfillBatch:  200,
	}
}

/*
Service groups ride requests into shared pools. It owns candidate selection,
the version-conditioned pool writes and the pool lifecycle.
*/
type Service struct {
	repos     repos
	finder    CandidateFinder
	index     GeoIndex
	pricer    Pricer
	publisher Publisher
	trm       trm.TxManager
	cfg       Config
	now       func() time.Time
	l         logger.Logger
}

type repos struct {
	pool PoolRepo
	ride RideRepo
}

type Option func(*Service)

// WithGeoIndex keeps idx in sync with forming pools.
func WithGeoIndex(idx GeoIndex) Option {
	return func(s *Service) { s.index = idx }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a pooling service with all dependencies injected.
func New(poolRepo PoolRepo, rideRepo RideRepo, finder CandidateFinder, pricer Pricer, trm trm.TxManager, cfg Config, l logger.Logger, opts ...Option) *Service {
	if cfg.RetryBudget < 1 {
		cfg.RetryBudget = 1
	}
	if cfg.ReapBatch < 1 {
		cfg.ReapBatch = DefaultConfig().ReapBatch
	}
	if cfg.BackfillBatch < 1 {
		cfg.BackfillBatch = DefaultConfig().BackfillBatch
	}

	s := &Service{
		repos: repos{
			pool: poolRepo,
			ride: rideRepo,
		},
		finder: finder,
		pricer: pricer,
		trm:    trm,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		l:      l,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// RequestRide stores a pending ride and tries to pool it.
// When the candidate store is unavailable the ride stays pending and is
// returned without a pool; the error is not surfaced.
func (s *Service) RequestRide(ctx context.Context, req models.RideRequest) (*models.RideResult, error) {
	ctx = wrap.WithAction(ctx, types.ActionRequestRide)

	if err := s.validateRequest(req); err != nil {
		return nil, wrap.Error(ctx, err)
	}

	now := s.now()
	ride := &models.Ride{
		ID:          uuid.New(),
		PassengerID: req.PassengerID,
		Pickup:      req.Pickup,
		Dropoff:     req.Dropoff,
		Luggage:     req.Luggage,
		Status:      types.RideStatusPending,
		DistanceKm:  geo.Distance(req.Pickup.Point(), req.Dropoff.Point()),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	ctx = wrap.WithRideID(ctx, ride.ID.String())

	if err := s.repos.ride.Create(ctx, ride); err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("failed to create ride: %w", err))
	}

	s.l.Info(ctx, "ride requested",
		"passenger_id", ride.PassengerID,
		"luggage", ride.Luggage,
		"distance_km", ride.DistanceKm,
		"correlation_id", req.CorrelationID,
	)

	pool, detourKm, err := s.place(ctx, ride)
	if err != nil {
		if errors.Is(err, types.ErrUpstreamUnavailable) {
			s.l.Warn(ctx, "matching deferred, ride left pending", "error", err)
			return &models.RideResult{Ride: ride}, nil
		}
		return nil, err
	}

	return &models.RideResult{Ride: ride, Pool: pool, DetourKm: &detourKm}, nil
}

func (s *Service) validateRequest(req models.RideRequest) error {
	var errs []error
	if req.PassengerID == uuid.Nil {
		errs = append(errs, errors.New("passenger_id must be provided"))
	}
	if !req.Pickup.Point().Valid() {
		errs = append(errs, errors.New("pickup must be a valid coordinate"))
	}
	if !req.Dropoff.Point().Valid() {
		errs = append(errs, errors.New("dropoff must be a valid coordinate"))
	}
	maxLuggage := min(models.MaxLuggagePerRide, s.cfg.Limits.MaxLuggage)
	if req.Luggage < 0 || req.Luggage > maxLuggage {
		errs = append(errs, fmt.Errorf("luggage must be between 0 and %d", maxLuggage))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", types.ErrInvalidRequest, errors.Join(errs...))
	}
	return nil
}

func (s *Service) GetRide(ctx context.Context, rideID uuid.UUID) (*models.Ride, error) {
	ctx = wrap.WithRideID(ctx, rideID.String())

	ride, err := s.repos.ride.Get(ctx, rideID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	return ride, nil
}

// GetPool returns the pool. A forming pool past its TTL is reported as types.ErrPoolExpired
// even before the reaper has cancelled it.
func (s *Service) GetPool(ctx context.Context, poolID uuid.UUID) (*models.Pool, error) {
	ctx = wrap.WithPoolID(ctx, poolID.String())

	pool, err := s.repos.pool.Get(ctx, poolID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	if pool.IsExpired(s.now()) {
		return nil, wrap.Error(ctx, types.ErrPoolExpired)
	}
	return pool, nil
}

// CancelRide cancels a passenger's ride and releases its seat.
func (s *Service) CancelRide(ctx context.Context, rideID uuid.UUID, reason string) (*models.Ride, error) {
	ctx = wrap.WithAction(ctx, types.ActionCancelRide)
	if reason == "" {
		reason = types.ReasonCancelled
	}
	return s.Leave(ctx, rideID, reason)
}

// retryConflicts runs fn until it returns something other than a conflict or the
// budget is spent, sleeping with exponential backoff between attempts.
func (s *Service) retryConflicts(ctx context.Context, op string, fn func(ctx context.Context) error) (int, error) {
	delay := s.cfg.RetryBackoff

	var err error
	for attempt := 1; attempt <= s.cfg.RetryBudget; attempt++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, types.ErrConflict) {
			return attempt, err
		}

		metrics.RecordConflict(op)
		if attempt == s.cfg.RetryBudget {
			return attempt, err
		}

		s.l.Debug(ctx, "conflict, retrying", "operation", op, "attempt", attempt, "backoff", delay.String())
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}
	}

	return s.cfg.RetryBudget, err
}
