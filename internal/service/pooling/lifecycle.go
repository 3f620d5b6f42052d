package pooling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	wrap "github.com/Temutjin2k/ride-pooling/pkg/logger/wrapper"
	"github.com/Temutjin2k/ride-pooling/pkg/metrics"
)

func (s *Service) Confirm(ctx context.Context, poolID uuid.UUID) (*models.Pool, error) {
	return s.Transition(ctx, poolID, types.PoolStatusConfirmed)
}

func (s *Service) Start(ctx context.Context, poolID uuid.UUID) (*models.Pool, error) {
	return s.Transition(ctx, poolID, types.PoolStatusInProgress)
}

func (s *Service) Complete(ctx context.Context, poolID uuid.UUID) (*models.Pool, error) {
	return s.Transition(ctx, poolID, types.PoolStatusCompleted)
}

func (s *Service) CancelPool(ctx context.Context, poolID uuid.UUID) (*models.Pool, error) {
	return s.Transition(ctx, poolID, types.PoolStatusCancelled)
}

// Transition moves a pool along its lifecycle with a version-conditioned write,
// retrying on conflict. Completion completes every member ride; cancellation
// returns members to pending and re-matches them.
func (s *Service) Transition(ctx context.Context, poolID uuid.UUID, to types.PoolStatus) (*models.Pool, error) {
	const op = "transition"
	ctx = wrap.WithAction(wrap.WithPoolID(ctx, poolID.String()), types.ActionTransitionPool)

	var (
		updated  *models.Pool
		affected []*models.Ride
		conflict = types.ConflictError{Op: op, PoolID: poolID}
	)

	attempts, err := s.retryConflicts(ctx, op, func(ctx context.Context) error {
		now := s.now()

		pool, err := s.repos.pool.Get(ctx, poolID)
		if err != nil {
			return err
		}
		conflict.Version = pool.Version

		if !CanTransition(pool.Status, to) {
			return fmt.Errorf("%s -> %s: %w", pool.Status, to, types.ErrInvalidTransition)
		}
		if to == types.PoolStatusConfirmed && pool.IsExpired(now) {
			return fmt.Errorf("cannot confirm, %w: %w", types.ErrPoolExpired, types.ErrInvalidState)
		}

		var reason *string
		if to == types.PoolStatusCancelled {
			r := types.ReasonCancelled
			reason = &r
		}

		return s.trm.Do(ctx, func(ctx context.Context) error {
			p, err := s.repos.pool.UpdateStatus(ctx, pool.ID, pool.Version, pool.Status, to, reason, now)
			if err != nil {
				return err
			}

			var rides []*models.Ride
			switch to {
			case types.PoolStatusCompleted:
				rides, err = s.repos.ride.CompleteByPool(ctx, pool.ID, now)
			case types.PoolStatusCancelled:
				rides, err = s.repos.ride.ReleaseByPool(ctx, pool.ID, now)
			}
			if err != nil {
				return fmt.Errorf("failed to update member rides: %w", err)
			}

			updated, affected = p, rides
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, types.ErrConflict) {
			conflict.Attempts = attempts
			return nil, wrap.Error(ctx, &conflict)
		}
		return nil, wrap.Error(ctx, err)
	}

	s.l.Info(ctx, "pool transitioned", "status", updated.Status, "version", updated.Version)

	// only forming pools are searchable
	s.unindexPools(ctx, updated.ID)

	switch to {
	case types.PoolStatusCompleted:
		s.settle(ctx, updated, affected)
	case types.PoolStatusCancelled:
		s.publishPool(ctx, types.EventPoolCancelled, updated, nil, types.ReasonCancelled, affected...)
		s.rematch(ctx, affected)
		return updated, nil
	}

	s.publishPool(ctx, transitionEvent(to), updated, nil, "", affected...)

	return updated, nil
}

// settle records the final price of every completed ride at the final pool size.
func (s *Service) settle(ctx context.Context, pool *models.Pool, rides []*models.Ride) {
	if s.pricer == nil {
		return
	}

	for _, ride := range rides {
		rctx := wrap.WithRideID(ctx, ride.ID.String())

		price, err := s.pricer.Price(rctx, ride.DistanceKm, pool.SeatsOccupied, ride.Luggage)
		if err != nil {
			s.l.Error(rctx, "final pricing failed, leaving actual price empty", err)
			continue
		}
		if _, err := s.repos.ride.SetActualPrice(rctx, ride.ID, price); err != nil {
			s.l.Error(rctx, "failed to store actual price", err)
			continue
		}
		ride.ActualPrice = &price
	}
}

// ExpireForming cancels forming pools whose TTL elapsed at now. Their rides
// return to pending in the same transaction and are then re-matched.
// It returns the number of pools expired.
func (s *Service) ExpireForming(ctx context.Context, now time.Time) (int, error) {
	ctx = wrap.WithAction(ctx, types.ActionExpirePools)

	pools, err := s.repos.pool.ListExpiredForming(ctx, now, s.cfg.ReapBatch)
	if err != nil {
		return 0, wrap.Error(ctx, fmt.Errorf("failed to list expired pools: %w", err))
	}

	var (
		expired  int
		released []*models.Ride
	)
	reason := types.ReasonExpired

	for _, pool := range pools {
		pctx := wrap.WithPoolID(ctx, pool.ID.String())

		var (
			updated *models.Pool
			rides   []*models.Ride
		)
		err := s.trm.Do(pctx, func(ctx context.Context) error {
			p, err := s.repos.pool.UpdateStatus(ctx, pool.ID, pool.Version, types.PoolStatusForming, types.PoolStatusCancelled, &reason, now)
			if err != nil {
				return err
			}
			r, err := s.repos.ride.ReleaseByPool(ctx, pool.ID, now)
			if err != nil {
				return fmt.Errorf("failed to release rides: %w", err)
			}
			updated, rides = p, r
			return nil
		})
		if err != nil {
			if errors.Is(err, types.ErrConflict) {
				// someone else moved the pool on; the next sweep sees its new state
				s.l.Debug(pctx, "expired pool changed concurrently, skipped")
				continue
			}
			s.l.Error(pctx, "failed to expire pool", err)
			continue
		}

		expired++
		released = append(released, rides...)
		s.unindexPools(pctx, pool.ID)
		s.publishPool(pctx, types.EventPoolExpired, updated, nil, types.ReasonExpired, rides...)
	}

	if expired > 0 {
		metrics.RecordExpired(expired)
		s.l.Info(ctx, "expired forming pools", "pools", expired, "rides_released", len(released))
	}

	s.rematch(ctx, released)

	return expired, nil
}

// rematch offers released rides to the matcher again. Failures leave the ride pending.
func (s *Service) rematch(ctx context.Context, rides []*models.Ride) {
	for _, ride := range rides {
		if ride.Status != types.RideStatusPending {
			continue
		}
		if _, err := s.FindOrCreatePool(ctx, ride); err != nil {
			s.l.Warn(ctx, "re-match failed, ride stays pending", "ride_id", ride.ID, "error", err)
		}
	}
}

// BackfillPrices prices pooled rides whose estimate is still missing.
// It returns the number of rides priced.
func (s *Service) BackfillPrices(ctx context.Context) (int, error) {
	ctx = wrap.WithAction(ctx, types.ActionBackfillPrices)
	if s.pricer == nil {
		return 0, nil
	}

	rides, err := s.repos.ride.ListUnpriced(ctx, s.cfg.BackfillBatch)
	if err != nil {
		return 0, wrap.Error(ctx, fmt.Errorf("failed to list unpriced rides: %w", err))
	}

	var priced int
	for _, ride := range rides {
		rctx := wrap.WithRideID(ctx, ride.ID.String())
		if ride.PoolID == nil {
			continue
		}

		pool, err := s.repos.pool.Get(rctx, *ride.PoolID)
		if err != nil {
			metrics.RecordBackfill(err)
			s.l.Error(rctx, "backfill: failed to read pool", err)
			continue
		}

		price, err := s.pricer.Price(rctx, ride.DistanceKm, pool.SeatsOccupied, ride.Luggage)
		if err != nil {
			metrics.RecordBackfill(err)
			s.l.Error(rctx, "backfill: pricing failed", err)
			continue
		}

		ok, err := s.repos.ride.SetEstimatedPrice(rctx, ride.ID, price)
		metrics.RecordBackfill(err)
		if err != nil {
			s.l.Error(rctx, "backfill: failed to store price", err)
			continue
		}
		if ok {
			priced++
		}
	}

	if priced > 0 {
		s.l.Info(ctx, "backfilled ride prices", "count", priced)
	}

	return priced, nil
}
