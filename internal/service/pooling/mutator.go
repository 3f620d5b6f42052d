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
	wrap "github.com/Temutjin2k/ride-pooling/pkg/logger/wrapper"
)

// Join adds ride to pool if pool is still at the version that was read.
// The pool write and the ride write commit together or not at all.
// On success ride is updated in place.
func (s *Service) Join(ctx context.Context, pool *models.Pool, ride *models.Ride) (*models.Pool, error) {
	return s.join(ctx, pool, ride, nil)
}

// join is Join with the detour estimate the matcher selected the pool by,
// carried on the joined event.
func (s *Service) join(ctx context.Context, pool *models.Pool, ride *models.Ride, detourKm *float64) (*models.Pool, error) {
	ctx = wrap.WithAction(wrap.WithPoolID(ctx, pool.ID.String()), types.ActionJoinPool)
	now := s.now()

	if !pool.IsOpen(now) {
		return nil, wrap.Error(ctx, fmt.Errorf("pool is no longer forming: %w", types.ErrConflict))
	}
	if !CanAccept(pool, ride, s.cfg.Limits) {
		return nil, wrap.Error(ctx, types.ErrConstraintViolation)
	}

	var (
		joined *models.Pool
		pooled *models.Ride
	)
	err := s.trm.Do(ctx, func(ctx context.Context) error {
		p, err := s.repos.pool.AddMember(ctx, pool.ID, pool.Version, ride, s.cfg.Limits, now)
		if err != nil {
			return err
		}

		r, err := s.markPooled(ctx, ride, p.ID, now)
		if err != nil {
			return err
		}

		joined, pooled = p, r
		return nil
	})
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	*ride = *pooled

	if refreshed := s.refreshGeometry(ctx, joined.ID); refreshed != nil {
		joined = refreshed
	}
	s.priceRide(ctx, ride, joined.SeatsOccupied)
	s.publishPoolDetour(ctx, types.EventPoolJoined, joined, ride, "", detourKm)

	return joined, nil
}

// Create starts a new forming pool seeded with ride.
// On success ride is updated in place.
func (s *Service) Create(ctx context.Context, ride *models.Ride) (*models.Pool, error) {
	ctx = wrap.WithAction(ctx, types.ActionCreatePool)
	now := s.now()

	if ride.Luggage > s.cfg.Limits.MaxLuggage || s.cfg.Limits.MaxSeats < 1 {
		return nil, wrap.Error(ctx, types.ErrConstraintViolation)
	}

	pickup := ride.Pickup.Point()
	bounds, err := geo.Bounds([]geo.Point{pickup, ride.Dropoff.Point()})
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}

	pool := &models.Pool{
		ID:            uuid.New(),
		Members:       []uuid.UUID{ride.ID},
		Status:        types.PoolStatusForming,
		SeatsOccupied: 1,
		LuggageTotal:  ride.Luggage,
		Centroid:      pickup,
		Bounds:        bounds,
		MaxDetourKm:   s.cfg.MaxDetourKm,
		ExpiresAt:     now.Add(s.cfg.Expiry),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	ctx = wrap.WithPoolID(ctx, pool.ID.String())

	var pooled *models.Ride
	err = s.trm.Do(ctx, func(ctx context.Context) error {
		if err := s.repos.pool.Create(ctx, pool); err != nil {
			return fmt.Errorf("failed to insert pool: %w", err)
		}

		r, err := s.markPooled(ctx, ride, pool.ID, now)
		if err != nil {
			return err
		}
		pooled = r
		return nil
	})
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	*ride = *pooled

	s.indexPool(ctx, pool)
	s.priceRide(ctx, ride, pool.SeatsOccupied)
	s.publishPool(ctx, types.EventPoolCreated, pool, ride, "")

	return pool, nil
}

// Leave cancels a ride. A pooled ride gives its seat back in the same
// transaction; the last member leaving cancels the pool.
func (s *Service) Leave(ctx context.Context, rideID uuid.UUID, reason string) (*models.Ride, error) {
	const op = "leave"
	ctx = wrap.WithAction(wrap.WithRideID(ctx, rideID.String()), types.ActionLeavePool)

	var (
		cancelled *models.Ride
		left      *models.Pool
		conflict  = types.ConflictError{Op: op, RideID: rideID}
	)

	attempts, err := s.retryConflicts(ctx, op, func(ctx context.Context) error {
		now := s.now()

		ride, err := s.repos.ride.Get(ctx, rideID)
		if err != nil {
			return err
		}
		if ride.Status.IsFinal() {
			return types.ErrRideCannotBeCancelled
		}

		if ride.Status == types.RideStatusPending || ride.PoolID == nil {
			r, err := s.repos.ride.Cancel(ctx, ride.ID, ride.Version, reason, now)
			if err != nil {
				conflict.Version = ride.Version
				return err
			}
			cancelled, left = r, nil
			return nil
		}

		pool, err := s.repos.pool.Get(ctx, *ride.PoolID)
		if err != nil {
			return err
		}
		conflict.PoolID, conflict.Version = pool.ID, pool.Version

		live := pool.Status == types.PoolStatusForming || pool.Status == types.PoolStatusConfirmed
		if !live || !pool.HasMember(ride.ID) {
			if err := s.rideMoved(ctx, ride, pool.ID); err != nil {
				return err
			}
			if !live {
				return fmt.Errorf("pool is %s: %w", pool.Status, types.ErrRideCannotBeCancelled)
			}
			return fmt.Errorf("ride missing from pool members: %w", types.ErrConflict)
		}

		return s.trm.Do(ctx, func(ctx context.Context) error {
			p, err := s.repos.pool.RemoveMember(ctx, pool.ID, pool.Version, ride, now)
			if err != nil {
				return err
			}
			r, err := s.repos.ride.Cancel(ctx, ride.ID, ride.Version, reason, now)
			if err != nil {
				return err
			}
			cancelled, left = r, p
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

	s.l.Info(ctx, "ride cancelled", "reason", reason, "attempts", attempts)

	if left != nil {
		ctx = wrap.WithPoolID(ctx, left.ID.String())
		if left.Status == types.PoolStatusCancelled {
			s.unindexPools(ctx, left.ID)
			s.publishPool(ctx, types.EventPoolCancelled, left, cancelled, types.ReasonEmpty)
		} else {
			if refreshed := s.refreshGeometry(ctx, left.ID); refreshed != nil {
				left = refreshed
			}
			s.publishPool(ctx, types.EventPoolLeft, left, cancelled, reason)
		}
	}

	return cancelled, nil
}

// markPooled attaches ride to poolID. When the ride moved on it tells a ride that
// is no longer pending (invalid state) from a plain version race (conflict).
func (s *Service) markPooled(ctx context.Context, ride *models.Ride, poolID uuid.UUID, now time.Time) (*models.Ride, error) {
	pooled, err := s.repos.ride.MarkPooled(ctx, ride.ID, ride.Version, poolID, now)
	if err == nil {
		return pooled, nil
	}
	if !errors.Is(err, types.ErrConflict) {
		return nil, err
	}

	current, getErr := s.repos.ride.Get(ctx, ride.ID)
	if getErr != nil {
		return nil, fmt.Errorf("failed to re-read ride: %w", getErr)
	}
	if current.Status != types.RideStatusPending {
		return nil, types.ErrRideNotPending
	}
	return nil, err
}

// rideMoved re-reads ride after its pool looked stale. A ride that changed since
// the first read (released by the reaper, re-pooled elsewhere) is a conflict, so
// the caller retries against fresh state.
func (s *Service) rideMoved(ctx context.Context, ride *models.Ride, poolID uuid.UUID) error {
	current, err := s.repos.ride.Get(ctx, ride.ID)
	if err != nil {
		return fmt.Errorf("failed to re-read ride: %w", err)
	}
	if current.Version != ride.Version || current.PoolID == nil || *current.PoolID != poolID {
		return fmt.Errorf("ride moved off pool %s: %w", poolID, types.ErrConflict)
	}
	return nil
}

// refreshGeometry recomputes centroid and bounds from the current members.
// The write is conditioned on the version just read and does not bump it, so a
// concurrent membership change simply wins and refreshes again later.
func (s *Service) refreshGeometry(ctx context.Context, poolID uuid.UUID) *models.Pool {
	ctx = wrap.WithAction(ctx, types.ActionRefreshGeo)

	pool, err := s.repos.pool.Get(ctx, poolID)
	if err != nil {
		s.l.Warn(ctx, "geometry refresh skipped", "error", err)
		return nil
	}
	if len(pool.Members) == 0 {
		return nil
	}

	members, err := s.repos.ride.ListByIDs(ctx, pool.Members)
	if err != nil {
		s.l.Warn(ctx, "geometry refresh skipped", "error", err)
		return nil
	}

	centroid, bounds, err := poolGeometry(members)
	if err != nil {
		s.l.Warn(ctx, "geometry refresh skipped", "error", err)
		return nil
	}

	ok, err := s.repos.pool.UpdateGeometry(ctx, pool.ID, pool.Version, centroid, bounds)
	if err != nil {
		s.l.Warn(ctx, "geometry refresh failed", "error", err)
		return nil
	}
	if !ok {
		s.l.Debug(ctx, "geometry refresh lost to a newer version", "version", pool.Version)
		return nil
	}

	pool.Centroid, pool.Bounds = centroid, bounds
	s.indexPool(ctx, pool)

	return pool
}

// priceRide prices ride for poolSize after its pool committed. Failures leave the
// estimate empty for the backfill worker.
func (s *Service) priceRide(ctx context.Context, ride *models.Ride, poolSize int) {
	ctx = wrap.WithAction(ctx, types.ActionPriceRide)
	if s.pricer == nil {
		return
	}

	price, err := s.pricer.Price(ctx, ride.DistanceKm, poolSize, ride.Luggage)
	if err != nil {
		s.l.Error(ctx, "pricing failed, leaving estimate empty", err)
		return
	}

	ok, err := s.repos.ride.SetEstimatedPrice(ctx, ride.ID, price)
	if err != nil {
		s.l.Error(ctx, "failed to store estimated price", err)
		return
	}
	if ok {
		ride.EstimatedPrice = &price
		ride.Version++
	}
}

func (s *Service) indexPool(ctx context.Context, pool *models.Pool) {
	if s.index == nil || pool.Status != types.PoolStatusForming {
		return
	}
	if err := s.index.Upsert(ctx, pool); err != nil {
		s.l.Warn(ctx, "geo index upsert failed", "pool_id", pool.ID, "error", err)
	}
}

func (s *Service) unindexPools(ctx context.Context, ids ...uuid.UUID) {
	if s.index == nil || len(ids) == 0 {
		return
	}
	if err := s.index.Remove(ctx, ids...); err != nil {
		s.l.Warn(ctx, "geo index removal failed", "error", err)
	}
}
