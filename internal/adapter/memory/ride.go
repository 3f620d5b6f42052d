package memory

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
)

type RideRepo struct {
	s *Store
}

func (s *Store) Rides() *RideRepo {
	return &RideRepo{s: s}
}

func (r *RideRepo) Create(ctx context.Context, ride *models.Ride) error {
	const op = "RideRepo.Create"
	t, unlock := r.s.lock(ctx)
	defer unlock()

	if _, exists := r.s.rides[ride.ID]; exists {
		return fmt.Errorf("%s: ride %s already exists", op, ride.ID)
	}
	r.s.putRide(t, cloneRide(ride))
	return nil
}

func (r *RideRepo) Get(ctx context.Context, id uuid.UUID) (*models.Ride, error) {
	_, unlock := r.s.lock(ctx)
	defer unlock()

	ride, ok := r.s.rides[id]
	if !ok {
		return nil, types.ErrRideNotFound
	}
	return cloneRide(ride), nil
}

func (r *RideRepo) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Ride, error) {
	_, unlock := r.s.lock(ctx)
	defer unlock()

	out := make([]*models.Ride, 0, len(ids))
	for _, id := range ids {
		if ride, ok := r.s.rides[id]; ok {
			out = append(out, cloneRide(ride))
		}
	}
	return out, nil
}

func (r *RideRepo) MarkPooled(ctx context.Context, rideID uuid.UUID, version int64, poolID uuid.UUID, now time.Time) (*models.Ride, error) {
	const op = "RideRepo.MarkPooled"
	t, unlock := r.s.lock(ctx)
	defer unlock()

	ride, ok := r.s.rides[rideID]
	if !ok || ride.Version != version || ride.Status != types.RideStatusPending {
		return nil, fmt.Errorf("%s: %w", op, types.ErrConflict)
	}

	next := cloneRide(ride)
	next.Status = types.RideStatusPooled
	next.PoolID = &poolID
	next.PooledAt = &now
	next.UpdatedAt = now
	next.Version++
	r.s.putRide(t, next)

	return cloneRide(next), nil
}

func (r *RideRepo) Cancel(ctx context.Context, rideID uuid.UUID, version int64, reason string, now time.Time) (*models.Ride, error) {
	const op = "RideRepo.Cancel"
	t, unlock := r.s.lock(ctx)
	defer unlock()

	ride, ok := r.s.rides[rideID]
	if !ok || ride.Version != version ||
		(ride.Status != types.RideStatusPending && ride.Status != types.RideStatusPooled) {
		return nil, fmt.Errorf("%s: %w", op, types.ErrConflict)
	}

	next := cloneRide(ride)
	next.Status = types.RideStatusCancelled
	next.PoolID = nil
	next.CancellationReason = &reason
	next.CancelledAt = &now
	next.UpdatedAt = now
	next.Version++
	r.s.putRide(t, next)

	return cloneRide(next), nil
}

func (r *RideRepo) ReleaseByPool(ctx context.Context, poolID uuid.UUID, now time.Time) ([]*models.Ride, error) {
	return r.updateByPool(ctx, poolID, func(next *models.Ride) {
		next.Status = types.RideStatusPending
		next.PoolID = nil
		next.PooledAt = nil
		next.EstimatedPrice = nil
		next.UpdatedAt = now
	})
}

func (r *RideRepo) CompleteByPool(ctx context.Context, poolID uuid.UUID, now time.Time) ([]*models.Ride, error) {
	return r.updateByPool(ctx, poolID, func(next *models.Ride) {
		next.Status = types.RideStatusCompleted
		next.CompletedAt = &now
		next.UpdatedAt = now
	})
}

// updateByPool applies fn to every pooled ride of poolID, in id order.
func (r *RideRepo) updateByPool(ctx context.Context, poolID uuid.UUID, fn func(next *models.Ride)) ([]*models.Ride, error) {
	t, unlock := r.s.lock(ctx)
	defer unlock()

	var out []*models.Ride
	for _, ride := range r.s.rides {
		if ride.Status != types.RideStatusPooled || ride.PoolID == nil || *ride.PoolID != poolID {
			continue
		}
		next := cloneRide(ride)
		fn(next)
		next.Version++
		r.s.putRide(t, next)
		out = append(out, cloneRide(next))
	}

	slices.SortFunc(out, func(a, b *models.Ride) int { return compareIDs(a.ID, b.ID) })
	return out, nil
}

func (r *RideRepo) SetEstimatedPrice(ctx context.Context, rideID uuid.UUID, price float64) (bool, error) {
	t, unlock := r.s.lock(ctx)
	defer unlock()

	ride, ok := r.s.rides[rideID]
	if !ok || ride.Status != types.RideStatusPooled || ride.EstimatedPrice != nil {
		return false, nil
	}

	next := cloneRide(ride)
	next.EstimatedPrice = &price
	next.Version++
	r.s.putRide(t, next)
	return true, nil
}

func (r *RideRepo) SetActualPrice(ctx context.Context, rideID uuid.UUID, price float64) (bool, error) {
	t, unlock := r.s.lock(ctx)
	defer unlock()

	ride, ok := r.s.rides[rideID]
	if !ok || ride.Status != types.RideStatusCompleted || ride.ActualPrice != nil {
		return false, nil
	}

	next := cloneRide(ride)
	next.ActualPrice = &price
	next.Version++
	r.s.putRide(t, next)
	return true, nil
}

func (r *RideRepo) ListUnpriced(ctx context.Context, limit int) ([]*models.Ride, error) {
	_, unlock := r.s.lock(ctx)
	defer unlock()

	var out []*models.Ride
	for _, ride := range r.s.rides {
		if ride.Status == types.RideStatusPooled && ride.EstimatedPrice == nil {
			out = append(out, cloneRide(ride))
		}
	}

	slices.SortFunc(out, func(a, b *models.Ride) int {
		if a.PooledAt != nil && b.PooledAt != nil {
			if c := a.PooledAt.Compare(*b.PooledAt); c != 0 {
				return c
			}
		}
		return compareIDs(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func compareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
