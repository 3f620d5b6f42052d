package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	"github.com/Temutjin2k/ride-pooling/pkg/geo"
)

type PoolRepo struct {
	s *Store
}

func (s *Store) Pools() *PoolRepo {
	return &PoolRepo{s: s}
}

func (r *PoolRepo) Create(ctx context.Context, pool *models.Pool) error {
	const op = "PoolRepo.Create"
	t, unlock := r.s.lock(ctx)
	defer unlock()

	if _, exists := r.s.pools[pool.ID]; exists {
		return fmt.Errorf("%s: pool %s already exists", op, pool.ID)
	}
	r.s.putPool(t, pool.Clone())
	return nil
}

func (r *PoolRepo) Get(ctx context.Context, id uuid.UUID) (*models.Pool, error) {
	_, unlock := r.s.lock(ctx)
	defer unlock()

	p, ok := r.s.pools[id]
	if !ok {
		return nil, types.ErrPoolNotFound
	}
	return p.Clone(), nil
}

// FindCandidates applies the same predicates, ordering and limit as the SQL query.
func (r *PoolRepo) FindCandidates(ctx context.Context, q models.CandidateQuery) ([]*models.Pool, error) {
	_, unlock := r.s.lock(ctx)
	defer unlock()

	var out []*models.Pool
	for _, p := range r.s.pools {
		if p.Status != types.PoolStatusForming || p.SeatsOccupied >= q.MaxSeats || !p.ExpiresAt.After(q.Now) {
			continue
		}
		if q.PoolIDs != nil && !containsID(q.PoolIDs, p.ID) {
			continue
		}
		if geo.Distance(q.Near, p.Centroid) > q.RadiusKm {
			continue
		}
		out = append(out, p.Clone())
	}

	slices.SortFunc(out, func(a, b *models.Pool) int {
		if a.SeatsOccupied != b.SeatsOccupied {
			return b.SeatsOccupied - a.SeatsOccupied
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	return out, nil
}

func (r *PoolRepo) AddMember(ctx context.Context, poolID uuid.UUID, version int64, ride *models.Ride, limits models.PoolLimits, now time.Time) (*models.Pool, error) {
	const op = "PoolRepo.AddMember"
	t, unlock := r.s.lock(ctx)
	defer unlock()

	p, ok := r.s.pools[poolID]
	if !ok || p.Version != version || p.Status != types.PoolStatusForming || !p.ExpiresAt.After(now) ||
		p.SeatsOccupied >= limits.MaxSeats || p.LuggageTotal+ride.Luggage > limits.MaxLuggage {
		return nil, fmt.Errorf("%s: %w", op, types.ErrConflict)
	}

	next := p.Clone()
	next.Members = append(next.Members, ride.ID)
	next.SeatsOccupied++
	next.LuggageTotal += ride.Luggage
	next.Version++
	next.UpdatedAt = now
	r.s.putPool(t, next)

	return next.Clone(), nil
}

func (r *PoolRepo) RemoveMember(ctx context.Context, poolID uuid.UUID, version int64, ride *models.Ride, now time.Time) (*models.Pool, error) {
	const op = "PoolRepo.RemoveMember"
	t, unlock := r.s.lock(ctx)
	defer unlock()

	p, ok := r.s.pools[poolID]
	if !ok || p.Version != version || !p.HasMember(ride.ID) ||
		(p.Status != types.PoolStatusForming && p.Status != types.PoolStatusConfirmed) {
		return nil, fmt.Errorf("%s: %w", op, types.ErrConflict)
	}

	next := p.Clone()
	next.Members = slices.DeleteFunc(next.Members, func(id uuid.UUID) bool { return id == ride.ID })
	next.SeatsOccupied--
	next.LuggageTotal -= ride.Luggage
	if next.SeatsOccupied == 0 {
		reason := types.ReasonEmpty
		next.Status = types.PoolStatusCancelled
		next.CancellationReason = &reason
		next.CancelledAt = &now
	}
	next.Version++
	next.UpdatedAt = now
	r.s.putPool(t, next)

	return next.Clone(), nil
}

func (r *PoolRepo) UpdateStatus(ctx context.Context, poolID uuid.UUID, version int64, from, to types.PoolStatus, reason *string, now time.Time) (*models.Pool, error) {
	const op = "PoolRepo.UpdateStatus"
	t, unlock := r.s.lock(ctx)
	defer unlock()

	p, ok := r.s.pools[poolID]
	if !ok || p.Version != version || p.Status != from {
		return nil, fmt.Errorf("%s: %w", op, types.ErrConflict)
	}

	next := p.Clone()
	next.Status = to
	switch to {
	case types.PoolStatusConfirmed:
		next.ConfirmedAt = &now
	case types.PoolStatusInProgress:
		next.StartedAt = &now
	case types.PoolStatusCompleted:
		next.CompletedAt = &now
	case types.PoolStatusCancelled:
		next.CancelledAt = &now
	}
	if reason != nil {
		rs := *reason
		next.CancellationReason = &rs
	}
	next.Version++
	next.UpdatedAt = now
	r.s.putPool(t, next)

	return next.Clone(), nil
}

func (r *PoolRepo) UpdateGeometry(ctx context.Context, poolID uuid.UUID, version int64, centroid geo.Point, bounds geo.BoundingBox) (bool, error) {
	t, unlock := r.s.lock(ctx)
	defer unlock()

	p, ok := r.s.pools[poolID]
	if !ok || p.Version != version {
		return false, nil
	}

	next := p.Clone()
	next.Centroid = centroid
	next.Bounds = bounds
	r.s.putPool(t, next)

	return true, nil
}

func (r *PoolRepo) ListExpiredForming(ctx context.Context, now time.Time, limit int) ([]*models.Pool, error) {
	_, unlock := r.s.lock(ctx)
	defer unlock()

	var out []*models.Pool
	for _, p := range r.s.pools {
		if p.IsExpired(now) {
			out = append(out, p.Clone())
		}
	}

	slices.SortFunc(out, func(a, b *models.Pool) int {
		if c := a.ExpiresAt.Compare(b.ExpiresAt); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}
