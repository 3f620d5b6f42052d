package pooling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	wrap "github.com/Temutjin2k/ride-pooling/pkg/logger/wrapper"
	"github.com/Temutjin2k/ride-pooling/pkg/metrics"
)

// selection is the outcome of one pass over the candidates.
type selection struct {
	pool     *models.Pool
	detourKm float64

	rejected int // candidates refused by CanAccept
}

// FindOrCreatePool places a pending ride into the best nearby pool, or into a
// new one when no candidate fits. A lost join (conflict or capacity) triggers a
// fresh selection until the retry budget is spent; creation is the fallback.
// On success ride is updated in place to its pooled state.
func (s *Service) FindOrCreatePool(ctx context.Context, ride *models.Ride) (*models.Pool, error) {
	pool, _, err := s.place(ctx, ride)
	return pool, err
}

// place is FindOrCreatePool that also reports the detour estimate of the chosen
// pool. A new pool holds only the ride, so its detour is 0.
func (s *Service) place(ctx context.Context, ride *models.Ride) (*models.Pool, float64, error) {
	ctx = wrap.WithAction(wrap.WithRideID(ctx, ride.ID.String()), types.ActionFindOrCreate)
	start := time.Now()

	if ride.Status != types.RideStatusPending {
		return nil, 0, wrap.Error(ctx, types.ErrRideNotPending)
	}

	// pools re-read after a lost join; they override stale candidate snapshots
	fresh := make(map[uuid.UUID]*models.Pool)

	for attempt := 1; attempt <= s.cfg.RetryBudget; attempt++ {
		sel, err := s.selectPool(ctx, ride, fresh)
		if err != nil {
			metrics.RecordMatch(metrics.OutcomeDeferred, time.Since(start))
			return nil, 0, wrap.Error(ctx, err)
		}
		if sel.pool == nil {
			break
		}

		pool, err := s.join(ctx, sel.pool, ride, &sel.detourKm)
		if err == nil {
			metrics.RecordMatch(metrics.OutcomeJoined, time.Since(start))
			s.l.Info(ctx, "ride joined pool",
				"pool_id", pool.ID,
				"seats_occupied", pool.SeatsOccupied,
				"detour_km", sel.detourKm, // centroid-spread estimate
				"attempt", attempt,
			)
			return pool, sel.detourKm, nil
		}
		if !types.IsOneOf(err, types.ErrConflict, types.ErrConstraintViolation) {
			metrics.RecordMatch(metrics.OutcomeFailed, time.Since(start))
			return nil, 0, err
		}
		if errors.Is(err, types.ErrConflict) {
			metrics.RecordConflict("join")
		} else {
			metrics.RecordConstraintRejection()
		}

		s.l.Debug(ctx, "join lost, reselecting", "pool_id", sel.pool.ID, "attempt", attempt, "reason", err.Error())

		if err := s.refreshAfterLoss(ctx, ride, sel.pool.ID, fresh); err != nil {
			metrics.RecordMatch(metrics.OutcomeFailed, time.Since(start))
			return nil, 0, wrap.Error(ctx, err)
		}
	}

	pool, err := s.Create(ctx, ride)
	if err != nil {
		metrics.RecordMatch(metrics.OutcomeFailed, time.Since(start))
		return nil, 0, err
	}

	metrics.RecordMatch(metrics.OutcomeCreated, time.Since(start))
	s.l.Info(ctx, "ride started a new pool", "pool_id", pool.ID, "expires_at", pool.ExpiresAt)

	return pool, 0, nil
}

// refreshAfterLoss re-reads the contested pool and the ride itself so the next
// selection works from current versions.
func (s *Service) refreshAfterLoss(ctx context.Context, ride *models.Ride, poolID uuid.UUID, fresh map[uuid.UUID]*models.Pool) error {
	pool, err := s.repos.pool.Get(ctx, poolID)
	switch {
	case err == nil:
		fresh[poolID] = pool
	case errors.Is(err, types.ErrNotFound):
		delete(fresh, poolID)
	default:
		return fmt.Errorf("failed to re-read pool: %w: %w", types.ErrUpstreamUnavailable, err)
	}

	current, err := s.repos.ride.Get(ctx, ride.ID)
	if err != nil {
		return fmt.Errorf("failed to re-read ride: %w", err)
	}
	if current.Status != types.RideStatusPending {
		return types.ErrRideNotPending
	}
	*ride = *current

	return nil
}

// selectPool walks the candidates in order and keeps the smallest detour within
// each pool's bound. Ties go to the earlier candidate.
func (s *Service) selectPool(ctx context.Context, ride *models.Ride, fresh map[uuid.UUID]*models.Pool) (selection, error) {
	now := s.now()

	candidates, err := s.finder.FindCandidates(ctx, models.CandidateQuery{
		Near:     ride.Pickup.Point(),
		RadiusKm: s.cfg.SearchRadiusKm,
		MaxSeats: s.cfg.Limits.MaxSeats,
		Now:      now,
		Limit:    s.cfg.CandidateLimit,
	})
	if err != nil {
		return selection{}, fmt.Errorf("failed to read candidates: %w: %w", types.ErrUpstreamUnavailable, err)
	}

	for i, c := range candidates {
		if f, ok := fresh[c.ID]; ok && f.Version >= c.Version {
			candidates[i] = f
		}
	}
	SortCandidates(candidates)

	open := candidates[:0:0]
	for _, c := range candidates {
		if c.IsOpen(now) && !c.HasMember(ride.ID) {
			open = append(open, c)
		}
	}
	if len(open) == 0 {
		return selection{}, nil
	}

	members, err := s.membersOf(ctx, open)
	if err != nil {
		return selection{}, fmt.Errorf("failed to read pool members: %w: %w", types.ErrUpstreamUnavailable, err)
	}

	sel := pickBest(open, members, ride, s.cfg.Limits)
	if sel.rejected > 0 {
		for range sel.rejected {
			metrics.RecordConstraintRejection()
		}
		s.l.Debug(ctx, "candidates rejected by capacity", "count", sel.rejected)
	}

	return sel, nil
}

// pickBest expects candidates already sorted.
func pickBest(candidates []*models.Pool, members map[uuid.UUID]*models.Ride, ride *models.Ride, limits models.PoolLimits) selection {
	var sel selection
	for _, pool := range candidates {
		if !CanAccept(pool, ride, limits) {
			sel.rejected++
			continue
		}

		poolMembers := make([]*models.Ride, 0, len(pool.Members))
		for _, id := range pool.Members {
			if m, ok := members[id]; ok {
				poolMembers = append(poolMembers, m)
			}
		}

		d := Detour(poolMembers, ride)
		if d > pool.MaxDetourKm {
			continue
		}
		if sel.pool == nil || d < sel.detourKm {
			sel.pool = pool
			sel.detourKm = d
		}
	}
	return sel
}

func (s *Service) membersOf(ctx context.Context, pools []*models.Pool) (map[uuid.UUID]*models.Ride, error) {
	var ids []uuid.UUID
	for _, p := range pools {
		ids = append(ids, p.Members...)
	}

	rides, err := s.repos.ride.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*models.Ride, len(rides))
	for _, r := range rides {
		byID[r.ID] = r
	}
	return byID, nil
}

// SortCandidates orders pools fullest first, then oldest, then by id.
func SortCandidates(pools []*models.Pool) {
	slices.SortStableFunc(pools, func(a, b *models.Pool) int {
		if a.SeatsOccupied != b.SeatsOccupied {
			return b.SeatsOccupied - a.SeatsOccupied
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
}
