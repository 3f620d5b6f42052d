package pooling

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
)

// Publishers fans a pool event out to every publisher and joins their errors.
type Publishers []Publisher

func (ps Publishers) PublishPoolEvent(ctx context.Context, evt models.PoolEventMessage) error {
	var errs []error
	for _, p := range ps {
		if p == nil {
			continue
		}
		if err := p.PublishPoolEvent(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// publishPool emits evt for pool after commit. ride is the ride that caused the
// event, if any. affected lists rides whose passengers must hear about it even
// though they are no longer members.
func (s *Service) publishPool(ctx context.Context, evt types.PoolEvent, pool *models.Pool, ride *models.Ride, reason string, affected ...*models.Ride) {
	s.publishPoolDetour(ctx, evt, pool, ride, reason, nil, affected...)
}

func (s *Service) publishPoolDetour(ctx context.Context, evt types.PoolEvent, pool *models.Pool, ride *models.Ride, reason string, detourKm *float64, affected ...*models.Ride) {
	if s.publisher == nil || pool == nil {
		return
	}

	msg := models.PoolEventMessage{
		Type:          evt,
		PoolID:        pool.ID,
		Members:       pool.Members,
		Status:        pool.Status,
		SeatsOccupied: pool.SeatsOccupied,
		LuggageTotal:  pool.LuggageTotal,
		Version:       pool.Version,
		DetourKm:      detourKm,
		Reason:        reason,
		OccurredAt:    s.now(),
	}
	if ride != nil {
		msg.RideID = &ride.ID
		msg.PassengerID = &ride.PassengerID
	}

	seen := make(map[uuid.UUID]struct{})
	add := func(r *models.Ride) {
		if _, ok := seen[r.PassengerID]; ok {
			return
		}
		seen[r.PassengerID] = struct{}{}
		msg.Passengers = append(msg.Passengers, r.PassengerID)
	}
	if ride != nil {
		add(ride)
	}
	for _, r := range affected {
		add(r)
	}
	if len(pool.Members) > 0 {
		members, err := s.repos.ride.ListByIDs(ctx, pool.Members)
		if err != nil {
			s.l.Warn(ctx, "could not resolve pool passengers", "error", err)
		}
		for _, r := range members {
			add(r)
		}
	}

	if err := s.publisher.PublishPoolEvent(ctx, msg); err != nil {
		s.l.Error(ctx, "failed to publish pool event", err, "event", evt)
	}
}
