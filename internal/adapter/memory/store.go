// Package memory is an in-process storage driver with the same conditional
// write semantics as the Postgres repositories.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
)

// Store holds pools and rides behind one mutex. It doubles as the transaction
// manager: Do holds the lock for the whole closure and undoes its writes on error.
type Store struct {
	mu    sync.Mutex
	pools map[uuid.UUID]*models.Pool
	rides map[uuid.UUID]*models.Ride
}

func NewStore() *Store {
	return &Store{
		pools: make(map[uuid.UUID]*models.Pool),
		rides: make(map[uuid.UUID]*models.Ride),
	}
}

type txKey struct{}

type tx struct {
	undo []func()
}

// Do runs fn atomically. Nested calls join the outer transaction.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*tx); ok {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{}
	defer func() {
		if p := recover(); p != nil {
			t.rollback()
			panic(p)
		}
		if err != nil {
			t.rollback()
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, t))
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// lock takes the store mutex unless ctx already runs inside Do.
// The returned function releases it.
func (s *Store) lock(ctx context.Context) (*tx, func()) {
	if t, ok := ctx.Value(txKey{}).(*tx); ok {
		return t, func() {}
	}
	s.mu.Lock()
	return nil, s.mu.Unlock
}

// putPool stores p and, inside a transaction, records how to restore the previous value.
func (s *Store) putPool(t *tx, p *models.Pool) {
	if t != nil {
		prev, existed := s.pools[p.ID]
		id := p.ID
		t.undo = append(t.undo, func() {
			if existed {
				s.pools[id] = prev
			} else {
				delete(s.pools, id)
			}
		})
	}
	s.pools[p.ID] = p
}

func (s *Store) putRide(t *tx, r *models.Ride) {
	if t != nil {
		prev, existed := s.rides[r.ID]
		id := r.ID
		t.undo = append(t.undo, func() {
			if existed {
				s.rides[id] = prev
			} else {
				delete(s.rides, id)
			}
		})
	}
	s.rides[r.ID] = r
}

func cloneRide(r *models.Ride) *models.Ride {
	c := *r
	return &c
}

// Snapshot returns copies of every pool and ride. Tests use it to check invariants.
func (s *Store) Snapshot() ([]*models.Pool, []*models.Ride) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pools := make([]*models.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, p.Clone())
	}
	rides := make([]*models.Ride, 0, len(s.rides))
	for _, r := range s.rides {
		rides = append(rides, cloneRide(r))
	}
	return pools, rides
}

// CheckInvariants verifies seat and luggage accounting and single membership.
// Cancelled pools keep their member list for audit and are excluded from the membership check.
func (s *Store) CheckInvariants(maxSeats int) error {
	pools, rides := s.Snapshot()

	byID := make(map[uuid.UUID]*models.Ride, len(rides))
	for _, r := range rides {
		byID[r.ID] = r
	}

	membership := make(map[uuid.UUID]uuid.UUID)
	for _, p := range pools {
		if p.SeatsOccupied != len(p.Members) {
			return fmt.Errorf("pool %s: seats %d != members %d", p.ID, p.SeatsOccupied, len(p.Members))
		}
		if p.SeatsOccupied > maxSeats {
			return fmt.Errorf("pool %s: overbooked with %d seats", p.ID, p.SeatsOccupied)
		}
		luggage := 0
		for _, id := range p.Members {
			r, ok := byID[id]
			if !ok {
				return fmt.Errorf("pool %s: unknown member %s", p.ID, id)
			}
			luggage += r.Luggage
			if p.Status == types.PoolStatusCancelled {
				continue
			}
			if other, dup := membership[id]; dup {
				return fmt.Errorf("ride %s is a member of %s and %s", id, other, p.ID)
			}
			membership[id] = p.ID
		}
		if luggage != p.LuggageTotal {
			return fmt.Errorf("pool %s: luggage %d != member sum %d", p.ID, p.LuggageTotal, luggage)
		}
	}

	for _, r := range rides {
		if r.Status != types.RideStatusPooled {
			continue
		}
		poolID, ok := membership[r.ID]
		if !ok || r.PoolID == nil || *r.PoolID != poolID {
			return fmt.Errorf("pooled ride %s is not a member of its pool", r.ID)
		}
	}

	return nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	return slices.Contains(ids, id)
}
