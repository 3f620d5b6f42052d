package pooling

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Temutjin2k/ride-pooling/internal/adapter/memory"
	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
)

func TestCancelRide_Pending(t *testing.T) {
	h := newHarness(t)
	ride := pendingRide(t, h, rideRequest(clusterA, 0))

	cancelled, err := h.svc.CancelRide(context.Background(), ride.ID, "")
	require.NoError(t, err)

	assert.Equal(t, types.RideStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, types.ReasonCancelled, *cancelled.CancellationReason)
	assert.Empty(t, h.publisher.eventTypes())
}

func TestCancelRide_PooledReturnsSeat(t *testing.T) {
	h := newHarness(t)
	first := h.request(t, clusterA, 1)
	second := h.request(t, clusterB, 2)
	require.Equal(t, first.Pool.ID, second.Pool.ID)

	before := h.pool(t, first.Pool.ID)

	_, err := h.svc.CancelRide(context.Background(), second.Ride.ID, "changed plans")
	require.NoError(t, err)

	after := h.pool(t, first.Pool.ID)
	assert.Equal(t, 1, after.SeatsOccupied)
	assert.Equal(t, 1, after.LuggageTotal)
	assert.Equal(t, []uuid.UUID{first.Ride.ID}, after.Members)
	assert.Equal(t, before.Version+1, after.Version)
	assert.Equal(t, types.PoolStatusForming, after.Status)
	assert.Equal(t, clusterA, after.Centroid)

	ride := h.ride(t, second.Ride.ID)
	assert.Equal(t, types.RideStatusCancelled, ride.Status)
	require.NotNil(t, ride.CancellationReason)
	assert.Equal(t, "changed plans", *ride.CancellationReason)

	events := h.publisher.eventTypes()
	assert.Equal(t, types.EventPoolLeft, events[len(events)-1])
	h.requireInvariants(t)
}

func TestCancelRide_Twice(t *testing.T) {
	h := newHarness(t)
	first := h.request(t, clusterA, 0)
	second := h.request(t, clusterA, 0)

	_, err := h.svc.CancelRide(context.Background(), second.Ride.ID, "")
	require.NoError(t, err)
	version := h.pool(t, first.Pool.ID).Version

	_, err = h.svc.CancelRide(context.Background(), second.Ride.ID, "")
	assert.ErrorIs(t, err, types.ErrInvalidState)
	assert.Equal(t, version, h.pool(t, first.Pool.ID).Version)
	assert.Equal(t, 1, h.pool(t, first.Pool.ID).SeatsOccupied)
}

func TestCancelRide_LastMemberCancelsPool(t *testing.T) {
	h := newHarness(t)
	res := h.request(t, clusterA, 0)
	require.True(t, h.index.has(res.Pool.ID))

	_, err := h.svc.CancelRide(context.Background(), res.Ride.ID, "")
	require.NoError(t, err)

	pool := h.pool(t, res.Pool.ID)
	assert.Equal(t, types.PoolStatusCancelled, pool.Status)
	assert.Equal(t, 0, pool.SeatsOccupied)
	require.NotNil(t, pool.CancellationReason)
	assert.Equal(t, types.ReasonEmpty, *pool.CancellationReason)
	assert.False(t, h.index.has(res.Pool.ID))

	assert.Equal(t, []types.PoolEvent{types.EventPoolCreated, types.EventPoolCancelled}, h.publisher.eventTypes())
}

func TestCancelRide_NotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.CancelRide(context.Background(), uuid.New(), "")
	assert.ErrorIs(t, err, types.ErrRideNotFound)
}

// conflictingPools loses every RemoveMember race.
type conflictingPools struct {
	*memory.PoolRepo
	calls atomic.Int32
}

func (p *conflictingPools) RemoveMember(context.Context, uuid.UUID, int64, *models.Ride, time.Time) (*models.Pool, error) {
	p.calls.Add(1)
	return nil, types.ErrConflict
}

func TestCancelRide_ConflictAfterRetryBudget(t *testing.T) {
	var pools *conflictingPools
	h := newHarness(t, withPoolRepo(func(s *memory.Store) PoolRepo {
		pools = &conflictingPools{PoolRepo: s.Pools()}
		return pools
	}))
	res := h.request(t, clusterA, 0)

	_, err := h.svc.CancelRide(context.Background(), res.Ride.ID, "")

	var conflict *types.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, types.ErrConflict)
	assert.Equal(t, 3, conflict.Attempts)
	assert.Equal(t, res.Ride.ID, conflict.RideID)
	assert.Equal(t, res.Pool.ID, conflict.PoolID)
	assert.Equal(t, int32(3), pools.calls.Load())

	assert.Equal(t, types.RideStatusPooled, h.ride(t, res.Ride.ID).Status)
	assert.Equal(t, 1, h.pool(t, res.Pool.ID).SeatsOccupied)
}

func TestCreate_RollsBackWhenRideMoved(t *testing.T) {
	h := newHarness(t)
	ride := pendingRide(t, h, rideRequest(clusterA, 0))

	stale := *ride
	stale.Version = 99

	_, err := h.svc.Create(context.Background(), &stale)
	assert.ErrorIs(t, err, types.ErrConflict)

	pools, _ := h.store.Snapshot()
	assert.Empty(t, pools)
	assert.Equal(t, types.RideStatusPending, h.ride(t, ride.ID).Status)
	assert.Empty(t, h.publisher.eventTypes())
}

func TestJoin_RideAlreadyPooled(t *testing.T) {
	h := newHarness(t)
	pooled := h.request(t, clusterA, 0)

	other, err := h.svc.Create(context.Background(), pendingRide(t, h, rideRequest(clusterB, 0)))
	require.NoError(t, err)

	// a copy of the ride as it looked before it was pooled
	stale := *pooled.Ride
	stale.Status = types.RideStatusPending
	stale.PoolID = nil
	stale.Version = 1

	_, err = h.svc.Join(context.Background(), other, &stale)
	assert.ErrorIs(t, err, types.ErrInvalidState)

	after := h.pool(t, other.ID)
	assert.Equal(t, 1, after.SeatsOccupied)
	assert.Equal(t, other.Version, after.Version)
	h.requireInvariants(t)
}

func TestJoin_ExpiredPoolIsConflict(t *testing.T) {
	h := newHarness(t)
	res := h.request(t, clusterA, 0)
	h.clock.Advance(15 * time.Minute)

	ride := pendingRide(t, h, rideRequest(clusterA, 0))
	_, err := h.svc.Join(context.Background(), res.Pool, ride)
	assert.ErrorIs(t, err, types.ErrConflict)
	assert.Equal(t, types.RideStatusPending, h.ride(t, ride.ID).Status)
}

func TestJoin_CapacityViolation(t *testing.T) {
	h := newHarness(t)
	res := h.request(t, clusterA, 3)
	h.request(t, clusterA, 3)
	pool := h.pool(t, res.Pool.ID)
	require.Equal(t, 6, pool.LuggageTotal)

	ride := pendingRide(t, h, rideRequest(clusterA, 1))
	_, err := h.svc.Join(context.Background(), pool, ride)
	assert.ErrorIs(t, err, types.ErrConstraintViolation)
}

func TestJoin_PricingFailureKeepsMembership(t *testing.T) {
	h := newHarness(t, withPricer(fixedPricer{err: errors.New("tariff service down")}))

	res := h.request(t, clusterA, 0)

	assert.Nil(t, res.Ride.EstimatedPrice)
	assert.Equal(t, types.RideStatusPooled, h.ride(t, res.Ride.ID).Status)
	assert.Equal(t, 1, h.pool(t, res.Pool.ID).SeatsOccupied)
}

// expiringPools runs the expiry sweep right before the first Get, so the ride
// read by the caller no longer matches the pool it points at.
type expiringPools struct {
	*memory.PoolRepo
	h     *harness
	fired atomic.Bool
}

func (p *expiringPools) Get(ctx context.Context, id uuid.UUID) (*models.Pool, error) {
	if p.h != nil && p.fired.CompareAndSwap(false, true) {
		p.h.clock.Advance(16 * time.Minute)
		if _, err := p.h.svc.ExpireForming(ctx, p.h.clock.Now()); err != nil {
			return nil, err
		}
	}
	return p.PoolRepo.Get(ctx, id)
}

func TestCancelRide_PoolExpiredMidway(t *testing.T) {
	var pools *expiringPools
	h := newHarness(t, withPoolRepo(func(s *memory.Store) PoolRepo {
		pools = &expiringPools{PoolRepo: s.Pools()}
		return pools
	}))
	res := h.request(t, clusterA, 0)
	pools.h = h

	cancelled, err := h.svc.CancelRide(context.Background(), res.Ride.ID, "")
	require.NoError(t, err)
	assert.Equal(t, types.RideStatusCancelled, cancelled.Status)

	assert.Equal(t, types.PoolStatusCancelled, h.pool(t, res.Pool.ID).Status)
	assert.Equal(t, types.RideStatusCancelled, h.ride(t, res.Ride.ID).Status)

	// the sweep re-pooled the ride, the retried cancel emptied that new pool
	h.publisher.mu.Lock()
	last := h.publisher.events[len(h.publisher.events)-1]
	h.publisher.mu.Unlock()
	assert.Equal(t, types.EventPoolCancelled, last.Type)
	assert.NotEqual(t, res.Pool.ID, last.PoolID)

	rematched := h.pool(t, last.PoolID)
	assert.Equal(t, types.PoolStatusCancelled, rematched.Status)
	assert.Equal(t, 0, rematched.SeatsOccupied)
	h.requireInvariants(t)
}

func TestCancelRide_CompletedPoolStillInvalidState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.request(t, clusterA, 0)

	_, err := h.svc.Start(ctx, mustConfirm(t, h, res.Pool.ID))
	require.NoError(t, err)

	_, err = h.svc.CancelRide(ctx, res.Ride.ID, "")
	assert.ErrorIs(t, err, types.ErrInvalidState)
	assert.NotErrorIs(t, err, types.ErrConflict)
}

func mustConfirm(t *testing.T, h *harness, poolID uuid.UUID) uuid.UUID {
	t.Helper()
	_, err := h.svc.Confirm(context.Background(), poolID)
	require.NoError(t, err)
	return poolID
}
