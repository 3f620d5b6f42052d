package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	"github.com/Temutjin2k/ride-pooling/pkg/geo"
)

var (
	testNow    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testLimits = models.PoolLimits{MaxSeats: 4, MaxLuggage: 6}
)

func newRide(p geo.Point, luggage int) *models.Ride {
	return &models.Ride{
		ID:          uuid.New(),
		PassengerID: uuid.New(),
		Pickup:      models.LocationFromPoint(p),
		Dropoff:     models.LocationFromPoint(geo.Point{Lat: p.Lat + 0.01, Lng: p.Lng}),
		Luggage:     luggage,
		Status:      types.RideStatusPending,
		Version:     1,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}
}

func newPool(at geo.Point, seats int, created time.Time) *models.Pool {
	members := make([]uuid.UUID, seats)
	for i := range members {
		members[i] = uuid.New()
	}
	return &models.Pool{
		ID:            uuid.New(),
		Members:       members,
		Status:        types.PoolStatusForming,
		SeatsOccupied: seats,
		Centroid:      at,
		MaxDetourKm:   3,
		ExpiresAt:     created.Add(15 * time.Minute),
		Version:       1,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func TestStore_DoRollsBackOnError(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ride := newRide(geo.Point{Lat: 28.55, Lng: 77.10}, 1)
	require.NoError(t, s.Rides().Create(ctx, ride))

	pool := newPool(geo.Point{Lat: 28.55, Lng: 77.10}, 0, testNow)
	boom := errors.New("boom")

	err := s.Do(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Pools().Create(ctx, pool))
		_, err := s.Rides().MarkPooled(ctx, ride.ID, ride.Version, pool.ID, testNow)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Pools().Get(ctx, pool.ID)
	assert.ErrorIs(t, err, types.ErrPoolNotFound)

	got, err := s.Rides().Get(ctx, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RideStatusPending, got.Status)
	assert.Equal(t, int64(1), got.Version)
}

func TestStore_NestedDoJoinsOuter(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ride := newRide(geo.Point{Lat: 28.55, Lng: 77.10}, 0)

	err := s.Do(ctx, func(ctx context.Context) error {
		return s.Do(ctx, func(ctx context.Context) error {
			if err := s.Rides().Create(ctx, ride); err != nil {
				return err
			}
			return errors.New("inner failure")
		})
	})
	require.Error(t, err)

	_, err = s.Rides().Get(ctx, ride.ID)
	assert.ErrorIs(t, err, types.ErrRideNotFound)
}

func TestPoolRepo_AddMemberIsConditional(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	at := geo.Point{Lat: 28.55, Lng: 77.10}
	pool := newPool(at, 3, testNow)
	require.NoError(t, s.Pools().Create(ctx, pool))

	first := newRide(at, 1)
	second := newRide(at, 1)

	joined, err := s.Pools().AddMember(ctx, pool.ID, 1, first, testLimits, testNow)
	require.NoError(t, err)
	assert.Equal(t, 4, joined.SeatsOccupied)
	assert.Equal(t, int64(2), joined.Version)

	// same read version loses
	_, err = s.Pools().AddMember(ctx, pool.ID, 1, second, testLimits, testNow)
	assert.ErrorIs(t, err, types.ErrConflict)

	// current version, but full
	_, err = s.Pools().AddMember(ctx, pool.ID, 2, second, testLimits, testNow)
	assert.ErrorIs(t, err, types.ErrConflict)
}

func TestPoolRepo_RemoveLastMemberCancels(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	at := geo.Point{Lat: 28.55, Lng: 77.10}
	ride := newRide(at, 2)

	pool := newPool(at, 0, testNow)
	pool.Members = []uuid.UUID{ride.ID}
	pool.SeatsOccupied = 1
	pool.LuggageTotal = 2
	require.NoError(t, s.Pools().Create(ctx, pool))

	left, err := s.Pools().RemoveMember(ctx, pool.ID, 1, ride, testNow)
	require.NoError(t, err)
	assert.Equal(t, types.PoolStatusCancelled, left.Status)
	assert.Equal(t, 0, left.SeatsOccupied)
	assert.Equal(t, 0, left.LuggageTotal)
	require.NotNil(t, left.CancellationReason)
	assert.Equal(t, types.ReasonEmpty, *left.CancellationReason)
}

func TestPoolRepo_FindCandidates(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	at := geo.Point{Lat: 28.55, Lng: 77.10}

	older := newPool(at, 2, testNow.Add(-5*time.Minute))
	newer := newPool(at, 2, testNow.Add(-1*time.Minute))
	fuller := newPool(at, 3, testNow)
	full := newPool(at, 4, testNow)
	expired := newPool(at, 3, testNow.Add(-16*time.Minute))
	far := newPool(geo.Point{Lat: 28.70, Lng: 77.10}, 3, testNow) // ~16.7 km north
	confirmed := newPool(at, 2, testNow)
	confirmed.Status = types.PoolStatusConfirmed

	for _, p := range []*models.Pool{older, newer, fuller, full, expired, far, confirmed} {
		require.NoError(t, s.Pools().Create(ctx, p))
	}

	got, err := s.Pools().FindCandidates(ctx, models.CandidateQuery{
		Near: at, RadiusKm: 5, MaxSeats: 4, Now: testNow, Limit: 20,
	})
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []uuid.UUID{fuller.ID, older.ID, newer.ID}, ids)

	limited, err := s.Pools().FindCandidates(ctx, models.CandidateQuery{
		Near: at, RadiusKm: 5, MaxSeats: 4, Now: testNow, Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, fuller.ID, limited[0].ID)

	narrowed, err := s.Pools().FindCandidates(ctx, models.CandidateQuery{
		Near: at, RadiusKm: 5, MaxSeats: 4, Now: testNow, Limit: 20, PoolIDs: []uuid.UUID{newer.ID},
	})
	require.NoError(t, err)
	require.Len(t, narrowed, 1)
	assert.Equal(t, newer.ID, narrowed[0].ID)
}

func TestRideRepo_ReleaseByPool(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	at := geo.Point{Lat: 28.55, Lng: 77.10}
	poolID := uuid.New()

	ride := newRide(at, 0)
	require.NoError(t, s.Rides().Create(ctx, ride))
	pooled, err := s.Rides().MarkPooled(ctx, ride.ID, 1, poolID, testNow)
	require.NoError(t, err)

	ok, err := s.Rides().SetEstimatedPrice(ctx, ride.ID, 420)
	require.NoError(t, err)
	assert.True(t, ok)

	released, err := s.Rides().ReleaseByPool(ctx, poolID, testNow)
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, types.RideStatusPending, released[0].Status)
	assert.Nil(t, released[0].PoolID)
	assert.Nil(t, released[0].EstimatedPrice)
	assert.Greater(t, released[0].Version, pooled.Version)
}
