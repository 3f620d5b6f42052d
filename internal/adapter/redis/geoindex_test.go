package redis

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	"github.com/Temutjin2k/ride-pooling/pkg/geo"
	"github.com/Temutjin2k/ride-pooling/pkg/logger"
)

// recordingFinder answers id-filtered queries with byIDs and open searches with open.
type recordingFinder struct {
	queries []models.CandidateQuery
	byIDs   []*models.Pool
	open    []*models.Pool
}

func (f *recordingFinder) FindCandidates(_ context.Context, q models.CandidateQuery) ([]*models.Pool, error) {
	f.queries = append(f.queries, q)
	if len(q.PoolIDs) > 0 {
		return f.byIDs, nil
	}
	return f.open, nil
}

func downClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testLogger() logger.Logger {
	return logger.New(io.Discard, "redis-test", logger.LevelError)
}

func TestExpired(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want bool
	}{
		{"missing", nil, true},
		{"garbage", "soon", true},
		{"past", "100", true},
		{"now", "200", true},
		{"future", "300", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expired(tt.v, 200))
		})
	}
}

func TestFindCandidates_FallsBackWhenRedisIsDown(t *testing.T) {
	finder := &recordingFinder{}
	idx := NewPoolGeoIndex(downClient(t), "test:pools", finder, testLogger())

	q := models.CandidateQuery{Near: geo.Point{Lat: 28.55, Lng: 77.1}, RadiusKm: 5, MaxSeats: 4, Limit: 20, Now: time.Now()}
	_, err := idx.FindCandidates(context.Background(), q)
	require.NoError(t, err)

	require.Len(t, finder.queries, 1)
	assert.Nil(t, finder.queries[0].PoolIDs)
}

func TestNarrow_IndexMissSearchesStore(t *testing.T) {
	lost := &models.Pool{ID: uuid.New(), Status: types.PoolStatusForming, Centroid: geo.Point{Lat: 28.55, Lng: 77.1}}
	indexed := &models.Pool{ID: uuid.New(), Status: types.PoolStatusForming, Centroid: geo.Point{Lat: 28.551, Lng: 77.101}}
	q := models.CandidateQuery{Near: geo.Point{Lat: 28.55, Lng: 77.1}, RadiusKm: 5, MaxSeats: 4, Limit: 20, Now: time.Now()}

	tests := []struct {
		name      string
		ids       []uuid.UUID
		finder    *recordingFinder
		want      []*models.Pool
		wantCalls int
	}{
		{
			name:      "empty index",
			finder:    &recordingFinder{open: []*models.Pool{lost}},
			want:      []*models.Pool{lost},
			wantCalls: 1,
		},
		{
			name:      "indexed ids all filtered out",
			ids:       []uuid.UUID{uuid.New()},
			finder:    &recordingFinder{open: []*models.Pool{lost}},
			want:      []*models.Pool{lost},
			wantCalls: 2,
		},
		{
			name:      "indexed hit",
			ids:       []uuid.UUID{indexed.ID},
			finder:    &recordingFinder{byIDs: []*models.Pool{indexed}, open: []*models.Pool{lost}},
			want:      []*models.Pool{indexed},
			wantCalls: 1,
		},
		{
			name:      "nothing anywhere",
			finder:    &recordingFinder{},
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := NewPoolGeoIndex(downClient(t), "test:pools", tt.finder, testLogger())

			got, err := idx.narrow(context.Background(), q, tt.ids)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			require.Len(t, tt.finder.queries, tt.wantCalls)
			if tt.wantCalls == 2 {
				assert.Equal(t, tt.ids, tt.finder.queries[0].PoolIDs)
				assert.Nil(t, tt.finder.queries[1].PoolIDs)
			}
		})
	}
}

// Runs against a live redis when POOLING_TEST_REDIS is set, e.g. localhost:6379.
func TestPoolGeoIndex_Live(t *testing.T) {
	addr := os.Getenv("POOLING_TEST_REDIS")
	if addr == "" {
		t.Skip("POOLING_TEST_REDIS not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	key := "test:pools:" + uuid.NewString()
	t.Cleanup(func() { client.Del(context.Background(), key, key+":expires_at") })

	finder := &recordingFinder{}
	idx := NewPoolGeoIndex(client, key, finder, testLogger())
	now := time.Now()

	pool := func(lat, lng float64, expires time.Time) *models.Pool {
		return &models.Pool{
			ID:        uuid.New(),
			Status:    types.PoolStatusForming,
			Centroid:  geo.Point{Lat: lat, Lng: lng},
			ExpiresAt: expires,
		}
	}
	near := pool(28.55, 77.10, now.Add(10*time.Minute))
	far := pool(28.90, 77.50, now.Add(10*time.Minute))
	stale := pool(28.551, 77.101, now.Add(-time.Minute))
	for _, p := range []*models.Pool{near, far, stale} {
		require.NoError(t, idx.Upsert(ctx, p))
	}

	q := models.CandidateQuery{Near: geo.Point{Lat: 28.5501, Lng: 77.1001}, RadiusKm: 5, Now: now}
	ids, err := idx.Nearby(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{near.ID}, ids)

	// the expired entry was dropped on read
	n, err := client.ZCard(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	finder.byIDs = []*models.Pool{near}
	_, err = idx.FindCandidates(ctx, q)
	require.NoError(t, err)
	require.Len(t, finder.queries, 1)
	assert.Equal(t, []uuid.UUID{near.ID}, finder.queries[0].PoolIDs)

	// a flushed set is rebuilt from the store on the next search
	require.NoError(t, client.Del(ctx, key, key+":expires_at").Err())
	finder.open = []*models.Pool{near}
	got, err := idx.FindCandidates(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []*models.Pool{near}, got)
	ids, err = idx.Nearby(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{near.ID}, ids)
	finder.byIDs, finder.open = nil, nil

	require.NoError(t, idx.Remove(ctx, near.ID))
	ids, err = idx.Nearby(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
