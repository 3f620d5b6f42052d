package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/pkg/logger"
)

// CandidateFinder hydrates and filters the pools the index narrowed down.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, q models.CandidateQuery) ([]*models.Pool, error)
}

// PoolGeoIndex keeps forming pool centroids in a redis GEO set and uses it to
// prefilter candidate search. Expiry times live in a hash next to the set so
// expired entries can be skipped without touching the database.
type PoolGeoIndex struct {
	client *redis.Client
	key    string
	finder CandidateFinder
	l      logger.Logger
}

func NewPoolGeoIndex(client *redis.Client, key string, finder CandidateFinder, l logger.Logger) *PoolGeoIndex {
	return &PoolGeoIndex{
		client: client,
		key:    key,
		finder: finder,
		l:      l,
	}
}

func (i *PoolGeoIndex) expiryKey() string {
	return i.key + ":expires_at"
}

// Upsert places pool at its current centroid.
func (i *PoolGeoIndex) Upsert(ctx context.Context, pool *models.Pool) error {
	const op = "PoolGeoIndex.Upsert"

	id := pool.ID.String()
	pipe := i.client.TxPipeline()
	pipe.GeoAdd(ctx, i.key, &redis.GeoLocation{
		Name:      id,
		Longitude: pool.Centroid.Lng,
		Latitude:  pool.Centroid.Lat,
	})
	pipe.HSet(ctx, i.expiryKey(), id, pool.ExpiresAt.Unix())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (i *PoolGeoIndex) Remove(ctx context.Context, ids ...uuid.UUID) error {
	const op = "PoolGeoIndex.Remove"
	if len(ids) == 0 {
		return nil
	}

	members := make([]any, len(ids))
	fields := make([]string, len(ids))
	for n, id := range ids {
		members[n] = id.String()
		fields[n] = id.String()
	}

	pipe := i.client.TxPipeline()
	pipe.ZRem(ctx, i.key, members...)
	pipe.HDel(ctx, i.expiryKey(), fields...)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Nearby returns the ids of indexed pools within radiusKm of q.Near that have
// not expired at q.Now, nearest first.
func (i *PoolGeoIndex) Nearby(ctx context.Context, q models.CandidateQuery) ([]uuid.UUID, error) {
	const op = "PoolGeoIndex.Nearby"

	names, err := i.client.GeoSearch(ctx, i.key, &redis.GeoSearchQuery{
		Longitude:  q.Near.Lng,
		Latitude:   q.Near.Lat,
		Radius:     q.RadiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: geosearch: %w", op, err)
	}
	if len(names) == 0 {
		return nil, nil
	}

	expiries, err := i.client.HMGet(ctx, i.expiryKey(), names...).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: expiries: %w", op, err)
	}

	ids := make([]uuid.UUID, 0, len(names))
	var stale []uuid.UUID
	for n, name := range names {
		id, err := uuid.Parse(name)
		if err != nil {
			continue
		}
		if expired(expiries[n], q.Now.Unix()) {
			stale = append(stale, id)
			continue
		}
		ids = append(ids, id)
	}

	if len(stale) > 0 {
		if err := i.Remove(ctx, stale...); err != nil {
			i.l.Warn(ctx, "failed to drop expired pools from geo index", "error", err)
		}
	}

	return ids, nil
}

// expired treats a missing expiry as expired: the entry was written by a
// partial upsert and the pool will be re-indexed on its next change.
func expired(v any, now int64) bool {
	s, ok := v.(string)
	if !ok {
		return true
	}
	at, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return true
	}
	return at <= now
}

// FindCandidates narrows the search to indexed pool ids and lets the wrapped
// finder hydrate and filter them. A redis failure falls back to the wrapped
// finder's own search.
func (i *PoolGeoIndex) FindCandidates(ctx context.Context, q models.CandidateQuery) ([]*models.Pool, error) {
	ids, err := i.Nearby(ctx, q)
	if err != nil {
		i.l.Warn(ctx, "geo index unavailable, falling back to database search", "error", err)
		return i.finder.FindCandidates(ctx, q)
	}
	return i.narrow(ctx, q, ids)
}

// narrow treats the index as a hint. When it yields nothing usable the store is
// searched without the id filter, and whatever it finds is written back, so a
// pool whose upsert was lost (or a flushed set) does not stay invisible.
func (i *PoolGeoIndex) narrow(ctx context.Context, q models.CandidateQuery, ids []uuid.UUID) ([]*models.Pool, error) {
	if len(ids) > 0 {
		q.PoolIDs = ids
		pools, err := i.finder.FindCandidates(ctx, q)
		if err != nil || len(pools) > 0 {
			return pools, err
		}
		q.PoolIDs = nil
	}

	pools, err := i.finder.FindCandidates(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(pools) == 0 {
		return nil, nil
	}

	i.l.Warn(ctx, "geo index missed forming pools, re-indexing", "count", len(pools))
	for _, p := range pools {
		if err := i.Upsert(ctx, p); err != nil {
			i.l.Warn(ctx, "geo index re-index failed", "pool_id", p.ID, "error", err)
			break
		}
	}
	return pools, nil
}
