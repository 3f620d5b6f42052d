package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	"github.com/Temutjin2k/ride-pooling/pkg/geo"
)

const (
	poolsTable = "pools"

	// haversine distance in km from the pool centroid to (?, ?, ?) = (lat, lat, lng)
	centroidDistanceSQL = `6371 * 2 * asin(sqrt(
		power(sin(radians(centroid_lat - ?) / 2), 2) +
		cos(radians(?)) * cos(radians(centroid_lat)) * power(sin(radians(centroid_lng - ?) / 2), 2)))`
)

var poolColumns = []any{
	"id", "member_ids", "status", "seats_occupied", "luggage_total",
	"centroid_lat", "centroid_lng",
	"bbox_min_lat", "bbox_max_lat", "bbox_min_lng", "bbox_max_lng",
	"max_detour_km", "expires_at", "cancellation_reason", "version",
	"created_at", "updated_at", "confirmed_at", "started_at", "completed_at", "cancelled_at",
}

const poolReturning = `id, member_ids, status, seats_occupied, luggage_total,
	centroid_lat, centroid_lng, bbox_min_lat, bbox_max_lat, bbox_min_lng, bbox_max_lng,
	max_detour_km, expires_at, cancellation_reason, version,
	created_at, updated_at, confirmed_at, started_at, completed_at, cancelled_at`

type PoolRepo struct {
	db      *pgxpool.Pool
	dialect goqu.DialectWrapper
}

func NewPoolRepo(db *pgxpool.Pool) *PoolRepo {
	return &PoolRepo{
		db:      db,
		dialect: goqu.Dialect("postgres"),
	}
}

func (r *PoolRepo) Create(ctx context.Context, pool *models.Pool) error {
	const op = "PoolRepo.Create"
	q := TxorDB(ctx, r.db)

	query := `
		INSERT INTO pools (
			id, member_ids, status, seats_occupied, luggage_total,
			centroid_lat, centroid_lng, bbox_min_lat, bbox_max_lat, bbox_min_lng, bbox_max_lng,
			max_detour_km, expires_at, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)`

	_, err := q.Exec(ctx, query,
		pool.ID, pool.Members, string(pool.Status), pool.SeatsOccupied, pool.LuggageTotal,
		pool.Centroid.Lat, pool.Centroid.Lng,
		pool.Bounds.MinLat, pool.Bounds.MaxLat, pool.Bounds.MinLng, pool.Bounds.MaxLng,
		pool.MaxDetourKm, pool.ExpiresAt, pool.Version, pool.CreatedAt,
	)
	if err != nil {
		return dbError(op, err)
	}

	return nil
}

func (r *PoolRepo) Get(ctx context.Context, id uuid.UUID) (*models.Pool, error) {
	const op = "PoolRepo.Get"
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + poolReturning + ` FROM pools WHERE id = $1`

	pool, err := scanPool(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrPoolNotFound
		}
		return nil, dbError(op, err)
	}

	return pool, nil
}

// FindCandidates returns open pools around q.Near, ordered by fullness, age and id.
// A bounding box on the centroid columns narrows the scan before the haversine check.
func (r *PoolRepo) FindCandidates(ctx context.Context, cq models.CandidateQuery) ([]*models.Pool, error) {
	const op = "PoolRepo.FindCandidates"
	q := TxorDB(ctx, r.db)

	query, args, err := r.candidateQuery(cq)
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, dbError(op, err)
	}
	defer rows.Close()

	pools := make([]*models.Pool, 0, cq.Limit)
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		pools = append(pools, pool)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}

	return pools, nil
}

func (r *PoolRepo) candidateQuery(cq models.CandidateQuery) (string, []any, error) {
	box := geo.Around(cq.Near, cq.RadiusKm)

	where := []goqu.Expression{
		goqu.C("status").Eq(string(types.PoolStatusForming)),
		goqu.C("seats_occupied").Lt(cq.MaxSeats),
		goqu.C("expires_at").Gt(cq.Now),
		goqu.C("centroid_lat").Between(goqu.Range(box.MinLat, box.MaxLat)),
		goqu.C("centroid_lng").Between(goqu.Range(box.MinLng, box.MaxLng)),
		goqu.L(centroidDistanceSQL, cq.Near.Lat, cq.Near.Lat, cq.Near.Lng).Lte(cq.RadiusKm),
	}
	if cq.PoolIDs != nil {
		ids := make([]string, 0, len(cq.PoolIDs))
		for _, id := range cq.PoolIDs {
			ids = append(ids, id.String())
		}
		where = append(where, goqu.C("id").In(ids))
	}

	ds := r.dialect.
		From(poolsTable).
		Select(poolColumns...).
		Where(where...).
		Order(
			goqu.C("seats_occupied").Desc(),
			goqu.C("created_at").Asc(),
			goqu.C("id").Asc(),
		).
		Prepared(true)
	if cq.Limit > 0 {
		ds = ds.Limit(uint(cq.Limit))
	}

	return ds.ToSQL()
}

// AddMember appends ride to the pool if the pool is still at version, forming,
// unexpired and has room. Otherwise it returns types.ErrConflict.
func (r *PoolRepo) AddMember(ctx context.Context, poolID uuid.UUID, version int64, ride *models.Ride, limits models.PoolLimits, now time.Time) (*models.Pool, error) {
	const op = "PoolRepo.AddMember"
	q := TxorDB(ctx, r.db)

	query := `
		UPDATE pools
		SET member_ids     = array_append(member_ids, $2),
		    seats_occupied = seats_occupied + 1,
		    luggage_total  = luggage_total + $3,
		    version        = version + 1,
		    updated_at     = $4
		WHERE id = $1
		  AND version = $5
		  AND status = 'forming'
		  AND expires_at > $4
		  AND seats_occupied < $6
		  AND luggage_total + $3 <= $7
		RETURNING ` + poolReturning

	pool, err := scanPool(q.QueryRow(ctx, query, poolID, ride.ID, ride.Luggage, now, version, limits.MaxSeats, limits.MaxLuggage))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, types.ErrConflict)
		}
		return nil, dbError(op, err)
	}

	return pool, nil
}

// RemoveMember drops ride from the pool at version. Removing the last member
// cancels the pool with reason "empty" in the same statement.
func (r *PoolRepo) RemoveMember(ctx context.Context, poolID uuid.UUID, version int64, ride *models.Ride, now time.Time) (*models.Pool, error) {
	const op = "PoolRepo.RemoveMember"
	q := TxorDB(ctx, r.db)

	query := `
		UPDATE pools
		SET member_ids          = array_remove(member_ids, $2),
		    seats_occupied      = seats_occupied - 1,
		    luggage_total       = luggage_total - $3,
		    status              = CASE WHEN seats_occupied = 1 THEN 'cancelled' ELSE status END,
		    cancellation_reason = CASE WHEN seats_occupied = 1 THEN $6 ELSE cancellation_reason END,
		    cancelled_at        = CASE WHEN seats_occupied = 1 THEN $4 ELSE cancelled_at END,
		    version             = version + 1,
		    updated_at          = $4
		WHERE id = $1
		  AND version = $5
		  AND $2 = ANY(member_ids)
		  AND status IN ('forming', 'confirmed')
		RETURNING ` + poolReturning

	pool, err := scanPool(q.QueryRow(ctx, query, poolID, ride.ID, ride.Luggage, now, version, types.ReasonEmpty))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, types.ErrConflict)
		}
		return nil, dbError(op, err)
	}

	return pool, nil
}

// UpdateStatus moves the pool from one status to another if it is still at version.
func (r *PoolRepo) UpdateStatus(ctx context.Context, poolID uuid.UUID, version int64, from, to types.PoolStatus, reason *string, now time.Time) (*models.Pool, error) {
	const op = "PoolRepo.UpdateStatus"
	q := TxorDB(ctx, r.db)

	record := goqu.Record{
		"status":     string(to),
		"version":    goqu.L("version + 1"),
		"updated_at": now,
	}
	if col := statusTimestampColumn(to); col != "" {
		record[col] = now
	}
	if reason != nil {
		record["cancellation_reason"] = *reason
	}

	query, args, err := r.dialect.
		Update(poolsTable).
		Set(record).
		Where(
			goqu.C("id").Eq(poolID.String()),
			goqu.C("version").Eq(version),
			goqu.C("status").Eq(string(from)),
		).
		Returning(poolColumns...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}

	pool, err := scanPool(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, types.ErrConflict)
		}
		return nil, dbError(op, err)
	}

	return pool, nil
}

// UpdateGeometry stores derived centroid and bounds. It does not bump the version,
// and reports false when the pool already moved past version.
func (r *PoolRepo) UpdateGeometry(ctx context.Context, poolID uuid.UUID, version int64, centroid geo.Point, bounds geo.BoundingBox) (bool, error) {
	const op = "PoolRepo.UpdateGeometry"
	q := TxorDB(ctx, r.db)

	query := `
		UPDATE pools
		SET centroid_lat = $3, centroid_lng = $4,
		    bbox_min_lat = $5, bbox_max_lat = $6, bbox_min_lng = $7, bbox_max_lng = $8
		WHERE id = $1 AND version = $2`

	tag, err := q.Exec(ctx, query, poolID, version,
		centroid.Lat, centroid.Lng,
		bounds.MinLat, bounds.MaxLat, bounds.MinLng, bounds.MaxLng,
	)
	if err != nil {
		return false, dbError(op, err)
	}

	return tag.RowsAffected() == 1, nil
}

// ListExpiredForming returns forming pools whose TTL elapsed at now, oldest first.
func (r *PoolRepo) ListExpiredForming(ctx context.Context, now time.Time, limit int) ([]*models.Pool, error) {
	const op = "PoolRepo.ListExpiredForming"
	q := TxorDB(ctx, r.db)

	query := `
		SELECT ` + poolReturning + `
		FROM pools
		WHERE status = 'forming' AND expires_at <= $1
		ORDER BY expires_at ASC, id ASC
		LIMIT $2`

	rows, err := q.Query(ctx, query, now, limit)
	if err != nil {
		return nil, dbError(op, err)
	}
	defer rows.Close()

	var pools []*models.Pool
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		pools = append(pools, pool)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}

	return pools, nil
}

func statusTimestampColumn(s types.PoolStatus) string {
	switch s {
	case types.PoolStatusConfirmed:
		return "confirmed_at"
	case types.PoolStatusInProgress:
		return "started_at"
	case types.PoolStatusCompleted:
		return "completed_at"
	case types.PoolStatusCancelled:
		return "cancelled_at"
	default:
		return ""
	}
}

func scanPool(row pgx.Row) (*models.Pool, error) {
	var (
		p      models.Pool
		status string
	)
	err := row.Scan(
		&p.ID, &p.Members, &status, &p.SeatsOccupied, &p.LuggageTotal,
		&p.Centroid.Lat, &p.Centroid.Lng,
		&p.Bounds.MinLat, &p.Bounds.MaxLat, &p.Bounds.MinLng, &p.Bounds.MaxLng,
		&p.MaxDetourKm, &p.ExpiresAt, &p.CancellationReason, &p.Version,
		&p.CreatedAt, &p.UpdatedAt, &p.ConfirmedAt, &p.StartedAt, &p.CompletedAt, &p.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = types.PoolStatus(status)
	return &p, nil
}
