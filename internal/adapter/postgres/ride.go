package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
)

const rideColumns = `id, passenger_id,
	pickup_lat, pickup_lng, pickup_address,
	dropoff_lat, dropoff_lng, dropoff_address,
	luggage, status, pool_id, distance_km, estimated_price, actual_price,
	cancellation_reason, version, created_at, updated_at, pooled_at, cancelled_at, completed_at`

type RideRepo struct {
	db *pgxpool.Pool
}

func NewRideRepo(db *pgxpool.Pool) *RideRepo {
	return &RideRepo{db: db}
}

func (r *RideRepo) Create(ctx context.Context, ride *models.Ride) error {
	const op = "RideRepo.Create"
	q := TxorDB(ctx, r.db)

	query := `
		INSERT INTO rides (
			id, passenger_id,
			pickup_lat, pickup_lng, pickup_address,
			dropoff_lat, dropoff_lng, dropoff_address,
			luggage, status, distance_km, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`

	_, err := q.Exec(ctx, query,
		ride.ID, ride.PassengerID,
		ride.Pickup.Latitude, ride.Pickup.Longitude, ride.Pickup.Address,
		ride.Dropoff.Latitude, ride.Dropoff.Longitude, ride.Dropoff.Address,
		ride.Luggage, string(ride.Status), ride.DistanceKm, ride.Version, ride.CreatedAt,
	)
	if err != nil {
		return dbError(op, err)
	}

	return nil
}

func (r *RideRepo) Get(ctx context.Context, id uuid.UUID) (*models.Ride, error) {
	const op = "RideRepo.Get"
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`

	ride, err := scanRide(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrRideNotFound
		}
		return nil, dbError(op, err)
	}

	return ride, nil
}

// ListByIDs returns the rides in the order of ids. Unknown ids are skipped.
func (r *RideRepo) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Ride, error) {
	const op = "RideRepo.ListByIDs"
	if len(ids) == 0 {
		return nil, nil
	}
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = ANY($1)`

	rides, err := collectRides(q.Query(ctx, query, ids))
	if err != nil {
		return nil, dbError(op, err)
	}

	byID := make(map[uuid.UUID]*models.Ride, len(rides))
	for _, ride := range rides {
		byID[ride.ID] = ride
	}
	ordered := make([]*models.Ride, 0, len(rides))
	for _, id := range ids {
		if ride, ok := byID[id]; ok {
			ordered = append(ordered, ride)
		}
	}

	return ordered, nil
}

// MarkPooled attaches a pending ride at version to poolID.
func (r *RideRepo) MarkPooled(ctx context.Context, rideID uuid.UUID, version int64, poolID uuid.UUID, now time.Time) (*models.Ride, error) {
	const op = "RideRepo.MarkPooled"
	q := TxorDB(ctx, r.db)

	query := `
		UPDATE rides
		SET status = 'pooled', pool_id = $3, pooled_at = $4, updated_at = $4, version = version + 1
		WHERE id = $1 AND version = $2 AND status = 'pending'
		RETURNING ` + rideColumns

	ride, err := scanRide(q.QueryRow(ctx, query, rideID, version, poolID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, types.ErrConflict)
		}
		return nil, dbError(op, err)
	}

	return ride, nil
}

// Cancel moves a pending or pooled ride at version to cancelled and detaches it from its pool.
func (r *RideRepo) Cancel(ctx context.Context, rideID uuid.UUID, version int64, reason string, now time.Time) (*models.Ride, error) {
	const op = "RideRepo.Cancel"
	q := TxorDB(ctx, r.db)

	query := `
		UPDATE rides
		SET status = 'cancelled', pool_id = NULL, cancellation_reason = $3,
		    cancelled_at = $4, updated_at = $4, version = version + 1
		WHERE id = $1 AND version = $2 AND status IN ('pending', 'pooled')
		RETURNING ` + rideColumns

	ride, err := scanRide(q.QueryRow(ctx, query, rideID, version, reason, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, types.ErrConflict)
		}
		return nil, dbError(op, err)
	}

	return ride, nil
}

// ReleaseByPool returns every pooled ride of poolID to pending. The estimate is
// cleared because it was computed for a pool size that no longer exists.
func (r *RideRepo) ReleaseByPool(ctx context.Context, poolID uuid.UUID, now time.Time) ([]*models.Ride, error) {
	const op = "RideRepo.ReleaseByPool"
	q := TxorDB(ctx, r.db)

	query := `
		UPDATE rides
		SET status = 'pending', pool_id = NULL, pooled_at = NULL, estimated_price = NULL,
		    updated_at = $2, version = version + 1
		WHERE pool_id = $1 AND status = 'pooled'
		RETURNING ` + rideColumns

	rides, err := collectRides(q.Query(ctx, query, poolID, now))
	if err != nil {
		return nil, dbError(op, err)
	}

	return rides, nil
}

// CompleteByPool marks every pooled ride of poolID completed.
func (r *RideRepo) CompleteByPool(ctx context.Context, poolID uuid.UUID, now time.Time) ([]*models.Ride, error) {
	const op = "RideRepo.CompleteByPool"
	q := TxorDB(ctx, r.db)

	query := `
		UPDATE rides
		SET status = 'completed', completed_at = $2, updated_at = $2, version = version + 1
		WHERE pool_id = $1 AND status = 'pooled'
		RETURNING ` + rideColumns

	rides, err := collectRides(q.Query(ctx, query, poolID, now))
	if err != nil {
		return nil, dbError(op, err)
	}

	return rides, nil
}

// SetEstimatedPrice records the estimate for a pooled ride that has none yet.
// It reports false when the ride was already priced or is no longer pooled.
func (r *RideRepo) SetEstimatedPrice(ctx context.Context, rideID uuid.UUID, price float64) (bool, error) {
	const op = "RideRepo.SetEstimatedPrice"
	q := TxorDB(ctx, r.db)

	query := `
		UPDATE rides
		SET estimated_price = $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND status = 'pooled' AND estimated_price IS NULL`

	tag, err := q.Exec(ctx, query, rideID, price)
	if err != nil {
		return false, dbError(op, err)
	}

	return tag.RowsAffected() == 1, nil
}

// SetActualPrice records the final price of a completed ride once.
func (r *RideRepo) SetActualPrice(ctx context.Context, rideID uuid.UUID, price float64) (bool, error) {
	const op = "RideRepo.SetActualPrice"
	q := TxorDB(ctx, r.db)

	query := `
		UPDATE rides
		SET actual_price = $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND status = 'completed' AND actual_price IS NULL`

	tag, err := q.Exec(ctx, query, rideID, price)
	if err != nil {
		return false, dbError(op, err)
	}

	return tag.RowsAffected() == 1, nil
}

// ListUnpriced returns pooled rides still waiting for an estimate, oldest first.
func (r *RideRepo) ListUnpriced(ctx context.Context, limit int) ([]*models.Ride, error) {
	const op = "RideRepo.ListUnpriced"
	q := TxorDB(ctx, r.db)

	query := `
		SELECT ` + rideColumns + `
		FROM rides
		WHERE status = 'pooled' AND estimated_price IS NULL
		ORDER BY pooled_at ASC, id ASC
		LIMIT $1`

	rides, err := collectRides(q.Query(ctx, query, limit))
	if err != nil {
		return nil, dbError(op, err)
	}

	return rides, nil
}

func collectRides(rows pgx.Rows, err error) ([]*models.Ride, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*models.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		rides = append(rides, ride)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return rides, nil
}

func scanRide(row pgx.Row) (*models.Ride, error) {
	var (
		ride   models.Ride
		status string
	)
	err := row.Scan(
		&ride.ID, &ride.PassengerID,
		&ride.Pickup.Latitude, &ride.Pickup.Longitude, &ride.Pickup.Address,
		&ride.Dropoff.Latitude, &ride.Dropoff.Longitude, &ride.Dropoff.Address,
		&ride.Luggage, &status, &ride.PoolID, &ride.DistanceKm, &ride.EstimatedPrice, &ride.ActualPrice,
		&ride.CancellationReason, &ride.Version,
		&ride.CreatedAt, &ride.UpdatedAt, &ride.PooledAt, &ride.CancelledAt, &ride.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	ride.Status = types.RideStatus(status)
	return &ride, nil
}
