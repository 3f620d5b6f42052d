package pooling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	"github.com/Temutjin2k/ride-pooling/pkg/geo"
)

/*=====================Pool Repository============================*/

// Every conditional write returns an error wrapping types.ErrConflict when no row matched.
type PoolRepo interface {
	Create(ctx context.Context, pool *models.Pool) error
	Get(ctx context.Context, id uuid.UUID) (*models.Pool, error)
	AddMember(ctx context.Context, poolID uuid.UUID, version int64, ride *models.Ride, limits models.PoolLimits, now time.Time) (*models.Pool, error)
	RemoveMember(ctx context.Context, poolID uuid.UUID, version int64, ride *models.Ride, now time.Time) (*models.Pool, error)
	UpdateStatus(ctx context.Context, poolID uuid.UUID, version int64, from, to types.PoolStatus, reason *string, now time.Time) (*models.Pool, error)
	UpdateGeometry(ctx context.Context, poolID uuid.UUID, version int64, centroid geo.Point, bounds geo.BoundingBox) (bool, error)
	ListExpiredForming(ctx context.Context, now time.Time, limit int) ([]*models.Pool, error)
}

/*=====================Ride Repository============================*/

type RideRepo interface {
	Create(ctx context.Context, ride *models.Ride) error
	Get(ctx context.Context, id uuid.UUID) (*models.Ride, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Ride, error)
	MarkPooled(ctx context.Context, rideID uuid.UUID, version int64, poolID uuid.UUID, now time.Time) (*models.Ride, error)
	Cancel(ctx context.Context, rideID uuid.UUID, version int64, reason string, now time.Time) (*models.Ride, error)
	ReleaseByPool(ctx context.Context, poolID uuid.UUID, now time.Time) ([]*models.Ride, error)
	CompleteByPool(ctx context.Context, poolID uuid.UUID, now time.Time) ([]*models.Ride, error)
	SetEstimatedPrice(ctx context.Context, rideID uuid.UUID, price float64) (bool, error)
	SetActualPrice(ctx context.Context, rideID uuid.UUID, price float64) (bool, error)
	ListUnpriced(ctx context.Context, limit int) ([]*models.Ride, error)
}

/*=====================Candidate search===========================*/

// CandidateFinder returns open pools for a query. Order is not trusted; the matcher re-sorts.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, q models.CandidateQuery) ([]*models.Pool, error)
}

// GeoIndex mirrors forming pools into a spatial index. All calls are best-effort.
type GeoIndex interface {
	Upsert(ctx context.Context, pool *models.Pool) error
	Remove(ctx context.Context, poolIDs ...uuid.UUID) error
}

/*==========================Pricing===============================*/

type Pricer interface {
	Price(ctx context.Context, distanceKm float64, poolSize, luggage int) (float64, error)
}

/*========================Publisher===============================*/

type Publisher interface {
	PublishPoolEvent(ctx context.Context, evt models.PoolEventMessage) error
}
