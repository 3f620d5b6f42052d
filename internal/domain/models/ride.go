package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
)

// MaxLuggagePerRide bounds the luggage a single request may bring.
const MaxLuggagePerRide = 3

type Ride struct {
	ID          uuid.UUID        `json:"id"`
	PassengerID uuid.UUID        `json:"passenger_id"`
	Pickup      Location         `json:"pickup"`
	Dropoff     Location         `json:"dropoff"`
	Luggage     int              `json:"luggage"`
	Status      types.RideStatus `json:"status"`
	PoolID      *uuid.UUID       `json:"pool_id,omitempty"`

	// Расчетные поля
	DistanceKm     float64  `json:"distance_km"`
	EstimatedPrice *float64 `json:"estimated_price,omitempty"`
	ActualPrice    *float64 `json:"actual_price,omitempty"`

	CancellationReason *string `json:"cancellation_reason,omitempty"`

	// Optimistic-concurrency token, bumped on every write.
	Version int64 `json:"version"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PooledAt    *time.Time `json:"pooled_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RideRequest is what request intake hands to the pooling core.
type RideRequest struct {
	PassengerID   uuid.UUID `json:"passenger_id"`
	Pickup        Location  `json:"pickup"`
	Dropoff       Location  `json:"dropoff"`
	Luggage       int       `json:"luggage"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// RideResult is returned by intake: the ride and, when pooling succeeded, its pool.
// DetourKm is the centroid-spread estimate the ride was accepted with (0 for a
// new pool), not a routed distance; nil when matching was deferred.
type RideResult struct {
	Ride     *Ride    `json:"ride"`
	Pool     *Pool    `json:"pool,omitempty"`
	DetourKm *float64 `json:"detour_km,omitempty"`
}
