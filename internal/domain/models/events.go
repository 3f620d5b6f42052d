package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
)

// PoolEventMessage is published to the broker for every pool mutation.
// DetourKm is a centroid-spread estimate, not a routed distance.
type PoolEventMessage struct {
	Type          types.PoolEvent  `json:"type"`
	PoolID        uuid.UUID        `json:"pool_id"`
	RideID        *uuid.UUID       `json:"ride_id,omitempty"`
	PassengerID   *uuid.UUID       `json:"passenger_id,omitempty"`
	Members       []uuid.UUID      `json:"members"`
	Passengers    []uuid.UUID      `json:"passengers,omitempty"`
	Status        types.PoolStatus `json:"status"`
	SeatsOccupied int              `json:"seats_occupied"`
	LuggageTotal  int              `json:"luggage_total"`
	Version       int64            `json:"version"`
	DetourKm      *float64         `json:"detour_km,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	CorrelationID string           `json:"correlation_id,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// PassengerPoolUpdate is pushed to a passenger's websocket.
type PassengerPoolUpdate struct {
	Type          types.PoolEvent  `json:"type"`
	RideID        *uuid.UUID       `json:"ride_id,omitempty"`
	PoolID        uuid.UUID        `json:"pool_id"`
	Status        types.PoolStatus `json:"status"`
	SeatsOccupied int              `json:"seats_occupied"`
	Message       string           `json:"message,omitempty"`
}

// RideRequestedMessage is consumed from the intake queue.
type RideRequestedMessage struct {
	PassengerID   uuid.UUID `json:"passenger_id"`
	Pickup        Location  `json:"pickup"`
	Dropoff       Location  `json:"dropoff"`
	Luggage       int       `json:"luggage"`
	CorrelationID string    `json:"correlation_id"`
}
