package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/pkg/validator"
)

type Location struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   string   `json:"address,omitempty"`
}

func (l *Location) validate(v *validator.Validator, field string) {
	v.Check(l.Latitude != nil, field+".latitude", "must be provided")
	v.Check(l.Longitude != nil, field+".longitude", "must be provided")
	if l.Latitude != nil {
		v.Check(validator.Between(*l.Latitude, -90, 90), field+".latitude", "must be between -90 and 90")
	}
	if l.Longitude != nil {
		v.Check(validator.Between(*l.Longitude, -180, 180), field+".longitude", "must be between -180 and 180")
	}
	v.Check(len(l.Address) <= 255, field+".address", "must not be more than 255 characters long")
}

func (l *Location) toModel() models.Location {
	loc := models.Location{Address: l.Address}
	if l.Latitude != nil {
		loc.Latitude = *l.Latitude
	}
	if l.Longitude != nil {
		loc.Longitude = *l.Longitude
	}
	return loc
}

type CreateRideRequest struct {
	PassengerID string   `json:"passenger_id"`
	Pickup      Location `json:"pickup"`
	Dropoff     Location `json:"dropoff"`
	Luggage     int      `json:"luggage"`
}

// для создания поездки
func (r *CreateRideRequest) Validate(v *validator.Validator) {
	v.Check(r.PassengerID != "", "passenger_id", "must be provided")
	if r.PassengerID != "" {
		_, err := uuid.Parse(r.PassengerID)
		v.Check(err == nil, "passenger_id", "must be a valid UUID")
	}

	r.Pickup.validate(v, "pickup")
	r.Dropoff.validate(v, "dropoff")

	v.Check(validator.Between(r.Luggage, 0, models.MaxLuggagePerRide), "luggage", "must be between 0 and 3")
}

// ToModel expects a validated request.
func (r *CreateRideRequest) ToModel(correlationID string) models.RideRequest {
	return models.RideRequest{
		PassengerID:   uuid.MustParse(r.PassengerID),
		Pickup:        r.Pickup.toModel(),
		Dropoff:       r.Dropoff.toModel(),
		Luggage:       r.Luggage,
		CorrelationID: correlationID,
	}
}

type CancelRideRequest struct {
	Reason string `json:"reason"`
}

// для отмены поездки
func (r *CancelRideRequest) Validate(v *validator.Validator) {
	v.Check(len(r.Reason) <= 500, "reason", "must not be more than 500 characters long")
}

type RideResponse struct {
	RideID         uuid.UUID       `json:"ride_id"`
	PassengerID    uuid.UUID       `json:"passenger_id"`
	Status         string          `json:"status"`
	PoolID         *uuid.UUID      `json:"pool_id,omitempty"`
	Pickup         models.Location `json:"pickup"`
	Dropoff        models.Location `json:"dropoff"`
	Luggage        int             `json:"luggage"`
	DistanceKm     float64         `json:"distance_km"`
	EstimatedPrice *float64        `json:"estimated_price,omitempty"`
	ActualPrice    *float64        `json:"actual_price,omitempty"`
	Reason         *string         `json:"cancellation_reason,omitempty"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	PooledAt       *time.Time      `json:"pooled_at,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

func NewRideResponse(r *models.Ride) RideResponse {
	return RideResponse{
		RideID:         r.ID,
		PassengerID:    r.PassengerID,
		Status:         r.Status.String(),
		PoolID:         r.PoolID,
		Pickup:         r.Pickup,
		Dropoff:        r.Dropoff,
		Luggage:        r.Luggage,
		DistanceKm:     r.DistanceKm,
		EstimatedPrice: r.EstimatedPrice,
		ActualPrice:    r.ActualPrice,
		Reason:         r.CancellationReason,
		Version:        r.Version,
		CreatedAt:      r.CreatedAt,
		PooledAt:       r.PooledAt,
		CancelledAt:    r.CancelledAt,
		CompletedAt:    r.CompletedAt,
	}
}
