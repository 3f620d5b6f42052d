package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/pkg/geo"
)

// PoolResponse is a pool as the API shows it. max_detour_km bounds the
// centroid-spread detour estimate, a straight-line proxy for the extra distance
// a member rides, not road routing.
type PoolResponse struct {
	PoolID        uuid.UUID       `json:"pool_id"`
	Status        string          `json:"status"`
	Members       []uuid.UUID     `json:"members"`
	SeatsOccupied int             `json:"seats_occupied"`
	LuggageTotal  int             `json:"luggage_total"`
	Centroid      geo.Point       `json:"centroid"`
	Bounds        geo.BoundingBox `json:"bounding_box"`
	MaxDetourKm   float64         `json:"max_detour_km"`
	ExpiresAt     time.Time       `json:"expires_at"`
	Reason        *string         `json:"cancellation_reason,omitempty"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	ConfirmedAt   *time.Time      `json:"confirmed_at,omitempty"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
}

func NewPoolResponse(p *models.Pool) PoolResponse {
	members := p.Members
	if members == nil {
		members = []uuid.UUID{}
	}
	return PoolResponse{
		PoolID:        p.ID,
		Status:        p.Status.String(),
		Members:       members,
		SeatsOccupied: p.SeatsOccupied,
		LuggageTotal:  p.LuggageTotal,
		Centroid:      p.Centroid,
		Bounds:        p.Bounds,
		MaxDetourKm:   p.MaxDetourKm,
		ExpiresAt:     p.ExpiresAt,
		Reason:        p.CancellationReason,
		Version:       p.Version,
		CreatedAt:     p.CreatedAt,
		ConfirmedAt:   p.ConfirmedAt,
		StartedAt:     p.StartedAt,
		CompletedAt:   p.CompletedAt,
		CancelledAt:   p.CancelledAt,
	}
}

// CreateRideResponse documents the POST /rides body. detour_km is the
// centroid-spread estimate the ride joined with (0 for a new pool), not a routed
// distance.
type CreateRideResponse struct {
	Ride     RideResponse  `json:"ride"`
	Pool     *PoolResponse `json:"pool,omitempty"`
	DetourKm *float64      `json:"detour_km,omitempty"`
	Message  string        `json:"message,omitempty"`
}
