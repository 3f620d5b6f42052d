package models

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	"github.com/Temutjin2k/ride-pooling/pkg/geo"
)

type Pool struct {
	ID            uuid.UUID        `json:"id"`
	Members       []uuid.UUID      `json:"members"`
	Status        types.PoolStatus `json:"status"`
	SeatsOccupied int              `json:"seats_occupied"`
	LuggageTotal  int              `json:"luggage_total"`

	// Centroid of member pickups; candidate search measures the radius from here.
	Centroid geo.Point `json:"centroid"`
	// Bounds covers every member pickup and dropoff.
	Bounds geo.BoundingBox `json:"bounding_box"`

	MaxDetourKm float64   `json:"max_detour_km"`
	ExpiresAt   time.Time `json:"expires_at"`

	CancellationReason *string `json:"cancellation_reason,omitempty"`

	Version int64 `json:"version"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// IsExpired reports whether a forming pool has outlived its TTL.
// Pools past forming never expire.
func (p *Pool) IsExpired(now time.Time) bool {
	return p.Status == types.PoolStatusForming && !now.Before(p.ExpiresAt)
}

// IsOpen reports whether the pool may still take joins at now.
func (p *Pool) IsOpen(now time.Time) bool {
	return p.Status == types.PoolStatusForming && now.Before(p.ExpiresAt)
}

func (p *Pool) HasMember(rideID uuid.UUID) bool {
	return slices.Contains(p.Members, rideID)
}

func (p *Pool) Clone() *Pool {
	c := *p
	c.Members = slices.Clone(p.Members)
	return &c
}

// PoolLimits are the capacity constraints every pool is checked against.
type PoolLimits struct {
	MaxSeats   int
	MaxLuggage int
}

// CandidateQuery selects open pools near a pickup.
type CandidateQuery struct {
	Near     geo.Point
	RadiusKm float64
	MaxSeats int
	Now      time.Time
	Limit    int

	// PoolIDs, when non-nil, restricts the search to these pools (geo-index prefilter).
	PoolIDs []uuid.UUID
}
