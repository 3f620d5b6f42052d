package types

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("requested item not found")
	ErrRideNotFound = fmt.Errorf("ride: %w", ErrNotFound)
	ErrPoolNotFound = fmt.Errorf("pool: %w", ErrNotFound)

	ErrInvalidState          = errors.New("invalid state")
	ErrRideCannotBeCancelled = fmt.Errorf("ride cannot be cancelled: %w", ErrInvalidState)
	ErrRideNotPending        = fmt.Errorf("ride is not pending: %w", ErrInvalidState)
	ErrInvalidTransition     = fmt.Errorf("pool transition not allowed: %w", ErrInvalidState)
	ErrPoolExpired           = errors.New("pool expired")

	// ErrConflict is returned when a version-conditioned write matched no record.
	ErrConflict            = errors.New("concurrent modification conflict")
	ErrConstraintViolation = errors.New("pool capacity constraint violated")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	ErrInvalidRequest = errors.New("invalid request")
)

// ConflictError is surfaced once the retry budget for a conditional write is spent.
// It is always safe for the caller to retry the whole request.
type ConflictError struct {
	Op       string
	RideID   uuid.UUID
	PoolID   uuid.UUID
	Version  int64
	Attempts int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: conflict after %d attempts (ride=%s pool=%s version=%d)",
		e.Op, e.Attempts, e.RideID, e.PoolID, e.Version)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// IsOneOf reports whether err matches any of targets.
func IsOneOf(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
