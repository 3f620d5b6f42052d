package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-pooling/internal/adapter/http/handler/dto"
	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	"github.com/Temutjin2k/ride-pooling/pkg/logger"
	wrap "github.com/Temutjin2k/ride-pooling/pkg/logger/wrapper"
	"github.com/Temutjin2k/ride-pooling/pkg/validator"
)

type PoolingService interface {
	RequestRide(ctx context.Context, req models.RideRequest) (*models.RideResult, error)
	GetRide(ctx context.Context, rideID uuid.UUID) (*models.Ride, error)
	CancelRide(ctx context.Context, rideID uuid.UUID, reason string) (*models.Ride, error)
	GetPool(ctx context.Context, poolID uuid.UUID) (*models.Pool, error)
	Transition(ctx context.Context, poolID uuid.UUID, to types.PoolStatus) (*models.Pool, error)
}

type Pooling struct {
	service PoolingService
	l       logger.Logger
}

func NewPooling(service PoolingService, l logger.Logger) *Pooling {
	return &Pooling{
		service: service,
		l:       l,
	}
}

// poolActions maps the action path segment to the target status.
var poolActions = map[string]types.PoolStatus{
	"confirm":  types.PoolStatusConfirmed,
	"start":    types.PoolStatusInProgress,
	"complete": types.PoolStatusCompleted,
	"cancel":   types.PoolStatusCancelled,
}

// CreateRide godoc
// @Summary      Request a pooled ride
// @Description  Stores the ride and places it into a nearby forming pool or a new one. 202 means matching was deferred and the ride is pending.
// @Description  detour_km is a straight-line centroid-spread estimate (mean of pickup and dropoff spread around their centroids), not a routed distance. It is 0 when the ride opened a new pool.
// @Tags         rides
// @Accept       json
// @Produce      json
// @Param        request body dto.CreateRideRequest true "Ride request"
// @Success      201 {object} dto.CreateRideResponse "Ride, pool and detour estimate"
// @Success      202 {object} map[string]interface{} "Ride pending"
// @Failure      400 {object} map[string]interface{} "Bad request"
// @Failure      422 {object} map[string]interface{} "Validation error"
// @Failure      500 {object} map[string]interface{} "Internal server error"
// @Security     BearerAuth
// @Router       /rides [post]
func (h *Pooling) CreateRide(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "create_ride")

	var req dto.CreateRideRequest
	if err := readJSON(w, r, &req); err != nil {
		h.l.Warn(ctx, "failed to read request JSON data", "error", err)
		badRequestResponse(w, err.Error())
		return
	}

	v := validator.New()
	req.Validate(v)
	if !v.Valid() {
		h.l.Warn(ctx, "invalid request data")
		failedValidationResponse(w, v.Errors)
		return
	}

	res, err := h.service.RequestRide(ctx, req.ToModel(wrap.FromContext(ctx).RequestID))
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to request ride", err)
		serviceErrorResponse(w, err)
		return
	}

	status := http.StatusCreated
	response := envelope{"ride": dto.NewRideResponse(res.Ride)}
	if res.Pool != nil {
		response["pool"] = dto.NewPoolResponse(res.Pool)
		if res.DetourKm != nil {
			response["detour_km"] = *res.DetourKm
		}
	} else {
		status = http.StatusAccepted
		response["message"] = "ride accepted, matching deferred"
	}

	if err := writeJSON(w, status, response, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}
}

// GetRide godoc
// @Summary      Get a ride
// @Tags         rides
// @Produce      json
// @Param        ride_id path string true "Ride ID"
// @Success      200 {object} map[string]interface{}
// @Failure      404 {object} map[string]interface{} "Not found"
// @Security     BearerAuth
// @Router       /rides/{ride_id} [get]
func (h *Pooling) GetRide(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "get_ride")

	rideID, err := uuid.Parse(r.PathValue("ride_id"))
	if err != nil {
		badRequestResponse(w, "invalid ride uuid format")
		return
	}

	ride, err := h.service.GetRide(ctx, rideID)
	if err != nil {
		h.l.Warn(wrap.ErrorCtx(ctx, err), "failed to get ride", "error", err)
		serviceErrorResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"ride": dto.NewRideResponse(ride)}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// CancelRide godoc
// @Summary      Cancel a ride
// @Description  Cancels a pending or pooled ride and gives its seat back.
// @Tags         rides
// @Accept       json
// @Produce      json
// @Param        ride_id path string true "Ride ID"
// @Param        request body dto.CancelRideRequest false "Cancellation reason"
// @Success      200 {object} map[string]interface{}
// @Failure      404 {object} map[string]interface{} "Not found"
// @Failure      409 {object} map[string]interface{} "Invalid state or conflict"
// @Security     BearerAuth
// @Router       /rides/{ride_id}/cancel [post]
func (h *Pooling) CancelRide(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "cancel_ride")

	rideID, err := uuid.Parse(r.PathValue("ride_id"))
	if err != nil {
		badRequestResponse(w, "invalid ride uuid format")
		return
	}

	var req dto.CancelRideRequest
	if r.ContentLength != 0 {
		if err := readJSON(w, r, &req); err != nil {
			badRequestResponse(w, err.Error())
			return
		}
	}

	v := validator.New()
	req.Validate(v)
	if !v.Valid() {
		failedValidationResponse(w, v.Errors)
		return
	}

	ride, err := h.service.CancelRide(ctx, rideID, req.Reason)
	if err != nil {
		h.l.Warn(wrap.ErrorCtx(ctx, err), "failed to cancel ride", "error", err)
		serviceErrorResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"ride": dto.NewRideResponse(ride)}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "ride cancelled", "ride_id", ride.ID)
}

// GetPool godoc
// @Summary      Get a pool
// @Tags         pools
// @Produce      json
// @Param        pool_id path string true "Pool ID"
// @Success      200 {object} map[string]interface{}
// @Failure      404 {object} map[string]interface{} "Not found"
// @Failure      410 {object} map[string]interface{} "Pool expired"
// @Security     BearerAuth
// @Router       /pools/{pool_id} [get]
func (h *Pooling) GetPool(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "get_pool")

	poolID, err := uuid.Parse(r.PathValue("pool_id"))
	if err != nil {
		badRequestResponse(w, "invalid pool uuid format")
		return
	}

	pool, err := h.service.GetPool(ctx, poolID)
	if err != nil {
		h.l.Warn(wrap.ErrorCtx(ctx, err), "failed to get pool", "error", err)
		serviceErrorResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"pool": dto.NewPoolResponse(pool)}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// TransitionPool godoc
// @Summary      Move a pool along its lifecycle
// @Description  action is one of confirm, start, complete, cancel.
// @Tags         pools
// @Produce      json
// @Param        pool_id path string true "Pool ID"
// @Param        action  path string true "confirm | start | complete | cancel"
// @Success      200 {object} map[string]interface{}
// @Failure      404 {object} map[string]interface{} "Not found"
// @Failure      409 {object} map[string]interface{} "Invalid transition or conflict"
// @Security     BearerAuth
// @Router       /pools/{pool_id}/{action} [post]
func (h *Pooling) TransitionPool(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "transition_pool")

	to, ok := poolActions[r.PathValue("action")]
	if !ok {
		errorResponse(w, http.StatusNotFound, "unknown pool action")
		return
	}

	poolID, err := uuid.Parse(r.PathValue("pool_id"))
	if err != nil {
		badRequestResponse(w, "invalid pool uuid format")
		return
	}

	pool, err := h.service.Transition(ctx, poolID, to)
	if err != nil {
		h.l.Warn(wrap.ErrorCtx(ctx, err), "failed to transition pool", "error", err, "to", to)
		serviceErrorResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"pool": dto.NewPoolResponse(pool)}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}
