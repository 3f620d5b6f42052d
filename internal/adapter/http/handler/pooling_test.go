package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Temutjin2k/ride-pooling/internal/adapter/memory"
	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	"github.com/Temutjin2k/ride-pooling/internal/service/pooling"
	"github.com/Temutjin2k/ride-pooling/internal/service/pricing"
	"github.com/Temutjin2k/ride-pooling/pkg/logger"
)

func newTestMux(t *testing.T, svc PoolingService) *http.ServeMux {
	t.Helper()

	h := NewPooling(svc, logger.New(io.Discard, "handler-test", logger.LevelError))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rides", h.CreateRide)
	mux.HandleFunc("GET /rides/{ride_id}", h.GetRide)
	mux.HandleFunc("POST /rides/{ride_id}/cancel", h.CancelRide)
	mux.HandleFunc("GET /pools/{pool_id}", h.GetPool)
	mux.HandleFunc("POST /pools/{pool_id}/{action}", h.TransitionPool)
	return mux
}

func newMemoryService() *pooling.Service {
	store := memory.NewStore()
	cfg := pooling.DefaultConfig()
	cfg.RetryBackoff = 0
	return pooling.New(
		store.Pools(), store.Rides(), store.Pools(), pricing.New(pricing.DefaultTariff()), store, cfg,
		logger.New(io.Discard, "handler-test", logger.LevelError),
	)
}

func do(t *testing.T, mux http.Handler, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, target, rdr)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func rideBody(lat, lng float64, luggage int) map[string]any {
	return map[string]any{
		"passenger_id": uuid.NewString(),
		"pickup":       map[string]any{"latitude": lat, "longitude": lng},
		"dropoff":      map[string]any{"latitude": 28.60, "longitude": 77.15},
		"luggage":      luggage,
	}
}

func TestPooling_CreateRide(t *testing.T) {
	mux := newTestMux(t, newMemoryService())

	rec, body := do(t, mux, http.MethodPost, "/rides", rideBody(28.55, 77.10, 1))
	require.Equal(t, http.StatusCreated, rec.Code)

	ride := body["ride"].(map[string]any)
	pool := body["pool"].(map[string]any)
	assert.Equal(t, "pooled", ride["status"])
	assert.Equal(t, pool["pool_id"], ride["pool_id"])
	assert.Equal(t, "forming", pool["status"])
	assert.EqualValues(t, 1, pool["seats_occupied"])
	assert.EqualValues(t, 0, body["detour_km"])

	rec, body = do(t, mux, http.MethodPost, "/rides", rideBody(28.5505, 77.1005, 2))
	require.Equal(t, http.StatusCreated, rec.Code)
	joined := body["pool"].(map[string]any)
	assert.Equal(t, pool["pool_id"], joined["pool_id"])
	assert.EqualValues(t, 2, joined["seats_occupied"])

	// pickups ~70 m apart, same dropoff: a small positive estimate under the bound
	detour, ok := body["detour_km"].(float64)
	require.True(t, ok)
	assert.Greater(t, detour, 0.0)
	assert.Less(t, detour, joined["max_detour_km"].(float64))
}

func TestPooling_CreateRide_Validation(t *testing.T) {
	mux := newTestMux(t, newMemoryService())

	tests := []struct {
		name   string
		body   any
		status int
		field  string
	}{
		{
			name:   "luggage over limit",
			body:   rideBody(28.55, 77.10, 4),
			status: http.StatusUnprocessableEntity,
			field:  "luggage",
		},
		{
			name:   "latitude out of range",
			body:   rideBody(91, 77.10, 0),
			status: http.StatusUnprocessableEntity,
			field:  "pickup.latitude",
		},
		{
			name: "missing pickup",
			body: map[string]any{
				"passenger_id": uuid.NewString(),
				"dropoff":      map[string]any{"latitude": 28.60, "longitude": 77.15},
			},
			status: http.StatusUnprocessableEntity,
			field:  "pickup.latitude",
		},
		{
			name:   "unknown field",
			body:   map[string]any{"seats": 2},
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, mux, http.MethodPost, "/rides", tt.body)
			require.Equal(t, tt.status, rec.Code)
			if tt.field != "" {
				assert.Contains(t, body["error"], tt.field)
			}
		})
	}
}

func TestPooling_CancelRide(t *testing.T) {
	mux := newTestMux(t, newMemoryService())

	_, body := do(t, mux, http.MethodPost, "/rides", rideBody(28.55, 77.10, 0))
	rideID := body["ride"].(map[string]any)["ride_id"].(string)
	poolID := body["pool"].(map[string]any)["pool_id"].(string)

	rec, body := do(t, mux, http.MethodPost, "/rides/"+rideID+"/cancel", map[string]any{"reason": "changed plans"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", body["ride"].(map[string]any)["status"])

	// the only member left, so the pool is gone with it
	rec, body = do(t, mux, http.MethodGet, "/pools/"+poolID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", body["pool"].(map[string]any)["status"])

	rec, _ = do(t, mux, http.MethodPost, "/rides/"+rideID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPooling_Lookups(t *testing.T) {
	mux := newTestMux(t, newMemoryService())

	rec, _ := do(t, mux, http.MethodGet, "/rides/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, mux, http.MethodGet, "/rides/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, mux, http.MethodGet, "/pools/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPooling_TransitionPool(t *testing.T) {
	mux := newTestMux(t, newMemoryService())

	_, body := do(t, mux, http.MethodPost, "/rides", rideBody(28.55, 77.10, 0))
	poolID := body["pool"].(map[string]any)["pool_id"].(string)

	rec, _ := do(t, mux, http.MethodPost, "/pools/"+poolID+"/teleport", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, mux, http.MethodPost, "/pools/"+poolID+"/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	for _, step := range []struct{ action, status string }{
		{"confirm", "confirmed"},
		{"start", "in_progress"},
		{"complete", "completed"},
	} {
		rec, body = do(t, mux, http.MethodPost, "/pools/"+poolID+"/"+step.action, nil)
		require.Equal(t, http.StatusOK, rec.Code, step.action)
		assert.Equal(t, step.status, body["pool"].(map[string]any)["status"])
	}
}

type conflictService struct {
	PoolingService
	poolID uuid.UUID
}

func (s conflictService) CancelRide(_ context.Context, rideID uuid.UUID, _ string) (*models.Ride, error) {
	return nil, &types.ConflictError{Op: "Service.Leave", RideID: rideID, PoolID: s.poolID, Version: 7, Attempts: 3}
}


func (conflictService) GetPool(context.Context, uuid.UUID) (*models.Pool, error) {
	return nil, types.ErrPoolExpired
}

func TestPooling_ErrorMapping(t *testing.T) {
	poolID, rideID := uuid.New(), uuid.New()
	mux := newTestMux(t, conflictService{poolID: poolID})

	rec, body := do(t, mux, http.MethodPost, "/rides/"+rideID.String()+"/cancel", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	conflict := body["conflict"].(map[string]any)
	assert.EqualValues(t, 3, conflict["attempts"])
	assert.EqualValues(t, 7, conflict["version"])
	assert.Equal(t, rideID.String(), conflict["ride_id"])
	assert.Equal(t, poolID.String(), conflict["pool_id"])

	rec, _ = do(t, mux, http.MethodGet, "/pools/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{types.ErrRideNotFound, http.StatusNotFound},
		{types.ErrRideCannotBeCancelled, http.StatusConflict},
		{&types.ConflictError{}, http.StatusConflict},
		{types.ErrPoolExpired, http.StatusGone},
		{types.ErrConstraintViolation, http.StatusUnprocessableEntity},
		{types.ErrUpstreamUnavailable, http.StatusServiceUnavailable},
		{io.EOF, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, GetCode(tt.err), tt.err.Error())
	}
}
