package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Temutjin2k/ride-pooling/pkg/logger"
)

func TestHealthCheck(t *testing.T) {
	ok := DependencyCheck{Name: "postgres", Check: func(context.Context) error { return nil }}
	down := DependencyCheck{Name: "redis", Check: func(context.Context) error { return errors.New("dial tcp: refused") }}

	tests := []struct {
		name   string
		checks []DependencyCheck
		code   int
		status string
		deps   map[string]any
	}{
		{name: "no checks", code: http.StatusOK, status: "available"},
		{name: "all up", checks: []DependencyCheck{ok}, code: http.StatusOK, status: "available", deps: map[string]any{"postgres": "up"}},
		{name: "one down", checks: []DependencyCheck{ok, down}, code: http.StatusServiceUnavailable, status: "degraded", deps: map[string]any{"postgres": "up", "redis": "down"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealth("pool-worker", logger.New(io.Discard, "handler-test", logger.LevelError), tt.checks...)
			rec := httptest.NewRecorder()
			h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, tt.code, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body["status"])
			assert.Equal(t, "pool-worker", body["mode"])
			if tt.deps == nil {
				assert.NotContains(t, body, "dependencies")
			} else {
				assert.Equal(t, tt.deps, body["dependencies"])
			}
		})
	}
}
