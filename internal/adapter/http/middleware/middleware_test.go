package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Temutjin2k/ride-pooling/pkg/logger"
	wrap "github.com/Temutjin2k/ride-pooling/pkg/logger/wrapper"
)

const secret = "test-secret"

func newTestMiddleware(auth *TokenVerifier) *Middleware {
	return NewMiddleware(auth, "pool-service", logger.New(io.Discard, "test", logger.LevelError))
}

func sign(t *testing.T, key string, method jwt.SigningMethod, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, Claims{
		Role: "passenger",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "c0ffee00-0000-4000-8000-000000000001",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	s, err := tok.SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func TestAuth(t *testing.T) {
	m := newTestMiddleware(NewTokenVerifier(secret))

	var seen *Claims
	h := m.Auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"public health", "/health", "", http.StatusNoContent},
		{"missing header", "/rides", "", http.StatusUnauthorized},
		{"bad scheme", "/rides", "Basic abc", http.StatusUnauthorized},
		{"wrong key", "/rides", "Bearer " + sign(t, "other", jwt.SigningMethodHS256, time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"expired", "/rides", "Bearer " + sign(t, secret, jwt.SigningMethodHS256, time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"wrong alg", "/rides", "Bearer " + sign(t, secret, jwt.SigningMethodHS512, time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"valid", "/rides", "Bearer " + sign(t, secret, jwt.SigningMethodHS256, time.Now().Add(time.Hour)), http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	require.NotNil(t, seen)
	assert.Equal(t, "passenger", seen.Role)
	assert.Equal(t, "c0ffee00-0000-4000-8000-000000000001", seen.Subject)
}

func TestAuth_Disabled(t *testing.T) {
	m := newTestMiddleware(nil)
	h := m.Auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rides", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequestID(t *testing.T) {
	m := newTestMiddleware(nil)

	var got string
	h := m.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = wrap.FromContext(r.Context()).RequestID
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rides", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", got)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rides", nil))
	assert.NotEmpty(t, got)
	assert.NotEqual(t, "abc-123", got)
	assert.Equal(t, got, rec.Header().Get(RequestIDHeader))
}

func TestRecover(t *testing.T) {
	m := newTestMiddleware(nil)
	h := m.Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rides", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "close", rec.Header().Get("Connection"))
}

func TestStatusRecorder(t *testing.T) {
	m := newTestMiddleware(nil)
	var seen *statusRecorder
	h := m.Logging(m.Metrics(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		seen = w.(*statusRecorder)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rides", nil))

	require.NotNil(t, seen)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, http.StatusTeapot, seen.Status())
	assert.Equal(t, 5, seen.bytes)
}

func TestStatusRecorder_DefaultsToOK(t *testing.T) {
	rw := newStatusRecorder(httptest.NewRecorder())
	assert.Equal(t, http.StatusOK, rw.Status())

	_, _ = rw.Write([]byte("{}"))
	assert.Equal(t, http.StatusOK, rw.Status())
	assert.Equal(t, 2, rw.bytes)
}
