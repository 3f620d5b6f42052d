package wshandler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	"github.com/Temutjin2k/ride-pooling/pkg/logger"
	ws "github.com/Temutjin2k/ride-pooling/pkg/wsHub"
)

func newTestServer(t *testing.T) (*PassengerHub, *ws.ConnectionHub, *httptest.Server) {
	t.Helper()

	l := logger.New(io.Discard, "ws-test", logger.LevelError)
	connections := ws.NewConnHub(l)
	hub := NewPassengerHub(connections, "ws-test", l)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/passengers/{passenger_id}", hub.HandleWebSocket)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		connections.Close()
		srv.Close()
	})

	return hub, connections, srv
}

func dial(t *testing.T, srv *httptest.Server, passengerID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/passengers/" + passengerID
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPassengerHub_PublishPoolEvent(t *testing.T) {
	hub, connections, srv := newTestServer(t)

	passenger := uuid.New()
	c := dial(t, srv, passenger.String())
	require.Eventually(t, func() bool { return connections.Len() == 1 }, time.Second, 10*time.Millisecond)

	rideID := uuid.New()
	evt := models.PoolEventMessage{
		Type:          types.EventPoolJoined,
		PoolID:        uuid.New(),
		RideID:        &rideID,
		Status:        types.PoolStatusForming,
		SeatsOccupied: 2,
		// the second passenger has no socket and is skipped
		Passengers: []uuid.UUID{passenger, uuid.New()},
	}
	require.NoError(t, hub.PublishPoolEvent(context.Background(), evt))

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)

	var got models.PassengerPoolUpdate
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, types.EventPoolJoined, got.Type)
	assert.Equal(t, evt.PoolID, got.PoolID)
	require.NotNil(t, got.RideID)
	assert.Equal(t, rideID, *got.RideID)
	assert.Equal(t, 2, got.SeatsOccupied)
	assert.NotEmpty(t, got.Message)
}

func TestPassengerHub_DisconnectUnregisters(t *testing.T) {
	_, connections, srv := newTestServer(t)

	c := dial(t, srv, uuid.NewString())
	require.Eventually(t, func() bool { return connections.Len() == 1 }, time.Second, 10*time.Millisecond)

	_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.Close()

	require.Eventually(t, func() bool { return connections.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPassengerHub_InvalidPassengerID(t *testing.T) {
	_, _, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/ws/passengers/not-a-uuid")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPassengerMessage(t *testing.T) {
	for _, evt := range []types.PoolEvent{
		types.EventPoolCreated, types.EventPoolJoined, types.EventPoolLeft, types.EventPoolConfirmed,
		types.EventPoolStarted, types.EventPoolCompleted, types.EventPoolCancelled, types.EventPoolExpired,
	} {
		assert.NotEmpty(t, passengerMessage(models.PoolEventMessage{Type: evt}), evt.String())
	}
}
