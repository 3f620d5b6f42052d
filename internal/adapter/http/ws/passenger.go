package wshandler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	"github.com/Temutjin2k/ride-pooling/pkg/logger"
	wrap "github.com/Temutjin2k/ride-pooling/pkg/logger/wrapper"
	"github.com/Temutjin2k/ride-pooling/pkg/metrics"
	ws "github.com/Temutjin2k/ride-pooling/pkg/wsHub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// clients are authenticated by the bearer token, not by origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// PassengerHub pushes pool updates to connected passengers.
type PassengerHub struct {
	connections *ws.ConnectionHub
	service     string
	l           logger.Logger
}

func NewPassengerHub(connections *ws.ConnectionHub, service string, l logger.Logger) *PassengerHub {
	return &PassengerHub{
		connections: connections,
		service:     service,
		l:           l,
	}
}

// HandleWebSocket godoc
// @Summary      Passenger pool updates
// @Description  Upgrades to a websocket and streams pool events for the passenger's rides.
// @Tags         websocket
// @Param        passenger_id path string true "Passenger ID"
// @Success      101 "Switching Protocols"
// @Failure      400 "Invalid passenger id"
// @Router       /ws/passengers/{passenger_id} [get]
func (h *PassengerHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "ws_passenger_connect")

	passengerID, err := uuid.Parse(r.PathValue("passenger_id"))
	if err != nil {
		http.Error(w, "invalid passenger id", http.StatusBadRequest)
		return
	}
	ctx = wrap.WithPassengerID(ctx, passengerID.String())

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		h.l.Warn(ctx, "websocket upgrade failed", "error", err)
		return
	}

	conn := ws.NewConn(context.WithoutCancel(ctx), passengerID, raw)
	if err := h.connections.Add(conn); err != nil {
		h.l.Error(ctx, "failed to register websocket", err)
		_ = conn.Close()
		return
	}
	h.updateGauge()
	h.l.Info(ctx, "passenger connected")

	defer func() {
		h.connections.Remove(conn)
		h.updateGauge()
		h.l.Info(ctx, "passenger disconnected")
	}()

	// passengers only listen; inbound frames are ignored
	if err := conn.Listen(nil); err != nil && !isNormalClose(err) {
		h.l.Debug(ctx, "websocket closed", "error", err)
	}
}

// PublishPoolEvent sends evt to every passenger it concerns who is connected.
// Passengers without a socket are skipped.
func (h *PassengerHub) PublishPoolEvent(ctx context.Context, evt models.PoolEventMessage) error {
	ctx = wrap.WithAction(wrap.WithPoolID(ctx, evt.PoolID.String()), "ws_publish_pool_event")

	update := models.PassengerPoolUpdate{
		Type:          evt.Type,
		RideID:        evt.RideID,
		PoolID:        evt.PoolID,
		Status:        evt.Status,
		SeatsOccupied: evt.SeatsOccupied,
		Message:       passengerMessage(evt),
	}

	var errs []error
	for _, id := range evt.Passengers {
		err := h.connections.SendTo(id, update)
		if err == nil || errors.Is(err, ws.ErrConnIsNotFound) {
			continue
		}
		errs = append(errs, fmt.Errorf("passenger %s: %w", id, err))
	}

	if err := errors.Join(errs...); err != nil {
		return wrap.Error(ctx, err)
	}
	return nil
}

func (h *PassengerHub) updateGauge() {
	metrics.WebSocketConnectionsGauge.WithLabelValues(h.service).Set(float64(h.connections.Len()))
}

func passengerMessage(evt models.PoolEventMessage) string {
	switch evt.Type {
	case types.EventPoolCreated, types.EventPoolJoined:
		return fmt.Sprintf("%d seats taken, waiting for more passengers", evt.SeatsOccupied)
	case types.EventPoolLeft:
		return "a passenger left the pool"
	case types.EventPoolConfirmed:
		return "your pool is confirmed"
	case types.EventPoolStarted:
		return "your ride has started"
	case types.EventPoolCompleted:
		return "your ride is complete"
	case types.EventPoolCancelled, types.EventPoolExpired:
		return "your pool was released, looking for a new one"
	default:
		return ""
	}
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(errors.Unwrap(err), websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
