package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-pooling/pkg/logger"
	wrap "github.com/Temutjin2k/ride-pooling/pkg/logger/wrapper"
)

var (
	ErrEmptyConn      = errors.New("connection is empty")
	ErrConnIsNotFound = errors.New("connection not found")
)

// ConnectionHub хранит и управляет всеми активными WebSocket соединениями
type ConnectionHub struct {
	clients map[uuid.UUID]*Conn
	l       logger.Logger
	mu      sync.Mutex
}

func NewConnHub(l logger.Logger) *ConnectionHub {
	return &ConnectionHub{
		clients: make(map[uuid.UUID]*Conn),
		l:       l,
	}
}

// Add добавляет новое соединение в хаб.
// Если соединение с этим entityID уже существует, оно закрывается.
func (h *ConnectionHub) Add(newConn *Conn) error {
	if newConn == nil {
		return ErrEmptyConn
	}

	h.mu.Lock()
	existing, ok := h.clients[newConn.entityID]
	h.clients[newConn.entityID] = newConn
	h.mu.Unlock()

	if ok && existing != newConn {
		ctx := wrap.WithAction(context.Background(), "add_ws_connection")
		h.l.Warn(ctx, "replacing existing connection", "entity_id", existing.entityID)
		if err := existing.Close(); err != nil {
			h.l.Warn(ctx, "failed to close existing conn", "entity_id", existing.entityID, "err", err.Error())
		}
	}

	return nil
}

// Remove закрывает conn и удаляет его из хаба, если он всё ещё зарегистрирован.
// A newer connection for the same entity is left alone.
func (h *ConnectionHub) Remove(conn *Conn) {
	if conn == nil {
		return
	}

	h.mu.Lock()
	if current, ok := h.clients[conn.entityID]; ok && current == conn {
		delete(h.clients, conn.entityID)
	}
	h.mu.Unlock()

	if err := conn.Close(); err != nil {
		h.l.Debug(context.Background(), "failed to close conn", "entity_id", conn.entityID, "err", err.Error())
	}
}

// SendTo отправляет сообщение определённому клиенту по ID
// возвращает ошибку ErrConnIsNotFound, если соединение не найдено
func (h *ConnectionHub) SendTo(id uuid.UUID, msg any) error {
	conn, err := h.GetConn(id)
	if err != nil {
		return err
	}
	return conn.Send(msg)
}

// Close закрывает каждое websocket соединение
func (h *ConnectionHub) Close() {
	ctx := wrap.WithAction(context.Background(), "hub_close")

	// копируем клиентов под локом
	h.mu.Lock()
	clients := make([]*Conn, 0, len(h.clients))
	for _, conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.Unlock()

	// закрываем вне локов
	for _, conn := range clients {
		h.Remove(conn)
	}

	h.l.Info(ctx, "all websocket connections closed gracefully", "count", len(clients))
}

// Len returns the number of registered connections.
func (h *ConnectionHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// GetConn возвращает нужное соединение по UUID
func (h *ConnectionHub) GetConn(id uuid.UUID) (*Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.clients[id]
	if !ok {
		return nil, ErrConnIsNotFound
	}
	return conn, nil
}
