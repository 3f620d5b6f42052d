package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	writeWait  = 3 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var ErrConnClosed = errors.New("connection closed")

type Conn struct {
	conn     *websocket.Conn
	entityID uuid.UUID
	doneCtx  context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
}

func NewConn(ctx context.Context, entityID uuid.UUID, conn *websocket.Conn) *Conn {
	ctx, cancel := context.WithCancel(ctx)

	return &Conn{
		conn:     conn,
		entityID: entityID,
		doneCtx:  ctx,
		cancel:   cancel,
	}
}

func (c *Conn) EntityID() uuid.UUID {
	return c.entityID
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.doneCtx.Done()
}

// health expects c.mu held.
func (c *Conn) health() error {
	if c.conn == nil {
		return errors.New("connection is nil")
	}

	select {
	case <-c.doneCtx.Done():
		return ErrConnClosed
	default:
	}
	return nil
}

func (c *Conn) Health() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.health(); err != nil {
		return err
	}
	if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Send writes msg as a JSON text frame.
func (c *Conn) Send(msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("send failed: marshal: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.health(); err != nil {
		return fmt.Errorf("send failed: connection not healthy: %w", err)
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Listen reads frames until the peer goes away or the connection is closed,
// answering pings and pinging the peer in the background.
// handler gets every text frame decoded as a JSON object.
func (c *Conn) Listen(handler func(msg map[string]any) error) error {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.keepAlive()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.doneCtx.Done():
				return nil
			default:
			}
			return fmt.Errorf("read failed: %w", err)
		}
		if handler == nil {
			continue
		}

		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if err := handler(msg); err != nil {
			return fmt.Errorf("handler failed: %w", err)
		}
	}
}

func (c *Conn) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.doneCtx.Done():
			return
		case <-ticker.C:
			if err := c.Health(); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.doneCtx.Done():
		return nil
	default:
	}
	c.cancel()

	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		return c.conn.Close()
	}
	return nil
}
