package rabbit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	"github.com/Temutjin2k/ride-pooling/pkg/logger"
	wrap "github.com/Temutjin2k/ride-pooling/pkg/logger/wrapper"
)

const (
	heartbeat        = 10 * time.Second
	reconnectRetries = 5
	reconnectStep    = 2 * time.Second
)

// ErrClosed is returned once Close was called; the client never reconnects after that.
var ErrClosed = errors.New("rabbitmq client closed")

// RabbitMQ owns one connection and one channel and re-dials them when the
// broker drops either.
type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	broken   bool // connection or channel went away
	shutdown bool // Close was called
	mu       sync.Mutex
	dsn      string

	log logger.Logger
}

// New creates rabbitMQ client
func New(ctx context.Context, dsn string, log logger.Logger) (*RabbitMQ, error) {
	conn, ch, err := dial(dsn)
	if err != nil {
		return nil, err
	}

	log.Info(wrap.WithAction(ctx, types.ActionRabbitMQConnected), "connected to rabbitMQ")

	r := &RabbitMQ{dsn: dsn, log: log}
	r.attach(conn, ch)

	return r, nil
}

func dial(dsn string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(dsn, amqp.Config{Heartbeat: heartbeat})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return conn, ch, nil
}

// attach installs conn and ch and watches them. Callers other than New hold r.mu.
func (r *RabbitMQ) attach(conn *amqp.Connection, ch *amqp.Channel) {
	r.conn = conn
	r.channel = ch
	r.broken = false

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go r.watch(conn, connClosed, chClosed)
}

// watch marks the client broken when either side closes. A stale watcher
// for a replaced connection does nothing.
func (r *RabbitMQ) watch(conn *amqp.Connection, connClosed, chClosed <-chan *amqp.Error) {
	var closeErr *amqp.Error
	select {
	case closeErr = <-connClosed:
	case closeErr = <-chClosed:
	}

	r.mu.Lock()
	if r.conn == conn {
		r.broken = true
	}
	shutdown := r.shutdown
	r.mu.Unlock()

	ctx := wrap.WithAction(context.Background(), types.ActionRabbitConnectionClosed)
	switch {
	case closeErr != nil:
		r.log.Error(ctx, "RabbitMQ connection closed with error", closeErr)
	case !shutdown:
		r.log.Warn(ctx, "RabbitMQ connection closed by peer")
	default:
		r.log.Debug(ctx, "RabbitMQ connection closed gracefully")
	}
}

// IsConnectionClosed checks if the connection is closed
func (r *RabbitMQ) IsConnectionClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closedLocked()
}

func (r *RabbitMQ) closedLocked() bool {
	return r.shutdown || r.broken || r.conn == nil || r.conn.IsClosed() || r.channel == nil || r.channel.IsClosed()
}

// EnsureConnection re-dials when the connection is gone.
func (r *RabbitMQ) EnsureConnection(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		return ErrClosed
	}
	if !r.closedLocked() {
		return nil
	}

	r.log.Warn(ctx, "rabbit connection closed, reconnecting...")
	if err := r.reconnectLocked(ctx); err != nil {
		return fmt.Errorf("failed to reconnect to RabbitMQ: %w", err)
	}
	r.log.Info(wrap.WithAction(ctx, types.ActionRabbitReconnected), "RabbitMQ reconnected successfully")
	return nil
}

func (r *RabbitMQ) reconnectLocked(ctx context.Context) error {
	if r.dsn == "" {
		return fmt.Errorf("dsn is empty: can't reconnect")
	}

	var err error
	for i := range reconnectRetries {
		var (
			conn *amqp.Connection
			ch   *amqp.Channel
		)
		if conn, ch, err = dial(r.dsn); err == nil {
			r.attach(conn, ch)
			return nil
		}

		wait := time.Duration(i+1) * reconnectStep
		r.log.Debug(ctx, "reconnect attempt failed", "attempt", i+1, "retry_in", wait.String(), "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}

// Topology declares exchange (topic, durable) and, when queue is set, a durable
// queue bound to it with bindingKey.
func (r *RabbitMQ) Topology(exchange, queue, bindingKey string) error {
	ch, err := r.currentChannel()
	if err != nil {
		return err
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if queue == "" {
		return nil
	}

	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(q.Name, bindingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}

	return nil
}

// Publish sends msg on the current channel.
func (r *RabbitMQ) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	ch, err := r.currentChannel()
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, exchange, key, false, false, msg)
}

// Consume starts a manual-ack consumer on queue with at most prefetch unacked deliveries.
// The returned channel is closed when the connection drops.
func (r *RabbitMQ) Consume(queue string, prefetch int) (<-chan amqp.Delivery, error) {
	ch, err := r.currentChannel()
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return ch.Consume(queue, "", false, false, false, false, nil)
}

func (r *RabbitMQ) currentChannel() (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		return nil, ErrClosed
	}
	if r.channel == nil || r.channel.IsClosed() {
		return nil, fmt.Errorf("channel is closed")
	}
	return r.channel, nil
}

// Close closes the channel and the connection. Later calls are no-ops.
func (r *RabbitMQ) Close(ctx context.Context) error {
	ctx = wrap.WithAction(ctx, types.ActionRabbitConnectionClosing)

	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return nil
	}
	r.shutdown = true
	ch, conn := r.channel, r.conn
	r.channel, r.conn = nil, nil
	r.mu.Unlock()

	if ch != nil {
		if err := closeWithCtxFunc(ctx, ch.Close); err != nil && ctx.Err() == nil {
			// канал мог уже закрыться вместе с соединением
			r.log.Debug(ctx, "error closing channel", "error", err)
		}
	}

	if conn != nil {
		if err := closeWithCtxFunc(ctx, conn.Close); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, amqp.ErrClosed) {
				return fmt.Errorf("failed to close connection: %w", err)
			}
		}
	}

	r.log.Info(wrap.WithAction(ctx, types.ActionRabbitConnectionClosed), "rabbitMQ closed")
	return nil
}

// closeWithCtxFunc runs fn but stops waiting once ctx is done.
func closeWithCtxFunc(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
