package rabbit

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	"github.com/Temutjin2k/ride-pooling/pkg/logger"
	wrap "github.com/Temutjin2k/ride-pooling/pkg/logger/wrapper"
	"github.com/Temutjin2k/ride-pooling/pkg/metrics"
	"github.com/Temutjin2k/ride-pooling/pkg/rabbit"
)

const (
	RideExchange      = "ride_topic"
	QueueRideRequests = "ride_requests"
	RideRequestKey    = "ride.request.*"

	reconnectDelay   = 2 * time.Second
	consumerPrefetch = 16
)

// RideRequestConsumer reads ride requests published by the intake side.
type RideRequestConsumer struct {
	client  *rabbit.RabbitMQ
	service string
	l       logger.Logger
}

func NewRideRequestConsumer(client *rabbit.RabbitMQ, service string, l logger.Logger) *RideRequestConsumer {
	return &RideRequestConsumer{client: client, service: service, l: l}
}

type RideRequestHandler func(ctx context.Context, req models.RideRequestedMessage) error

func (c *RideRequestConsumer) handleMessage(ctx context.Context, fn RideRequestHandler, msg amqp.Delivery) {
	const op = "RideRequestConsumer.handleMessage"

	var req models.RideRequestedMessage
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		c.l.Error(ctx, "decode failed", err, "op", op)
		metrics.RecordRabbitMQConsume(c.service, QueueRideRequests, err)
		_ = msg.Nack(false, false)
		return
	}

	// добавляем в контекст переменные для логирования и трассировки
	if req.CorrelationID == "" {
		req.CorrelationID = msg.CorrelationId
	}
	ctx = wrap.WithRequestID(ctx, req.CorrelationID)

	err := fn(ctx, req)
	metrics.RecordRabbitMQConsume(c.service, QueueRideRequests, err)
	if err != nil {
		c.l.Error(wrap.ErrorCtx(ctx, err), "handler failed", err, "op", op)

		switch {
		case types.IsOneOf(err, types.ErrInvalidRequest):
			// повтор не поможет
			_ = msg.Reject(false)
		case isRecoverableError(err) && !msg.Redelivered:
			_ = msg.Nack(false, true)
		default:
			_ = msg.Nack(false, false)
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		c.l.Warn(ctx, "ack failed", "error", err, "op", op)
	}
}

// Consume слушает очередь 'ride_requests' и передаёт запросы в обработчик fn.
// It returns when ctx is done.
func (c *RideRequestConsumer) Consume(ctx context.Context, fn RideRequestHandler) error {
	const op = "RideRequestConsumer.Consume"
	ctx = wrap.WithAction(ctx, "rabbitmq_consume_ride_requests")

	for {
		if ctx.Err() != nil {
			c.l.Debug(ctx, "consume ride requests stopped by context")
			return nil
		}

		// Проверяем и восстанавливаем соединение
		if err := c.client.EnsureConnection(ctx); err != nil {
			c.l.Error(ctx, "ensure connection failed", err, "op", op)
			pause(ctx, reconnectDelay)
			continue
		}

		if err := c.client.Topology(RideExchange, QueueRideRequests, RideRequestKey); err != nil {
			c.l.Error(ctx, "declare topology failed", err, "op", op)
			pause(ctx, reconnectDelay)
			continue
		}

		msgs, err := c.client.Consume(QueueRideRequests, consumerPrefetch)
		if err != nil {
			c.l.Error(ctx, "consume failed", err, "op", op)
			pause(ctx, reconnectDelay)
			continue
		}

		c.l.Info(ctx, "start consuming ride requests", "queue", QueueRideRequests)

	consumeLoop:
		for {
			select {
			case <-ctx.Done():
				c.l.Info(ctx, "ride request consumer shutting down", "op", op)
				return nil

			case msg, ok := <-msgs:
				if !ok {
					c.l.Warn(ctx, "message channel closed, reconnecting...", "op", op)
					pause(ctx, reconnectDelay)
					break consumeLoop
				}

				go c.handleMessage(ctx, fn, msg)
			}
		}
	}
}
