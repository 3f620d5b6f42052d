package rabbit

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/pkg/logger"
	wrap "github.com/Temutjin2k/ride-pooling/pkg/logger/wrapper"
	"github.com/Temutjin2k/ride-pooling/pkg/metrics"
	"github.com/Temutjin2k/ride-pooling/pkg/rabbit"
)

const (
	PoolExchange = "pool_topic"

	publishAttempts = 3
	publishBackoff  = 500 * time.Millisecond
)

// PoolBroker publishes pool events to the 'pool_topic' exchange.
type PoolBroker struct {
	client       *rabbit.RabbitMQ
	PoolExchange string
	service      string

	l logger.Logger
}

func NewPoolBroker(client *rabbit.RabbitMQ, service string, log logger.Logger) *PoolBroker {
	return &PoolBroker{
		client:       client,
		PoolExchange: PoolExchange,
		service:      service,
		l:            log,
	}
}

// Setup declares the exchange.
func (b *PoolBroker) Setup(ctx context.Context) error {
	if err := b.client.EnsureConnection(ctx); err != nil {
		return err
	}
	return b.client.Topology(b.PoolExchange, "", "")
}

// PublishPoolEvent отправляет событие пула в exchange 'pool_topic' с ключом 'pool.{event}'.
func (b *PoolBroker) PublishPoolEvent(ctx context.Context, msg models.PoolEventMessage) error {
	ctx = wrap.WithAction(ctx, "rabbitmq_publish_pool_event")

	// Проверяем и восстанавливаем соединение
	if err := b.client.EnsureConnection(ctx); err != nil {
		b.l.Error(ctx, "ensure connection failed", err)
		metrics.RecordRabbitMQPublish(b.service, b.PoolExchange, err)
		return wrap.Error(ctx, err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("failed to marshal message: %w", err))
	}

	// ключ маршрутизации, example, "pool.joined"
	key := msg.Type.String()

	err = retry(ctx, publishAttempts, publishBackoff, func() error {
		// канал мог умереть между попытками
		if err := b.client.EnsureConnection(ctx); err != nil {
			return err
		}
		if err := b.client.Publish(ctx, b.PoolExchange, key,
			amqp.Publishing{
				ContentType:   "application/json",
				DeliveryMode:  amqp.Persistent,
				CorrelationId: msg.CorrelationID,
				MessageId:     fmt.Sprintf("%s:%d", msg.PoolID, msg.Version),
				Body:          body,
				Timestamp:     msg.OccurredAt,
			},
		); err != nil {
			return fmt.Errorf("failed to publish with context: %w", err)
		}
		return nil
	})
	metrics.RecordRabbitMQPublish(b.service, b.PoolExchange, err)
	if err != nil {
		return wrap.Error(ctx, err)
	}

	return nil
}
