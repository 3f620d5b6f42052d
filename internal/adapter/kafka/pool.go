package kafka

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/pkg/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const writeTimeout = 2 * time.Second

// MessageWriter is the part of *kafka.Writer the event writer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PoolEventWriter mirrors pool events to a kafka topic keyed by pool id, so
// every event of one pool lands on one partition in order.
type PoolEventWriter struct {
	writer MessageWriter
	topic  string
}

func NewPoolEventWriter(brokers []string, topic string) *PoolEventWriter {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &PoolEventWriter{writer: w, topic: topic}
}

// NewPoolEventWriterWith wraps an existing writer.
func NewPoolEventWriterWith(w MessageWriter, topic string) *PoolEventWriter {
	return &PoolEventWriter{writer: w, topic: topic}
}

func (k *PoolEventWriter) PublishPoolEvent(ctx context.Context, evt models.PoolEventMessage) error {
	const op = "PoolEventWriter.PublishPoolEvent"

	b, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.PoolID.String()),
		Value: b,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(evt.Type.String())},
		},
	})
	metrics.RecordKafkaWrite(k.topic, err)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (k *PoolEventWriter) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
