package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPoolEventWriter_KeysByPool(t *testing.T) {
	w := &fakeWriter{}
	ew := NewPoolEventWriterWith(w, "pool-events")

	evt := models.PoolEventMessage{
		Type:          types.EventPoolJoined,
		PoolID:        uuid.New(),
		Members:       []uuid.UUID{uuid.New(), uuid.New()},
		Status:        types.PoolStatusForming,
		SeatsOccupied: 2,
		Version:       2,
		OccurredAt:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, ew.PublishPoolEvent(context.Background(), evt))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, evt.PoolID.String(), string(msg.Key))
	assert.Equal(t, []kafka.Header{{Key: "event", Value: []byte("pool.joined")}}, msg.Headers)

	var got models.PoolEventMessage
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, evt, got)
}

func TestPoolEventWriter_Error(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	ew := NewPoolEventWriterWith(w, "pool-events")

	err := ew.PublishPoolEvent(context.Background(), models.PoolEventMessage{PoolID: uuid.New()})
	assert.ErrorContains(t, err, "leader not available")
}
