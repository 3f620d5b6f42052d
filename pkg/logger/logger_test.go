package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wrap "github.com/Temutjin2k/ride-pooling/pkg/logger/wrapper"
)

func TestLogger_InjectsContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "pool-service", LevelDebug)

	ctx := wrap.WithAction(context.Background(), "join_pool")
	ctx = wrap.WithRideID(ctx, "ride-1")
	ctx = wrap.WithPoolID(ctx, "pool-1")

	l.Error(ctx, "join failed", errors.New("conflict"), "attempt", 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))

	assert.Equal(t, "join failed", rec["message"])
	assert.Equal(t, "pool-service", rec["service"])
	assert.Equal(t, "join_pool", rec["action"])
	assert.Equal(t, "ride-1", rec["ride_id"])
	assert.Equal(t, "pool-1", rec["pool_id"])
	assert.EqualValues(t, 2, rec["attempt"])
	assert.Contains(t, rec, "timestamp")

	errGroup, ok := rec["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "conflict", errGroup["msg"])
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "svc", LevelWarn)

	l.Info(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	l.Warn(context.Background(), "shown")
	assert.NotZero(t, buf.Len())
}

func TestValidateLogLevel(t *testing.T) {
	for _, lvl := range []string{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		assert.True(t, ValidateLogLevel(lvl), lvl)
	}
	assert.False(t, ValidateLogLevel("TRACE"))
}

func TestLogger_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "svc", "TRACE")

	l.Debug(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	l.Info(context.Background(), "shown")
	assert.NotZero(t, buf.Len())
}
