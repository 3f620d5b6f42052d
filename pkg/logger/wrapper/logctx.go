package wrap

import (
	"context"
	"log/slog"
)

type (
	// LogCtx holds the identifiers attached to every log record of a request.
	LogCtx struct {
		Action      string
		PassengerID string
		RequestID   string
		RideID      string
		PoolID      string
	}

	logCtxKeyStruct struct{}
)

// LogCtxKey is the key for log context values
var LogCtxKey = &logCtxKeyStruct{}

// FromContext returns the LogCtx stored in ctx, or an empty one.
func FromContext(ctx context.Context) LogCtx {
	if lc, ok := ctx.Value(LogCtxKey).(LogCtx); ok {
		return lc
	}
	return LogCtx{}
}

// Attrs returns the non-empty fields as slog attributes.
func (lc LogCtx) Attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 5)
	for _, f := range [...]struct{ key, val string }{
		{"action", lc.Action},
		{"request_id", lc.RequestID},
		{"passenger_id", lc.PassengerID},
		{"ride_id", lc.RideID},
		{"pool_id", lc.PoolID},
	} {
		if f.val != "" {
			attrs = append(attrs, slog.String(f.key, f.val))
		}
	}
	return attrs
}

// over fills the empty fields of lc from base.
func (lc LogCtx) over(base LogCtx) LogCtx {
	if lc.Action == "" {
		lc.Action = base.Action
	}
	if lc.PassengerID == "" {
		lc.PassengerID = base.PassengerID
	}
	if lc.RequestID == "" {
		lc.RequestID = base.RequestID
	}
	if lc.RideID == "" {
		lc.RideID = base.RideID
	}
	if lc.PoolID == "" {
		lc.PoolID = base.PoolID
	}
	return lc
}

// WithLogCtx merges the non-empty fields of newLc over the LogCtx in ctx.
func WithLogCtx(ctx context.Context, newLc LogCtx) context.Context {
	return context.WithValue(ctx, LogCtxKey, newLc.over(FromContext(ctx)))
}

func WithPassengerID(ctx context.Context, passengerID string) context.Context {
	return WithLogCtx(ctx, LogCtx{PassengerID: passengerID})
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return WithLogCtx(ctx, LogCtx{RequestID: requestID})
}

func WithRideID(ctx context.Context, rideID string) context.Context {
	return WithLogCtx(ctx, LogCtx{RideID: rideID})
}

func WithPoolID(ctx context.Context, poolID string) context.Context {
	return WithLogCtx(ctx, LogCtx{PoolID: poolID})
}

// WithAction sets the action name; every service method starts with it.
func WithAction(ctx context.Context, action string) context.Context {
	return WithLogCtx(ctx, LogCtx{Action: action})
}
