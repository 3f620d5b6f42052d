package wrap

import (
	"context"
	"errors"
)

// errorWithLogCtx carries the LogCtx of the place the error was produced
type errorWithLogCtx struct {
	err    error
	logCtx LogCtx
}

func (e *errorWithLogCtx) Error() string {
	return e.err.Error()
}

func (e *errorWithLogCtx) Unwrap() error {
	return e.err
}

// ErrorCtx returns ctx enriched with the LogCtx carried by err. Fields the
// error knows about (action, ride, pool) win; the rest, like the request id
// set by the edge, are kept from ctx.
func ErrorCtx(ctx context.Context, err error) context.Context {
	var e *errorWithLogCtx
	if errors.As(err, &e) && e != nil {
		return WithLogCtx(ctx, e.logCtx)
	}
	return ctx
}
