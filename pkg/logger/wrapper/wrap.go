package wrap

import (
	"context"
	"errors"
)

// Error wraps an error with the current LogCtx from the context.
// An error that already carries a LogCtx keeps its identifiers unless ctx overrides them.
func Error(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	lc := FromContext(ctx)

	var e *errorWithLogCtx
	if errors.As(err, &e) {
		lc = lc.over(e.logCtx)
	}

	return &errorWithLogCtx{
		err:    err,
		logCtx: lc,
	}
}
