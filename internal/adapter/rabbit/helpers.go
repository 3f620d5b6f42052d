package rabbit

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// isRecoverableError returns true if the provided error must be requeued
func isRecoverableError(err error) bool {
	return types.IsOneOf(err, types.ErrConflict, types.ErrUpstreamUnavailable)
}

// retry calls fn up to n times, sleeping between attempts. It stops early when ctx is done.
func retry(ctx context.Context, n int, sleep time.Duration, fn func() error) error {
	var err error
	for i := range n {
		if err = fn(); err == nil {
			return nil
		}
		if i == n-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
	return err
}

func pause(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
