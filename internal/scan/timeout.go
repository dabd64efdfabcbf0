package scan

import (
	"context"
	"time"

	"github.com/ternarybob/speculor/internal/polygon"
)

// RunWithAbortAndTimeout runs task under a child context that is
// cancelled by either the parent (stop) or the timeout. On timer fire
// the task's error is replaced with a labelled timeout so callers can
// tell budget exhaustion apart from a stop.
func RunWithAbortAndTimeout[T any](ctx context.Context, timeout time.Duration, label string, task func(ctx context.Context) (T, error)) (T, error) {
	childCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	value, err := task(childCtx)
	if err != nil && childCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		var zero T
		return zero, polygon.NewTimeout(label)
	}
	return value, err
}
