package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ternarybob/speculor/internal/polygon"
)

func TestRunWithAbortAndTimeout_DeadlineBecomesTimeout(t *testing.T) {
	_, err := RunWithAbortAndTimeout(context.Background(), 10*time.Millisecond, "fetch-daily:AAPL",
		func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})

	if polygon.KindOf(err) != polygon.KindTimeout {
		t.Fatalf("kind = %v, want timeout", polygon.KindOf(err))
	}
	if !polygon.IsInfrastructure(err) {
		t.Error("timeout must classify as infrastructure")
	}
}

func TestRunWithAbortAndTimeout_ParentCancelIsNotATimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunWithAbortAndTimeout(ctx, time.Minute, "fetch-daily:AAPL",
		func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})

	if polygon.KindOf(err) == polygon.KindTimeout {
		t.Error("a stop must not be reported as budget exhaustion")
	}
}

func TestRunWithAbortAndTimeout_Passthrough(t *testing.T) {
	value, err := RunWithAbortAndTimeout(context.Background(), time.Minute, "x",
		func(ctx context.Context) (string, error) {
			return "ok", nil
		})
	if err != nil || value != "ok" {
		t.Errorf("got %q, %v", value, err)
	}

	taskErr := errors.New("bad payload")
	_, err = RunWithAbortAndTimeout(context.Background(), time.Minute, "x",
		func(ctx context.Context) (string, error) {
			return "", taskErr
		})
	if !errors.Is(err, taskErr) {
		t.Errorf("task error not passed through: %v", err)
	}
}
