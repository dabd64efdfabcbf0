package scan

import (
	"context"

	"github.com/ternarybob/speculor/internal/polygon"
)

// RetryCallbacks reports the fate of each retried ticker.
type RetryCallbacks struct {
	OnRecovered   func(ticker string)
	OnStillFailed func(ticker string, err error)
}

// RunRetryPasses replays failed tickers through the same worker at
// reduced concurrency. Exactly two passes: pass 1 at half the base
// concurrency, pass 2 at a quarter, each over the previous pass's
// failures. Cancellation between passes aborts the sequence. Aborted
// results while stopping are not counted as new failures.
func RunRetryPasses(
	ctx context.Context,
	failed []string,
	baseConcurrency int,
	worker func(ctx context.Context, ticker string, index int) (TickerOutcome, error),
	callbacks RetryCallbacks,
	shouldStop func() bool,
	metrics *Tracker,
) []string {
	passConcurrency := []int{
		maxInt(1, baseConcurrency/2),
		maxInt(1, baseConcurrency/4),
	}

	remaining := failed
	for pass, concurrency := range passConcurrency {
		if len(remaining) == 0 {
			return nil
		}
		if shouldStop != nil && shouldStop() {
			return remaining
		}
		if ctx.Err() != nil {
			return remaining
		}

		if metrics != nil {
			metrics.SetPhase(PhaseRetry)
		}

		var next []string
		MapWithConcurrency(ctx, remaining, concurrency, worker,
			func(settled Settled[TickerOutcome], index int, ticker string) {
				if settled.Ok() {
					if metrics != nil {
						metrics.RecordRetryRecovered(ticker)
					}
					if callbacks.OnRecovered != nil {
						callbacks.OnRecovered(ticker)
					}
					return
				}
				// A stop mid-pass aborts in-flight work; those are not
				// fresh failures.
				if polygon.IsAborted(settled.Err) && shouldStop != nil && shouldStop() {
					return
				}
				next = append(next, ticker)
				if pass == len(passConcurrency)-1 && callbacks.OnStillFailed != nil {
					callbacks.OnStillFailed(ticker, settled.Err)
				}
			},
			shouldStop)

		remaining = next
	}
	return remaining
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
