package scan

import (
	"context"
	"sync"
	"sync/atomic"
)

// MapWithConcurrency runs worker over items with at most n concurrent
// workers pulling indices from a shared cursor. The returned slice is
// index-aligned with items.
//
// Before pulling the next index each worker checks shouldStop; on true it
// drives the cursor past the end and cancels the shared context so the
// other workers observe it promptly. Worker errors are captured into the
// settled record, never propagated. onSettled runs under a mutex between
// an item finishing and the next pull; a panic or misbehaviour inside it
// must not break the fan-out, so panics are swallowed.
//
// The call returns only after every in-flight worker has finished its
// current item, so shared buffers are not mutated after return.
func MapWithConcurrency[T, R any](
	ctx context.Context,
	items []T,
	n int,
	worker func(ctx context.Context, item T, index int) (R, error),
	onSettled func(settled Settled[R], index int, item T),
	shouldStop func() bool,
) []Settled[R] {
	settled := make([]Settled[R], len(items))
	if len(items) == 0 {
		return settled
	}
	if n > len(items) {
		n = len(items)
	}
	if n < 1 {
		n = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var cursor atomic.Int64
	var settleMu sync.Mutex
	var wg sync.WaitGroup

	notify := func(s Settled[R], index int, item T) {
		if onSettled == nil {
			return
		}
		settleMu.Lock()
		defer settleMu.Unlock()
		defer func() {
			// The progress hook is orchestrator territory; a panic there
			// must not take down the fan-out.
			_ = recover()
		}()
		onSettled(s, index, item)
	}

	for w := 0; w < n; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if shouldStop != nil && shouldStop() {
					cursor.Store(int64(len(items)))
					cancel()
					return
				}
				if runCtx.Err() != nil {
					return
				}

				index := int(cursor.Add(1)) - 1
				if index >= len(items) {
					return
				}

				value, err := worker(runCtx, items[index], index)
				s := Settled[R]{Value: value, Err: err}
				settled[index] = s
				notify(s, index, items[index])
			}
		}()
	}

	wg.Wait()
	return settled
}
