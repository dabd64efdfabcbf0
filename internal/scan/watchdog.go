package scan

import (
	"sync"
	"time"
)

// StallWatchdog guards one fan-out attempt. It ticks on a fixed interval
// and fires onStall exactly once when no progress has been marked for the
// stall timeout. The orchestrator's onStall aborts the attempt; it then
// consults Stalled to tell a stall abort apart from a stop or pause.
type StallWatchdog struct {
	mu           sync.Mutex
	lastProgress time.Time
	stalled      bool
	fired        bool
	done         chan struct{}
	stopOnce     sync.Once
}

// NewStallWatchdog starts a watchdog. Stop must be called when the
// attempt ends.
func NewStallWatchdog(checkInterval, stallTimeout time.Duration, onStall func()) *StallWatchdog {
	if checkInterval <= 0 {
		checkInterval = 2 * time.Second
	}
	if stallTimeout <= 0 {
		stallTimeout = 90 * time.Second
	}

	w := &StallWatchdog{
		lastProgress: time.Now(),
		done:         make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-w.done:
				return
			case <-ticker.C:
				if w.check(stallTimeout) {
					onStall()
					return
				}
			}
		}
	}()

	return w
}

func (w *StallWatchdog) check(stallTimeout time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fired {
		return false
	}
	if time.Since(w.lastProgress) < stallTimeout {
		return false
	}
	w.fired = true
	w.stalled = true
	return true
}

// MarkProgress refreshes the progress clock. Called from every settled
// notification.
func (w *StallWatchdog) MarkProgress() {
	w.mu.Lock()
	w.lastProgress = time.Now()
	w.mu.Unlock()
}

// Stalled reports whether this watchdog fired.
func (w *StallWatchdog) Stalled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stalled
}

// Stop shuts the watchdog down. Safe to call more than once.
func (w *StallWatchdog) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}
