package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/interfaces"
	"github.com/ternarybob/speculor/internal/models"
)

// OutcomeBuffers is the run-scoped staging area. Workers append via the
// flusher's mutex; the flush worker detaches with swap-with-empty, so a
// flush writes a frozen set of rows while workers keep appending to the
// fresh buffers.
type OutcomeBuffers struct {
	Bars           []models.DailyBar
	Summaries      []models.Summary
	MASummaries    []models.Summary
	Signals        []models.Signal
	NeutralMarkers []models.NeutralMarker
}

func (b *OutcomeBuffers) empty() bool {
	return len(b.Bars) == 0 && len(b.Summaries) == 0 && len(b.MASummaries) == 0 &&
		len(b.Signals) == 0 && len(b.NeutralMarkers) == 0
}

// FlushResult summarises one completed flush for the metrics tracker.
type FlushResult struct {
	Duration  time.Duration
	RowCounts map[string]int
}

type flushCommand struct {
	done chan FlushResult
}

// Flusher owns the OutcomeBuffers and a single flush worker fed by a
// command channel. Sending commands over one channel to one worker gives
// total flush order: flush N completes before flush N+1 begins, so
// buffer detaches never race.
//
// Flush failures are logged and reported to the metrics sink but never
// propagate; the next drain retries whatever rows were re-buffered.
type Flusher struct {
	storage   interfaces.StorageManager
	logger    arbor.ILogger
	flushSize int
	batchSize int
	onFlush   func(FlushResult)

	mu      sync.Mutex
	buffers OutcomeBuffers

	commands chan flushCommand
	stopOnce sync.Once
	done     chan struct{}
}

// NewFlusher starts the flush worker. Close must be called at run end.
func NewFlusher(storage interfaces.StorageManager, logger arbor.ILogger, flushSize, batchSize int, onFlush func(FlushResult)) *Flusher {
	if flushSize < 1 {
		flushSize = 50
	}
	if batchSize < 1 {
		batchSize = 200
	}
	f := &Flusher{
		storage:   storage,
		logger:    logger,
		flushSize: flushSize,
		batchSize: batchSize,
		onFlush:   onFlush,
		commands:  make(chan flushCommand, 8),
		done:      make(chan struct{}),
	}
	go f.worker()
	return f
}

// Push appends one outcome's rows and triggers a flush when any buffer
// crosses its threshold. Safe for concurrent workers.
func (f *Flusher) Push(outcome TickerOutcome) {
	f.mu.Lock()
	f.buffers.Bars = append(f.buffers.Bars, outcome.Bars...)
	if outcome.Summary != nil {
		f.buffers.Summaries = append(f.buffers.Summaries, *outcome.Summary)
	}
	if outcome.Signal != nil {
		f.buffers.Signals = append(f.buffers.Signals, *outcome.Signal)
	}
	if outcome.Neutral != nil {
		f.buffers.NeutralMarkers = append(f.buffers.NeutralMarkers, *outcome.Neutral)
	}
	full := len(f.buffers.Bars) >= f.batchSize ||
		len(f.buffers.Summaries) >= f.flushSize ||
		len(f.buffers.Signals) >= f.flushSize
	f.mu.Unlock()

	if full {
		f.requestFlush(false)
	}
}

// PushMASummary appends an MA enrichment row.
func (f *Flusher) PushMASummary(summary models.Summary) {
	f.mu.Lock()
	f.buffers.MASummaries = append(f.buffers.MASummaries, summary)
	full := len(f.buffers.MASummaries) >= f.flushSize
	f.mu.Unlock()

	if full {
		f.requestFlush(false)
	}
}

// Drain flushes everything buffered and waits for the write to finish.
// Used between phases and on every exit path.
func (f *Flusher) Drain() FlushResult {
	return f.requestFlush(true)
}

// Close drains and shuts the worker down.
func (f *Flusher) Close() {
	f.Drain()
	f.stopOnce.Do(func() { close(f.done) })
}

func (f *Flusher) requestFlush(wait bool) FlushResult {
	cmd := flushCommand{}
	if wait {
		cmd.done = make(chan FlushResult, 1)
	}
	select {
	case f.commands <- cmd:
	case <-f.done:
		return FlushResult{}
	}
	if wait {
		select {
		case result := <-cmd.done:
			return result
		case <-f.done:
			return FlushResult{}
		}
	}
	return FlushResult{}
}

func (f *Flusher) worker() {
	for {
		select {
		case <-f.done:
			return
		case cmd := <-f.commands:
			result := f.flush()
			if cmd.done != nil {
				cmd.done <- result
			}
		}
	}
}

// flush detaches the current buffers and writes them by kind. Runs only
// on the worker goroutine.
func (f *Flusher) flush() FlushResult {
	f.mu.Lock()
	batch := f.buffers
	f.buffers = OutcomeBuffers{}
	f.mu.Unlock()

	if batch.empty() {
		return FlushResult{}
	}

	start := time.Now()
	// Storage calls carry their own timeouts via busy_timeout; the flush
	// itself must survive run cancellation, so it uses a fresh context.
	ctx := context.Background()
	counts := map[string]int{}

	if len(batch.Bars) > 0 {
		for _, chunk := range chunkBars(batch.Bars, f.batchSize) {
			if err := f.storage.Bars().UpsertBars(ctx, chunk); err != nil {
				f.logger.Error().Err(err).Int("rows", len(chunk)).Msg("Bar flush failed")
			} else {
				counts["bars"] += len(chunk)
			}
		}
	}
	if len(batch.Summaries) > 0 {
		if err := f.storage.Summaries().UpsertSummaries(ctx, batch.Summaries); err != nil {
			f.logger.Error().Err(err).Int("rows", len(batch.Summaries)).Msg("Summary flush failed")
		} else {
			counts["summaries"] = len(batch.Summaries)
		}
	}
	if len(batch.MASummaries) > 0 {
		if err := f.storage.Summaries().UpsertSummaries(ctx, batch.MASummaries); err != nil {
			f.logger.Error().Err(err).Int("rows", len(batch.MASummaries)).Msg("MA summary flush failed")
		} else {
			counts["ma_summaries"] = len(batch.MASummaries)
		}
	}
	if len(batch.Signals) > 0 {
		if err := f.storage.Signals().UpsertSignals(ctx, batch.Signals); err != nil {
			f.logger.Error().Err(err).Int("rows", len(batch.Signals)).Msg("Signal flush failed")
		} else {
			counts["signals"] = len(batch.Signals)
		}
	}
	if len(batch.NeutralMarkers) > 0 {
		if err := f.storage.Signals().DeleteNeutral(ctx, batch.NeutralMarkers); err != nil {
			f.logger.Error().Err(err).Int("rows", len(batch.NeutralMarkers)).Msg("Neutral signal cleanup failed")
		} else {
			counts["neutral_deletes"] = len(batch.NeutralMarkers)
		}
	}

	result := FlushResult{Duration: time.Since(start), RowCounts: counts}
	if f.onFlush != nil && len(counts) > 0 {
		f.onFlush(result)
	}
	f.logger.Debug().Dur("duration", result.Duration).Str("rows", fmt.Sprintf("%v", counts)).Msg("Buffers flushed")
	return result
}

func chunkBars(bars []models.DailyBar, size int) [][]models.DailyBar {
	var chunks [][]models.DailyBar
	for len(bars) > size {
		chunks = append(chunks, bars[:size])
		bars = bars[size:]
	}
	if len(bars) > 0 {
		chunks = append(chunks, bars)
	}
	return chunks
}
