package scan

import (
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/models"
)

func outcomeFor(ticker string) TickerOutcome {
	return TickerOutcome{
		Ticker:          ticker,
		LatestTradeDate: "2026-08-21",
		Bars: []models.DailyBar{
			{Ticker: ticker, TradeDate: "2026-08-21", SourceInterval: models.Interval1Day, Close: 100},
		},
		Summary: &models.Summary{Ticker: ticker, SourceInterval: models.Interval1Day, TradeDate: "2026-08-21"},
		Signal:  &models.Signal{Ticker: ticker, SignalType: models.StateBullish, TradeDate: "2026-08-21"},
	}
}

func TestFlusher_DrainWritesEverything(t *testing.T) {
	storage := newMemStorage()
	f := NewFlusher(storage, arbor.NewLogger(), 50, 200, nil)
	defer f.Close()

	f.Push(outcomeFor("AAA"))
	f.Push(outcomeFor("BBB"))
	f.Push(TickerOutcome{
		Ticker:  "CCC",
		Neutral: &models.NeutralMarker{Ticker: "CCC", TradeDate: "2026-08-21", Timeframe: models.Timeframe1D},
	})
	f.PushMASummary(models.Summary{Ticker: "AAA", SourceInterval: models.Interval1Day})

	result := f.Drain()

	storage.mu.Lock()
	defer storage.mu.Unlock()
	if len(storage.barBatches) != 1 || len(storage.barBatches[0]) != 2 {
		t.Errorf("bar batches = %v", storage.barBatches)
	}
	// Core summaries plus the MA row.
	if len(storage.summaries) != 3 {
		t.Errorf("summaries = %d, want 3", len(storage.summaries))
	}
	if len(storage.signals) != 2 {
		t.Errorf("signals = %d, want 2", len(storage.signals))
	}
	if len(storage.neutralDeletes) != 1 {
		t.Errorf("neutral deletes = %d, want 1", len(storage.neutralDeletes))
	}
	if result.RowCounts["bars"] != 2 || result.RowCounts["summaries"] != 2 {
		t.Errorf("row counts = %v", result.RowCounts)
	}
}

func TestFlusher_ThresholdTriggersFlush(t *testing.T) {
	storage := newMemStorage()
	f := NewFlusher(storage, arbor.NewLogger(), 2, 200, nil)
	defer f.Close()

	f.Push(outcomeFor("AAA"))
	f.Push(outcomeFor("BBB"))

	// The threshold flush is asynchronous; wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		storage.mu.Lock()
		n := len(storage.summaries)
		storage.mu.Unlock()
		if n >= 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("threshold did not trigger a flush")
}

func TestFlusher_BarChunking(t *testing.T) {
	storage := newMemStorage()
	f := NewFlusher(storage, arbor.NewLogger(), 50, 2, nil)
	defer f.Close()

	outcome := TickerOutcome{Ticker: "AAA"}
	for i := 0; i < 5; i++ {
		outcome.Bars = append(outcome.Bars, models.DailyBar{Ticker: "AAA", TradeDate: "2026-08-21"})
	}
	f.Push(outcome)
	f.Drain()

	storage.mu.Lock()
	defer storage.mu.Unlock()
	total := 0
	for _, batch := range storage.barBatches {
		if len(batch) > 2 {
			t.Errorf("batch of %d exceeds chunk size 2", len(batch))
		}
		total += len(batch)
	}
	if total != 5 {
		t.Errorf("total bars written = %d, want 5", total)
	}
}

func TestFlusher_WriteFailureDoesNotBlockOtherKinds(t *testing.T) {
	storage := newMemStorage()
	storage.failBars = true
	f := NewFlusher(storage, arbor.NewLogger(), 50, 200, nil)
	defer f.Close()

	f.Push(outcomeFor("AAA"))
	result := f.Drain()

	storage.mu.Lock()
	defer storage.mu.Unlock()
	if len(storage.summaries) != 1 || len(storage.signals) != 1 {
		t.Error("failing bar write suppressed the other kinds")
	}
	if _, ok := result.RowCounts["bars"]; ok {
		t.Error("failed bar write counted as flushed rows")
	}
}

func TestFlusher_OnFlushCallback(t *testing.T) {
	storage := newMemStorage()
	var results []FlushResult
	f := NewFlusher(storage, arbor.NewLogger(), 50, 200, func(r FlushResult) {
		results = append(results, r)
	})
	defer f.Close()

	f.Push(outcomeFor("AAA"))
	f.Drain()

	// The callback runs on the flush worker; Drain returning means the
	// flush completed.
	if len(results) != 1 {
		t.Fatalf("onFlush calls = %d, want 1", len(results))
	}
	if results[0].RowCounts["summaries"] != 1 {
		t.Errorf("callback counts = %v", results[0].RowCounts)
	}
}

func TestFlusher_EmptyDrainIsQuiet(t *testing.T) {
	storage := newMemStorage()
	called := false
	f := NewFlusher(storage, arbor.NewLogger(), 50, 200, func(FlushResult) { called = true })
	defer f.Close()

	result := f.Drain()
	if len(result.RowCounts) != 0 {
		t.Errorf("empty drain reported rows: %v", result.RowCounts)
	}
	if called {
		t.Error("onFlush fired for an empty drain")
	}
}

func TestFlusher_CloseIsIdempotent(t *testing.T) {
	f := NewFlusher(newMemStorage(), arbor.NewLogger(), 50, 200, nil)
	f.Close()
	f.Close()

	// Pushes after close are dropped without blocking.
	f.Push(outcomeFor("AAA"))
	f.Drain()
}
