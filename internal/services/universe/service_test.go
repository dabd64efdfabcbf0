package universe

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/models"
)

type fakeSymbols struct {
	symbols map[string]models.Symbol
	upserts int
}

func newFakeSymbols(tickers ...string) *fakeSymbols {
	f := &fakeSymbols{symbols: map[string]models.Symbol{}}
	for _, t := range tickers {
		f.symbols[t] = models.Symbol{Ticker: t, IsActive: true}
	}
	return f
}

func (f *fakeSymbols) ActiveTickers(ctx context.Context) ([]string, error) {
	var tickers []string
	for t, sym := range f.symbols {
		if sym.IsActive {
			tickers = append(tickers, t)
		}
	}
	return tickers, nil
}

func (f *fakeSymbols) UpsertSymbols(ctx context.Context, symbols []models.Symbol) error {
	f.upserts++
	for _, sym := range symbols {
		f.symbols[sym.Ticker] = sym
	}
	return nil
}

func (f *fakeSymbols) Count(ctx context.Context) (int, error) {
	n := 0
	for _, sym := range f.symbols {
		if sym.IsActive {
			n++
		}
	}
	return n, nil
}

type fakeDirectory struct {
	symbols []models.Symbol
	err     error
	calls   int
}

func (f *fakeDirectory) FetchAggs(ctx context.Context, ticker string, interval models.SourceInterval, from, to string) ([]models.Bar, error) {
	return nil, nil
}

func (f *fakeDirectory) FetchMovingAverage(ctx context.Context, ticker, kind string, window int) (float64, error) {
	return 0, nil
}

func (f *fakeDirectory) FetchReferenceTickers(ctx context.Context) ([]models.Symbol, error) {
	f.calls++
	return f.symbols, f.err
}

func TestTickers_BootstrapBelowFloor(t *testing.T) {
	storage := newFakeSymbols()
	directory := &fakeDirectory{symbols: []models.Symbol{
		{Ticker: "msft"},
		{Ticker: "AAPL"},
		{Ticker: "9BAD"},
		{Ticker: ""},
	}}
	svc := NewService(storage, directory, arbor.NewLogger(), 100)

	tickers, err := svc.Tickers(context.Background(), false)
	if err != nil {
		t.Fatalf("Tickers: %v", err)
	}
	if !reflect.DeepEqual(tickers, []string{"AAPL", "MSFT"}) {
		t.Errorf("tickers = %v", tickers)
	}
	if directory.calls != 1 {
		t.Errorf("directory calls = %d, want 1", directory.calls)
	}
	if storage.upserts != 1 {
		t.Errorf("upserts = %d, want 1", storage.upserts)
	}
}

func TestTickers_AboveFloorSkipsDirectory(t *testing.T) {
	storage := newFakeSymbols("AAPL", "MSFT")
	directory := &fakeDirectory{}
	svc := NewService(storage, directory, arbor.NewLogger(), 2)

	tickers, err := svc.Tickers(context.Background(), false)
	if err != nil {
		t.Fatalf("Tickers: %v", err)
	}
	if len(tickers) != 2 {
		t.Errorf("tickers = %v", tickers)
	}
	if directory.calls != 0 {
		t.Errorf("directory consulted despite a full table")
	}
}

func TestTickers_RefreshForcesDirectory(t *testing.T) {
	storage := newFakeSymbols("AAPL")
	directory := &fakeDirectory{symbols: []models.Symbol{{Ticker: "MSFT"}}}
	svc := NewService(storage, directory, arbor.NewLogger(), 1)

	tickers, err := svc.Tickers(context.Background(), true)
	if err != nil {
		t.Fatalf("Tickers: %v", err)
	}
	if directory.calls != 1 {
		t.Error("refresh did not consult the directory")
	}
	if !reflect.DeepEqual(tickers, []string{"AAPL", "MSFT"}) {
		t.Errorf("tickers = %v", tickers)
	}
}

func TestTickers_DirectoryFailureToleratedWithStoredUniverse(t *testing.T) {
	storage := newFakeSymbols("AAPL")
	directory := &fakeDirectory{err: errors.New("directory down")}
	svc := NewService(storage, directory, arbor.NewLogger(), 100)

	tickers, err := svc.Tickers(context.Background(), false)
	if err != nil {
		t.Fatalf("stored universe should carry the run: %v", err)
	}
	if !reflect.DeepEqual(tickers, []string{"AAPL"}) {
		t.Errorf("tickers = %v", tickers)
	}
}

func TestTickers_DirectoryFailureFatalWhenEmpty(t *testing.T) {
	storage := newFakeSymbols()
	directory := &fakeDirectory{err: errors.New("directory down")}
	svc := NewService(storage, directory, arbor.NewLogger(), 100)

	if _, err := svc.Tickers(context.Background(), false); err == nil {
		t.Fatal("expected an error with no stored universe")
	}
}

func TestTickers_AllInvalidDirectoryIsError(t *testing.T) {
	storage := newFakeSymbols()
	directory := &fakeDirectory{symbols: []models.Symbol{{Ticker: "9BAD"}, {Ticker: "WAYTOOLONGTICKERNAME"}}}
	svc := NewService(storage, directory, arbor.NewLogger(), 100)

	if _, err := svc.Tickers(context.Background(), false); err == nil {
		t.Fatal("expected an error when nothing in the directory validates")
	}
}
