package interfaces

import (
	"context"

	"github.com/ternarybob/speculor/internal/models"
)

// MarketDataProvider is the outbound data-provider boundary. The concrete
// client owns rate limiting, circuit breaking and retries; callers see
// typed errors they can classify without string matching.
type MarketDataProvider interface {
	// FetchAggs returns ordered bars for a symbol over [from, to] trade
	// dates at the given source interval.
	FetchAggs(ctx context.Context, ticker string, interval models.SourceInterval, from, to string) ([]models.Bar, error)

	// FetchMovingAverage returns the latest value of the named moving
	// average ("sma" or "ema") with the given window.
	FetchMovingAverage(ctx context.Context, ticker, kind string, window int) (float64, error)

	// FetchReferenceTickers lists active symbols from the provider's
	// directory, used to bootstrap the universe.
	FetchReferenceTickers(ctx context.Context) ([]models.Symbol, error)
}
