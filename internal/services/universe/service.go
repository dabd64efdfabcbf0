// Package universe resolves the ticker list a scan run operates on.
package universe

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/common"
	"github.com/ternarybob/speculor/internal/interfaces"
	"github.com/ternarybob/speculor/internal/models"
)

// Service reads the active universe from the symbol table and bootstraps
// it from the provider's reference directory when the table is below the
// configured floor.
type Service struct {
	storage  interfaces.SymbolStorage
	provider interfaces.MarketDataProvider
	logger   arbor.ILogger
	floor    int
}

// NewService creates a universe service. floor is the minimum table size
// below which a bootstrap is attempted.
func NewService(storage interfaces.SymbolStorage, provider interfaces.MarketDataProvider, logger arbor.ILogger, floor int) *Service {
	return &Service{
		storage:  storage,
		provider: provider,
		logger:   logger,
		floor:    floor,
	}
}

// Tickers returns the validated, stable-sorted universe. refresh forces
// a directory fetch even when the table is above the floor.
func (s *Service) Tickers(ctx context.Context, refresh bool) ([]string, error) {
	count, err := s.storage.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to size universe: %w", err)
	}

	if refresh || count < s.floor {
		if err := s.bootstrap(ctx); err != nil {
			// A stale universe beats no universe; only fail when the
			// table is unusable.
			if count == 0 {
				return nil, err
			}
			s.logger.Warn().Err(err).Int("count", count).Msg("Universe refresh failed; using stored symbols")
		}
	}

	tickers, err := s.storage.ActiveTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load universe: %w", err)
	}

	tickers = common.FilterValidTickers(tickers)
	sort.Strings(tickers)
	s.logger.Info().Int("count", len(tickers)).Msg("Universe resolved")
	return tickers, nil
}

// bootstrap pulls the provider's reference directory into the symbol
// table.
func (s *Service) bootstrap(ctx context.Context) error {
	symbols, err := s.provider.FetchReferenceTickers(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch reference tickers: %w", err)
	}

	valid := make([]models.Symbol, 0, len(symbols))
	for _, sym := range symbols {
		ticker := common.NormalizeTicker(sym.Ticker)
		if !common.IsValidTicker(ticker) {
			continue
		}
		sym.Ticker = ticker
		sym.IsActive = true
		sym.UpdatedAt = time.Now()
		valid = append(valid, sym)
	}
	if len(valid) == 0 {
		return fmt.Errorf("reference directory returned no usable tickers")
	}

	if err := s.storage.UpsertSymbols(ctx, valid); err != nil {
		return fmt.Errorf("failed to store universe: %w", err)
	}
	s.logger.Info().Int("count", len(valid)).Msg("Universe bootstrapped from reference directory")
	return nil
}
