// -----------------------------------------------------------------------
// Last Modified: Friday, 21st August 2026 5:12:40 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package app

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/common"
	"github.com/ternarybob/speculor/internal/handlers"
	"github.com/ternarybob/speculor/internal/interfaces"
	"github.com/ternarybob/speculor/internal/polygon"
	"github.com/ternarybob/speculor/internal/scan"
	"github.com/ternarybob/speculor/internal/services/scheduler"
	"github.com/ternarybob/speculor/internal/services/universe"
	"github.com/ternarybob/speculor/internal/storage/sqlite"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	ctx            context.Context
	cancelCtx      context.CancelFunc
	StorageManager interfaces.StorageManager

	// Provider
	Client  *polygon.Client
	Breaker *polygon.Breaker

	// Scan engine
	Universe     *universe.Service
	Orchestrator *scan.Orchestrator
	Scheduler    *scheduler.Service

	// HTTP handlers
	ScanHandler   *handlers.ScanHandler
	StatusHandler *handlers.StatusHandler
}

// New wires the application from configuration.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	storageManager, err := sqlite.NewManager(logger, &config.Storage.SQLite)
	if err != nil {
		cancel()
		return nil, err
	}

	breaker := polygon.NewBreaker(
		config.Provider.BreakerThreshold,
		config.Provider.BreakerCooldown,
		polygon.IsInfrastructure,
		logger,
	)

	client := polygon.NewClient(config.Provider.APIKey,
		polygon.WithBaseURL(config.Provider.BaseURL),
		polygon.WithHTTPClient(&http.Client{Timeout: config.Provider.RequestTimeout}),
		polygon.WithRateLimit(config.Provider.MaxRequestsPerSecond, config.Provider.RateBucketCapacity),
		polygon.WithBreaker(breaker),
		polygon.WithKillSwitch(func() bool { return config.Provider.RequestsPaused }),
		polygon.WithLogger(logger),
	)

	universeService := universe.NewService(storageManager.Symbols(), client, logger, config.Scan.UniverseFloor)
	orchestrator := scan.NewOrchestrator(config, storageManager, client, universeService, logger)
	schedulerService := scheduler.NewService(orchestrator, &config.Scheduler, logger)

	a := &App{
		Config:         config,
		Logger:         logger,
		ctx:            ctx,
		cancelCtx:      cancel,
		StorageManager: storageManager,
		Client:         client,
		Breaker:        breaker,
		Universe:       universeService,
		Orchestrator:   orchestrator,
		Scheduler:      schedulerService,
		ScanHandler:    handlers.NewScanHandler(orchestrator, storageManager, logger),
		StatusHandler:  handlers.NewStatusHandler(orchestrator, storageManager, breaker, logger),
	}

	if err := a.Scheduler.Start(); err != nil {
		logger.Warn().Err(err).Msg("Scheduler failed to start")
	}

	return a, nil
}

// Context returns the application's root context.
func (a *App) Context() context.Context {
	return a.ctx
}

// Close shuts the application down: scheduler first, then any running
// scans, then storage.
func (a *App) Close() error {
	a.Scheduler.Stop()

	for _, program := range scan.Programs {
		if a.Orchestrator.Status(program).Running {
			a.Orchestrator.RequestStop(program)
		}
	}

	a.cancelCtx()

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to close storage")
			return err
		}
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}
