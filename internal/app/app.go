package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tendril/internal/common"
	"github.com/ternarybob/tendril/internal/interfaces"
	"github.com/ternarybob/tendril/internal/models"
	"github.com/ternarybob/tendril/internal/queue"
	"github.com/ternarybob/tendril/internal/services/engines"
	"github.com/ternarybob/tendril/internal/services/escalation"
	"github.com/ternarybob/tendril/internal/services/events"
	"github.com/ternarybob/tendril/internal/services/intelligence"
	"github.com/ternarybob/tendril/internal/services/interventions"
	"github.com/ternarybob/tendril/internal/services/orchestrator"
	"github.com/ternarybob/tendril/internal/services/sessions"
	storage "github.com/ternarybob/tendril/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager *storage.Manager
	EventService   interfaces.EventService
	Queue          interfaces.RunQueue

	SessionPool   *sessions.Pool
	SessionProber *sessions.Prober
	Adaptive      *intelligence.Service
	Interventions *interventions.Engine
	Orchestrator  *orchestrator.Orchestrator
	Workers       *orchestrator.WorkerPool

	browserEngine *engines.BrowserEngine
	cron          *cron.Cron

	ctx       context.Context
	cancelCtx context.CancelFunc
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	app.ctx, app.cancelCtx = context.WithCancel(context.Background())

	storageManager, err := storage.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager

	app.EventService = events.NewService(logger)

	runQueue, err := queue.NewBadgerQueue(
		storageManager.DB().Store().Badger(),
		cfg.Queue.QueueName,
		cfg.VisibilityTimeoutDuration(),
		cfg.Queue.MaxReceive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize run queue: %w", err)
	}
	app.Queue = runQueue
	logger.Debug().Str("queue_name", cfg.Queue.QueueName).Msg("Run queue initialized")

	pool, err := sessions.NewPool(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session pool: %w", err)
	}
	app.SessionPool = pool
	app.SessionProber = sessions.NewProber(cfg.Scraper.HTTPTimeout)

	app.Adaptive = intelligence.NewService(storageManager.DomainStatsStorage(), logger)

	miner := interventions.NewMiner(storageManager.RuleStorage(), logger)
	app.Interventions = interventions.NewEngine(
		storageManager.InterventionStorage(),
		app.EventService,
		miner,
		app.Adaptive.BlockRate403,
		cfg.Scraper.SnapshotDir,
		cfg.Scraper.InterventionTTL,
		logger,
	)

	app.browserEngine = engines.NewBrowserEngine(&cfg.Scraper, logger)
	engineSet := map[models.Engine]interfaces.FetchEngine{
		models.EngineHTTP:     engines.NewHTTPEngine(&cfg.Scraper, logger),
		models.EngineBrowser:  app.browserEngine,
		models.EngineProvider: engines.NewProviderEngine(&cfg.Provider, logger),
	}

	app.Orchestrator = orchestrator.New(orchestrator.Deps{
		Jobs:          storageManager.JobStorage(),
		FieldMaps:     storageManager.FieldMapStorage(),
		Runs:          storageManager.RunStorage(),
		Records:       storageManager.RecordStorage(),
		RunEvents:     storageManager.RunEventStorage(),
		DomainConfigs: storageManager.DomainConfigStorage(),
		Queue:         runQueue,
		Events:        app.EventService,
		Engines:       engineSet,
		Adaptive:      app.Adaptive,
		Ladder:        escalation.NewLadder(cfg.Scraper.MaxEscalations),
		Sessions:      pool,
		Prober:        app.SessionProber,
		Interventions: app.Interventions,
		Config:        cfg,
		Logger:        logger,
	})

	app.Workers = orchestrator.NewWorkerPool(
		app.Orchestrator,
		runQueue,
		cfg.Queue.Concurrency,
		cfg.PollIntervalDuration(),
		logger,
	)

	if err := app.initSchedules(); err != nil {
		return nil, err
	}

	logger.Info().
		Int("workers", cfg.Queue.Concurrency).
		Str("environment", cfg.Environment).
		Msg("Application initialization complete")

	return app, nil
}

// Start launches the run workers and background schedules
func (a *App) Start() {
	a.Workers.Start(a.ctx)
	a.cron.Start()
}

// initSchedules registers background maintenance on the cron runner
func (a *App) initSchedules() error {
	a.cron = cron.New(cron.WithSeconds())

	if schedule := a.Config.Schedules.SessionSweep; schedule != "" {
		if _, err := a.cron.AddFunc(schedule, func() {
			retired := a.SessionPool.Sweep(context.Background())
			if retired > 0 {
				a.Logger.Info().Int("retired", retired).Msg("Session sweep retired sessions")
			}
		}); err != nil {
			return fmt.Errorf("invalid session sweep schedule %q: %w", schedule, err)
		}
	}

	if schedule := a.Config.Schedules.InterventionSweep; schedule != "" {
		if _, err := a.cron.AddFunc(schedule, func() {
			expired, err := a.Interventions.ExpireOverdue(context.Background())
			if err != nil {
				a.Logger.Warn().Err(err).Msg("Intervention sweep failed")
				return
			}
			if expired > 0 {
				a.Logger.Info().Int("expired", expired).Msg("Intervention sweep expired tasks")
			}
		}); err != nil {
			return fmt.Errorf("invalid intervention sweep schedule %q: %w", schedule, err)
		}
	}

	if schedule := a.Config.Schedules.StatsFlush; schedule != "" {
		if _, err := a.cron.AddFunc(schedule, func() {
			stats := a.SessionPool.Stats(context.Background())
			a.Logger.Debug().
				Int("total", stats.Total).
				Int("healthy", stats.Healthy).
				Int("degraded", stats.Degraded).
				Float64("captcha_rate_pct", stats.CaptchaRatePct).
				Msg("Session pool stats")
		}); err != nil {
			return fmt.Errorf("invalid stats flush schedule %q: %w", schedule, err)
		}
	}

	return nil
}

// Close shuts down all application resources in dependency order
func (a *App) Close() error {
	if a.cron != nil {
		a.cron.Stop()
	}

	if a.cancelCtx != nil {
		a.cancelCtx()
	}
	if a.Workers != nil {
		a.Workers.Stop()
	}

	if a.browserEngine != nil {
		a.browserEngine.Close()
	}

	if a.SessionPool != nil {
		if err := a.SessionPool.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to flush session pool")
		}
	}

	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close run queue")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
