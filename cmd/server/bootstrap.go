package main

import (
	"context"

	"github.com/vulegon/Summarite/internal/config"
	"github.com/vulegon/Summarite/internal/handlers"
	"github.com/vulegon/Summarite/internal/models"
	"github.com/vulegon/Summarite/internal/services"
	"github.com/vulegon/Summarite/internal/utils"
	"github.com/vulegon/Summarite/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	syncService      *services.SyncService
	schedulerService *services.SchedulerService
	taskQueue        services.TaskQueue
	worker           *services.Worker
	authHandler      *handlers.AuthHandler
	accountHandler   *handlers.AccountHandler
	syncHandler      *handlers.SyncHandler
	metricsHandler   *handlers.MetricsHandler
	summaryHandler   *handlers.SummaryHandler
	adminHandler     *handlers.AdminHandler
	healthHandler    *handlers.HealthHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto migrate database
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	db := models.GetDB()

	tokenService := services.NewTokenService(db, cfg)
	syncService := services.NewSyncService(db, tokenService)
	metricsService := services.NewMetricsService(db, tokenService)
	summaryService := services.NewSummaryService(db, &cfg.AI)

	// Every queued task runs under a slot claimed with Begin, so the
	// processor only has to dispatch on provider.
	processSync := func(ctx context.Context, task *services.SyncTask) error {
		switch task.Provider {
		case models.ProviderGitHub:
			return syncService.SyncGithub(ctx, task.UserID)
		case models.ProviderJira:
			return syncService.SyncJira(ctx, task.UserID)
		default:
			logger.Warn().Str("provider", task.Provider).Msg("dropping task for unknown provider")
			return nil
		}
	}

	// Initialize task queue (uses Redis if enabled, otherwise in-process)
	taskQueue := services.InitTaskQueue(cfg)
	if inProcess, ok := taskQueue.(*services.InProcessQueue); ok {
		inProcess.SetProcessor(processSync)
	}

	// Start async worker if Redis is enabled
	var worker *services.Worker
	if cfg.Redis.Enabled {
		worker = services.InitWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(processSync)
			if err := worker.Start(); err != nil {
				logger.Errorf("Failed to start worker: %v", err)
			}
		}
	}

	// Start the auto resync scheduler
	schedulerService := services.NewSchedulerService(db, &cfg.Sync, taskQueue, syncService)
	schedulerService.Start()

	return &appServices{
		syncService:      syncService,
		schedulerService: schedulerService,
		taskQueue:        taskQueue,
		worker:           worker,
		authHandler:      handlers.NewAuthHandler(db, cfg),
		accountHandler:   handlers.NewAccountHandler(db),
		syncHandler:      handlers.NewSyncHandler(syncService, taskQueue),
		metricsHandler:   handlers.NewMetricsHandler(metricsService),
		summaryHandler:   handlers.NewSummaryHandler(summaryService, metricsService),
		adminHandler:     handlers.NewAdminHandler(schedulerService),
		healthHandler:    handlers.NewHealthHandler(),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.schedulerService.Stop()

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
	logger.Info().Msg("All services stopped")
}
