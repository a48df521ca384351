package main

import (
	"github.com/alibot/reviewdash/internal/config"
	"github.com/alibot/reviewdash/internal/models"
	"github.com/alibot/reviewdash/internal/services"
	"github.com/alibot/reviewdash/pkg/logger"
)

// appServices holds all initialized services needed by the application.
type appServices struct {
	cfg       *config.Config
	taskQueue services.TaskQueue
	worker    *services.Worker
	cleanup   *services.CleanupService
}

// bootstrap initializes all application dependencies: database, task queue,
// worker, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	db := models.GetDB()

	// Analysis pipeline: queue feeds the processor, either in-process or
	// through the Redis worker.
	analysisService := services.NewAnalysisService(&cfg.AI)
	processor := services.NewAnalysisProcessor(db, analysisService)

	taskQueue := services.InitTaskQueue(cfg)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(processor.Process)
	}

	var worker *services.Worker
	if cfg.Redis.Enabled {
		worker = services.NewWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(processor.Process)
			worker.Start()
		}
	}

	cleanup := services.NewCleanupService(db, &cfg.Cleanup)
	if err := cleanup.Start(); err != nil {
		logger.Warn().Err(err).Msg("Failed to start cleanup scheduler")
	}

	return &appServices{
		cfg:       cfg,
		taskQueue: taskQueue,
		worker:    worker,
		cleanup:   cleanup,
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	if s.cleanup != nil {
		s.cleanup.Stop()
	}
	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
	logger.Info().Msg("All services stopped")
}
