package services

import (
	"time"

	"github.com/alibot/reviewdash/internal/config"
	"github.com/alibot/reviewdash/internal/models"
	"github.com/alibot/reviewdash/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// CleanupService periodically fails reviews stuck in a non-terminal status,
// so history views stay truthful when an analysis worker dies mid-task.
type CleanupService struct {
	db         *gorm.DB
	schedule   string
	staleAfter time.Duration
	scheduler  *cron.Cron
}

func NewCleanupService(db *gorm.DB, cfg *config.CleanupConfig) *CleanupService {
	staleAfter := time.Duration(cfg.StaleAfterMin) * time.Minute
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = "*/15 * * * *"
	}
	return &CleanupService{
		db:         db,
		schedule:   schedule,
		staleAfter: staleAfter,
	}
}

// Start begins the sweep schedule.
func (s *CleanupService) Start() error {
	s.scheduler = cron.New()
	if _, err := s.scheduler.AddFunc(s.schedule, s.sweep); err != nil {
		return err
	}
	s.scheduler.Start()
	logger.Infof("[Cleanup] Scheduler started: %q, stale after %v", s.schedule, s.staleAfter)
	return nil
}

// Stop halts the sweep schedule.
func (s *CleanupService) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *CleanupService) sweep() {
	cutoff := time.Now().UTC().Add(-s.staleAfter)

	result := s.db.Model(&models.Review{}).
		Where("status IN ? AND created_at < ?", []string{models.StatusPending, models.StatusInProgress}, cutoff).
		Update("status", models.StatusFailed)

	if result.Error != nil {
		logger.Errorf("[Cleanup] Sweep failed: %v", result.Error)
		return
	}
	if result.RowsAffected > 0 {
		logger.Infof("[Cleanup] Marked %d stale reviews as failed", result.RowsAffected)
	}
}
