package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/vulegon/Summarite/internal/config"
	"github.com/vulegon/Summarite/internal/models"
	"github.com/vulegon/Summarite/pkg/logger"
)

const resyncLockName = "auto_resync"

// SchedulerService periodically re-syncs users whose data has gone stale.
// A database lock keeps the sweep single-flight across server instances.
type SchedulerService struct {
	db         *gorm.DB
	cfg        *config.SyncConfig
	queue      TaskQueue
	sync       *SyncService
	cron       *cron.Cron
	instanceID string
}

func NewSchedulerService(db *gorm.DB, cfg *config.SyncConfig, queue TaskQueue, sync *SyncService) *SchedulerService {
	return &SchedulerService{
		db:         db,
		cfg:        cfg,
		queue:      queue,
		sync:       sync,
		instanceID: uuid.NewString(),
	}
}

func (s *SchedulerService) Start() {
	if !s.cfg.AutoResync {
		logger.Infof("[Scheduler] Auto resync disabled")
		return
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.cfg.CronSpec, s.runSweep); err != nil {
		logger.Errorf("[Scheduler] Failed to add resync job: %v", err)
		return
	}
	s.cron.Start()
	logger.Infof("[Scheduler] Auto resync scheduled (cron: %s)", s.cfg.CronSpec)
}

func (s *SchedulerService) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// runSweep enqueues sync tasks for every user whose last successful sync
// is older than the staleness threshold, or who has never synced despite
// having a connected account.
func (s *SchedulerService) runSweep() {
	lockKey := time.Now().Format("2006-01-02T15")
	if !s.acquireLock(lockKey) {
		logger.Debug().Str("lock_key", lockKey).Msg("resync sweep already claimed by another instance")
		return
	}

	staleBefore := time.Now().Add(-time.Duration(s.cfg.StaleHours) * time.Hour)
	logger.Info().Time("stale_before", staleBefore).Msg("running resync sweep")

	var accounts []models.Account
	if err := s.db.Find(&accounts).Error; err != nil {
		logger.Errorf("[Scheduler] Failed to list accounts: %v", err)
		return
	}

	users := make(map[uint]*models.User)
	enqueued := 0
	for _, account := range accounts {
		user, ok := users[account.UserID]
		if !ok {
			var u models.User
			if err := s.db.First(&u, account.UserID).Error; err != nil {
				continue
			}
			user = &u
			users[account.UserID] = user
		}

		var syncedAt *time.Time
		var status string
		switch account.Provider {
		case models.ProviderGitHub:
			syncedAt, status = user.GithubSyncedAt, user.GithubSyncStatus
		case models.ProviderJira:
			syncedAt, status = user.JiraSyncedAt, user.JiraSyncStatus
		default:
			continue
		}

		if status == models.SyncStatusSyncing {
			continue
		}
		if syncedAt != nil && syncedAt.After(staleBefore) {
			continue
		}

		// Claim the slot before enqueueing, same as the manual trigger
		// path: every queued task runs under a claim, so the worker never
		// has to arbitrate.
		if err := s.sync.Begin(account.UserID, account.Provider); err != nil {
			continue
		}
		if err := s.queue.Enqueue(&SyncTask{UserID: account.UserID, Provider: account.Provider}); err != nil {
			s.sync.Abort(account.UserID, account.Provider, err)
			logger.Errorf("[Scheduler] Failed to enqueue sync for user %d: %v", account.UserID, err)
			continue
		}
		enqueued++
	}

	logger.Info().Int("enqueued", enqueued).Msg("resync sweep finished")
}

// acquireLock claims the sweep for this instance. The unique index on
// (lock_name, lock_key) makes the insert the arbiter: exactly one instance
// wins per key, and expired rows are cleared first so a crashed winner
// cannot block future sweeps.
func (s *SchedulerService) acquireLock(lockKey string) bool {
	now := time.Now()
	s.db.Where("lock_name = ? AND expires_at < ?", resyncLockName, now).Delete(&models.SyncLock{})

	lock := models.SyncLock{
		LockName:  resyncLockName,
		LockKey:   lockKey,
		LockedBy:  s.instanceID,
		LockedAt:  now,
		ExpiresAt: now.Add(time.Duration(s.cfg.LockTTLHours) * time.Hour),
	}
	if err := s.db.Create(&lock).Error; err != nil {
		return false
	}
	return true
}

// RunSweepNow is an explicit trigger for the sweep, used by tests and by
// operators through the admin surface.
func (s *SchedulerService) RunSweepNow(_ context.Context) {
	s.runSweep()
}
