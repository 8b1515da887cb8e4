package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/vulegon/Summarite/internal/config"
	"github.com/vulegon/Summarite/internal/models"
)

// recordingQueue captures enqueued tasks for assertions.
type recordingQueue struct {
	mu    sync.Mutex
	tasks []SyncTask
}

func (q *recordingQueue) Enqueue(task *SyncTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, *task)
	return nil
}

func (q *recordingQueue) IsAsync() bool { return false }
func (q *recordingQueue) Close() error  { return nil }

func (q *recordingQueue) snapshot() []SyncTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]SyncTask(nil), q.tasks...)
}

func newScheduler(t *testing.T, db *gorm.DB, queue TaskQueue) *SchedulerService {
	t.Helper()
	sync := NewSyncService(db, NewTokenService(db, testConfig()))
	return NewSchedulerService(db, schedulerConfig(), queue, sync)
}

func schedulerConfig() *config.SyncConfig {
	return &config.SyncConfig{
		AutoResync:   true,
		CronSpec:     "0 */6 * * *",
		StaleHours:   24,
		LockTTLHours: 1,
	}
}

func TestAcquireLock_SingleWinnerPerKey(t *testing.T) {
	db := newTestDB(t)

	a := newScheduler(t, db, &recordingQueue{})
	b := newScheduler(t, db, &recordingQueue{})

	if !a.acquireLock("2024-03-12T06") {
		t.Fatal("first instance should win the lock")
	}
	if b.acquireLock("2024-03-12T06") {
		t.Error("second instance must not win the same key")
	}
	// A different key is a different sweep.
	if !b.acquireLock("2024-03-12T12") {
		t.Error("second instance should win an unclaimed key")
	}
}

func TestAcquireLock_ExpiredLockReclaimed(t *testing.T) {
	db := newTestDB(t)
	svc := newScheduler(t, db, &recordingQueue{})

	stale := models.SyncLock{
		LockName:  resyncLockName,
		LockKey:   "2024-03-12T06",
		LockedBy:  "dead-instance",
		LockedAt:  time.Now().Add(-3 * time.Hour),
		ExpiresAt: time.Now().Add(-2 * time.Hour),
	}
	if err := db.Create(&stale).Error; err != nil {
		t.Fatal(err)
	}

	if !svc.acquireLock("2024-03-12T06") {
		t.Error("expired lock should be reclaimable")
	}
}

func TestRunSweep_EnqueuesStaleUsers(t *testing.T) {
	db := newTestDB(t)
	queue := &recordingQueue{}
	svc := newScheduler(t, db, queue)

	staleTime := time.Now().Add(-48 * time.Hour)
	freshTime := time.Now().Add(-time.Hour)

	staleUser := newTestUser(t, db, "stale-user")
	db.Model(staleUser).Updates(map[string]interface{}{
		"github_sync_status": models.SyncStatusCompleted,
		"github_synced_at":   staleTime,
	})
	connectAccount(t, db, staleUser.ID, models.ProviderGitHub)

	freshUser := newTestUser(t, db, "fresh-user")
	db.Model(freshUser).Updates(map[string]interface{}{
		"github_sync_status": models.SyncStatusCompleted,
		"github_synced_at":   freshTime,
	})
	connectAccount(t, db, freshUser.ID, models.ProviderGitHub)

	// Connected but never synced: also due.
	neverUser := newTestUser(t, db, "never-user")
	connectAccount(t, db, neverUser.ID, models.ProviderJira)

	// Mid-sync users are skipped.
	busyUser := newTestUser(t, db, "busy-user")
	db.Model(busyUser).Update("github_sync_status", models.SyncStatusSyncing)
	connectAccount(t, db, busyUser.ID, models.ProviderGitHub)

	svc.runSweep()

	tasks := queue.snapshot()
	want := map[uint]string{
		staleUser.ID: models.ProviderGitHub,
		neverUser.ID: models.ProviderJira,
	}
	if len(tasks) != len(want) {
		t.Fatalf("enqueued %d tasks, expected %d: %+v", len(tasks), len(want), tasks)
	}
	for _, task := range tasks {
		if want[task.UserID] != task.Provider {
			t.Errorf("unexpected task %+v", task)
		}
	}
}

func TestRunSweepNow_EnqueuesDueUsers(t *testing.T) {
	db := newTestDB(t)
	queue := &recordingQueue{}
	svc := newScheduler(t, db, queue)

	user := newTestUser(t, db, "manual-sweep-user")
	connectAccount(t, db, user.ID, models.ProviderGitHub)

	svc.RunSweepNow(context.Background())

	tasks := queue.snapshot()
	if len(tasks) != 1 || tasks[0].UserID != user.ID {
		t.Fatalf("enqueued %+v, expected one task for user %d", tasks, user.ID)
	}
}

func TestRunSweep_SecondInstanceSkips(t *testing.T) {
	db := newTestDB(t)

	queueA := &recordingQueue{}
	queueB := &recordingQueue{}
	a := newScheduler(t, db, queueA)
	b := newScheduler(t, db, queueB)

	user := newTestUser(t, db, "sweep-user")
	connectAccount(t, db, user.ID, models.ProviderGitHub)

	a.runSweep()
	b.runSweep() // same hour, same lock key

	if len(queueA.snapshot()) != 1 {
		t.Errorf("first instance enqueued %d tasks, expected 1", len(queueA.snapshot()))
	}
	if len(queueB.snapshot()) != 0 {
		t.Errorf("second instance enqueued %d tasks, expected 0", len(queueB.snapshot()))
	}
}
