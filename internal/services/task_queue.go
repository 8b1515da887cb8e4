package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hibiken/asynq"

	"github.com/vulegon/Summarite/internal/config"
	"github.com/vulegon/Summarite/pkg/logger"
)

const (
	TaskTypeSync = "sync:events"
)

// SyncTask is one detached sync job for a user+provider pair.
type SyncTask struct {
	UserID   uint   `json:"user_id"`
	Provider string `json:"provider"` // github, jira
}

// TaskQueue dispatches sync jobs. With Redis available jobs go through
// asynq and survive restarts; without it they run in-process.
type TaskQueue interface {
	Enqueue(task *SyncTask) error
	IsAsync() bool
	Close() error
}

var (
	globalTaskQueue TaskQueue
	taskQueueOnce   sync.Once
)

// InitTaskQueue picks the queue implementation from config, falling back
// to in-process dispatch when Redis is unreachable.
func InitTaskQueue(cfg *config.Config) TaskQueue {
	taskQueueOnce.Do(func() {
		if cfg.Redis.Enabled {
			queue, err := NewAsyncQueue(&cfg.Redis)
			if err != nil {
				logger.Warnf("[TaskQueue] Redis unavailable, falling back to in-process mode: %v", err)
				globalTaskQueue = NewInProcessQueue()
			} else {
				logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Redis.Addr)
				globalTaskQueue = queue
			}
		} else {
			logger.Infof("[TaskQueue] In-process queue initialized (Redis disabled)")
			globalTaskQueue = NewInProcessQueue()
		}
	})
	return globalTaskQueue
}

// GetTaskQueue returns the global task queue instance.
func GetTaskQueue() TaskQueue {
	return globalTaskQueue
}

// AsyncQueue implements TaskQueue using asynq (Redis-based).
type AsyncQueue struct {
	client *asynq.Client
}

func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	client := asynq.NewClient(redisOpt)

	// Verify the connection before committing to async mode.
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

func (q *AsyncQueue) Enqueue(task *SyncTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	t := asynq.NewTask(TaskTypeSync, payload)
	info, err := q.client.Enqueue(t,
		asynq.Queue("default"),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return err
	}

	logger.Infof("[AsyncQueue] Sync task enqueued: id=%s, user_id=%d, provider=%s", info.ID, task.UserID, task.Provider)
	return nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// InProcessQueue implements TaskQueue without Redis: jobs run in their own
// goroutine so the triggering request is never blocked.
type InProcessQueue struct {
	processor func(context.Context, *SyncTask) error
}

func NewInProcessQueue() *InProcessQueue {
	return &InProcessQueue{}
}

// SetProcessor sets the function that executes sync tasks.
func (q *InProcessQueue) SetProcessor(processor func(context.Context, *SyncTask) error) {
	q.processor = processor
}

func (q *InProcessQueue) Enqueue(task *SyncTask) error {
	if q.processor == nil {
		logger.Warnf("[InProcessQueue] no processor set, task dropped")
		return nil
	}

	go func() {
		if err := q.processor(context.Background(), task); err != nil {
			logger.Errorf("[InProcessQueue] sync task failed: %v", err)
		}
	}()

	return nil
}

func (q *InProcessQueue) IsAsync() bool {
	return false
}

func (q *InProcessQueue) Close() error {
	return nil
}
