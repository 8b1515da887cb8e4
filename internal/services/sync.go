package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vulegon/Summarite/internal/models"
	"github.com/vulegon/Summarite/pkg/logger"
)

// Events are always re-fetched over a fixed lookback window; upserts make
// the overlap with previous syncs idempotent.
const syncLookback = 3 * 30 * 24 * time.Hour

// ErrSyncInProgress is returned when a sync for the same user+provider is
// already running.
var ErrSyncInProgress = fmt.Errorf("sync already in progress")

// ErrNotConnected is returned when the user has no usable token for the
// provider.
var ErrNotConnected = fmt.Errorf("provider not connected")

// SyncService re-fetches a user's provider activity and upserts it into
// the event store. At most one sync per user+provider runs at a time,
// enforced by a conditional status transition rather than caller
// discipline.
type SyncService struct {
	db     *gorm.DB
	tokens *TokenService

	// Overridable in tests.
	fetchGithubEvents func(ctx context.Context, token string, start, end time.Time) ([]models.GithubEvent, error)
	fetchJiraEvents   func(ctx context.Context, token string, start, end time.Time, storyPointsFieldID string) ([]models.JiraEvent, error)
}

func NewSyncService(db *gorm.DB, tokens *TokenService) *SyncService {
	return &SyncService{
		db:     db,
		tokens: tokens,
		fetchGithubEvents: func(ctx context.Context, token string, start, end time.Time) ([]models.GithubEvent, error) {
			return NewGithubClient(token).FetchEvents(ctx, start, end)
		},
		fetchJiraEvents: func(ctx context.Context, token string, start, end time.Time, storyPointsFieldID string) ([]models.JiraEvent, error) {
			return NewJiraClient(token).FetchEvents(ctx, start, end, storyPointsFieldID)
		},
	}
}

// Begin claims the sync slot for user+provider by flipping the status to
// syncing, but only when no sync is currently running. The conditional
// update makes concurrent claims race safely: exactly one wins.
func (s *SyncService) Begin(userID uint, provider string) error {
	column, err := statusColumn(provider)
	if err != nil {
		return err
	}

	result := s.db.Model(&models.User{}).
		Where("id = ? AND "+column+" <> ?", userID, models.SyncStatusSyncing).
		Update(column, models.SyncStatusSyncing)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSyncInProgress
	}
	return nil
}

// SyncGithub runs one full GitHub sync for the user. The caller must have
// claimed the slot with Begin; the terminal status is written here.
func (s *SyncService) SyncGithub(ctx context.Context, userID uint) error {
	err := s.syncGithub(ctx, userID)
	s.finish(userID, models.ProviderGitHub, err)
	return err
}

func (s *SyncService) syncGithub(ctx context.Context, userID uint) error {
	token := s.tokens.GithubToken(userID)
	if token == "" {
		return ErrNotConnected
	}

	end := time.Now()
	start := end.Add(-syncLookback)

	events, err := s.fetchGithubEvents(ctx, token, start, end)
	if err != nil {
		return fmt.Errorf("fetch github events: %w", err)
	}

	for i := range events {
		events[i].UserID = userID
	}
	return s.upsertGithubEvents(events)
}

// SyncJira runs one full Jira sync for the user. The caller must have
// claimed the slot with Begin.
func (s *SyncService) SyncJira(ctx context.Context, userID uint) error {
	err := s.syncJira(ctx, userID)
	s.finish(userID, models.ProviderJira, err)
	return err
}

func (s *SyncService) syncJira(ctx context.Context, userID uint) error {
	token := s.tokens.JiraToken(ctx, userID)
	if token == "" {
		return ErrNotConnected
	}

	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	end := time.Now()
	start := end.Add(-syncLookback)

	events, err := s.fetchJiraEvents(ctx, token, start, end, user.StoryPointsFieldID)
	if err != nil {
		return fmt.Errorf("fetch jira events: %w", err)
	}

	for i := range events {
		events[i].UserID = userID
	}
	return s.upsertJiraEvents(events)
}

// upsertGithubEvents writes events under their natural key, updating the
// mutable fields on conflict. Order never matters: last write wins.
func (s *SyncService) upsertGithubEvents(events []models.GithubEvent) error {
	for i := range events {
		err := s.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "user_id"}, {Name: "event_type"}, {Name: "external_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"event_date", "repo", "additions", "deletions", "commits", "updated_at",
			}),
		}).Create(&events[i]).Error
		if err != nil {
			return fmt.Errorf("upsert github event %s: %w", events[i].ExternalID, err)
		}
	}
	return nil
}

func (s *SyncService) upsertJiraEvents(events []models.JiraEvent) error {
	for i := range events {
		err := s.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "user_id"}, {Name: "event_type"}, {Name: "issue_key"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"event_date", "project_key", "project_name", "issue_type", "priority",
				"status", "summary", "assignee", "reporter", "story_points", "updated_at",
			}),
		}).Create(&events[i]).Error
		if err != nil {
			return fmt.Errorf("upsert jira event %s: %w", events[i].IssueKey, err)
		}
	}
	return nil
}

// Abort releases a slot claimed with Begin without running a sync. It is
// for the enqueue path: when handing the task to the queue fails after the
// claim succeeded, the slot must not stay stuck at syncing.
func (s *SyncService) Abort(userID uint, provider string, cause error) {
	s.finish(userID, provider, cause)
}

// finish records the terminal status. A failure to write it is logged and
// swallowed; the sync outcome itself is already decided.
func (s *SyncService) finish(userID uint, provider string, syncErr error) {
	column, err := statusColumn(provider)
	if err != nil {
		return
	}

	updates := map[string]interface{}{}
	if syncErr != nil {
		updates[column] = models.SyncStatusFailed
		logger.Error().Err(syncErr).Uint("user_id", userID).Str("provider", provider).Msg("sync failed")
	} else {
		now := time.Now()
		updates[column] = models.SyncStatusCompleted
		switch provider {
		case models.ProviderGitHub:
			updates["github_synced_at"] = now
		case models.ProviderJira:
			updates["jira_synced_at"] = now
		}
		logger.Info().Uint("user_id", userID).Str("provider", provider).Msg("sync completed")
	}

	if err := s.db.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		logger.Error().Err(err).Uint("user_id", userID).Str("provider", provider).Msg("failed to write sync status")
	}
}

// Status reports both providers' sync state for polling.
func (s *SyncService) Status(userID uint) (map[string]interface{}, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"github": map[string]interface{}{
			"status":    user.GithubSyncStatus,
			"synced_at": user.GithubSyncedAt,
		},
		"jira": map[string]interface{}{
			"status":    user.JiraSyncStatus,
			"synced_at": user.JiraSyncedAt,
		},
	}, nil
}

func statusColumn(provider string) (string, error) {
	switch provider {
	case models.ProviderGitHub:
		return "github_sync_status", nil
	case models.ProviderJira:
		return "jira_sync_status", nil
	default:
		return "", fmt.Errorf("unknown provider %q", provider)
	}
}
