package models

import (
	"time"

	"gorm.io/gorm"
)

// Sync status values for a provider connection.
const (
	SyncStatusIdle      = "idle"
	SyncStatusSyncing   = "syncing"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

// User represents an account holder whose GitHub and Jira activity is tracked.
type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Username string `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Password string `gorm:"size:255" json:"-"` // bcrypt hash
	Email    string `gorm:"size:255" json:"email"`
	Role     string `gorm:"size:50;default:user" json:"role"` // admin, user

	// Per-provider sync state. Written only by the sync orchestrator;
	// readers poll and tolerate brief staleness.
	GithubSyncStatus string     `gorm:"size:20;default:idle" json:"github_sync_status"`
	GithubSyncedAt   *time.Time `json:"github_synced_at"`
	JiraSyncStatus   string     `gorm:"size:20;default:idle" json:"jira_sync_status"`
	JiraSyncedAt     *time.Time `json:"jira_synced_at"`

	// Jira story points live in a tenant-configurable custom field.
	StoryPointsFieldID string `gorm:"size:100" json:"story_points_field_id"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }
