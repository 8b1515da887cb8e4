package models

import "time"

// GitHub event types.
const (
	GithubEventPROpened    = "pr_opened"
	GithubEventPRMerged    = "pr_merged"
	GithubEventReview      = "review"
	GithubEventIssueOpened = "issue_opened"
	GithubEventIssueClosed = "issue_closed"
	GithubEventCommit      = "commit"
)

// GithubEvent is one normalized GitHub activity record. The tuple
// (user_id, event_type, external_id) is the natural key; re-syncing updates
// mutable fields instead of inserting duplicates.
type GithubEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"uniqueIndex:idx_github_event_natural;not null" json:"user_id"`
	EventType  string    `gorm:"uniqueIndex:idx_github_event_natural;size:50;not null" json:"event_type"`
	ExternalID string    `gorm:"uniqueIndex:idx_github_event_natural;size:500;not null" json:"external_id"` // e.g. "owner/repo#123"
	EventDate  time.Time `gorm:"index;not null" json:"event_date"`
	Repo       string    `gorm:"size:500" json:"repo"`
	Additions  int       `json:"additions"`
	Deletions  int       `json:"deletions"`
	// For pr_merged this is the PR's own commit count (detail only); for
	// commit events it is the per-repository total for the fetch window.
	Commits int `json:"commits"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (GithubEvent) TableName() string { return "github_events" }
