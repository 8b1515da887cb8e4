package models

import "time"

// Jira event types.
const (
	JiraEventCreated    = "created"
	JiraEventDone       = "done"
	JiraEventInProgress = "in_progress"
)

// JiraEvent is one normalized Jira issue record. The tuple
// (user_id, event_type, issue_key) is the natural key.
type JiraEvent struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"uniqueIndex:idx_jira_event_natural;not null" json:"user_id"`
	EventType   string    `gorm:"uniqueIndex:idx_jira_event_natural;size:50;not null" json:"event_type"`
	IssueKey    string    `gorm:"uniqueIndex:idx_jira_event_natural;size:100;not null" json:"issue_key"` // e.g. "PROJ-456"
	EventDate   time.Time `gorm:"index;not null" json:"event_date"`
	ProjectKey  string    `gorm:"size:100" json:"project_key"`
	ProjectName string    `gorm:"size:200" json:"project_name"`
	IssueType   string    `gorm:"size:100" json:"issue_type"`
	Priority    string    `gorm:"size:100" json:"priority"`
	Status      string    `gorm:"size:100" json:"status"`
	Summary     string    `gorm:"size:1000" json:"summary"`
	Assignee    string    `gorm:"size:200" json:"assignee"`
	Reporter    string    `gorm:"size:200" json:"reporter"`
	StoryPoints float64   `json:"story_points"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (JiraEvent) TableName() string { return "jira_events" }
