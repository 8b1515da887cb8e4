package models

import "time"

// Summary is a generated narrative for one user and period. Regenerating
// overwrites the existing row for the same period.
type Summary struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"uniqueIndex:idx_summary_user_period;not null" json:"user_id"`
	PeriodStart time.Time `gorm:"uniqueIndex:idx_summary_user_period;not null" json:"period_start"`
	PeriodEnd   time.Time `gorm:"uniqueIndex:idx_summary_user_period;not null" json:"period_end"`
	PeriodType  string    `gorm:"uniqueIndex:idx_summary_user_period;size:20;not null" json:"period_type"` // weekly, monthly, custom
	Content     string    `gorm:"type:text" json:"content"`
	Model       string    `gorm:"size:100" json:"model"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Summary) TableName() string { return "summaries" }
