package models

import (
	"time"

	"gorm.io/gorm"
)

// OAuth provider identifiers.
const (
	ProviderGitHub = "github"
	ProviderJira   = "jira"
)

// Account holds a stored OAuth credential for one user+provider pair.
type Account struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	UserID       uint   `gorm:"uniqueIndex:idx_account_user_provider;not null" json:"user_id"`
	Provider     string `gorm:"uniqueIndex:idx_account_user_provider;size:50;not null" json:"provider"` // github, jira
	AccessToken  string `gorm:"size:2000" json:"-"`
	RefreshToken string `gorm:"size:2000" json:"-"`
	// Unix seconds; nil for tokens that do not expire (GitHub OAuth tokens).
	ExpiresAt *int64 `json:"expires_at"`
	Scope     string `gorm:"size:500" json:"scope"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Account) TableName() string { return "accounts" }
