package models

import "time"

// SyncLock is a database lock that keeps scheduled re-syncs single-flight
// across server instances. A lock is free when no row exists or the row
// has expired.
type SyncLock struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	LockName  string    `gorm:"uniqueIndex:idx_sync_lock_name_key;size:100;not null" json:"lock_name"`
	LockKey   string    `gorm:"uniqueIndex:idx_sync_lock_name_key;size:100;not null" json:"lock_key"`
	LockedBy  string    `gorm:"size:100" json:"locked_by"`
	LockedAt  time.Time `json:"locked_at"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}

func (SyncLock) TableName() string { return "sync_locks" }
