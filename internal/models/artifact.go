package models

import "time"

// Artifact describes a generated file. The bytes live in the blob store
// under StorageKey; PurgedAt is stamped once the janitor removed them.
type Artifact struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	JobID       uint      `gorm:"not null;uniqueIndex"`
	Name        string    `gorm:"type:varchar(255);not null"`
	StorageKey  string    `gorm:"type:varchar(512);not null"`
	ContentType string    `gorm:"type:varchar(100);not null"`
	Size        int64     `gorm:"not null;default:0"`
	ExpiresAt   time.Time `gorm:"not null;index"`
	PurgedAt    *time.Time
	CreatedAt   time.Time `gorm:"not null"`
}

func (a *Artifact) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}
