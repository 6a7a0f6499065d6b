package models

import "time"

// UserProfile is the authenticated user. The cache holds at most one row.
type UserProfile struct {
	ID           string     `gorm:"primaryKey;size:64" json:"id"`
	DisplayName  string     `gorm:"size:255" json:"display_name"`
	Email        string     `gorm:"size:255" json:"email"`
	AvatarURL    string     `gorm:"size:512" json:"avatar_url"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
}

func (u UserProfile) RecordID() string { return u.ID }

func (u UserProfile) RemoteModifiedAt() *time.Time { return nil }

func (u UserProfile) SyncedAt() *time.Time { return u.LastSyncedAt }
