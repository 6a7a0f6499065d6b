package models

import "time"

// Discussion is the cached copy of a Canvas discussion topic.
type Discussion struct {
	ID           string     `gorm:"primaryKey;size:64" json:"id"`
	CourseID     string     `gorm:"size:64;index;not null" json:"course_id"`
	Title        string     `gorm:"size:255" json:"title"`
	Message      string     `gorm:"type:text" json:"message"`
	PostedAt     *time.Time `json:"posted_at"`
	LastReplyAt  *time.Time `json:"last_reply_at"`
	ReplyCount   int        `gorm:"not null;default:0" json:"reply_count"`
	AuthorName   string     `gorm:"size:255" json:"author_name"`
	LastSyncedAt *time.Time `gorm:"index" json:"last_synced_at"`
}

func (d Discussion) RecordID() string { return d.ID }

func (d Discussion) RemoteModifiedAt() *time.Time {
	if d.LastReplyAt != nil {
		return d.LastReplyAt
	}
	return d.PostedAt
}

func (d Discussion) SyncedAt() *time.Time { return d.LastSyncedAt }
