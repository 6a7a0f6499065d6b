package models

import (
	"time"

	"gorm.io/datatypes"
)

// Assignment is the cached copy of a Canvas assignment.
type Assignment struct {
	ID              string                      `gorm:"primaryKey;size:64" json:"id"`
	CourseID        string                      `gorm:"size:64;index;not null" json:"course_id"`
	Name            string                      `gorm:"size:255" json:"name"`
	Description     string                      `gorm:"type:text" json:"description"`
	DueAt           *time.Time                  `gorm:"index" json:"due_at"`
	LockAt          *time.Time                  `json:"lock_at"`
	UnlockAt        *time.Time                  `json:"unlock_at"`
	PointsPossible  *float64                    `json:"points_possible"`
	SubmissionTypes datatypes.JSONSlice[string] `json:"submission_types"`
	HTMLURL         string                      `gorm:"size:512" json:"html_url"`
	RemoteUpdatedAt *time.Time                  `json:"remote_updated_at"`
	LastSyncedAt    *time.Time                  `gorm:"index" json:"last_synced_at"`
}

func (a Assignment) RecordID() string { return a.ID }

func (a Assignment) RemoteModifiedAt() *time.Time { return a.RemoteUpdatedAt }

func (a Assignment) SyncedAt() *time.Time { return a.LastSyncedAt }

// IsPastDue returns true when the assignment deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return a.DueAt != nil && reference.After(*a.DueAt)
}
