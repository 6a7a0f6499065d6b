package models

import "time"

// Course is the cached copy of a Canvas course. A stub row (IsStub) only carries the id and exists
// because a child record referenced it before the course itself was synced.
type Course struct {
	ID             string     `gorm:"primaryKey;size:64" json:"id"`
	Name           string     `gorm:"size:255" json:"name"`
	CourseCode     string     `gorm:"size:128" json:"course_code"`
	WorkflowState  string     `gorm:"size:32" json:"workflow_state"`
	TermName       string     `gorm:"size:255" json:"term_name"`
	StartAt        *time.Time `json:"start_at"`
	EndAt          *time.Time `json:"end_at"`
	EnrollmentRole string     `gorm:"size:64" json:"enrollment_role"`
	IsStub         bool       `gorm:"not null;default:false" json:"is_stub"`
	LastSyncedAt   *time.Time `gorm:"index" json:"last_synced_at"`
}

func (c Course) RecordID() string { return c.ID }

// RemoteModifiedAt is always nil; the courses endpoint exposes no modification time.
func (c Course) RemoteModifiedAt() *time.Time { return nil }

func (c Course) SyncedAt() *time.Time { return c.LastSyncedAt }

// IsPlaceholder reports whether the row is a stub created on behalf of a child record.
func (c Course) IsPlaceholder() bool { return c.IsStub }
