package models

import (
	"strings"
	"time"
)

const (
	GradeStateSubmitted = "submitted"
	GradeStateGraded    = "graded"
	GradeStateMissing   = "missing"
	GradeStateExcused   = "excused"
	GradeStateLate      = "late"
)

// Grade is the current user's result for one assignment. Its id is the Canvas submission id.
type Grade struct {
	ID             string     `gorm:"primaryKey;size:64" json:"id"`
	AssignmentID   string     `gorm:"size:64;index;not null" json:"assignment_id"`
	CourseID       string     `gorm:"size:64;index;not null" json:"course_id"`
	AssignmentName string     `gorm:"size:255" json:"assignment_name"`
	Score          *float64   `json:"score"`
	LetterGrade    string     `gorm:"size:16" json:"letter_grade"`
	PointsPossible *float64   `json:"points_possible"`
	WorkflowState  string     `gorm:"size:32" json:"workflow_state"`
	SubmittedAt    *time.Time `json:"submitted_at"`
	GradedAt       *time.Time `json:"graded_at"`
	LastSyncedAt   *time.Time `gorm:"index" json:"last_synced_at"`
}

func (g Grade) RecordID() string { return g.ID }

// RemoteModifiedAt prefers the grading time over the submission time.
func (g Grade) RemoteModifiedAt() *time.Time {
	if g.GradedAt != nil {
		return g.GradedAt
	}
	return g.SubmittedAt
}

func (g Grade) SyncedAt() *time.Time { return g.LastSyncedAt }

// Percentage returns score/points as a percentage, or nil when either is unknown.
func (g Grade) Percentage() *float64 {
	if g.Score == nil || g.PointsPossible == nil || *g.PointsPossible <= 0 {
		return nil
	}
	value := *g.Score / *g.PointsPossible * 100
	return &value
}

// GradeState collapses the Canvas submission flags into one of the GradeState constants.
// Excused beats missing, missing beats late.
func GradeState(canvasState string, score *float64, late, missing, excused bool) string {
	switch {
	case excused:
		return GradeStateExcused
	case missing:
		return GradeStateMissing
	case late:
		return GradeStateLate
	case score != nil || strings.EqualFold(canvasState, GradeStateGraded):
		return GradeStateGraded
	default:
		return GradeStateSubmitted
	}
}

// LetterGradeFor maps a percentage onto the US letter scale.
func LetterGradeFor(percentage float64) string {
	switch {
	case percentage >= 97:
		return "A+"
	case percentage >= 93:
		return "A"
	case percentage >= 90:
		return "A-"
	case percentage >= 87:
		return "B+"
	case percentage >= 83:
		return "B"
	case percentage >= 80:
		return "B-"
	case percentage >= 77:
		return "C+"
	case percentage >= 73:
		return "C"
	case percentage >= 70:
		return "C-"
	case percentage >= 67:
		return "D+"
	case percentage >= 63:
		return "D"
	case percentage >= 60:
		return "D-"
	default:
		return "F"
	}
}
