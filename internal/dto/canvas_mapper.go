package dto

import (
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/noah-isme/canvas-sync/internal/models"
	"github.com/noah-isme/canvas-sync/pkg/canvas"
)

// CanvasMapper converts remote Canvas payloads into cache rows. Rich-text bodies are sanitised
// before they reach the store.
type CanvasMapper struct {
	sanitizer *bluemonday.Policy
}

// NewCanvasMapper constructs a mapper with the user-generated-content HTML policy.
func NewCanvasMapper() *CanvasMapper {
	return &CanvasMapper{sanitizer: bluemonday.UGCPolicy()}
}

// Course maps a remote course. The enrollment role is taken from the first enrollment.
func (m *CanvasMapper) Course(course canvas.Course) models.Course {
	model := models.Course{
		ID:            course.ID.String(),
		Name:          strings.TrimSpace(course.Name),
		CourseCode:    strings.TrimSpace(course.CourseCode),
		WorkflowState: course.WorkflowState,
		StartAt:       course.StartAt.Ptr(),
		EndAt:         course.EndAt.Ptr(),
	}
	if course.Term != nil {
		model.TermName = course.Term.Name
	}
	if len(course.Enrollments) > 0 {
		enrollment := course.Enrollments[0]
		model.EnrollmentRole = enrollment.Role
		if model.EnrollmentRole == "" {
			model.EnrollmentRole = enrollment.Type
		}
	}
	return model
}

// Assignment maps a remote assignment fetched under courseID.
func (m *CanvasMapper) Assignment(courseID string, assignment canvas.Assignment) models.Assignment {
	return models.Assignment{
		ID:              assignment.ID.String(),
		CourseID:        courseID,
		Name:            strings.TrimSpace(assignment.Name),
		Description:     m.sanitizer.Sanitize(assignment.Description),
		DueAt:           assignment.DueAt.Ptr(),
		LockAt:          assignment.LockAt.Ptr(),
		UnlockAt:        assignment.UnlockAt.Ptr(),
		PointsPossible:  assignment.PointsPossible,
		SubmissionTypes: assignment.SubmissionTypes,
		HTMLURL:         assignment.HTMLURL,
		RemoteUpdatedAt: assignment.UpdatedAt.Ptr(),
	}
}

// Grade maps the user's submission for assignment into a grade row.
func (m *CanvasMapper) Grade(assignment models.Assignment, submission canvas.Submission) models.Grade {
	excused := submission.Excused != nil && *submission.Excused

	grade := models.Grade{
		ID:             submission.ID.String(),
		AssignmentID:   assignment.ID,
		CourseID:       assignment.CourseID,
		AssignmentName: assignment.Name,
		Score:          submission.Score,
		PointsPossible: assignment.PointsPossible,
		WorkflowState:  models.GradeState(submission.WorkflowState, submission.Score, submission.Late, submission.Missing, excused),
		SubmittedAt:    submission.SubmittedAt.Ptr(),
		GradedAt:       submission.GradedAt.Ptr(),
	}
	grade.LetterGrade = letterGrade(submission.Grade, grade)
	return grade
}

// Discussion maps a remote discussion topic fetched under courseID.
func (m *CanvasMapper) Discussion(courseID string, discussion canvas.Discussion) models.Discussion {
	return models.Discussion{
		ID:          discussion.ID.String(),
		CourseID:    courseID,
		Title:       strings.TrimSpace(discussion.Title),
		Message:     m.sanitizer.Sanitize(discussion.Message),
		PostedAt:    discussion.PostedAt.Ptr(),
		LastReplyAt: discussion.LastReplyAt.Ptr(),
		ReplyCount:  discussion.DiscussionSubentryCount,
		AuthorName:  discussion.AuthorName(),
	}
}

// UserProfile maps the authenticated user.
func (m *CanvasMapper) UserProfile(user canvas.User) models.UserProfile {
	return models.UserProfile{
		ID:          user.ID.String(),
		DisplayName: user.DisplayName(),
		Email:       user.EmailAddress(),
		AvatarURL:   user.AvatarURL,
	}
}

// letterGrade keeps a letter Canvas sent and otherwise derives one from the percentage.
// Numeric grades (points-based grading) are not letters.
func letterGrade(remote *string, grade models.Grade) string {
	if remote != nil {
		value := strings.TrimSpace(*remote)
		if _, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64); value != "" && err != nil {
			return value
		}
	}
	if percentage := grade.Percentage(); percentage != nil {
		return models.LetterGradeFor(*percentage)
	}
	return ""
}
