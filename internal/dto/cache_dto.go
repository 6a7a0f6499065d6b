package dto

import (
	"time"

	"github.com/noah-isme/canvas-sync/internal/models"
)

// CacheMeta tells a reader how fresh a cached collection is.
type CacheMeta struct {
	SyncedAt   *time.Time `json:"synced_at"`
	Stale      bool       `json:"stale"`
	Refreshing bool       `json:"refreshing"`
}

// CourseResponse is the serialized representation of a cached course.
type CourseResponse struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	CourseCode     string     `json:"course_code"`
	WorkflowState  string     `json:"workflow_state"`
	TermName       string     `json:"term_name"`
	StartAt        *time.Time `json:"start_at"`
	EndAt          *time.Time `json:"end_at"`
	EnrollmentRole string     `json:"enrollment_role"`
	LastSyncedAt   *time.Time `json:"last_synced_at"`
}

// CourseListResponse wraps cached courses with freshness metadata.
type CourseListResponse struct {
	CacheMeta
	Items []CourseResponse `json:"items"`
}

// CourseDetailResponse is a single course plus child counts.
type CourseDetailResponse struct {
	CacheMeta
	Course          CourseResponse `json:"course"`
	AssignmentCount int            `json:"assignment_count"`
	GradeCount      int            `json:"grade_count"`
	DiscussionCount int            `json:"discussion_count"`
}

// AssignmentResponse is the serialized representation of a cached assignment.
type AssignmentResponse struct {
	ID              string     `json:"id"`
	CourseID        string     `json:"course_id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	DueAt           *time.Time `json:"due_at"`
	LockAt          *time.Time `json:"lock_at"`
	UnlockAt        *time.Time `json:"unlock_at"`
	PointsPossible  *float64   `json:"points_possible"`
	SubmissionTypes []string   `json:"submission_types"`
	HTMLURL         string     `json:"html_url"`
	PastDue         bool       `json:"past_due"`
	LastSyncedAt    *time.Time `json:"last_synced_at"`
}

// AssignmentListResponse wraps cached assignments of one course.
type AssignmentListResponse struct {
	CacheMeta
	CourseID string               `json:"course_id"`
	Items    []AssignmentResponse `json:"items"`
}

// GradeResponse is the serialized representation of a cached grade.
type GradeResponse struct {
	ID             string     `json:"id"`
	AssignmentID   string     `json:"assignment_id"`
	CourseID       string     `json:"course_id"`
	AssignmentName string     `json:"assignment_name"`
	Score          *float64   `json:"score"`
	PointsPossible *float64   `json:"points_possible"`
	Percentage     *float64   `json:"percentage"`
	LetterGrade    string     `json:"letter_grade"`
	WorkflowState  string     `json:"workflow_state"`
	SubmittedAt    *time.Time `json:"submitted_at"`
	GradedAt       *time.Time `json:"graded_at"`
	LastSyncedAt   *time.Time `json:"last_synced_at"`
}

// GradeListResponse wraps cached grades of one course.
type GradeListResponse struct {
	CacheMeta
	CourseID string          `json:"course_id"`
	Items    []GradeResponse `json:"items"`
}

// DiscussionResponse is the serialized representation of a cached discussion topic.
type DiscussionResponse struct {
	ID           string     `json:"id"`
	CourseID     string     `json:"course_id"`
	Title        string     `json:"title"`
	Message      string     `json:"message"`
	PostedAt     *time.Time `json:"posted_at"`
	LastReplyAt  *time.Time `json:"last_reply_at"`
	ReplyCount   int        `json:"reply_count"`
	AuthorName   string     `json:"author_name"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
}

// DiscussionListResponse wraps cached discussions of one course.
type DiscussionListResponse struct {
	CacheMeta
	CourseID string               `json:"course_id"`
	Items    []DiscussionResponse `json:"items"`
}

// UserProfileResponse is the cached authenticated user.
type UserProfileResponse struct {
	CacheMeta
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatar_url"`
}

// StatisticsResponse summarises the cache and the sync session.
type StatisticsResponse struct {
	Courses     int64      `json:"courses"`
	Assignments int64      `json:"assignments"`
	Grades      int64      `json:"grades"`
	Discussions int64      `json:"discussions"`
	LastSyncAt  *time.Time `json:"last_sync_at"`
	IsSyncing   bool       `json:"is_syncing"`
	Progress    float64    `json:"progress"`
	StatusText  string     `json:"status_text"`
}

// NewCourseResponse converts a model into a DTO.
func NewCourseResponse(model models.Course) CourseResponse {
	return CourseResponse{
		ID:             model.ID,
		Name:           model.Name,
		CourseCode:     model.CourseCode,
		WorkflowState:  model.WorkflowState,
		TermName:       model.TermName,
		StartAt:        model.StartAt,
		EndAt:          model.EndAt,
		EnrollmentRole: model.EnrollmentRole,
		LastSyncedAt:   model.LastSyncedAt,
	}
}

// NewCourseResponseSlice converts courses, leaving out stub rows.
func NewCourseResponseSlice(courses []models.Course) []CourseResponse {
	responses := make([]CourseResponse, 0, len(courses))
	for _, course := range courses {
		if course.IsStub {
			continue
		}
		responses = append(responses, NewCourseResponse(course))
	}
	return responses
}

// NewAssignmentResponse converts a model into a DTO.
func NewAssignmentResponse(model models.Assignment, now time.Time) AssignmentResponse {
	types := []string(model.SubmissionTypes)
	if types == nil {
		types = []string{}
	}
	return AssignmentResponse{
		ID:              model.ID,
		CourseID:        model.CourseID,
		Name:            model.Name,
		Description:     model.Description,
		DueAt:           model.DueAt,
		LockAt:          model.LockAt,
		UnlockAt:        model.UnlockAt,
		PointsPossible:  model.PointsPossible,
		SubmissionTypes: types,
		HTMLURL:         model.HTMLURL,
		PastDue:         model.IsPastDue(now),
		LastSyncedAt:    model.LastSyncedAt,
	}
}

// NewAssignmentResponseSlice converts a slice of models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment, now time.Time) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment, now))
	}
	return responses
}

// NewGradeResponse converts a model into a DTO.
func NewGradeResponse(model models.Grade) GradeResponse {
	return GradeResponse{
		ID:             model.ID,
		AssignmentID:   model.AssignmentID,
		CourseID:       model.CourseID,
		AssignmentName: model.AssignmentName,
		Score:          model.Score,
		PointsPossible: model.PointsPossible,
		Percentage:     model.Percentage(),
		LetterGrade:    model.LetterGrade,
		WorkflowState:  model.WorkflowState,
		SubmittedAt:    model.SubmittedAt,
		GradedAt:       model.GradedAt,
		LastSyncedAt:   model.LastSyncedAt,
	}
}

// NewGradeResponseSlice converts a slice of models into DTOs.
func NewGradeResponseSlice(grades []models.Grade) []GradeResponse {
	responses := make([]GradeResponse, 0, len(grades))
	for _, grade := range grades {
		responses = append(responses, NewGradeResponse(grade))
	}
	return responses
}

// NewDiscussionResponse converts a model into a DTO.
func NewDiscussionResponse(model models.Discussion) DiscussionResponse {
	return DiscussionResponse{
		ID:           model.ID,
		CourseID:     model.CourseID,
		Title:        model.Title,
		Message:      model.Message,
		PostedAt:     model.PostedAt,
		LastReplyAt:  model.LastReplyAt,
		ReplyCount:   model.ReplyCount,
		AuthorName:   model.AuthorName,
		LastSyncedAt: model.LastSyncedAt,
	}
}

// NewDiscussionResponseSlice converts a slice of models into DTOs.
func NewDiscussionResponseSlice(discussions []models.Discussion) []DiscussionResponse {
	responses := make([]DiscussionResponse, 0, len(discussions))
	for _, discussion := range discussions {
		responses = append(responses, NewDiscussionResponse(discussion))
	}
	return responses
}
