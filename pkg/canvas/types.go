package canvas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FlexibleID normalises identifiers Canvas emits either as JSON numbers or strings.
type FlexibleID string

// UnmarshalJSON accepts "123", 123 and null.
func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*id = ""
		return nil
	}

	if trimmed[0] == '"' {
		var value string
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return err
		}
		*id = FlexibleID(strings.TrimSpace(value))
		return nil
	}

	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	if integer, err := number.Int64(); err == nil {
		*id = FlexibleID(strconv.FormatInt(integer, 10))
		return nil
	}
	*id = FlexibleID(number.String())
	return nil
}

// String returns the normalised identifier.
func (id FlexibleID) String() string {
	return string(id)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// FlexibleTime accepts every timestamp layout Canvas instances have been observed to send.
type FlexibleTime struct {
	time.Time
}

// UnmarshalJSON parses a timestamp string; null and "" leave the zero value.
func (t *FlexibleTime) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var raw string
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}

	return fmt.Errorf("unsupported timestamp %q", raw)
}

// MarshalJSON writes RFC3339 or null.
func (t FlexibleTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

// Ptr returns nil for the zero time.
func (t *FlexibleTime) Ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	value := t.Time
	return &value
}

// Course is the remote course payload.
type Course struct {
	ID            FlexibleID    `json:"id" validate:"required"`
	Name          string        `json:"name"`
	CourseCode    string        `json:"course_code"`
	WorkflowState string        `json:"workflow_state"`
	StartAt       *FlexibleTime `json:"start_at"`
	EndAt         *FlexibleTime `json:"end_at"`
	Enrollments   []Enrollment  `json:"enrollments"`
	Term          *Term         `json:"term"`
}

// Enrollment describes the current user's role in a course.
type Enrollment struct {
	ID              FlexibleID `json:"id"`
	Role            string     `json:"role"`
	Type            string     `json:"type"`
	EnrollmentState string     `json:"enrollment_state"`
}

// Term is the academic term a course belongs to.
type Term struct {
	ID      FlexibleID    `json:"id"`
	Name    string        `json:"name"`
	StartAt *FlexibleTime `json:"start_at"`
	EndAt   *FlexibleTime `json:"end_at"`
}

// Assignment is the remote assignment payload.
type Assignment struct {
	ID              FlexibleID    `json:"id" validate:"required"`
	CourseID        FlexibleID    `json:"course_id"`
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	DueAt           *FlexibleTime `json:"due_at"`
	LockAt          *FlexibleTime `json:"lock_at"`
	UnlockAt        *FlexibleTime `json:"unlock_at"`
	UpdatedAt       *FlexibleTime `json:"updated_at"`
	PointsPossible  *float64      `json:"points_possible"`
	SubmissionTypes []string      `json:"submission_types"`
	HTMLURL         string        `json:"html_url"`
}

// Submission is the current user's submission for one assignment.
type Submission struct {
	ID            FlexibleID    `json:"id" validate:"required"`
	AssignmentID  FlexibleID    `json:"assignment_id"`
	UserID        FlexibleID    `json:"user_id"`
	Score         *float64      `json:"score"`
	Grade         *string       `json:"grade"`
	SubmittedAt   *FlexibleTime `json:"submitted_at"`
	GradedAt      *FlexibleTime `json:"graded_at"`
	Late          bool          `json:"late"`
	Missing       bool          `json:"missing"`
	Excused       *bool         `json:"excused"`
	WorkflowState string        `json:"workflow_state"`
}

// Discussion is the remote discussion topic payload.
type Discussion struct {
	ID                      FlexibleID    `json:"id" validate:"required"`
	Title                   string        `json:"title"`
	Message                 string        `json:"message"`
	PostedAt                *FlexibleTime `json:"posted_at"`
	LastReplyAt             *FlexibleTime `json:"last_reply_at"`
	DiscussionSubentryCount int           `json:"discussion_subentry_count"`
	UserName                string        `json:"user_name"`
	Author                  *struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}

// AuthorName prefers the embedded author display name.
func (d Discussion) AuthorName() string {
	if d.Author != nil && d.Author.DisplayName != "" {
		return d.Author.DisplayName
	}
	return d.UserName
}

// User is the authenticated user's profile.
type User struct {
	ID           FlexibleID `json:"id" validate:"required"`
	Name         string     `json:"name"`
	ShortName    string     `json:"short_name"`
	Email        string     `json:"email"`
	PrimaryEmail string     `json:"primary_email"`
	LoginID      string     `json:"login_id"`
	AvatarURL    string     `json:"avatar_url"`
}

// DisplayName falls back through the name fields Canvas may populate.
func (u User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.ShortName != "":
		return u.ShortName
	default:
		return u.LoginID
	}
}

// EmailAddress prefers the explicit email field.
func (u User) EmailAddress() string {
	if u.Email != "" {
		return u.Email
	}
	return u.PrimaryEmail
}
