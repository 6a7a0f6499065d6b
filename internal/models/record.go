package models

import "time"

// SyncRecord is implemented by every row mirrored from Canvas.
type SyncRecord interface {
	RecordID() string
	// RemoteModifiedAt is the server-side modification time, nil when Canvas does not expose one.
	RemoteModifiedAt() *time.Time
	SyncedAt() *time.Time
}

// EntityType names a cached collection.
type EntityType string

const (
	EntityCourse      EntityType = "course"
	EntityAssignment  EntityType = "assignment"
	EntityGrade       EntityType = "grade"
	EntityDiscussion  EntityType = "discussion"
	EntityUserProfile EntityType = "user_profile"
)

// EntityTypes lists every cached collection in dependency order.
func EntityTypes() []EntityType {
	return []EntityType{EntityCourse, EntityAssignment, EntityGrade, EntityDiscussion, EntityUserProfile}
}

// ParseEntityType maps a path segment such as "courses" onto an EntityType.
func ParseEntityType(value string) (EntityType, bool) {
	switch value {
	case "course", "courses":
		return EntityCourse, true
	case "assignment", "assignments":
		return EntityAssignment, true
	case "grade", "grades":
		return EntityGrade, true
	case "discussion", "discussions":
		return EntityDiscussion, true
	case "user_profile", "profile", "profiles":
		return EntityUserProfile, true
	default:
		return "", false
	}
}
