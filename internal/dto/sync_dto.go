package dto

import "time"

// SyncState is the coordinator state machine position.
type SyncState string

const (
	SyncStateIdle    SyncState = "idle"
	SyncStateSyncing SyncState = "syncing"
	SyncStateFailed  SyncState = "failed"
)

// Sync status event types.
const (
	SyncEventSnapshot     = "sync.snapshot"
	SyncEventStarted      = "sync.started"
	SyncEventProgress     = "sync.progress"
	SyncEventCompleted    = "sync.completed"
	SyncEventFailed       = "sync.failed"
	SyncEventErrorCleared = "sync.error_cleared"
	SyncEventCacheCleared = "cache.cleared"
)

// SyncFailure records one isolated child failure of a pass.
type SyncFailure struct {
	Entity       string    `json:"entity"`
	CourseID     string    `json:"course_id"`
	AssignmentID string    `json:"assignment_id,omitempty"`
	Kind         string    `json:"kind"`
	Message      string    `json:"message"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// SyncStatus is the observable sync session.
type SyncStatus struct {
	State          SyncState     `json:"state"`
	IsSyncing      bool          `json:"is_syncing"`
	Progress       float64       `json:"progress"`
	Stage          string        `json:"stage"`
	LastFullSyncAt *time.Time    `json:"last_full_sync_at"`
	LastError      *string       `json:"last_error"`
	LastErrorKind  string        `json:"last_error_kind,omitempty"`
	Failures       []SyncFailure `json:"failures"`
	RunID          string        `json:"run_id,omitempty"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	FinishedAt     *time.Time    `json:"finished_at,omitempty"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s SyncStatus) Clone() SyncStatus {
	clone := s
	clone.LastFullSyncAt = cloneTime(s.LastFullSyncAt)
	clone.StartedAt = cloneTime(s.StartedAt)
	clone.FinishedAt = cloneTime(s.FinishedAt)
	if s.LastError != nil {
		message := *s.LastError
		clone.LastError = &message
	}
	clone.Failures = make([]SyncFailure, len(s.Failures))
	copy(clone.Failures, s.Failures)
	return clone
}

// SyncStatusEvent is pushed to subscribers on every status transition.
type SyncStatusEvent struct {
	Type      string     `json:"type"`
	Status    SyncStatus `json:"status"`
	Source    string     `json:"source"`
	EmittedAt time.Time  `json:"emitted_at"`
}

// SyncRequest selects what a manual sync should refresh.
type SyncRequest struct {
	Wait bool `query:"wait"`
}

// SyncResult is returned by manual sync endpoints.
type SyncResult struct {
	Triggered bool       `json:"triggered"`
	Status    SyncStatus `json:"status"`
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
