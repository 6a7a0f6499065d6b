package service

import (
	"time"

	"github.com/noah-isme/canvas-sync/internal/models"
)

// DefaultMaxAge is the collection freshness window used by SyncIfNeeded and cached reads.
const DefaultMaxAge = 5 * time.Minute

// IsStale reports whether lastSyncedAt is absent or older than maxAge.
func IsStale(lastSyncedAt *time.Time, maxAge time.Duration) bool {
	return isStaleAt(time.Now(), lastSyncedAt, maxAge)
}

func isStaleAt(now time.Time, lastSyncedAt *time.Time, maxAge time.Duration) bool {
	if lastSyncedAt == nil || lastSyncedAt.IsZero() {
		return true
	}
	return now.Sub(*lastSyncedAt) > maxAge
}

// StalenessPolicy binds a max age and a clock.
type StalenessPolicy struct {
	MaxAge time.Duration
	Now    func() time.Time
}

// NewStalenessPolicy returns a policy using the wall clock; non-positive maxAge means DefaultMaxAge.
func NewStalenessPolicy(maxAge time.Duration) StalenessPolicy {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return StalenessPolicy{MaxAge: maxAge, Now: time.Now}
}

// IsStale applies the policy max age.
func (p StalenessPolicy) IsStale(lastSyncedAt *time.Time) bool {
	return p.IsStaleFor(lastSyncedAt, p.MaxAge)
}

// IsStaleFor overrides the max age for one check.
func (p StalenessPolicy) IsStaleFor(lastSyncedAt *time.Time, maxAge time.Duration) bool {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return isStaleAt(now(), lastSyncedAt, maxAge)
}

// CollectionSyncedAt returns the oldest sync stamp of records. It is the fallback freshness of a
// collection that has no collection stamp yet. Placeholder rows are ignored; the result is nil for a
// collection without real rows or when any real row was never synced.
func CollectionSyncedAt[T models.SyncRecord](records []T) *time.Time {
	var oldest *time.Time
	for _, record := range records {
		if placeholder, ok := any(record).(interface{ IsPlaceholder() bool }); ok && placeholder.IsPlaceholder() {
			continue
		}
		stamp := record.SyncedAt()
		if stamp == nil {
			return nil
		}
		if oldest == nil || stamp.Before(*oldest) {
			value := *stamp
			oldest = &value
		}
	}
	return oldest
}

func latest(stamps ...*time.Time) *time.Time {
	var result *time.Time
	for _, stamp := range stamps {
		if stamp != nil && (result == nil || stamp.After(*result)) {
			result = stamp
		}
	}
	return result
}
