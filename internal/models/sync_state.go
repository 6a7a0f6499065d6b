package models

import "time"

// SyncStateKeyLastFullSync stores the completion time of the last successful full pass (RFC3339Nano).
const SyncStateKeyLastFullSync = "last_full_sync_at"

const collectionKeyPrefix = "collection:"

// SyncStateEntry is a process-wide key/value row that survives restarts.
type SyncStateEntry struct {
	Key       string    `gorm:"primaryKey;column:state_key;size:160" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CollectionKey names the sync stamp of one cached collection. Course children are keyed by their
// course; courses and the profile use an empty parent.
func CollectionKey(entity EntityType, parentID string) string {
	if parentID == "" {
		return collectionKeyPrefix + string(entity)
	}
	return collectionKeyPrefix + string(entity) + ":" + parentID
}

// All returns every table the cache migrates.
func All() []interface{} {
	return []interface{}{&Course{}, &Assignment{}, &Grade{}, &Discussion{}, &UserProfile{}, &SyncStateEntry{}}
}
