package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/canvas-sync/internal/models"
)

// SyncStateStore keeps the process-wide sync bookkeeping that must survive restarts: the last full
// pass and the last successful fetch of every collection (see models.CollectionKey).
type SyncStateStore interface {
	LastFullSyncAt(ctx context.Context) (*time.Time, error)
	SetLastFullSyncAt(ctx context.Context, at time.Time) error
	CollectionSyncedAt(ctx context.Context, key string) (*time.Time, error)
	MarkCollectionSynced(ctx context.Context, key string, at time.Time) error
	// Reset forgets every stamp.
	Reset(ctx context.Context) error
}

type syncStateRepository struct {
	db *gorm.DB
}

// NewSyncStateRepository stores sync state in the cache database.
func NewSyncStateRepository(db *gorm.DB) SyncStateStore {
	return &syncStateRepository{db: db}
}

func (r *syncStateRepository) LastFullSyncAt(ctx context.Context) (*time.Time, error) {
	return r.get(ctx, models.SyncStateKeyLastFullSync)
}

func (r *syncStateRepository) SetLastFullSyncAt(ctx context.Context, at time.Time) error {
	return r.set(ctx, models.SyncStateKeyLastFullSync, at)
}

func (r *syncStateRepository) CollectionSyncedAt(ctx context.Context, key string) (*time.Time, error) {
	return r.get(ctx, key)
}

func (r *syncStateRepository) MarkCollectionSynced(ctx context.Context, key string, at time.Time) error {
	return r.set(ctx, key, at)
}

func (r *syncStateRepository) Reset(ctx context.Context) error {
	err := r.db.WithContext(ctx).Where("1 = 1").Delete(&models.SyncStateEntry{}).Error
	return storeErr("reset", "sync_state", err)
}

func (r *syncStateRepository) get(ctx context.Context, key string) (*time.Time, error) {
	var entry models.SyncStateEntry
	err := r.db.WithContext(ctx).Where("state_key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get", "sync_state", err)
	}
	return parseStateTime(entry.Value)
}

func (r *syncStateRepository) set(ctx context.Context, key string, at time.Time) error {
	entry := models.SyncStateEntry{
		Key:       key,
		Value:     at.UTC().Format(time.RFC3339Nano),
		UpdatedAt: time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "state_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	return storeErr("set", "sync_state", err)
}

type redisSyncStateStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSyncStateStore keeps sync state in Redis so several API nodes share one schedule.
func NewRedisSyncStateStore(client *redis.Client, prefix string) SyncStateStore {
	if prefix == "" {
		prefix = "canvas"
	}
	return &redisSyncStateStore{client: client, prefix: prefix + ":sync:"}
}

func (s *redisSyncStateStore) LastFullSyncAt(ctx context.Context) (*time.Time, error) {
	return s.get(ctx, models.SyncStateKeyLastFullSync)
}

func (s *redisSyncStateStore) SetLastFullSyncAt(ctx context.Context, at time.Time) error {
	return s.set(ctx, models.SyncStateKeyLastFullSync, at)
}

func (s *redisSyncStateStore) CollectionSyncedAt(ctx context.Context, key string) (*time.Time, error) {
	return s.get(ctx, key)
}

func (s *redisSyncStateStore) MarkCollectionSynced(ctx context.Context, key string, at time.Time) error {
	return s.set(ctx, key, at)
}

func (s *redisSyncStateStore) Reset(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return storeErr("reset", "sync_state", err)
		}
	}
	return storeErr("reset", "sync_state", iter.Err())
}

func (s *redisSyncStateStore) get(ctx context.Context, key string) (*time.Time, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get", "sync_state", err)
	}
	return parseStateTime(value)
}

func (s *redisSyncStateStore) set(ctx context.Context, key string, at time.Time) error {
	err := s.client.Set(ctx, s.prefix+key, at.UTC().Format(time.RFC3339Nano), 0).Err()
	return storeErr("set", "sync_state", err)
}

func parseStateTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, storeErr("parse", "sync_state", fmt.Errorf("invalid timestamp %q: %w", value, err))
	}
	return &parsed, nil
}
