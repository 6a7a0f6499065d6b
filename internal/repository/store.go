package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/canvas-sync/internal/models"
)

const upsertChunkSize = 200

// storeCore is shared by every repository of one LocalStore: a single write lock and a single clock.
type storeCore struct {
	db  *gorm.DB
	mu  sync.Mutex
	now func() time.Time
}

func (c *storeCore) stamp() time.Time {
	return c.now().UTC()
}

// write runs fn in a transaction while holding the store-wide write lock.
func (c *storeCore) write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.WithContext(ctx).Transaction(fn)
}

// StoreOption customises a LocalStore.
type StoreOption func(*storeCore)

// WithClock replaces the clock used to stamp last_synced_at.
func WithClock(now func() time.Time) StoreOption {
	return func(c *storeCore) {
		if now != nil {
			c.now = now
		}
	}
}

// LocalStore is the durable on-device cache. Every upsert stamps last_synced_at with the store
// clock; child upserts create a stub parent course when it is missing.
type LocalStore struct {
	Courses     CourseRepository
	Assignments AssignmentRepository
	Grades      GradeRepository
	Discussions DiscussionRepository
	Profiles    UserProfileRepository

	core *storeCore
}

// NewLocalStore builds the per-entity repositories on top of db.
func NewLocalStore(db *gorm.DB, opts ...StoreOption) *LocalStore {
	core := &storeCore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(core)
	}

	return &LocalStore{
		Courses:     &courseRepository{core: core},
		Assignments: &assignmentRepository{core: core},
		Grades:      &gradeRepository{core: core},
		Discussions: &discussionRepository{core: core},
		Profiles:    &userProfileRepository{core: core},
		core:        core,
	}
}

// DeleteAll removes every row of one collection.
func (s *LocalStore) DeleteAll(ctx context.Context, entity models.EntityType) error {
	model, err := modelFor(entity)
	if err != nil {
		return storeErr("delete_all", entity, err)
	}
	return storeErr("delete_all", entity, s.core.write(ctx, func(tx *gorm.DB) error {
		return deleteEverything(tx, model)
	}))
}

// Count returns the number of rows in one collection.
func (s *LocalStore) Count(ctx context.Context, entity models.EntityType) (int64, error) {
	model, err := modelFor(entity)
	if err != nil {
		return 0, storeErr("count", entity, err)
	}
	total, err := countRows(ctx, s.core.db, model)
	if err != nil {
		return 0, storeErr("count", entity, err)
	}
	return total, nil
}

// ClearCache wipes every cached collection in one transaction.
func (s *LocalStore) ClearCache(ctx context.Context) error {
	return storeErr("clear", "cache", s.core.write(ctx, func(tx *gorm.DB) error {
		entities := models.EntityTypes()
		for i := len(entities) - 1; i >= 0; i-- {
			model, err := modelFor(entities[i])
			if err != nil {
				return err
			}
			if err := deleteEverything(tx, model); err != nil {
				return err
			}
		}
		return nil
	}))
}

func modelFor(entity models.EntityType) (interface{}, error) {
	switch entity {
	case models.EntityCourse:
		return &models.Course{}, nil
	case models.EntityAssignment:
		return &models.Assignment{}, nil
	case models.EntityGrade:
		return &models.Grade{}, nil
	case models.EntityDiscussion:
		return &models.Discussion{}, nil
	case models.EntityUserProfile:
		return &models.UserProfile{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
}

func deleteEverything(tx *gorm.DB, model interface{}) error {
	return tx.Where("1 = 1").Delete(model).Error
}

// dedupeByID copies rows keeping one row per id. The last occurrence wins and takes the position of
// the first, since one INSERT ... ON CONFLICT statement may not touch the same row twice.
func dedupeByID[T models.SyncRecord](rows []T) []T {
	positions := make(map[string]int, len(rows))
	unique := make([]T, 0, len(rows))
	for _, row := range rows {
		if i, ok := positions[row.RecordID()]; ok {
			unique[i] = row
			continue
		}
		positions[row.RecordID()] = len(unique)
		unique = append(unique, row)
	}
	return unique
}

func upsertRows[T any](tx *gorm.DB, rows []T, columns []string) error {
	for start := 0; start < len(rows); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).Create(&chunk).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// ensureParentCourses inserts a stub course for every id that has no row yet.
func ensureParentCourses(tx *gorm.DB, courseIDs ...string) error {
	seen := make(map[string]struct{}, len(courseIDs))
	stubs := make([]models.Course, 0, len(courseIDs))
	for _, id := range courseIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		stubs = append(stubs, models.Course{ID: id, IsStub: true})
	}
	if len(stubs) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&stubs).Error
}

func findByID[T any](ctx context.Context, db *gorm.DB, id string) (T, bool, error) {
	var record T
	err := db.WithContext(ctx).Where("id = ?", id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, false, err
	}
	return record, true, nil
}

func findWhere[T any](ctx context.Context, db *gorm.DB, order string, query string, args ...interface{}) ([]T, error) {
	tx := db.WithContext(ctx)
	if query != "" {
		tx = tx.Where(query, args...)
	}
	var records []T
	if err := tx.Order(order).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func touchRows(tx *gorm.DB, model interface{}, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.Model(model).Where("id IN ?", ids).Update("last_synced_at", at).Error
}

func countRows(ctx context.Context, db *gorm.DB, model interface{}) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(model).Count(&total).Error
	return total, err
}
