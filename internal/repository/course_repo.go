package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/canvas-sync/internal/models"
)

var courseColumns = []string{"name", "course_code", "workflow_state", "term_name", "start_at", "end_at", "enrollment_role", "is_stub", "last_synced_at"}

// CourseRepository persists cached courses.
type CourseRepository interface {
	Upsert(ctx context.Context, course models.Course) (models.Course, error)
	UpsertMany(ctx context.Context, courses []models.Course) ([]models.Course, error)
	FindByID(ctx context.Context, id string) (models.Course, bool, error)
	List(ctx context.Context) ([]models.Course, error)
	Touch(ctx context.Context, ids ...string) error
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
}

type courseRepository struct {
	core *storeCore
}

func (r *courseRepository) Upsert(ctx context.Context, course models.Course) (models.Course, error) {
	stored, err := r.UpsertMany(ctx, []models.Course{course})
	if err != nil {
		return models.Course{}, err
	}
	return stored[0], nil
}

// UpsertMany writes every course and clears the stub flag of rows created on their behalf.
func (r *courseRepository) UpsertMany(ctx context.Context, courses []models.Course) ([]models.Course, error) {
	if len(courses) == 0 {
		return nil, nil
	}

	rows := dedupeByID(courses)

	err := r.core.write(ctx, func(tx *gorm.DB) error {
		now := r.core.stamp()
		for i := range rows {
			if rows[i].ID == "" {
				return fmt.Errorf("%w: course without id", ErrInvalidRecord)
			}
			rows[i].IsStub = false
			rows[i].LastSyncedAt = &now
		}
		return upsertRows(tx, rows, courseColumns)
	})
	if err != nil {
		return nil, storeErr("upsert", models.EntityCourse, err)
	}
	return rows, nil
}

func (r *courseRepository) FindByID(ctx context.Context, id string) (models.Course, bool, error) {
	course, found, err := findByID[models.Course](ctx, r.core.db, id)
	return course, found, storeErr("find", models.EntityCourse, err)
}

func (r *courseRepository) List(ctx context.Context) ([]models.Course, error) {
	courses, err := findWhere[models.Course](ctx, r.core.db, "name ASC, id ASC", "")
	return courses, storeErr("list", models.EntityCourse, err)
}

func (r *courseRepository) Touch(ctx context.Context, ids ...string) error {
	return storeErr("touch", models.EntityCourse, r.core.write(ctx, func(tx *gorm.DB) error {
		return touchRows(tx, &models.Course{}, ids, r.core.stamp())
	}))
}

func (r *courseRepository) DeleteAll(ctx context.Context) error {
	return storeErr("delete_all", models.EntityCourse, r.core.write(ctx, func(tx *gorm.DB) error {
		return deleteEverything(tx, &models.Course{})
	}))
}

func (r *courseRepository) Count(ctx context.Context) (int64, error) {
	total, err := countRows(ctx, r.core.db, &models.Course{})
	return total, storeErr("count", models.EntityCourse, err)
}
