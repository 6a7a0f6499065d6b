package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/canvas-sync/internal/models"
)

var assignmentColumns = []string{"course_id", "name", "description", "due_at", "lock_at", "unlock_at", "points_possible", "submission_types", "html_url", "remote_updated_at", "last_synced_at"}

// AssignmentRepository persists cached assignments.
type AssignmentRepository interface {
	Upsert(ctx context.Context, assignment models.Assignment) (models.Assignment, error)
	UpsertMany(ctx context.Context, assignments []models.Assignment) ([]models.Assignment, error)
	FindByID(ctx context.Context, id string) (models.Assignment, bool, error)
	FindByParent(ctx context.Context, courseID string) ([]models.Assignment, error)
	List(ctx context.Context) ([]models.Assignment, error)
	Touch(ctx context.Context, ids ...string) error
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
}

type assignmentRepository struct {
	core *storeCore
}

func (r *assignmentRepository) Upsert(ctx context.Context, assignment models.Assignment) (models.Assignment, error) {
	stored, err := r.UpsertMany(ctx, []models.Assignment{assignment})
	if err != nil {
		return models.Assignment{}, err
	}
	return stored[0], nil
}

func (r *assignmentRepository) UpsertMany(ctx context.Context, assignments []models.Assignment) ([]models.Assignment, error) {
	if len(assignments) == 0 {
		return nil, nil
	}

	rows := dedupeByID(assignments)

	err := r.core.write(ctx, func(tx *gorm.DB) error {
		now := r.core.stamp()
		parents := make([]string, 0, len(rows))
		for i := range rows {
			if rows[i].ID == "" || rows[i].CourseID == "" {
				return fmt.Errorf("%w: assignment %q needs id and course id", ErrInvalidRecord, rows[i].ID)
			}
			rows[i].LastSyncedAt = &now
			parents = append(parents, rows[i].CourseID)
		}
		if err := ensureParentCourses(tx, parents...); err != nil {
			return err
		}
		return upsertRows(tx, rows, assignmentColumns)
	})
	if err != nil {
		return nil, storeErr("upsert", models.EntityAssignment, err)
	}
	return rows, nil
}

func (r *assignmentRepository) FindByID(ctx context.Context, id string) (models.Assignment, bool, error) {
	assignment, found, err := findByID[models.Assignment](ctx, r.core.db, id)
	return assignment, found, storeErr("find", models.EntityAssignment, err)
}

func (r *assignmentRepository) FindByParent(ctx context.Context, courseID string) ([]models.Assignment, error) {
	assignments, err := findWhere[models.Assignment](ctx, r.core.db, "due_at IS NULL, due_at ASC, name ASC", "course_id = ?", courseID)
	return assignments, storeErr("find_by_course", models.EntityAssignment, err)
}

func (r *assignmentRepository) List(ctx context.Context) ([]models.Assignment, error) {
	assignments, err := findWhere[models.Assignment](ctx, r.core.db, "due_at IS NULL, due_at ASC, name ASC", "")
	return assignments, storeErr("list", models.EntityAssignment, err)
}

func (r *assignmentRepository) Touch(ctx context.Context, ids ...string) error {
	return storeErr("touch", models.EntityAssignment, r.core.write(ctx, func(tx *gorm.DB) error {
		return touchRows(tx, &models.Assignment{}, ids, r.core.stamp())
	}))
}

func (r *assignmentRepository) DeleteAll(ctx context.Context) error {
	return storeErr("delete_all", models.EntityAssignment, r.core.write(ctx, func(tx *gorm.DB) error {
		return deleteEverything(tx, &models.Assignment{})
	}))
}

func (r *assignmentRepository) Count(ctx context.Context) (int64, error) {
	total, err := countRows(ctx, r.core.db, &models.Assignment{})
	return total, storeErr("count", models.EntityAssignment, err)
}
