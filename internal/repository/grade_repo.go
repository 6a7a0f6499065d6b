package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/canvas-sync/internal/models"
)

var gradeColumns = []string{"assignment_id", "course_id", "assignment_name", "score", "letter_grade", "points_possible", "workflow_state", "submitted_at", "graded_at", "last_synced_at"}

// GradeRepository persists the current user's grades.
type GradeRepository interface {
	Upsert(ctx context.Context, grade models.Grade) (models.Grade, error)
	UpsertMany(ctx context.Context, grades []models.Grade) ([]models.Grade, error)
	FindByID(ctx context.Context, id string) (models.Grade, bool, error)
	FindByParent(ctx context.Context, courseID string) ([]models.Grade, error)
	FindByAssignment(ctx context.Context, assignmentID string) (models.Grade, bool, error)
	List(ctx context.Context) ([]models.Grade, error)
	Touch(ctx context.Context, ids ...string) error
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
}

type gradeRepository struct {
	core *storeCore
}

func (r *gradeRepository) Upsert(ctx context.Context, grade models.Grade) (models.Grade, error) {
	stored, err := r.UpsertMany(ctx, []models.Grade{grade})
	if err != nil {
		return models.Grade{}, err
	}
	return stored[0], nil
}

func (r *gradeRepository) UpsertMany(ctx context.Context, grades []models.Grade) ([]models.Grade, error) {
	if len(grades) == 0 {
		return nil, nil
	}

	rows := dedupeByID(grades)

	err := r.core.write(ctx, func(tx *gorm.DB) error {
		now := r.core.stamp()
		parents := make([]string, 0, len(rows))
		for i := range rows {
			if rows[i].ID == "" || rows[i].CourseID == "" || rows[i].AssignmentID == "" {
				return fmt.Errorf("%w: grade %q needs id, assignment id and course id", ErrInvalidRecord, rows[i].ID)
			}
			rows[i].LastSyncedAt = &now
			parents = append(parents, rows[i].CourseID)
		}
		if err := ensureParentCourses(tx, parents...); err != nil {
			return err
		}
		return upsertRows(tx, rows, gradeColumns)
	})
	if err != nil {
		return nil, storeErr("upsert", models.EntityGrade, err)
	}
	return rows, nil
}

func (r *gradeRepository) FindByID(ctx context.Context, id string) (models.Grade, bool, error) {
	grade, found, err := findByID[models.Grade](ctx, r.core.db, id)
	return grade, found, storeErr("find", models.EntityGrade, err)
}

func (r *gradeRepository) FindByParent(ctx context.Context, courseID string) ([]models.Grade, error) {
	grades, err := findWhere[models.Grade](ctx, r.core.db, "assignment_name ASC, id ASC", "course_id = ?", courseID)
	return grades, storeErr("find_by_course", models.EntityGrade, err)
}

func (r *gradeRepository) FindByAssignment(ctx context.Context, assignmentID string) (models.Grade, bool, error) {
	grades, err := findWhere[models.Grade](ctx, r.core.db, "id ASC", "assignment_id = ?", assignmentID)
	if err != nil {
		return models.Grade{}, false, storeErr("find_by_assignment", models.EntityGrade, err)
	}
	if len(grades) == 0 {
		return models.Grade{}, false, nil
	}
	return grades[0], true, nil
}

func (r *gradeRepository) List(ctx context.Context) ([]models.Grade, error) {
	grades, err := findWhere[models.Grade](ctx, r.core.db, "course_id ASC, assignment_name ASC", "")
	return grades, storeErr("list", models.EntityGrade, err)
}

func (r *gradeRepository) Touch(ctx context.Context, ids ...string) error {
	return storeErr("touch", models.EntityGrade, r.core.write(ctx, func(tx *gorm.DB) error {
		return touchRows(tx, &models.Grade{}, ids, r.core.stamp())
	}))
}

func (r *gradeRepository) DeleteAll(ctx context.Context) error {
	return storeErr("delete_all", models.EntityGrade, r.core.write(ctx, func(tx *gorm.DB) error {
		return deleteEverything(tx, &models.Grade{})
	}))
}

func (r *gradeRepository) Count(ctx context.Context) (int64, error) {
	total, err := countRows(ctx, r.core.db, &models.Grade{})
	return total, storeErr("count", models.EntityGrade, err)
}
