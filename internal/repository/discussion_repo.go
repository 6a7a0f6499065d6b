package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/canvas-sync/internal/models"
)

var discussionColumns = []string{"course_id", "title", "message", "posted_at", "last_reply_at", "reply_count", "author_name", "last_synced_at"}

// DiscussionRepository persists cached discussion topics.
type DiscussionRepository interface {
	Upsert(ctx context.Context, discussion models.Discussion) (models.Discussion, error)
	UpsertMany(ctx context.Context, discussions []models.Discussion) ([]models.Discussion, error)
	FindByID(ctx context.Context, id string) (models.Discussion, bool, error)
	FindByParent(ctx context.Context, courseID string) ([]models.Discussion, error)
	List(ctx context.Context) ([]models.Discussion, error)
	Touch(ctx context.Context, ids ...string) error
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
}

type discussionRepository struct {
	core *storeCore
}

func (r *discussionRepository) Upsert(ctx context.Context, discussion models.Discussion) (models.Discussion, error) {
	stored, err := r.UpsertMany(ctx, []models.Discussion{discussion})
	if err != nil {
		return models.Discussion{}, err
	}
	return stored[0], nil
}

func (r *discussionRepository) UpsertMany(ctx context.Context, discussions []models.Discussion) ([]models.Discussion, error) {
	if len(discussions) == 0 {
		return nil, nil
	}

	rows := dedupeByID(discussions)

	err := r.core.write(ctx, func(tx *gorm.DB) error {
		now := r.core.stamp()
		parents := make([]string, 0, len(rows))
		for i := range rows {
			if rows[i].ID == "" || rows[i].CourseID == "" {
				return fmt.Errorf("%w: discussion %q needs id and course id", ErrInvalidRecord, rows[i].ID)
			}
			rows[i].LastSyncedAt = &now
			parents = append(parents, rows[i].CourseID)
		}
		if err := ensureParentCourses(tx, parents...); err != nil {
			return err
		}
		return upsertRows(tx, rows, discussionColumns)
	})
	if err != nil {
		return nil, storeErr("upsert", models.EntityDiscussion, err)
	}
	return rows, nil
}

func (r *discussionRepository) FindByID(ctx context.Context, id string) (models.Discussion, bool, error) {
	discussion, found, err := findByID[models.Discussion](ctx, r.core.db, id)
	return discussion, found, storeErr("find", models.EntityDiscussion, err)
}

func (r *discussionRepository) FindByParent(ctx context.Context, courseID string) ([]models.Discussion, error) {
	discussions, err := findWhere[models.Discussion](ctx, r.core.db, "posted_at DESC, id ASC", "course_id = ?", courseID)
	return discussions, storeErr("find_by_course", models.EntityDiscussion, err)
}

func (r *discussionRepository) List(ctx context.Context) ([]models.Discussion, error) {
	discussions, err := findWhere[models.Discussion](ctx, r.core.db, "course_id ASC, posted_at DESC", "")
	return discussions, storeErr("list", models.EntityDiscussion, err)
}

func (r *discussionRepository) Touch(ctx context.Context, ids ...string) error {
	return storeErr("touch", models.EntityDiscussion, r.core.write(ctx, func(tx *gorm.DB) error {
		return touchRows(tx, &models.Discussion{}, ids, r.core.stamp())
	}))
}

func (r *discussionRepository) DeleteAll(ctx context.Context) error {
	return storeErr("delete_all", models.EntityDiscussion, r.core.write(ctx, func(tx *gorm.DB) error {
		return deleteEverything(tx, &models.Discussion{})
	}))
}

func (r *discussionRepository) Count(ctx context.Context) (int64, error) {
	total, err := countRows(ctx, r.core.db, &models.Discussion{})
	return total, storeErr("count", models.EntityDiscussion, err)
}
