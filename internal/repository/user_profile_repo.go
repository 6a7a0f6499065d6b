package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/canvas-sync/internal/models"
)

var userProfileColumns = []string{"display_name", "email", "avatar_url", "last_synced_at"}

// UserProfileRepository persists the single authenticated user profile.
type UserProfileRepository interface {
	// Upsert stores profile and drops any profile of a different user.
	Upsert(ctx context.Context, profile models.UserProfile) (models.UserProfile, error)
	FindByID(ctx context.Context, id string) (models.UserProfile, bool, error)
	Current(ctx context.Context) (models.UserProfile, bool, error)
	Touch(ctx context.Context, ids ...string) error
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
}

type userProfileRepository struct {
	core *storeCore
}

func (r *userProfileRepository) Upsert(ctx context.Context, profile models.UserProfile) (models.UserProfile, error) {
	if profile.ID == "" {
		return models.UserProfile{}, storeErr("upsert", models.EntityUserProfile, fmt.Errorf("%w: profile without id", ErrInvalidRecord))
	}

	err := r.core.write(ctx, func(tx *gorm.DB) error {
		now := r.core.stamp()
		profile.LastSyncedAt = &now
		if err := tx.Where("id <> ?", profile.ID).Delete(&models.UserProfile{}).Error; err != nil {
			return err
		}
		return upsertRows(tx, []models.UserProfile{profile}, userProfileColumns)
	})
	if err != nil {
		return models.UserProfile{}, storeErr("upsert", models.EntityUserProfile, err)
	}
	return profile, nil
}

func (r *userProfileRepository) FindByID(ctx context.Context, id string) (models.UserProfile, bool, error) {
	profile, found, err := findByID[models.UserProfile](ctx, r.core.db, id)
	return profile, found, storeErr("find", models.EntityUserProfile, err)
}

func (r *userProfileRepository) Current(ctx context.Context) (models.UserProfile, bool, error) {
	var profile models.UserProfile
	err := r.core.db.WithContext(ctx).Order("last_synced_at DESC").Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.UserProfile{}, false, nil
	}
	if err != nil {
		return models.UserProfile{}, false, storeErr("current", models.EntityUserProfile, err)
	}
	return profile, true, nil
}

func (r *userProfileRepository) Touch(ctx context.Context, ids ...string) error {
	return storeErr("touch", models.EntityUserProfile, r.core.write(ctx, func(tx *gorm.DB) error {
		return touchRows(tx, &models.UserProfile{}, ids, r.core.stamp())
	}))
}

func (r *userProfileRepository) DeleteAll(ctx context.Context) error {
	return storeErr("delete_all", models.EntityUserProfile, r.core.write(ctx, func(tx *gorm.DB) error {
		return deleteEverything(tx, &models.UserProfile{})
	}))
}

func (r *userProfileRepository) Count(ctx context.Context) (int64, error) {
	total, err := countRows(ctx, r.core.db, &models.UserProfile{})
	return total, storeErr("count", models.EntityUserProfile, err)
}
