package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/canvas-sync/internal/models"
)

// Open picks the postgres driver for postgres DSNs and falls back to sqlite otherwise.
func Open(dsn string, postgres bool) (*gorm.DB, error) {
	if postgres {
		return ConnectPostgres(dsn)
	}
	return ConnectSQLite(dsn)
}

// Migrate creates or updates every cache table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate cache schema: %w", err)
	}
	return nil
}
