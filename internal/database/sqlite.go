package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectSQLite opens the on-device cache file. The pool is pinned to one connection so writers
// never observe SQLITE_BUSY from each other.
func ConnectSQLite(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn must not be empty")
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sqlite pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}
