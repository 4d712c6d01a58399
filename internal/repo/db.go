// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file bootstraps the SQLite database (pure Go driver,
// no cgo) and runs schema migrations.
package repo

import (
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/saludmaps/go-pharma-backend/internal/domain"
)

// OpenSQLite opens (or creates) the SQLite database at path and applies the
// PRAGMAs the app relies on: WAL for concurrent readers under the SSE
// stream, a busy timeout so the import and search writers don't fail fast on
// lock contention.
func OpenSQLite(path string) (*gorm.DB, error) {
	// A missing parent directory surfaces from the driver as the cryptic
	// "out of memory (14)"; fail with the real cause instead.
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Query tracing; a no-op until a tracer provider is installed.
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// AutoMigrate creates or updates the schema for all persisted models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Pharmacy{},
		&domain.Order{},
	)
}
