// Package database opens the backing SQLite store and keeps its schema
// current.
package database

import (
	"fmt"

	"github.com/challengeforge/backend/internal/challenges"
	"github.com/challengeforge/backend/internal/saved"
	"github.com/challengeforge/backend/internal/users"
	"github.com/challengeforge/backend/internal/votes"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite serializes writes anyway; a single connection avoids busy errors
	// under concurrent upserts.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&users.User{},
		&challenges.Challenge{},
		&votes.Vote{},
		&saved.Entry{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
