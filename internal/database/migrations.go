package database

import (
	"errors"
	"time"

	"github.com/challengeforge/backend/internal/saved"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationPurgeInvalidVoteValues = "2026-06-02_purge_invalid_vote_values"
	migrationTrimWhitespaceNotes    = "2026-07-21_trim_whitespace_only_notes"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationPurgeInvalidVoteValues, apply: purgeInvalidVoteValues},
		{name: migrationTrimWhitespaceNotes, apply: trimWhitespaceOnlyNotes},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Early builds accepted arbitrary integer vote values; the ledger now only
// writes +1/-1, so anything else is stale data that skews scores.
func purgeInvalidVoteValues(db *gorm.DB) error {
	return db.Exec(`DELETE FROM votes WHERE value NOT IN (1, -1)`).Error
}

// Whitespace-only notes predate note validation; they render as blank lines
// in note listings, so collapse them to the no-note state.
func trimWhitespaceOnlyNotes(db *gorm.DB) error {
	return db.Model(&saved.Entry{}).
		Where("note <> '' AND TRIM(note) = ''").
		Update("note", "").Error
}
