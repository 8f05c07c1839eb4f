package database

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/challengeforge/backend/internal/saved"
	"github.com/challengeforge/backend/internal/votes"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// seedLegacyData builds the schema on a shared in-memory database and inserts
// the row shapes the tracked migrations exist to repair. The returned handle
// must stay open for the database to survive until OpenSQLite attaches.
func seedLegacyData(t *testing.T) (*gorm.DB, string) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&votes.Vote{}, &saved.Entry{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	now := time.Now().UTC()
	legacyRows := []interface{}{
		&votes.Vote{UserID: 1, ChallengeID: 1, Value: 5, CreatedAt: now},
		&votes.Vote{UserID: 2, ChallengeID: 1, Value: 1, CreatedAt: now},
		&saved.Entry{UserID: 1, ChallengeID: 1, Note: "   ", CreatedAt: now},
		&saved.Entry{UserID: 2, ChallengeID: 1, Note: "keep me", CreatedAt: now},
	}
	for _, row := range legacyRows {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("failed to seed row %+v: %v", row, err)
		}
	}

	return db, dsn
}

func TestOpenSQLiteRepairsLegacyRows(t *testing.T) {
	seedDB, dsn := seedLegacyData(t)
	defer func() {
		sqlDB, _ := seedDB.DB()
		sqlDB.Close()
	}()

	db, err := OpenSQLite(dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	var invalidVotes int64
	if err := db.Model(&votes.Vote{}).Where("value NOT IN (1, -1)").Count(&invalidVotes).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if invalidVotes != 0 {
		t.Fatalf("expected out-of-range votes purged, %d remain", invalidVotes)
	}

	var validVote votes.Vote
	if err := db.Where("user_id = ? AND challenge_id = ?", 2, 1).First(&validVote).Error; err != nil {
		t.Fatalf("valid vote lookup failed: %v", err)
	}
	if validVote.Value != 1 {
		t.Fatalf("valid vote value = %d, want 1", validVote.Value)
	}

	var blankNote saved.Entry
	if err := db.Where("user_id = ? AND challenge_id = ?", 1, 1).First(&blankNote).Error; err != nil {
		t.Fatalf("entry lookup failed: %v", err)
	}
	if blankNote.Note != "" {
		t.Fatalf("whitespace-only note not collapsed: %q", blankNote.Note)
	}

	var keptNote saved.Entry
	if err := db.Where("user_id = ? AND challenge_id = ?", 2, 1).First(&keptNote).Error; err != nil {
		t.Fatalf("entry lookup failed: %v", err)
	}
	if keptNote.Note != "keep me" {
		t.Fatalf("real note was altered: %q", keptNote.Note)
	}
}

func TestMigrationsAreRecordedAndAppliedOnce(t *testing.T) {
	seedDB, dsn := seedLegacyData(t)
	defer func() {
		sqlDB, _ := seedDB.DB()
		sqlDB.Close()
	}()

	db, err := OpenSQLite(dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	var records []migrationRecord
	if err := db.Order("name").Find(&records).Error; err != nil {
		t.Fatalf("migration record lookup failed: %v", err)
	}
	wantNames := []string{migrationPurgeInvalidVoteValues, migrationTrimWhitespaceNotes}
	if len(records) != len(wantNames) {
		t.Fatalf("expected %d migration records, got %d", len(wantNames), len(records))
	}
	for i, name := range wantNames {
		if records[i].Name != name {
			t.Fatalf("record %d = %q, want %q", i, records[i].Name, name)
		}
		if records[i].AppliedAtSeconds == 0 {
			t.Fatalf("record %q missing applied timestamp", name)
		}
	}

	// A second pass over the same database must see the records and skip.
	if err := applyMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("reapply failed: %v", err)
	}
	var count int64
	if err := db.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != int64(len(wantNames)) {
		t.Fatalf("reapply duplicated records: %d", count)
	}
}

func TestOpenSQLiteRejectsEmptyPath(t *testing.T) {
	if _, err := OpenSQLite("", zap.NewNop()); err == nil {
		t.Fatal("expected an error for an empty path")
	}
}
