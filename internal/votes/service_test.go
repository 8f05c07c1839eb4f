package votes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
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
	if err := db.AutoMigrate(&Vote{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func countVoteRows(t *testing.T, db *gorm.DB, userID, challengeID int64) int64 {
	t.Helper()
	var count int64
	err := db.Model(&Vote{}).
		Where("user_id = ? AND challenge_id = ?", userID, challengeID).
		Count(&count).
		Error
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return count
}

func TestCastKeepsAtMostOneRowPerPair(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	sequence := []int{1, 1, -1, 1, -1, -1}
	for _, value := range sequence {
		if err := service.Cast(ctx, 1, 7, value); err != nil {
			t.Fatalf("cast %d failed: %v", value, err)
		}
	}
	if rows := countVoteRows(t, db, 1, 7); rows != 1 {
		t.Fatalf("expected exactly one vote row, got %d", rows)
	}

	value, err := service.GetUserVote(ctx, 1, 7)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if value != -1 {
		t.Fatalf("expected last cast value -1, got %d", value)
	}
}

func TestCastOverwritesValueOnChange(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	if err := service.Cast(ctx, 1, 7, 1); err != nil {
		t.Fatalf("cast failed: %v", err)
	}
	if err := service.Cast(ctx, 1, 7, -1); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	value, err := service.GetUserVote(ctx, 1, 7)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if value != -1 {
		t.Fatalf("expected -1 after overwrite, got %d", value)
	}

	score, err := service.Score(ctx, 7)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if score != -1 {
		t.Fatalf("expected score -1 after overwrite, got %d", score)
	}
}

func TestRetractIsNoOpWhenAbsent(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	if err := service.Retract(ctx, 1, 7); err != nil {
		t.Fatalf("retract of absent vote should succeed, got %v", err)
	}
	if _, err := service.GetUserVote(ctx, 1, 7); !errors.Is(err, ErrNoVote) {
		t.Fatalf("expected ErrNoVote, got %v", err)
	}
}

func TestScoreSumsAllCurrentVotes(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	if err := service.Cast(ctx, 1, 7, 1); err != nil {
		t.Fatalf("cast failed: %v", err)
	}
	if err := service.Cast(ctx, 2, 7, 1); err != nil {
		t.Fatalf("cast failed: %v", err)
	}
	if err := service.Cast(ctx, 3, 7, -1); err != nil {
		t.Fatalf("cast failed: %v", err)
	}
	if err := service.Cast(ctx, 4, 8, 1); err != nil {
		t.Fatalf("cast on other challenge failed: %v", err)
	}

	score, err := service.Score(ctx, 7)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if score != 1 {
		t.Fatalf("expected score 1, got %d", score)
	}

	if err := service.Retract(ctx, 3, 7); err != nil {
		t.Fatalf("retract failed: %v", err)
	}
	score, err = service.Score(ctx, 7)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if score != 2 {
		t.Fatalf("expected score 2 after retract, got %d", score)
	}
}

func TestScoreIsZeroWithoutVotes(t *testing.T) {
	service, _ := newTestService(t)

	score, err := service.Score(context.Background(), 99)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if score != 0 {
		t.Fatalf("expected score 0, got %d", score)
	}
}

func TestCastRejectsOutOfRangeValues(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	for _, value := range []int{0, 2, -2, 100} {
		if err := service.Cast(ctx, 1, 7, value); !errors.Is(err, ErrInvalidValue) {
			t.Fatalf("cast(%d) should fail with ErrInvalidValue, got %v", value, err)
		}
	}
}
