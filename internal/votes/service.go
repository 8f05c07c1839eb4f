// Package votes is the per-user, per-challenge vote ledger. It guarantees at
// most one vote row per (user, challenge) pair and computes aggregate scores
// on demand; scores are never stored.
package votes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidValue indicates a vote value outside {+1, -1}. The callback codec
// already guarantees this for decoded actions; the ledger re-checks because
// it is a public API boundary.
var ErrInvalidValue = errors.New("votes: vote value must be +1 or -1")

// ErrNoVote indicates the (user, challenge) pair has no vote row.
var ErrNoVote = errors.New("votes: no vote recorded")

// ServiceConfig describes the ledger's dependencies.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service implements the vote ledger. Cast always sets the given value; the
// toggle-on-repeat rule lives in the dispatcher, which calls Retract when the
// existing vote equals the requested value.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs the vote ledger.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("votes: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// GetUserVote returns the user's current vote value for the challenge, or
// ErrNoVote when absent.
func (s *Service) GetUserVote(ctx context.Context, userID, challengeID int64) (int, error) {
	var vote Vote
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND challenge_id = ?", userID, challengeID).
		First(&vote).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNoVote
	}
	if err != nil {
		return 0, err
	}
	return vote.Value, nil
}

// Cast inserts or overwrites the vote with the given value. Concurrent casts
// for the same pair converge to a single row, last write wins.
func (s *Service) Cast(ctx context.Context, userID, challengeID int64, value int) error {
	if value != 1 && value != -1 {
		return ErrInvalidValue
	}
	vote := Vote{
		UserID:      userID,
		ChallengeID: challengeID,
		Value:       value,
		CreatedAt:   s.now().UTC(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "challenge_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&vote).
		Error
}

// Retract deletes the vote row if present; retracting an absent vote is a
// no-op, not an error.
func (s *Service) Retract(ctx context.Context, userID, challengeID int64) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND challenge_id = ?", userID, challengeID).
		Delete(&Vote{}).
		Error
}

// Score returns the sum of all vote values for the challenge, 0 when none
// exist.
func (s *Service) Score(ctx context.Context, challengeID int64) (int, error) {
	var score int
	err := s.db.WithContext(ctx).
		Raw(`SELECT COALESCE(SUM(value), 0) FROM votes WHERE challenge_id = ?`, challengeID).
		Scan(&score).
		Error
	if err != nil {
		return 0, err
	}
	return score, nil
}
