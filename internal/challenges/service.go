// Package challenges stores the immutable challenge catalogue and answers the
// ranked and random lookups the bot renders from.
package challenges

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ErrChallengeNotFound indicates the referenced challenge id no longer exists.
var ErrChallengeNotFound = errors.New("challenges: challenge not found")

// ErrEmptyContent indicates a create attempt with a blank title or body.
var ErrEmptyContent = errors.New("challenges: title and body are required")

// TopEntry is one row of the global top-by-score list.
type TopEntry struct {
	ChallengeID int64
	Title       string
	Score       int
}

// ServiceConfig describes the dependencies of the challenge catalogue.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service provides dedup-aware creation and the catalogue queries.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs the challenge catalogue service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("challenges: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// DedupLookup returns the existing challenge with the exact (title, body)
// pair, or ErrChallengeNotFound when none exists. The generator must call
// this before Create.
func (s *Service) DedupLookup(ctx context.Context, title, body string) (Challenge, error) {
	var challenge Challenge
	err := s.db.WithContext(ctx).
		Where("title = ? AND body = ?", title, body).
		First(&challenge).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Challenge{}, ErrChallengeNotFound
	}
	if err != nil {
		return Challenge{}, err
	}
	return challenge, nil
}

// Create inserts a new challenge and returns it with its assigned id.
func (s *Service) Create(ctx context.Context, title, body, tags string) (Challenge, error) {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(body) == "" {
		return Challenge{}, ErrEmptyContent
	}
	challenge := Challenge{
		Title:     title,
		Body:      body,
		Tags:      tags,
		CreatedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&challenge).Error; err != nil {
		return Challenge{}, err
	}
	return challenge, nil
}

// GetByID fetches one challenge or ErrChallengeNotFound.
func (s *Service) GetByID(ctx context.Context, challengeID int64) (Challenge, error) {
	var challenge Challenge
	err := s.db.WithContext(ctx).
		Where("id = ?", challengeID).
		First(&challenge).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Challenge{}, ErrChallengeNotFound
	}
	if err != nil {
		return Challenge{}, err
	}
	return challenge, nil
}

// Random returns a uniformly random challenge, or ErrChallengeNotFound when
// the catalogue is empty.
func (s *Service) Random(ctx context.Context) (Challenge, error) {
	var challenge Challenge
	err := s.db.WithContext(ctx).
		Order("RANDOM()").
		First(&challenge).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Challenge{}, ErrChallengeNotFound
	}
	if err != nil {
		return Challenge{}, err
	}
	return challenge, nil
}

// CountAll returns the catalogue size, used to window the top list.
func (s *Service) CountAll(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Challenge{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// TopByScore returns the global ranking: score descending, newer challenge
// wins ties (id descending). Challenges with no votes rank with score 0.
func (s *Service) TopByScore(ctx context.Context, limit, offset int) ([]TopEntry, error) {
	var entries []TopEntry
	err := s.db.WithContext(ctx).Raw(`
		SELECT c.id AS challenge_id, c.title AS title, COALESCE(SUM(v.value), 0) AS score
		FROM challenges c
		LEFT JOIN votes v ON v.challenge_id = c.id
		GROUP BY c.id
		ORDER BY score DESC, c.id DESC
		LIMIT ? OFFSET ?`, limit, offset).
		Scan(&entries).
		Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
