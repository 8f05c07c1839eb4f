// Package saved is the save/annotation store: idempotent saves, note
// attachment, and the queries backing the saved-items list.
package saved

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultNoteMaxLength bounds note text in characters.
const DefaultNoteMaxLength = 500

var (
	// ErrEmptyNote indicates note text that is empty or whitespace only.
	ErrEmptyNote = errors.New("saved: note text is empty")
	// ErrNoteTooLong indicates note text exceeding the configured length.
	ErrNoteTooLong = errors.New("saved: note text too long")
	// ErrNoNote indicates the entry has no note or does not exist.
	ErrNoNote = errors.New("saved: no note stored")
)

// NoteListing is one row of the user's annotated-entries list.
type NoteListing struct {
	ChallengeID int64
	Title       string
	Note        string
}

// PageRow is one row of the user's saved-items list, newest save first.
type PageRow struct {
	ChallengeID int64
	Title       string
	Score       int
}

// ServiceConfig describes the store's dependencies.
type ServiceConfig struct {
	Database      *gorm.DB
	Clock         func() time.Time
	NoteMaxLength int
}

// Service implements the save/annotation store.
type Service struct {
	db            *gorm.DB
	now           func() time.Time
	noteMaxLength int
}

// NewService constructs the save store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("saved: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	noteMaxLength := cfg.NoteMaxLength
	if noteMaxLength <= 0 {
		noteMaxLength = DefaultNoteMaxLength
	}
	return &Service{db: cfg.Database, now: clock, noteMaxLength: noteMaxLength}, nil
}

// NoteMaxLength reports the configured note length ceiling.
func (s *Service) NoteMaxLength() int {
	return s.noteMaxLength
}

// ValidateNote checks note text against the store's constraints without
// touching storage. The dispatcher uses it to report the specific failure
// while keeping the pending request alive.
func (s *Service) ValidateNote(note string) error {
	if strings.TrimSpace(note) == "" {
		return ErrEmptyNote
	}
	if utf8.RuneCountInString(note) > s.noteMaxLength {
		return fmt.Errorf("%w: limit %d characters", ErrNoteTooLong, s.noteMaxLength)
	}
	return nil
}

// Save records the entry if absent. Saving an already-saved challenge is a
// no-op and never clears an existing note.
func (s *Service) Save(ctx context.Context, userID, challengeID int64) error {
	entry := Entry{
		UserID:      userID,
		ChallengeID: challengeID,
		CreatedAt:   s.now().UTC(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "challenge_id"}},
			DoNothing: true,
		}).
		Create(&entry).
		Error
}

// SaveWithNote records the entry with the note, overwriting any existing note
// for the pair.
func (s *Service) SaveWithNote(ctx context.Context, userID, challengeID int64, note string) error {
	if err := s.ValidateNote(note); err != nil {
		return err
	}
	entry := Entry{
		UserID:      userID,
		ChallengeID: challengeID,
		Note:        note,
		CreatedAt:   s.now().UTC(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "challenge_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"note"}),
		}).
		Create(&entry).
		Error
}

// GetNote returns the stored note for the pair, or ErrNoNote when the entry
// is absent or carries no note.
func (s *Service) GetNote(ctx context.Context, userID, challengeID int64) (string, error) {
	var entry Entry
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND challenge_id = ?", userID, challengeID).
		First(&entry).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNoNote
	}
	if err != nil {
		return "", err
	}
	if entry.Note == "" {
		return "", ErrNoNote
	}
	return entry.Note, nil
}

// ListNotes returns the user's annotated entries, most recent first. Entries
// without a note are skipped.
func (s *Service) ListNotes(ctx context.Context, userID int64, limit int) ([]NoteListing, error) {
	var listings []NoteListing
	err := s.db.WithContext(ctx).Raw(`
		SELECT s.challenge_id AS challenge_id, c.title AS title, s.note AS note
		FROM saved s
		JOIN challenges c ON c.id = s.challenge_id
		WHERE s.user_id = ? AND s.note <> ''
		ORDER BY s.created_at DESC
		LIMIT ?`, userID, limit).
		Scan(&listings).
		Error
	if err != nil {
		return nil, err
	}
	return listings, nil
}

// Count returns the number of saved entries for the user.
func (s *Service) Count(ctx context.Context, userID int64) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Entry{}).
		Where("user_id = ?", userID).
		Count(&count).
		Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// Page returns one window of the user's saved list with current scores,
// ordered by save recency descending.
func (s *Service) Page(ctx context.Context, userID int64, limit, offset int) ([]PageRow, error) {
	var rows []PageRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT c.id AS challenge_id, c.title AS title, COALESCE(SUM(v.value), 0) AS score
		FROM saved s
		JOIN challenges c ON c.id = s.challenge_id
		LEFT JOIN votes v ON v.challenge_id = c.id
		WHERE s.user_id = ?
		GROUP BY c.id
		ORDER BY s.created_at DESC
		LIMIT ? OFFSET ?`, userID, limit, offset).
		Scan(&rows).
		Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
