// Package dispatcher routes decoded callback actions and chat messages to
// the vote ledger, save store, and challenge catalogue, and drives the
// per-user note conversation state.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/challengeforge/backend/internal/callback"
	"github.com/challengeforge/backend/internal/challenges"
	"github.com/challengeforge/backend/internal/pagination"
	"github.com/challengeforge/backend/internal/render"
	"github.com/challengeforge/backend/internal/saved"
	"github.com/challengeforge/backend/internal/users"
	"github.com/challengeforge/backend/internal/votes"
	"go.uber.org/zap"
)

// User-visible acknowledgments. Short and non-technical; internal errors are
// never surfaced here.
const (
	noticeInvalidAction = "That action is no longer valid."
	noticeNotFound      = "Item not found."
	noticeSaved         = "Saved 💾"
	noticeNothingCancel = "Nothing to cancel."
	noticeCancelled     = "Cancelled."
	noticeNoNote        = "No note stored for this challenge."

	promptNoteDecision = "Saved! Add a note to it?"
	promptNoteText     = "Send the note text in one message. /cancel to skip."
	replyNoteSaved     = "Note saved 📝"
	replyNoteEmpty     = "The note is empty. Send some text, or /cancel."

	greeting = "Hi! 👋\nYou are registered with ChallengeForge.\nUse /challenge to get your first task."

	helpText = "Available commands:\n" +
		"/start — begin\n" +
		"/help — this help\n" +
		"/challenge — get a challenge\n" +
		"/my — your saved list\n" +
		"/top — top challenges\n" +
		"/notes — your notes\n" +
		"/cancel — cancel the current prompt"

	fallbackHint = "I did not understand that. Try /help."
)

// Identity carries the external identity fields of the interacting user.
type Identity struct {
	ExternalID int64
	Username   string
	FirstName  string
}

// ServiceConfig describes the dispatcher's collaborators.
type ServiceConfig struct {
	Codec      *callback.Codec
	Users      *users.Service
	Votes      *votes.Service
	Saved      *saved.Service
	Catalogue  *challenges.Service
	Generator  challenges.Generator
	PageSize   int
	PendingTTL time.Duration
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service is the action dispatcher. One instance serves all users; the only
// mutable state it owns is the pending-note store.
type Service struct {
	codec     *callback.Codec
	users     *users.Service
	votes     *votes.Service
	saved     *saved.Service
	catalogue *challenges.Service
	generator challenges.Generator
	pageSize  int
	pending   *pendingStore
	logger    *zap.Logger
}

// NewService constructs the dispatcher.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Codec == nil {
		return nil, fmt.Errorf("dispatcher: callback codec required")
	}
	if cfg.Users == nil || cfg.Votes == nil || cfg.Saved == nil || cfg.Catalogue == nil {
		return nil, fmt.Errorf("dispatcher: users, votes, saved, and catalogue services required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("dispatcher: challenge generator required")
	}
	pageSize := cfg.PageSize
	if pageSize < 1 {
		pageSize = pagination.DefaultPageSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		codec:     cfg.Codec,
		users:     cfg.Users,
		votes:     cfg.Votes,
		saved:     cfg.Saved,
		catalogue: cfg.Catalogue,
		generator: cfg.Generator,
		pageSize:  pageSize,
		pending:   newPendingStore(cfg.PendingTTL, cfg.Clock),
		logger:    logger,
	}, nil
}

// HandleCallback processes one button press. Malformed tokens are answered
// with a generic notice; collaborator failures propagate to the caller.
func (s *Service) HandleCallback(ctx context.Context, user Identity, ref MessageRef, token string, p Presenter) error {
	action, err := s.codec.Decode(token)
	if err != nil {
		s.logger.Debug("callback token rejected", zap.Error(err))
		return p.Notice(ctx, noticeInvalidAction)
	}

	if action.Kind == callback.KindNoop {
		return p.Notice(ctx, "")
	}

	userID, err := s.users.GetOrCreate(ctx, user.ExternalID, user.Username, user.FirstName)
	if err != nil {
		return err
	}

	switch action.Kind {
	case callback.KindVote:
		return s.handleVote(ctx, userID, action, ref, p)
	case callback.KindSave:
		return s.handleSave(ctx, action.ChallengeID, p)
	case callback.KindSaveDecision:
		return s.handleSaveDecision(ctx, userID, action, p)
	case callback.KindNew:
		return s.handleNew(ctx, userID, ref, p)
	case callback.KindPage:
		return s.handlePage(ctx, userID, action.List, action.Page, ref, p)
	case callback.KindNote:
		return s.handleNote(ctx, userID, action.ChallengeID, p)
	case callback.KindNoteList:
		return s.handleNoteList(ctx, userID, p)
	}

	return p.Notice(ctx, noticeInvalidAction)
}

// HandleMessage processes one chat message: a command, or free text consumed
// by an active note prompt.
func (s *Service) HandleMessage(ctx context.Context, user Identity, text string, p Presenter) error {
	userID, err := s.users.GetOrCreate(ctx, user.ExternalID, user.Username, user.FirstName)
	if err != nil {
		return err
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "/") {
		return s.handleCommand(ctx, userID, commandName(trimmed), p)
	}

	if challengeID, ok := s.pending.get(userID); ok {
		return s.handleNoteText(ctx, userID, challengeID, text, p)
	}

	return p.Send(ctx, fallbackHint, nil)
}

func (s *Service) handleCommand(ctx context.Context, userID int64, command string, p Presenter) error {
	switch command {
	case "start":
		return p.Send(ctx, greeting, nil)
	case "help":
		return p.Send(ctx, helpText, nil)
	case "challenge":
		challenge, err := s.generator.Ensure(ctx)
		if err != nil {
			return err
		}
		score, err := s.votes.Score(ctx, challenge.ID)
		if err != nil {
			return err
		}
		return p.Send(ctx, render.Card(challenge, score), render.CardKeyboard(s.codec, challenge.ID, score))
	case "my":
		text, keyboard, err := s.savedPage(ctx, userID, 1)
		if err != nil {
			return err
		}
		return p.Send(ctx, text, keyboard)
	case "top":
		text, keyboard, err := s.topPage(ctx, 1)
		if err != nil {
			return err
		}
		return p.Send(ctx, text, keyboard)
	case "notes":
		return s.handleNoteList(ctx, userID, p)
	case "cancel":
		if s.pending.clear(userID) {
			return p.Send(ctx, noticeCancelled, nil)
		}
		return p.Send(ctx, noticeNothingCancel, nil)
	}
	return p.Send(ctx, fallbackHint, nil)
}

func (s *Service) handleVote(ctx context.Context, userID int64, action callback.Action, ref MessageRef, p Presenter) error {
	challenge, err := s.catalogue.GetByID(ctx, action.ChallengeID)
	if errors.Is(err, challenges.ErrChallengeNotFound) {
		return p.Notice(ctx, noticeNotFound)
	}
	if err != nil {
		return err
	}

	// Toggle on repeat, overwrite on change.
	existing, err := s.votes.GetUserVote(ctx, userID, challenge.ID)
	switch {
	case err == nil && existing == action.Value:
		if err := s.votes.Retract(ctx, userID, challenge.ID); err != nil {
			return err
		}
	case err == nil || errors.Is(err, votes.ErrNoVote):
		if err := s.votes.Cast(ctx, userID, challenge.ID, action.Value); err != nil {
			return err
		}
	default:
		return err
	}

	score, err := s.votes.Score(ctx, challenge.ID)
	if err != nil {
		return err
	}
	return presentEdit(ctx, p, ref, render.Card(challenge, score), render.CardKeyboard(s.codec, challenge.ID, score))
}

func (s *Service) handleSave(ctx context.Context, challengeID int64, p Presenter) error {
	if _, err := s.catalogue.GetByID(ctx, challengeID); err != nil {
		if errors.Is(err, challenges.ErrChallengeNotFound) {
			return p.Notice(ctx, noticeNotFound)
		}
		return err
	}
	return p.Send(ctx, promptNoteDecision, render.NoteDecisionKeyboard(s.codec, challengeID))
}

func (s *Service) handleSaveDecision(ctx context.Context, userID int64, action callback.Action, p Presenter) error {
	if _, err := s.catalogue.GetByID(ctx, action.ChallengeID); err != nil {
		if errors.Is(err, challenges.ErrChallengeNotFound) {
			return p.Notice(ctx, noticeNotFound)
		}
		return err
	}

	// The entry exists from here on regardless of the decision; a later note
	// only annotates it.
	if err := s.saved.Save(ctx, userID, action.ChallengeID); err != nil {
		return err
	}

	if action.Decision == callback.DecisionYes {
		s.pending.set(userID, action.ChallengeID)
		return p.Send(ctx, promptNoteText, nil)
	}

	s.pending.clear(userID)
	return p.Notice(ctx, noticeSaved)
}

func (s *Service) handleNoteText(ctx context.Context, userID, challengeID int64, text string, p Presenter) error {
	if err := s.saved.ValidateNote(text); err != nil {
		// The pending request survives a failed validation so the user can
		// retry with corrected text.
		switch {
		case errors.Is(err, saved.ErrEmptyNote):
			return p.Send(ctx, replyNoteEmpty, nil)
		case errors.Is(err, saved.ErrNoteTooLong):
			reply := fmt.Sprintf("The note is too long (max %d characters). Shorten it and send again, or /cancel.", s.saved.NoteMaxLength())
			return p.Send(ctx, reply, nil)
		default:
			return err
		}
	}

	if err := s.saved.SaveWithNote(ctx, userID, challengeID, text); err != nil {
		return err
	}
	s.pending.clear(userID)
	return p.Send(ctx, replyNoteSaved, nil)
}

func (s *Service) handleNew(ctx context.Context, userID int64, ref MessageRef, p Presenter) error {
	challenge, err := s.generator.Ensure(ctx)
	if err != nil {
		return err
	}
	score, err := s.votes.Score(ctx, challenge.ID)
	if err != nil {
		return err
	}
	return presentEdit(ctx, p, ref, render.Card(challenge, score), render.CardKeyboard(s.codec, challenge.ID, score))
}

func (s *Service) handlePage(ctx context.Context, userID int64, list callback.ListID, page int, ref MessageRef, p Presenter) error {
	var (
		text     string
		keyboard render.Keyboard
		err      error
	)
	switch list {
	case callback.ListSaved:
		text, keyboard, err = s.savedPage(ctx, userID, page)
	case callback.ListTop:
		text, keyboard, err = s.topPage(ctx, page)
	default:
		return p.Notice(ctx, noticeInvalidAction)
	}
	if err != nil {
		return err
	}
	return presentEdit(ctx, p, ref, text, keyboard)
}

func (s *Service) handleNote(ctx context.Context, userID, challengeID int64, p Presenter) error {
	note, err := s.saved.GetNote(ctx, userID, challengeID)
	if errors.Is(err, saved.ErrNoNote) {
		return p.Notice(ctx, noticeNoNote)
	}
	if err != nil {
		return err
	}
	challenge, err := s.catalogue.GetByID(ctx, challengeID)
	if errors.Is(err, challenges.ErrChallengeNotFound) {
		return p.Notice(ctx, noticeNotFound)
	}
	if err != nil {
		return err
	}
	return p.Send(ctx, render.Note(challenge.ID, challenge.Title, note), nil)
}

func (s *Service) handleNoteList(ctx context.Context, userID int64, p Presenter) error {
	listings, err := s.saved.ListNotes(ctx, userID, s.pageSize)
	if err != nil {
		return err
	}
	return p.Send(ctx, render.NoteList(listings), nil)
}

func (s *Service) savedPage(ctx context.Context, userID int64, requestedPage int) (string, render.Keyboard, error) {
	total, err := s.saved.Count(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	page, totalPages := pagination.Window(total, s.pageSize, requestedPage)
	rows, err := s.saved.Page(ctx, userID, s.pageSize, pagination.Offset(page, s.pageSize))
	if err != nil {
		return "", nil, err
	}
	return render.SavedList(rows), render.PageKeyboard(s.codec, callback.ListSaved, page, totalPages), nil
}

func (s *Service) topPage(ctx context.Context, requestedPage int) (string, render.Keyboard, error) {
	total, err := s.catalogue.CountAll(ctx)
	if err != nil {
		return "", nil, err
	}
	page, totalPages := pagination.Window(total, s.pageSize, requestedPage)
	entries, err := s.catalogue.TopByScore(ctx, s.pageSize, pagination.Offset(page, s.pageSize))
	if err != nil {
		return "", nil, err
	}
	return render.TopList(entries), render.PageKeyboard(s.codec, callback.ListTop, page, totalPages), nil
}

func commandName(text string) string {
	name := strings.TrimPrefix(strings.Fields(text)[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name)
}
