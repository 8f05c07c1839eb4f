// Package render builds the display text and button layouts delivered by the
// transport. It is pure: no storage or network calls, only formatting and the
// callback encoders that fill button payloads.
package render

import (
	"fmt"
	"strings"

	"github.com/challengeforge/backend/internal/callback"
	"github.com/challengeforge/backend/internal/challenges"
	"github.com/challengeforge/backend/internal/saved"
)

// Button is one inline button: visible text plus the callback token the
// platform echoes back on press.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// Keyboard is rows of buttons in display order.
type Keyboard [][]Button

// Card formats a challenge for display, HTML parse mode.
func Card(challenge challenges.Challenge, score int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💡 <b>Challenge #%d</b>\n<b>%s</b>\n\n%s\n", challenge.ID, challenge.Title, challenge.Body)
	if tags := challenge.TagList(); len(tags) > 0 {
		b.WriteString("\nTags:")
		for _, tag := range tags {
			b.WriteString(" #")
			b.WriteString(tag)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Rating: %+d", score)
	return b.String()
}

// CardKeyboard builds the vote/save/new button rows for a challenge card. The
// score button is inert and carries the unsigned noop token.
func CardKeyboard(codec *callback.Codec, challengeID int64, score int) Keyboard {
	return Keyboard{
		{
			{Text: "👍", Data: codec.EncodeVote(challengeID, 1)},
			{Text: fmt.Sprintf("%+d", score), Data: codec.EncodeNoop()},
			{Text: "👎", Data: codec.EncodeVote(challengeID, -1)},
		},
		{
			{Text: "💾 Save", Data: codec.EncodeSave(challengeID)},
			{Text: "🎲 Another", Data: codec.EncodeNew()},
		},
	}
}

// NoteDecisionKeyboard builds the yes/no prompt shown after a save action.
func NoteDecisionKeyboard(codec *callback.Codec, challengeID int64) Keyboard {
	return Keyboard{
		{
			{Text: "📝 Add a note", Data: codec.EncodeSaveDecision(challengeID, callback.DecisionYes)},
			{Text: "Skip", Data: codec.EncodeSaveDecision(challengeID, callback.DecisionNo)},
		},
	}
}

// PageKeyboard builds the prev/label/next navigation row. Edge positions hold
// noop placeholders so the row keeps its shape on every page.
func PageKeyboard(codec *callback.Codec, list callback.ListID, page, totalPages int) Keyboard {
	row := make([]Button, 0, 3)

	if page > 1 {
		row = append(row, Button{Text: "⟨ Back", Data: codec.EncodePage(list, page-1)})
	} else {
		row = append(row, Button{Text: " ", Data: codec.EncodeNoop()})
	}

	row = append(row, Button{Text: fmt.Sprintf("Page %d/%d", page, totalPages), Data: codec.EncodeNoop()})

	if page < totalPages {
		row = append(row, Button{Text: "Next ⟩", Data: codec.EncodePage(list, page+1)})
	} else {
		row = append(row, Button{Text: " ", Data: codec.EncodeNoop()})
	}

	return Keyboard{row}
}

// SavedList formats one page of the user's saved challenges.
func SavedList(rows []saved.PageRow) string {
	if len(rows) == 0 {
		return "You have no saved challenges yet. Press 💾 on a challenge to keep it."
	}
	var b strings.Builder
	b.WriteString("💾 <b>Your saved challenges</b>\n")
	for _, row := range rows {
		fmt.Fprintf(&b, "\n#%d %s (%+d)", row.ChallengeID, row.Title, row.Score)
	}
	return b.String()
}

// TopList formats one page of the global ranking.
func TopList(entries []challenges.TopEntry) string {
	if len(entries) == 0 {
		return "No challenges yet. Use /challenge to generate the first one."
	}
	var b strings.Builder
	b.WriteString("🏆 <b>Top challenges</b>\n")
	for _, entry := range entries {
		fmt.Fprintf(&b, "\n#%d %s (%+d)", entry.ChallengeID, entry.Title, entry.Score)
	}
	return b.String()
}

// NoteList formats the user's annotated entries.
func NoteList(listings []saved.NoteListing) string {
	if len(listings) == 0 {
		return "You have no notes yet. Save a challenge and choose 📝 to add one."
	}
	var b strings.Builder
	b.WriteString("📝 <b>Your notes</b>\n")
	for _, listing := range listings {
		fmt.Fprintf(&b, "\n<b>#%d %s</b>\n%s\n", listing.ChallengeID, listing.Title, listing.Note)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Note formats a single stored note.
func Note(challengeID int64, title, note string) string {
	return fmt.Sprintf("📝 <b>#%d %s</b>\n%s", challengeID, title, note)
}
