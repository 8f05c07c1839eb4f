package callback

// Kind enumerates the action types carried by callback tokens.
type Kind string

const (
	// KindVote casts or changes a vote on a challenge.
	KindVote Kind = "vote"
	// KindSave requests saving a challenge and triggers the note prompt.
	KindSave Kind = "save"
	// KindSaveDecision resolves the note prompt with yes or no.
	KindSaveDecision Kind = "save_decision"
	// KindNew requests a fresh challenge.
	KindNew Kind = "new"
	// KindPage navigates a paginated list.
	KindPage Kind = "page"
	// KindNote fetches the stored note for one challenge.
	KindNote Kind = "note"
	// KindNoteList fetches all stored notes.
	KindNoteList Kind = "note_list"
	// KindNoop marks an inert button such as the score display.
	KindNoop Kind = "noop"
)

// ListID identifies one of the two paginated lists.
type ListID string

const (
	// ListSaved is the user's saved-challenges list.
	ListSaved ListID = "my"
	// ListTop is the global top-by-score list.
	ListTop ListID = "top"
)

// Decision is the user's answer to the note prompt.
type Decision string

const (
	// DecisionYes means the user wants to attach a note.
	DecisionYes Decision = "y"
	// DecisionNo means the entry is saved without a note.
	DecisionNo Decision = "n"
)

// Action is the decoded, typed user intent carried by a token. Fields beyond
// Kind are populated only for the kinds that define them.
type Action struct {
	Kind        Kind
	ChallengeID int64
	Value       int
	Decision    Decision
	List        ListID
	Page        int
}
