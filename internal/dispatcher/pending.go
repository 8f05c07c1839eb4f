package dispatcher

import (
	"sync"
	"time"
)

// DefaultPendingTTL bounds how long an unanswered note prompt stays active.
const DefaultPendingTTL = 10 * time.Minute

type pendingNote struct {
	challengeID int64
	expiresAt   time.Time
}

// pendingStore holds the per-user awaiting-note-text state. A new request
// supersedes any previous one for the same user; expiry is checked lazily on
// read.
type pendingStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu      sync.Mutex
	entries map[int64]pendingNote
}

func newPendingStore(ttl time.Duration, clock func() time.Time) *pendingStore {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &pendingStore{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[int64]pendingNote),
	}
}

func (p *pendingStore) set(userID, challengeID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[userID] = pendingNote{
		challengeID: challengeID,
		expiresAt:   p.clock().Add(p.ttl),
	}
}

func (p *pendingStore) get(userID int64) (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[userID]
	if !ok {
		return 0, false
	}
	if p.clock().After(entry.expiresAt) {
		delete(p.entries, userID)
		return 0, false
	}
	return entry.challengeID, true
}

// clear removes the pending request and reports whether one was active.
func (p *pendingStore) clear(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[userID]
	if !ok {
		return false
	}
	delete(p.entries, userID)
	return !p.clock().After(entry.expiresAt)
}
