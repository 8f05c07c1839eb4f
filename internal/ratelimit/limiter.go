// Package ratelimit provides the sliding-window gate that sits in front of
// the dispatcher. It counts raw events per (kind, user) without ever looking
// inside them; an over-limit event is suppressed outright, never queued.
package ratelimit

import (
	"sync"
	"time"
)

// EventKind separates the independently counted event streams.
type EventKind string

const (
	// KindMessage counts free-text and command messages.
	KindMessage EventKind = "message"
	// KindCallback counts button presses.
	KindCallback EventKind = "callback"
)

const (
	// DefaultWindow is the sliding-window length.
	DefaultWindow = 10 * time.Second
	// DefaultMaxEvents is the number of events admitted per window.
	DefaultMaxEvents = 5
)

// LimiterConfig configures the sliding window.
type LimiterConfig struct {
	Window    time.Duration
	MaxEvents int
	Clock     func() time.Time
}

// Limiter is a per-(kind, user) sliding-window event counter. Safe for
// concurrent use.
type Limiter struct {
	window    time.Duration
	maxEvents int
	clock     func() time.Time

	mu        sync.Mutex
	history   map[limiterKey][]time.Time
	lastSweep time.Time
}

type limiterKey struct {
	kind   EventKind
	userID int64
}

// NewLimiter constructs a Limiter, applying defaults for unset fields.
func NewLimiter(cfg LimiterConfig) *Limiter {
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	maxEvents := cfg.MaxEvents
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Limiter{
		window:    window,
		maxEvents: maxEvents,
		clock:     clock,
		history:   make(map[limiterKey][]time.Time),
		lastSweep: clock(),
	}
}

// Allow records the event and reports whether it may proceed. Events older
// than the window are pruned before counting; a rejected event is not
// recorded, so a flooding user regains service as soon as the window slides.
func (l *Limiter) Allow(kind EventKind, userID int64) bool {
	now := l.clock()
	key := limiterKey{kind: kind, userID: userID}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(cutoff)
		l.lastSweep = now
	}

	recent := prune(l.history[key], cutoff)
	if len(recent) >= l.maxEvents {
		l.history[key] = recent
		return false
	}
	l.history[key] = append(recent, now)
	return true
}

// sweep drops history for pairs whose events all aged out, so idle users do
// not pin map entries for the life of the process. Runs at most once per
// window.
func (l *Limiter) sweep(cutoff time.Time) {
	for key, events := range l.history {
		if pruned := prune(events, cutoff); len(pruned) == 0 {
			delete(l.history, key)
		} else {
			l.history[key] = pruned
		}
	}
}

func prune(events []time.Time, cutoff time.Time) []time.Time {
	kept := 0
	for kept < len(events) && !events[kept].After(cutoff) {
		kept++
	}
	return events[kept:]
}
