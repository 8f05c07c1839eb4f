package challenges

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Generator produces the challenge shown for a "new" action. Implementations
// must consult the catalogue's dedup lookup before creating a row.
type Generator interface {
	Ensure(ctx context.Context) (Challenge, error)
}

var topics = []string{
	"a notification chat bot",
	"a news feed parser",
	"a developer CLI utility",
	"a small uptime monitor",
	"a task scheduler",
	"a price tracking bot",
	"a report generator",
	"a backup tool",
}

var stacks = []string{
	"Go + net/http",
	"Go + a bot framework",
	"Python + FastAPI",
	"Node.js + Telegraf",
	"Rust + axum",
}

var constraints = []string{
	"no external database, a single file or SQLite only",
	"an on-disk cache",
	"retries on network failures",
	"structured logging and .env configuration",
	"per-user request rate limiting",
}

var extras = []string{
	"CSV/JSON export of results",
	"chat notifications",
	"simple list pagination",
	"settings adjustable via commands",
}

var tagPool = []string{"bot", "parser", "cli", "monitoring", "report", "backup", "devtools"}

// ComposerConfig configures the random challenge composer.
type ComposerConfig struct {
	Catalogue *Service
	Seed      int64
}

// Composer assembles challenge text from fixed fragment lists and ensures the
// result exists exactly once in the catalogue. Wording that differs even
// slightly produces a distinct challenge; dedup is exact on (title, body).
// Safe for concurrent use: one instance serves all interactions.
type Composer struct {
	catalogue *Service

	mu  sync.Mutex
	rng *rand.Rand
}

// NewComposer constructs a Composer. A zero seed draws one from the clock.
func NewComposer(cfg ComposerConfig) (*Composer, error) {
	if cfg.Catalogue == nil {
		return nil, errors.New("challenges: catalogue service required")
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Composer{
		catalogue: cfg.Catalogue,
		rng:       rand.New(rand.NewSource(seed)),
	}, nil
}

// Ensure composes a random challenge, returning the existing row on a dedup
// hit and creating it otherwise.
func (g *Composer) Ensure(ctx context.Context) (Challenge, error) {
	title, body, tags := g.compose()

	existing, err := g.catalogue.DedupLookup(ctx, title, body)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrChallengeNotFound) {
		return Challenge{}, err
	}

	return g.claim(ctx, title, body, tags)
}

// claim inserts the composed challenge. Two concurrent composers can draw the
// same text and both miss the dedup lookup; the loser's insert trips the
// unique (title, body) index, so a failed create is re-resolved as a dedup
// hit before the error is surfaced.
func (g *Composer) claim(ctx context.Context, title, body, tags string) (Challenge, error) {
	created, err := g.catalogue.Create(ctx, title, body, tags)
	if err == nil {
		return created, nil
	}
	existing, lookupErr := g.catalogue.DedupLookup(ctx, title, body)
	if lookupErr == nil {
		return existing, nil
	}
	return Challenge{}, err
}

func (g *Composer) compose() (title, body, tags string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	topic := topics[g.rng.Intn(len(topics))]
	stack := stacks[g.rng.Intn(len(stacks))]
	constraint := constraints[g.rng.Intn(len(constraints))]
	extra := extras[g.rng.Intn(len(extras))]

	picked := g.rng.Perm(len(tagPool))[:3]
	tagNames := make([]string, 0, 3)
	for _, index := range picked {
		tagNames = append(tagNames, tagPool[index])
	}

	title = topic + " (" + stack + ")"
	body = "Build " + topic + " with " + stack + ". " +
		"Requirements: " + constraint + "; " + extra + ". " +
		"Keep setup and configuration as simple as possible."
	return title, body, strings.Join(tagNames, ",")
}
