package engine

import (
	"sync"

	"github.com/google/uuid"
)

// FlowTokenGenerator generates the correlation token shared by every
// outcome of one entry call (one notification, one resync, one timer tick).
type FlowTokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 flow tokens, so journal
// rows from the same run sort together.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if the random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined flow tokens for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
//
// Panics once every token has been used: a test that starts more flows
// than it declared is misconfigured.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}
