package testutil

import (
	"fmt"
	"sync"
)

// SequenceFlowGenerator hands out "prefix-0001", "prefix-0002", ...
//
// This enables deterministic test execution and golden trace comparison:
// the same scenario run twice produces byte-identical outcome traces.
//
// Unlike engine.FixedGenerator, which panics once its list is exhausted,
// this generator never runs out.
//
// Thread-safety: SequenceFlowGenerator is safe for concurrent use.
type SequenceFlowGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceFlowGenerator creates a generator. An empty prefix becomes "flow".
func NewSequenceFlowGenerator(prefix string) *SequenceFlowGenerator {
	if prefix == "" {
		prefix = "flow"
	}
	return &SequenceFlowGenerator{prefix: prefix}
}

// Generate returns the next token.
//
// Implements engine.FlowTokenGenerator interface.
func (g *SequenceFlowGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
