// Package registry holds the active set of pairings, indexed by both the
// game identifier and the discord identifier.
//
// The index is copy-on-write: Configure builds a complete new index off to
// the side and publishes it with a single atomic pointer store. Lookups
// never take a lock and always see either the old or the new set, never a
// partially rebuilt one.
package registry

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/linksync/internal/ir"
)

// ValidatorFunc checks a pairing against the outside world (for example,
// "does this role exist"). A non-nil error rejects the pairing.
type ValidatorFunc func(p ir.Pairing) error

type index struct {
	all       []ir.Pairing
	byKey     map[ir.PairKey]int
	byGame    map[ir.GameID][]int
	byDiscord map[ir.DiscordID][]int
}

var emptyIndex = &index{
	byKey:     map[ir.PairKey]int{},
	byGame:    map[ir.GameID][]int{},
	byDiscord: map[ir.DiscordID][]int{},
}

// Registry is the pair registry.
//
// Thread-safety: lookups are lock-free. Configure calls are serialized
// with a mutex so two reloads cannot interleave their builds.
type Registry struct {
	mu        sync.Mutex
	current   atomic.Pointer[index]
	validator ValidatorFunc
}

// Option configures a Registry.
type Option func(*Registry)

// WithValidator adds an external check run after the built-in one.
func WithValidator(v ValidatorFunc) Option {
	return func(r *Registry) {
		r.validator = v
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		opt(r)
	}
	r.current.Store(emptyIndex)
	return r
}

// Configure replaces the active pairing set.
//
// Each pairing is normalized, validated and checked for duplicates in
// input order; the first pairing with a given key wins. Rejected pairings
// are returned as *ir.Failure values of kind CONFIGURATION_REJECTED and
// logged. They never prevent the rest of the set from loading.
func (r *Registry) Configure(pairings []ir.Pairing) []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, rejected := r.build(pairings)
	r.current.Store(next)

	slog.Info("pairings configured",
		"accepted", len(next.all),
		"rejected", len(rejected),
	)
	return rejected
}

// Check runs the same normalization, validation and duplicate checks as
// Configure without touching the active set. It returns the pairings that
// would be accepted and the rejections.
func (r *Registry) Check(pairings []ir.Pairing) ([]ir.Pairing, []error) {
	idx, rejected := r.build(pairings)
	return idx.all, rejected
}

func (r *Registry) build(pairings []ir.Pairing) (*index, []error) {
	next := &index{
		all:       make([]ir.Pairing, 0, len(pairings)),
		byKey:     make(map[ir.PairKey]int, len(pairings)),
		byGame:    make(map[ir.GameID][]int),
		byDiscord: make(map[ir.DiscordID][]int),
	}
	var rejected []error

	for i, raw := range pairings {
		p := ir.NormalizePairing(raw)
		key := p.Key()

		if err := Validate(p); err != nil {
			rejected = append(rejected, reject(i, p, "invalid pairing", err))
			continue
		}
		if r.validator != nil {
			if err := r.validator(p); err != nil {
				rejected = append(rejected, reject(i, p, "pairing rejected by validator", err))
				continue
			}
		}
		if first, dup := next.byKey[key]; dup {
			rejected = append(rejected, reject(i, p,
				fmt.Sprintf("duplicate of pairing %q", next.all[first].Label()), nil))
			continue
		}

		pos := len(next.all)
		next.all = append(next.all, p)
		next.byKey[key] = pos
		next.byGame[p.GameID] = append(next.byGame[p.GameID], pos)
		next.byDiscord[p.DiscordID] = append(next.byDiscord[p.DiscordID], pos)
	}
	return next, rejected
}

func reject(pos int, p ir.Pairing, msg string, cause error) error {
	f := ir.NewFailure(ir.FailureConfigurationRejected, "", "", p.Key(),
		fmt.Sprintf("entry %d (%s): %s", pos, p.Label(), msg), cause)
	slog.Warn("pairing rejected",
		"entry", pos,
		"pairing", p.Label(),
		"error", f,
	)
	return f
}

// ByGame returns every pairing that references id, in configuration order.
func (r *Registry) ByGame(id ir.GameID) []ir.Pairing {
	idx := r.current.Load()
	return idx.collect(idx.byGame[id])
}

// ByDiscord returns every pairing that references id, in configuration order.
func (r *Registry) ByDiscord(id ir.DiscordID) []ir.Pairing {
	idx := r.current.Load()
	return idx.collect(idx.byDiscord[id])
}

// Get returns the pairing with the given key.
func (r *Registry) Get(key ir.PairKey) (ir.Pairing, bool) {
	idx := r.current.Load()
	pos, ok := idx.byKey[key]
	if !ok {
		return ir.Pairing{}, false
	}
	return idx.all[pos].Clone(), true
}

// All returns a copy of the active set in configuration order.
func (r *Registry) All() []ir.Pairing {
	idx := r.current.Load()
	out := make([]ir.Pairing, len(idx.all))
	for i, p := range idx.all {
		out[i] = p.Clone()
	}
	return out
}

// Len returns the number of active pairings.
func (r *Registry) Len() int {
	return len(r.current.Load().all)
}

// collect copies the referenced pairings so callers cannot mutate the
// published index.
func (idx *index) collect(positions []int) []ir.Pairing {
	if len(positions) == 0 {
		return nil
	}
	out := make([]ir.Pairing, len(positions))
	for i, pos := range positions {
		out[i] = idx.all[pos].Clone()
	}
	return out
}
