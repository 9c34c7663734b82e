package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/linksync/internal/ir"
)

// Call records one store access made through FakeBackend.
type Call struct {
	Op    string // "get" or "apply"
	Side  ir.Side
	Actor string
	ID    string
	State bool
}

// Echo is the notification a real store would emit after a write.
type Echo struct {
	Side         ir.Side
	GameActor    ir.GameActor
	GameID       ir.GameID
	DiscordActor ir.DiscordActor
	DiscordID    ir.DiscordID
	State        bool
}

// FakeBackend is an in-memory game store, discord store and account
// linker in one.
//
// It satisfies engine.Accessors, engine.Linker and engine.Roster, as well
// as groupsync.GameStore and groupsync.DiscordStore. Every access is
// recorded, failures can be injected per side, and each successful write
// is captured as an Echo so tests can replay it into the engine.
//
// Thread-safety: All methods are safe for concurrent use. Hooks run
// without the internal lock held.
type FakeBackend struct {
	mu      sync.Mutex
	game    map[ir.GameActor]map[ir.GameID]bool
	discord map[ir.DiscordActor]map[ir.DiscordID]bool
	links   map[ir.GameActor]ir.DiscordActor
	reverse map[ir.DiscordActor]ir.GameActor

	calls  []Call
	echoes []Echo

	getErr   map[ir.Side]error
	applyErr map[ir.Side]error
	linkErr  error
	panicOn  map[string]bool

	// OnGet runs before every read; tests use it as a barrier.
	OnGet func(side ir.Side)
}

// NewFakeBackend creates an empty backend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		game:     make(map[ir.GameActor]map[ir.GameID]bool),
		discord:  make(map[ir.DiscordActor]map[ir.DiscordID]bool),
		links:    make(map[ir.GameActor]ir.DiscordActor),
		reverse:  make(map[ir.DiscordActor]ir.GameActor),
		getErr:   make(map[ir.Side]error),
		applyErr: make(map[ir.Side]error),
		panicOn:  make(map[string]bool),
	}
}

// ============================================================================
// Setup
// ============================================================================

// Link records that the two accounts belong to the same person.
func (b *FakeBackend) Link(game ir.GameActor, discord ir.DiscordActor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.links[game] = discord
	b.reverse[discord] = game
}

// SetGame sets game-side membership without recording a call or echo.
func (b *FakeBackend) SetGame(actor ir.GameActor, id ir.GameID, state bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setGameLocked(actor, id, state)
}

// SetDiscord sets discord-side membership without recording a call or echo.
func (b *FakeBackend) SetDiscord(actor ir.DiscordActor, id ir.DiscordID, state bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setDiscordLocked(actor, id, state)
}

// FailGet makes every read on side return err (nil clears it).
func (b *FakeBackend) FailGet(side ir.Side, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.getErr[side] = err
}

// FailApply makes every write on side return err (nil clears it).
func (b *FakeBackend) FailApply(side ir.Side, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applyErr[side] = err
}

// FailLink makes every linker lookup return err (nil clears it).
func (b *FakeBackend) FailLink(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.linkErr = err
}

// PanicOn makes the given operation ("get:game", "apply:discord", ...)
// panic, to exercise recovery paths.
func (b *FakeBackend) PanicOn(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.panicOn[op] = true
}

// ============================================================================
// Inspection
// ============================================================================

// HasGame reports game-side membership directly.
func (b *FakeBackend) HasGame(actor ir.GameActor, id ir.GameID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.game[actor][id]
}

// HasDiscord reports discord-side membership directly.
func (b *FakeBackend) HasDiscord(actor ir.DiscordActor, id ir.DiscordID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.discord[actor][id]
}

// Calls returns a copy of every recorded access.
func (b *FakeBackend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

// Count returns how many calls of op hit side.
func (b *FakeBackend) Count(op string, side ir.Side) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c.Op == op && c.Side == side {
			n++
		}
	}
	return n
}

// Writes returns how many writes (successful or not) hit side.
func (b *FakeBackend) Writes(side ir.Side) int {
	return b.Count("apply", side)
}

// ResetCalls forgets recorded calls and echoes.
func (b *FakeBackend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
	b.echoes = nil
}

// TakeEchoes returns and clears the echoes of successful writes.
func (b *FakeBackend) TakeEchoes() []Echo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.echoes
	b.echoes = nil
	return out
}

// ============================================================================
// engine.Accessors
// ============================================================================

// GetGame implements engine.Accessors.
func (b *FakeBackend) GetGame(_ context.Context, actor ir.GameActor, p ir.Pairing) (bool, error) {
	return b.readGame(actor, p.GameID)
}

// GetDiscord implements engine.Accessors.
func (b *FakeBackend) GetDiscord(_ context.Context, actor ir.DiscordActor, p ir.Pairing) (bool, error) {
	return b.readDiscord(actor, p.DiscordID)
}

// ApplyGame implements engine.Accessors.
func (b *FakeBackend) ApplyGame(_ context.Context, actor ir.GameActor, p ir.Pairing, state bool) error {
	return b.writeGame(actor, p.GameID, state)
}

// ApplyDiscord implements engine.Accessors.
func (b *FakeBackend) ApplyDiscord(_ context.Context, actor ir.DiscordActor, p ir.Pairing, state bool) error {
	return b.writeDiscord(actor, p.DiscordID, state)
}

// ============================================================================
// groupsync.GameStore / groupsync.DiscordStore
// ============================================================================

// HasGroup implements groupsync.GameStore. Inheritance is not modelled.
func (b *FakeBackend) HasGroup(_ context.Context, actor ir.GameActor, id ir.GameID, _ bool) (bool, error) {
	return b.readGame(actor, id)
}

// AddGroup implements groupsync.GameStore.
func (b *FakeBackend) AddGroup(_ context.Context, actor ir.GameActor, id ir.GameID) error {
	return b.writeGame(actor, id, true)
}

// RemoveGroup implements groupsync.GameStore.
func (b *FakeBackend) RemoveGroup(_ context.Context, actor ir.GameActor, id ir.GameID) error {
	return b.writeGame(actor, id, false)
}

// GroupMembers implements groupsync.GameStore.
func (b *FakeBackend) GroupMembers(ctx context.Context, id ir.GameID) ([]ir.GameActor, error) {
	return b.GameMembers(ctx, id)
}

// HasRole implements groupsync.DiscordStore.
func (b *FakeBackend) HasRole(_ context.Context, actor ir.DiscordActor, id ir.DiscordID) (bool, error) {
	return b.readDiscord(actor, id)
}

// AddRole implements groupsync.DiscordStore.
func (b *FakeBackend) AddRole(_ context.Context, actor ir.DiscordActor, id ir.DiscordID) error {
	return b.writeDiscord(actor, id, true)
}

// RemoveRole implements groupsync.DiscordStore.
func (b *FakeBackend) RemoveRole(_ context.Context, actor ir.DiscordActor, id ir.DiscordID) error {
	return b.writeDiscord(actor, id, false)
}

// RoleMembers implements groupsync.DiscordStore.
func (b *FakeBackend) RoleMembers(ctx context.Context, id ir.DiscordID) ([]ir.DiscordActor, error) {
	return b.DiscordMembers(ctx, id)
}

// ============================================================================
// engine.Linker / engine.Roster
// ============================================================================

// DiscordFor implements engine.Linker.
func (b *FakeBackend) DiscordFor(_ context.Context, actor ir.GameActor) (ir.DiscordActor, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.linkErr != nil {
		return "", false, b.linkErr
	}
	d, ok := b.links[actor]
	return d, ok, nil
}

// GameFor implements engine.Linker.
func (b *FakeBackend) GameFor(_ context.Context, actor ir.DiscordActor) (ir.GameActor, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.linkErr != nil {
		return "", false, b.linkErr
	}
	g, ok := b.reverse[actor]
	return g, ok, nil
}

// GameMembers implements engine.Roster, sorted for determinism.
func (b *FakeBackend) GameMembers(_ context.Context, id ir.GameID) ([]ir.GameActor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.getErr[ir.SideGame]; err != nil {
		return nil, err
	}
	var out []ir.GameActor
	for actor, groups := range b.game {
		if groups[id] {
			out = append(out, actor)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// DiscordMembers implements engine.Roster, sorted for determinism.
func (b *FakeBackend) DiscordMembers(_ context.Context, id ir.DiscordID) ([]ir.DiscordActor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.getErr[ir.SideDiscord]; err != nil {
		return nil, err
	}
	var out []ir.DiscordActor
	for actor, roles := range b.discord {
		if roles[id] {
			out = append(out, actor)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ============================================================================
// internals
// ============================================================================

func (b *FakeBackend) before(op string, side ir.Side) {
	b.mu.Lock()
	hook := b.OnGet
	shouldPanic := b.panicOn[op+":"+string(side)]
	b.mu.Unlock()

	if op == "get" && hook != nil {
		hook(side)
	}
	if shouldPanic {
		panic(fmt.Sprintf("fake %s %s", op, side))
	}
}

func (b *FakeBackend) readGame(actor ir.GameActor, id ir.GameID) (bool, error) {
	b.before("get", ir.SideGame)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, Call{Op: "get", Side: ir.SideGame, Actor: string(actor), ID: id.String()})
	if err := b.getErr[ir.SideGame]; err != nil {
		return false, err
	}
	return b.game[actor][id], nil
}

func (b *FakeBackend) readDiscord(actor ir.DiscordActor, id ir.DiscordID) (bool, error) {
	b.before("get", ir.SideDiscord)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, Call{Op: "get", Side: ir.SideDiscord, Actor: string(actor), ID: string(id)})
	if err := b.getErr[ir.SideDiscord]; err != nil {
		return false, err
	}
	return b.discord[actor][id], nil
}

func (b *FakeBackend) writeGame(actor ir.GameActor, id ir.GameID, state bool) error {
	b.before("apply", ir.SideGame)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, Call{Op: "apply", Side: ir.SideGame, Actor: string(actor), ID: id.String(), State: state})
	if err := b.applyErr[ir.SideGame]; err != nil {
		return err
	}
	b.setGameLocked(actor, id, state)
	b.echoes = append(b.echoes, Echo{Side: ir.SideGame, GameActor: actor, GameID: id, State: state})
	return nil
}

func (b *FakeBackend) writeDiscord(actor ir.DiscordActor, id ir.DiscordID, state bool) error {
	b.before("apply", ir.SideDiscord)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, Call{Op: "apply", Side: ir.SideDiscord, Actor: string(actor), ID: string(id), State: state})
	if err := b.applyErr[ir.SideDiscord]; err != nil {
		return err
	}
	b.setDiscordLocked(actor, id, state)
	b.echoes = append(b.echoes, Echo{Side: ir.SideDiscord, DiscordActor: actor, DiscordID: id, State: state})
	return nil
}

func (b *FakeBackend) setGameLocked(actor ir.GameActor, id ir.GameID, state bool) {
	if b.game[actor] == nil {
		b.game[actor] = make(map[ir.GameID]bool)
	}
	b.game[actor][id] = state
}

func (b *FakeBackend) setDiscordLocked(actor ir.DiscordActor, id ir.DiscordID, state bool) {
	if b.discord[actor] == nil {
		b.discord[actor] = make(map[ir.DiscordID]bool)
	}
	b.discord[actor][id] = state
}
