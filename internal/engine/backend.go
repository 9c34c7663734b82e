package engine

import (
	"context"

	"github.com/roach88/linksync/internal/ir"
)

// Accessors is the capability set a concrete sync kind provides: read
// and write membership on both sides for one pairing. These are the only
// calls that reach the external stores.
//
// Implementations must be safe for concurrent use. Writes must be
// idempotent ("set membership to X"), since the engine may race two
// writes for the same actor and pairing.
type Accessors interface {
	GetGame(ctx context.Context, actor ir.GameActor, p ir.Pairing) (bool, error)
	GetDiscord(ctx context.Context, actor ir.DiscordActor, p ir.Pairing) (bool, error)
	ApplyGame(ctx context.Context, actor ir.GameActor, p ir.Pairing, state bool) error
	ApplyDiscord(ctx context.Context, actor ir.DiscordActor, p ir.Pairing, state bool) error
}

// Linker maps accounts between the two identity spaces.
// ok is false when the account is not linked; err is reserved for lookup
// failures.
type Linker interface {
	DiscordFor(ctx context.Context, actor ir.GameActor) (ir.DiscordActor, bool, error)
	GameFor(ctx context.Context, actor ir.DiscordActor) (ir.GameActor, bool, error)
}

// Roster lists the current members of one identifier on each side. The
// timer path uses it to find every actor a pairing touches.
type Roster interface {
	GameMembers(ctx context.Context, id ir.GameID) ([]ir.GameActor, error)
	DiscordMembers(ctx context.Context, id ir.DiscordID) ([]ir.DiscordActor, error)
}

// Journal persists outcomes. Append errors are logged, never returned to
// the reconciliation path.
type Journal interface {
	Append(ctx context.Context, o ir.Outcome) error
}

// Observer receives engine events for metrics.
type Observer interface {
	Outcome(o ir.Outcome)
	EchoSuppressed(side ir.Side)
	NotificationDropped(side ir.Side)
	PairingsRejected(n int)
}

type noopObserver struct{}

func (noopObserver) Outcome(ir.Outcome)          {}
func (noopObserver) EchoSuppressed(ir.Side)      {}
func (noopObserver) NotificationDropped(ir.Side) {}
func (noopObserver) PairingsRejected(int)        {}
