// Package groupsync is the group-membership sync kind: it adapts a
// game-side permission store and a discord role store to the engine's
// accessor and roster capabilities.
package groupsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/linksync/internal/ir"
)

// GameStore is the game-side permission-group store.
type GameStore interface {
	// HasGroup reports whether actor holds id. With includeInherited,
	// membership granted through a parent group counts too.
	HasGroup(ctx context.Context, actor ir.GameActor, id ir.GameID, includeInherited bool) (bool, error)
	AddGroup(ctx context.Context, actor ir.GameActor, id ir.GameID) error
	RemoveGroup(ctx context.Context, actor ir.GameActor, id ir.GameID) error
	GroupMembers(ctx context.Context, id ir.GameID) ([]ir.GameActor, error)
}

// DiscordStore is the remote role store.
type DiscordStore interface {
	HasRole(ctx context.Context, actor ir.DiscordActor, id ir.DiscordID) (bool, error)
	AddRole(ctx context.Context, actor ir.DiscordActor, id ir.DiscordID) error
	RemoveRole(ctx context.Context, actor ir.DiscordActor, id ir.DiscordID) error
	RoleMembers(ctx context.Context, id ir.DiscordID) ([]ir.DiscordActor, error)
}

// ErrInherited is returned by ApplyGame when a removal leaves the actor
// holding the group through a parent, which only the parent's owner can
// change.
var ErrInherited = errors.New("group is still inherited from a parent")

// Sync implements engine.Accessors and engine.Roster over a GameStore and
// a DiscordStore. It holds no state of its own and is safe for
// concurrent use when the stores are.
type Sync struct {
	game             GameStore
	discord          DiscordStore
	includeInherited bool
}

// Option configures a Sync.
type Option func(*Sync)

// WithInherited makes game-side reads count membership inherited from a
// parent group. Writes always target the group itself.
func WithInherited(on bool) Option {
	return func(s *Sync) { s.includeInherited = on }
}

// New creates a Sync over the two stores.
func New(game GameStore, discord DiscordStore, opts ...Option) *Sync {
	s := &Sync{game: game, discord: discord}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetGame reports whether actor holds the pairing's group.
func (s *Sync) GetGame(ctx context.Context, actor ir.GameActor, p ir.Pairing) (bool, error) {
	return s.game.HasGroup(ctx, actor, p.GameID, s.includeInherited)
}

// GetDiscord reports whether actor holds the pairing's role.
func (s *Sync) GetDiscord(ctx context.Context, actor ir.DiscordActor, p ir.Pairing) (bool, error) {
	return s.discord.HasRole(ctx, actor, p.DiscordID)
}

// ApplyGame sets actor's membership of the pairing's group. Adding a
// group the actor already holds, or removing one it lacks, is not an
// error.
//
// With inherited reads, a removal is checked afterwards: if the group is
// still held through a parent, ApplyGame returns ErrInherited so the
// write is reported as failed rather than as a change that never lands.
func (s *Sync) ApplyGame(ctx context.Context, actor ir.GameActor, p ir.Pairing, state bool) error {
	var err error
	if state {
		err = s.game.AddGroup(ctx, actor, p.GameID)
	} else {
		err = s.game.RemoveGroup(ctx, actor, p.GameID)
	}
	if err == nil && !state && s.includeInherited {
		var held bool
		held, err = s.game.HasGroup(ctx, actor, p.GameID, true)
		if err == nil && held {
			err = ErrInherited
		}
	}
	if err != nil {
		return fmt.Errorf("%s group %s for %s: %w", verb(state), p.GameID, actor, err)
	}
	return nil
}

// ApplyDiscord sets actor's membership of the pairing's role.
func (s *Sync) ApplyDiscord(ctx context.Context, actor ir.DiscordActor, p ir.Pairing, state bool) error {
	var err error
	if state {
		err = s.discord.AddRole(ctx, actor, p.DiscordID)
	} else {
		err = s.discord.RemoveRole(ctx, actor, p.DiscordID)
	}
	if err != nil {
		return fmt.Errorf("%s role %s for %s: %w", verb(state), p.DiscordID, actor, err)
	}
	return nil
}

// GameMembers lists the actors directly holding id.
func (s *Sync) GameMembers(ctx context.Context, id ir.GameID) ([]ir.GameActor, error) {
	return s.game.GroupMembers(ctx, id)
}

// DiscordMembers lists the actors holding role id.
func (s *Sync) DiscordMembers(ctx context.Context, id ir.DiscordID) ([]ir.DiscordActor, error) {
	return s.discord.RoleMembers(ctx, id)
}

func verb(state bool) string {
	if state {
		return "add"
	}
	return "remove"
}
