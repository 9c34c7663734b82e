package engine

import (
	"context"

	"github.com/roach88/linksync/internal/expect"
	"github.com/roach88/linksync/internal/ir"
)

// actors is the resolved identity pair for one reconciliation.
type actors struct {
	game    ir.GameActor
	discord ir.DiscordActor
}

// read queries one side of p for the given actors.
func (e *Engine) read(ctx context.Context, side ir.Side, p ir.Pairing, a actors) (bool, error) {
	var state bool
	err := guard("get "+string(side), func() error {
		var err error
		if side == ir.SideGame {
			state, err = e.acc.GetGame(ctx, a.game, p)
		} else {
			state, err = e.acc.GetDiscord(ctx, a.discord, p)
		}
		return err
	})
	if err != nil {
		return false, ir.NewFailure(ir.FailureBackendQuery, ir.ResultBackendFailure, side, p.Key(),
			"membership query failed", err)
	}
	return state, nil
}

// expectation returns the cache and keys an echo for (side, p, a) is
// matched against. Echoes arrive keyed by the side's own identifier, so
// pairings sharing that identifier share the entry.
func (e *Engine) expectation(side ir.Side, p ir.Pairing, a actors) (*expect.Cache, string, string) {
	if side == ir.SideGame {
		return e.gameExpect, string(a.game), p.GameID.String()
	}
	return e.discordExpect, string(a.discord), string(p.DiscordID)
}

// write records the expectation, issues the mutation and rolls the
// expectation back if the mutation fails.
func (e *Engine) write(ctx context.Context, side ir.Side, p ir.Pairing, a actors, desired bool) (ir.Result, error) {
	cache, actorKey, pairKey := e.expectation(side, p, a)
	cache.Expect(actorKey, pairKey, desired)

	err := guard("apply "+string(side), func() error {
		if side == ir.SideGame {
			return e.acc.ApplyGame(ctx, a.game, p, desired)
		}
		return e.acc.ApplyDiscord(ctx, a.discord, p, desired)
	})
	if err != nil {
		cache.Rollback(actorKey, pairKey)
		return ir.ResultBackendFailure, ir.NewFailure(ir.FailureBackendMutation, ir.ResultBackendFailure,
			side, p.Key(), "membership update failed", err)
	}
	return ir.MutationResult(side, desired), nil
}

// applyIfNot brings side of p to desired unless it is already there.
// An already-converged target returns BOTH_TRUE/BOTH_FALSE with no write
// and no expectation.
func (e *Engine) applyIfNot(ctx context.Context, side ir.Side, p ir.Pairing, a actors, desired bool) (ir.Result, error) {
	current, err := e.read(ctx, side, p, a)
	if err != nil {
		return ir.ResultBackendFailure, err
	}
	if current == desired {
		return ir.ConvergedResult(desired), nil
	}
	return e.write(ctx, side, p, a, desired)
}

// ApplyGameIfNot sets game-side membership for p to desired unless it
// already holds. Direction is not checked; callers gate on it.
func (e *Engine) ApplyGameIfNot(ctx context.Context, p ir.Pairing, actor ir.GameActor, desired bool) (ir.Result, error) {
	return e.applyIfNot(ctx, ir.SideGame, p, actors{game: actor}, desired)
}

// ApplyDiscordIfNot is the discord-side mirror of ApplyGameIfNot.
func (e *Engine) ApplyDiscordIfNot(ctx context.Context, p ir.Pairing, actor ir.DiscordActor, desired bool) (ir.Result, error) {
	return e.applyIfNot(ctx, ir.SideDiscord, p, actors{discord: actor}, desired)
}
