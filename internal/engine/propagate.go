package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/linksync/internal/ir"
)

// DiscordChanged handles a role change reported by the discord store.
//
//  1. If the change is the echo of our own write, it is consumed and
//     nothing else happens.
//  2. Every pairing on the role pushes the new state to its game group,
//     unless the pairing is game_to_discord (WRONG_DIRECTION).
//  3. For bidirectional pairings the new state then fans out through the
//     shared game group to every other role paired with it.
//
// Failures become outcomes; DiscordChanged never returns an error.
func (e *Engine) DiscordChanged(ctx context.Context, actor ir.DiscordActor, role ir.DiscordID, state bool) []ir.Outcome {
	return e.propagate(ctx, Notification{
		Source:       ir.SideDiscord,
		DiscordActor: actor,
		DiscordID:    role,
		State:        state,
	})
}

// GameChanged is the mirror image of DiscordChanged: a group change on
// the game side pushes to paired roles (skipping discord_to_game
// pairings) and fans out through the shared role to other groups.
func (e *Engine) GameChanged(ctx context.Context, actor ir.GameActor, group ir.GameID, state bool) []ir.Outcome {
	return e.propagate(ctx, Notification{
		Source:    ir.SideGame,
		GameActor: actor,
		GameID:    group,
		State:     state,
	})
}

func (e *Engine) propagate(ctx context.Context, n Notification) []ir.Outcome {
	src := n.Source
	dst := src.Opposite()
	n.GameID = ir.NormalizeGameID(n.GameID)
	n.DiscordID = ir.NormalizeDiscordID(n.DiscordID)

	var (
		primaries []ir.Pairing
		a         actors
		cacheHit  bool
	)
	if src == ir.SideGame {
		a.game = n.GameActor
		cacheHit = e.gameExpect.ConsumeIfMatches(string(n.GameActor), n.GameID.String(), n.State)
	} else {
		a.discord = n.DiscordActor
		cacheHit = e.discordExpect.ConsumeIfMatches(string(n.DiscordActor), string(n.DiscordID), n.State)
	}
	if cacheHit {
		e.observer.EchoSuppressed(src)
		slog.Debug("echo suppressed",
			"source", src,
			"game_actor", n.GameActor,
			"game_id", n.GameID.String(),
			"discord_actor", n.DiscordActor,
			"discord_id", n.DiscordID,
			"state", n.State,
		)
		return nil
	}

	if src == ir.SideGame {
		primaries = e.reg.ByGame(n.GameID)
	} else {
		primaries = e.reg.ByDiscord(n.DiscordID)
	}
	if len(primaries) == 0 {
		return nil
	}

	flow := e.newFlow()
	origin := ir.OriginGame
	if src == ir.SideDiscord {
		origin = ir.OriginDiscord
	}
	linked, linkErr := e.resolve(ctx, &a, src)

	outcome := func(p ir.Pairing, result ir.Result, err error) ir.Outcome {
		return e.record(ctx, ir.Outcome{
			FlowToken:    flow,
			Origin:       origin,
			Pairing:      p,
			GameActor:    a.game,
			DiscordActor: a.discord,
			Result:       result,
			Err:          err,
		})
	}

	// Primaries are handled in their own right; fan-out never revisits them.
	seen := make(map[ir.PairKey]bool, len(primaries))
	for _, p := range primaries {
		seen[p.Key()] = true
	}

	var out []ir.Outcome
	for _, p := range primaries {
		if linkErr != nil {
			out = append(out, outcome(p, ir.ResultBackendFailure, failureFor(p, dst, linkErr)))
			continue
		}
		if !linked {
			out = append(out, outcome(p, ir.ResultNotLinked, notLinked(p, dst)))
			continue
		}
		if !p.Direction.AllowsWriteTo(dst) {
			out = append(out, outcome(p, ir.ResultWrongDirection, nil))
			continue
		}

		result, err := e.applyIfNot(ctx, dst, p, a, n.State)
		out = append(out, outcome(p, result, err))
		if err != nil || p.Direction != ir.DirectionBidirectional {
			continue
		}

		// Fan out through the identifier just written: every other
		// pairing on it gets the new state on the source side.
		var siblings []ir.Pairing
		if dst == ir.SideGame {
			siblings = e.reg.ByGame(p.GameID)
		} else {
			siblings = e.reg.ByDiscord(p.DiscordID)
		}
		for _, sib := range siblings {
			if seen[sib.Key()] {
				continue
			}
			seen[sib.Key()] = true

			if !sib.Direction.AllowsWriteTo(src) {
				out = append(out, outcome(sib, ir.ResultWrongDirection, nil))
				continue
			}
			result, err := e.applyIfNot(ctx, src, sib, a, n.State)
			out = append(out, outcome(sib, result, err))
		}
	}
	return out
}

// resolve fills in the actor for the side opposite known.
func (e *Engine) resolve(ctx context.Context, a *actors, known ir.Side) (bool, error) {
	var linked bool
	err := guard("linker", func() error {
		var err error
		if known == ir.SideGame {
			a.discord, linked, err = e.linker.DiscordFor(ctx, a.game)
		} else {
			a.game, linked, err = e.linker.GameFor(ctx, a.discord)
		}
		return err
	})
	if err != nil {
		return false, err
	}
	if (known == ir.SideGame && a.discord == "") || (known == ir.SideDiscord && a.game == "") {
		linked = false
	}
	return linked, nil
}

func failureFor(p ir.Pairing, side ir.Side, err error) error {
	return ir.NewFailure(ir.FailureBackendQuery, ir.ResultBackendFailure, side, p.Key(),
		"account link lookup failed", err)
}

func notLinked(p ir.Pairing, side ir.Side) error {
	return ir.NewFailure(ir.FailureUnresolvedActor, ir.ResultNotLinked, side, p.Key(),
		"account is not linked", nil)
}
