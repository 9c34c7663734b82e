package engine

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/linksync/internal/ir"
)

// Resync is a one-shot, query-both-sides-then-reconcile pass for one
// actor pair and one pairing.
//
// When the two sides disagree, the tie-breaker's current state is written
// to the other side:
//
//	tie_breaker  game   discord  result
//	discord      false  true     ADD_GAME
//	discord      true   false    REMOVE_GAME
//	game         true   false    ADD_DISCORD
//	game         false  true     REMOVE_DISCORD
//
// A write the pairing's direction forbids yields WRONG_DIRECTION with no
// mutation. Resync never returns an error; failures are result tags.
func (e *Engine) Resync(ctx context.Context, p ir.Pairing, gameActor ir.GameActor, discordActor ir.DiscordActor) ir.Outcome {
	return e.resync(ctx, e.newFlow(), ir.OriginResync, p, actors{game: gameActor, discord: discordActor})
}

func (e *Engine) resync(ctx context.Context, flow string, origin ir.Origin, p ir.Pairing, a actors) ir.Outcome {
	o := ir.Outcome{
		FlowToken:    flow,
		Origin:       origin,
		Pairing:      p,
		GameActor:    a.game,
		DiscordActor: a.discord,
	}
	o.Result, o.Err = e.reconcile(ctx, p, a)
	return e.record(ctx, o)
}

func (e *Engine) reconcile(ctx context.Context, p ir.Pairing, a actors) (ir.Result, error) {
	if a.game == "" || a.discord == "" {
		side := ir.SideDiscord
		if a.game == "" {
			side = ir.SideGame
		}
		return ir.ResultNotLinked, notLinked(p, side)
	}

	// Query both sides concurrently. Query errors are kept per side, so
	// the group never short-circuits.
	var (
		g                errgroup.Group
		gameVal, discVal bool
		gameErr, discErr error
	)
	g.Go(func() error {
		gameVal, gameErr = e.read(ctx, ir.SideGame, p, a)
		return nil
	})
	g.Go(func() error {
		discVal, discErr = e.read(ctx, ir.SideDiscord, p, a)
		return nil
	})
	_ = g.Wait()

	gameState, discState := ir.StateOf(gameVal), ir.StateOf(discVal)
	if gameErr != nil {
		gameState = ir.StateUnattainable
	}
	if discErr != nil {
		discState = ir.StateUnattainable
	}

	switch {
	case gameState == ir.StateUnattainable && discState == ir.StateUnattainable:
		return ir.ResultNotLinked, ir.NewFailure(ir.FailureBackendQuery, ir.ResultNotLinked, "", p.Key(),
			"neither side could be queried", errors.Join(gameErr, discErr))
	case gameErr != nil:
		return ir.ResultBackendFailure, gameErr
	case discErr != nil:
		return ir.ResultBackendFailure, discErr
	case gameVal == discVal:
		return ir.ConvergedResult(gameVal), nil
	}

	target := p.TieBreaker.Opposite()
	desired := discVal
	if p.TieBreaker == ir.SideGame {
		desired = gameVal
	}
	if !p.Direction.AllowsWriteTo(target) {
		return ir.ResultWrongDirection, nil
	}
	return e.write(ctx, target, p, a, desired)
}

// ResyncAll reconciles one game actor against every active pairing, as
// an administrative command would. An unlinked actor yields NOT_LINKED
// for every pairing without touching either store.
func (e *Engine) ResyncAll(ctx context.Context, gameActor ir.GameActor) map[ir.PairKey]ir.Outcome {
	return e.resyncAll(ctx, ir.SideGame, actors{game: gameActor})
}

// ResyncAllDiscord is ResyncAll starting from a discord account.
func (e *Engine) ResyncAllDiscord(ctx context.Context, discordActor ir.DiscordActor) map[ir.PairKey]ir.Outcome {
	return e.resyncAll(ctx, ir.SideDiscord, actors{discord: discordActor})
}

func (e *Engine) resyncAll(ctx context.Context, known ir.Side, a actors) map[ir.PairKey]ir.Outcome {
	pairings := e.reg.All()
	out := make(map[ir.PairKey]ir.Outcome, len(pairings))
	if len(pairings) == 0 {
		return out
	}

	flow := e.newFlow()
	linked, linkErr := e.resolve(ctx, &a, known)

	for _, p := range pairings {
		switch {
		case linkErr != nil:
			out[p.Key()] = e.record(ctx, ir.Outcome{
				FlowToken:    flow,
				Origin:       ir.OriginResync,
				Pairing:      p,
				GameActor:    a.game,
				DiscordActor: a.discord,
				Result:       ir.ResultBackendFailure,
				Err:          failureFor(p, known.Opposite(), linkErr),
			})
		case !linked:
			out[p.Key()] = e.record(ctx, ir.Outcome{
				FlowToken:    flow,
				Origin:       ir.OriginResync,
				Pairing:      p,
				GameActor:    a.game,
				DiscordActor: a.discord,
				Result:       ir.ResultNotLinked,
				Err:          notLinked(p, known.Opposite()),
			})
		default:
			out[p.Key()] = e.resync(ctx, flow, ir.OriginResync, p, a)
		}
	}
	return out
}

// ResyncTimer reconciles every known actor of one pairing: the members of
// its game group and of its role, each resolved across the linker. Actors
// that appear on both sides are reconciled once.
func (e *Engine) ResyncTimer(ctx context.Context, p ir.Pairing) []ir.Outcome {
	if e.roster == nil {
		return nil
	}
	flow := e.newFlow()

	outcome := func(a actors, result ir.Result, err error) ir.Outcome {
		return e.record(ctx, ir.Outcome{
			FlowToken:    flow,
			Origin:       ir.OriginTimer,
			Pairing:      p,
			GameActor:    a.game,
			DiscordActor: a.discord,
			Result:       result,
			Err:          err,
		})
	}

	var out []ir.Outcome
	var gameMembers []ir.GameActor
	var discordMembers []ir.DiscordActor
	err := guard("game roster", func() error {
		var err error
		gameMembers, err = e.roster.GameMembers(ctx, p.GameID)
		return err
	})
	if err != nil {
		out = append(out, outcome(actors{}, ir.ResultBackendFailure,
			ir.NewFailure(ir.FailureBackendQuery, ir.ResultBackendFailure, ir.SideGame, p.Key(), "listing group members failed", err)))
	}
	err = guard("discord roster", func() error {
		var err error
		discordMembers, err = e.roster.DiscordMembers(ctx, p.DiscordID)
		return err
	})
	if err != nil {
		out = append(out, outcome(actors{}, ir.ResultBackendFailure,
			ir.NewFailure(ir.FailureBackendQuery, ir.ResultBackendFailure, ir.SideDiscord, p.Key(), "listing role members failed", err)))
	}

	seen := make(map[actors]bool)
	var targets []actors
	add := func(a actors, known ir.Side) {
		linked, err := e.resolve(ctx, &a, known)
		switch {
		case err != nil:
			out = append(out, outcome(a, ir.ResultBackendFailure, failureFor(p, known.Opposite(), err)))
		case !linked:
			out = append(out, outcome(a, ir.ResultNotLinked, notLinked(p, known.Opposite())))
		case !seen[a]:
			seen[a] = true
			targets = append(targets, a)
		}
	}
	for _, m := range gameMembers {
		add(actors{game: m}, ir.SideGame)
	}
	for _, m := range discordMembers {
		add(actors{discord: m}, ir.SideDiscord)
	}

	for _, a := range targets {
		if ctx.Err() != nil {
			break
		}
		out = append(out, e.resync(ctx, flow, ir.OriginTimer, p, a))
	}
	return out
}
