package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linksync/internal/ir"
)

// Two resyncs of the same actor and pairing that both read before either
// writes will both write. The duplicate write is accepted: the stores
// converge and nothing loops.
func TestRace_SameActorBothObserveOldState(t *testing.T) {
	ctx := context.Background()
	p := bidi(vip, role1)
	env := newTestEnv(t, []ir.Pairing{p})
	env.b.SetDiscord(aliceD, role1, true)

	var barrier sync.WaitGroup
	barrier.Add(2)
	env.b.OnGet = func(side ir.Side) {
		if side == ir.SideGame {
			barrier.Done()
			barrier.Wait()
		}
	}

	var wg sync.WaitGroup
	got := make([]ir.Outcome, 2)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = env.e.Resync(ctx, p, alice, aliceD)
		}()
	}
	wg.Wait()
	env.b.OnGet = nil

	assert.Equal(t, ir.ResultAddGame, got[0].Result)
	assert.Equal(t, ir.ResultAddGame, got[1].Result)
	assert.Equal(t, 2, env.b.Writes(ir.SideGame))
	assert.True(t, env.b.HasGame(alice, vip))

	// The first echo consumes the shared expectation; the second one
	// propagates, finds discord already true and stops.
	out := env.replayEchoes(ctx)
	assert.Equal(t, []ir.Result{ir.ResultBothTrue}, results(out))
	assert.Equal(t, ir.ResultBothTrue, env.e.Resync(ctx, p, alice, aliceD).Result)
}

func TestRace_ManyConcurrentReconciliations(t *testing.T) {
	ctx := context.Background()
	p1, p2 := bidi(vip, role1), bidi(vip, role2)
	env := newTestEnv(t, []ir.Pairing{p1, p2})
	env.b.SetDiscord(aliceD, role1, true)

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				o := env.e.Resync(ctx, p1, alice, aliceD)
				assert.Contains(t, []ir.Result{ir.ResultAddGame, ir.ResultBothTrue}, o.Result)
			} else {
				for _, o := range env.e.DiscordChanged(ctx, aliceD, role1, true) {
					assert.True(t, o.Result.Success(), "unexpected %s", o.Result)
				}
			}
		}()
	}
	wg.Wait()

	assert.True(t, env.b.HasGame(alice, vip))
	assert.LessOrEqual(t, env.b.Writes(ir.SideGame), workers)

	// Quiesce: replay echoes until the system stops producing writes.
	for i := 0; i < 4; i++ {
		env.replayEchoes(ctx)
	}
	require.Empty(t, env.b.TakeEchoes())
	assert.Equal(t, ir.ResultBothTrue, env.e.Resync(ctx, p1, alice, aliceD).Result)
}

// Different actors proceed independently and all converge.
func TestRace_DifferentActors(t *testing.T) {
	ctx := context.Background()
	p := bidi(vip, role1)
	env := newTestEnv(t, []ir.Pairing{p})

	actorsList := []struct {
		g ir.GameActor
		d ir.DiscordActor
	}{{alice, aliceD}, {carol, carolD}}
	for _, a := range actorsList {
		env.b.SetDiscord(a.d, role1, true)
	}

	var wg sync.WaitGroup
	for _, a := range actorsList {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, ir.ResultAddGame, env.e.Resync(ctx, p, a.g, a.d).Result)
		}()
	}
	wg.Wait()

	assert.True(t, env.b.HasGame(alice, vip))
	assert.True(t, env.b.HasGame(carol, vip))
	assert.Empty(t, env.replayEchoes(ctx))
}
