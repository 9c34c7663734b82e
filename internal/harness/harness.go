package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/linksync/internal/config"
	"github.com/roach88/linksync/internal/engine"
	"github.com/roach88/linksync/internal/ir"
	"github.com/roach88/linksync/internal/testutil"
)

// maxEchoRounds bounds echo replay. A scenario still producing echoes
// after this many rounds has a feedback loop.
const maxEchoRounds = 50

// Harness is the test execution engine.
// It runs scenarios with a manual clock and sequential flow tokens.
type Harness struct {
	engine  *engine.Engine
	backend *testutil.FakeBackend
	clock   *testutil.ManualClock

	mu    sync.Mutex
	trace []TraceEvent
}

// Run executes a scenario and returns the result. Each scenario runs
// against fresh fake stores.
//
// Execution flow:
//  1. Compile and configure the pairings
//  2. Apply links and setup state
//  3. Execute each step, replaying echoes after it
//  4. Evaluate assertions
//
// The returned error reports a scenario that could not run at all;
// failed expectations are recorded in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	pairings, rejected, err := compilePairings(scenario)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		backend: testutil.NewFakeBackend(),
		clock:   testutil.NewManualClock(),
	}
	h.engine = engine.New(h.backend, h.backend,
		engine.WithRoster(h.backend),
		engine.WithWallClock(h.clock),
		engine.WithFlowGenerator(testutil.NewSequenceFlowGenerator("flow")),
		engine.WithObserver(h),
	)
	defer h.engine.Close()

	result := NewResult()
	result.Rejected = rejected + len(h.engine.Configure(pairings))
	if result.Rejected != scenario.Rejected {
		result.AddError(fmt.Sprintf("configure: expected %d rejected pairings, got %d", scenario.Rejected, result.Rejected))
	}

	for game, discord := range scenario.Links {
		h.backend.Link(ir.GameActor(game), ir.DiscordActor(discord))
	}
	for _, c := range scenario.Setup {
		h.set(c)
	}

	ctx := context.Background()
	for i, step := range scenario.Steps {
		before := len(h.snapshot())
		if err := h.execute(ctx, step); err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
			continue
		}
		if step.Expect != nil {
			got := results(h.snapshot()[before:])
			if !slices.Equal(got, step.Expect) {
				result.AddError(fmt.Sprintf("steps[%d]: expected results %v, got %v", i, step.Expect, got))
			}
		}
	}

	result.Trace = h.snapshot()
	for i, a := range scenario.Assertions {
		if err := h.evaluate(a, result.Trace); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return result, nil
}

// compilePairings runs the scenario's pairings through the YAML
// configuration loader.
func compilePairings(s *Scenario) ([]ir.Pairing, int, error) {
	doc := map[string]any{"pairings": s.Pairings}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, 0, fmt.Errorf("encode pairings: %w", err)
	}
	cfg, errs := config.CompileYAML(s.Name+".pairings", data)
	if cfg == nil {
		return nil, 0, fmt.Errorf("compile pairings: %w", errors.Join(errs...))
	}
	return cfg.Pairings, len(errs), nil
}

func (h *Harness) execute(ctx context.Context, step Step) error {
	switch {
	case step.Notify != nil:
		h.set(*step.Notify)
		h.notify(ctx, *step.Notify)
	case step.Drift != nil:
		h.set(*step.Drift)
	case step.Resync != nil:
		p, ok := h.pairing(step.Resync.Pairing)
		if !ok {
			return fmt.Errorf("unknown pairing %q", step.Resync.Pairing)
		}
		h.engine.Resync(ctx, p, ir.GameActor(step.Resync.Game), ir.DiscordActor(step.Resync.Discord))
	case step.ResyncAll != nil:
		if step.ResyncAll.Game != "" {
			h.engine.ResyncAll(ctx, ir.GameActor(step.ResyncAll.Game))
		} else {
			h.engine.ResyncAllDiscord(ctx, ir.DiscordActor(step.ResyncAll.Discord))
		}
	case step.Timer != "":
		p, ok := h.pairing(step.Timer)
		if !ok {
			return fmt.Errorf("unknown pairing %q", step.Timer)
		}
		h.engine.ResyncTimer(ctx, p)
	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
	case step.Replay:
		// Echoes are replayed below.
	case step.Fail != nil:
		h.fail(*step.Fail)
	}

	if step.HoldEchoes {
		return nil
	}
	return h.replayEchoes(ctx)
}

// replayEchoes feeds the fake stores' echoes back into the engine until
// none are left.
func (h *Harness) replayEchoes(ctx context.Context) error {
	for round := 0; round < maxEchoRounds; round++ {
		echoes := h.backend.TakeEchoes()
		if len(echoes) == 0 {
			return nil
		}
		for _, ec := range echoes {
			if ec.Side == ir.SideGame {
				h.engine.GameChanged(ctx, ec.GameActor, ec.GameID, ec.State)
			} else {
				h.engine.DiscordChanged(ctx, ec.DiscordActor, ec.DiscordID, ec.State)
			}
		}
	}
	return fmt.Errorf("feedback loop: echoes still flowing after %d rounds", maxEchoRounds)
}

func (h *Harness) set(c Change) {
	if side, _ := ir.ParseSide(c.Side); side == ir.SideGame {
		h.backend.SetGame(ir.GameActor(c.Actor), ir.ParseGameID(c.ID), c.State)
	} else {
		h.backend.SetDiscord(ir.DiscordActor(c.Actor), ir.DiscordID(c.ID), c.State)
	}
}

func (h *Harness) notify(ctx context.Context, c Change) {
	if side, _ := ir.ParseSide(c.Side); side == ir.SideGame {
		h.engine.GameChanged(ctx, ir.GameActor(c.Actor), ir.ParseGameID(c.ID), c.State)
	} else {
		h.engine.DiscordChanged(ctx, ir.DiscordActor(c.Actor), ir.DiscordID(c.ID), c.State)
	}
}

func (h *Harness) fail(f FailStep) {
	var err error
	if f.Error != "" {
		err = errors.New(f.Error)
	}
	side, _ := ir.ParseSide(f.Side)
	switch f.Op {
	case "get":
		h.backend.FailGet(side, err)
	case "apply":
		h.backend.FailApply(side, err)
	case "link":
		h.backend.FailLink(err)
	}
}

// pairing finds an active pairing by name.
func (h *Harness) pairing(name string) (ir.Pairing, bool) {
	for _, st := range h.engine.Pairings() {
		if st.Name != name {
			continue
		}
		for _, p := range h.engine.ByGame(st.Key.Game) {
			if p.Key() == st.Key {
				return p, true
			}
		}
	}
	return ir.Pairing{}, false
}

func (h *Harness) snapshot() []TraceEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]TraceEvent(nil), h.trace...)
}

func (h *Harness) add(e TraceEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trace = append(h.trace, e)
}

// Outcome implements engine.Observer.
func (h *Harness) Outcome(o ir.Outcome) { h.add(outcomeEvent(o)) }

// EchoSuppressed implements engine.Observer.
func (h *Harness) EchoSuppressed(side ir.Side) {
	h.add(TraceEvent{Type: EventEcho, Side: string(side)})
}

// NotificationDropped implements engine.Observer. The harness calls the
// engine synchronously, so nothing is ever queued.
func (h *Harness) NotificationDropped(ir.Side) {}

// PairingsRejected implements engine.Observer.
func (h *Harness) PairingsRejected(int) {}

func results(events []TraceEvent) []string {
	out := []string{}
	for _, e := range events {
		if e.Type == EventOutcome {
			out = append(out, e.Result)
		}
	}
	return out
}
