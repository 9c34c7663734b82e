package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/linksync/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, ev := range e.Trace {
			if ev.Type == EventEcho {
				fmt.Fprintf(&buf, "  [%d] echo suppressed (%s)\n", i+1, ev.Side)
				continue
			}
			fmt.Fprintf(&buf, "  [%d] seq=%d %s %s %s/%s %s\n",
				i+1, ev.Seq, ev.Origin, ev.Pairing, ev.GameActor, ev.DiscordActor, ev.Result)
		}
	}

	return buf.String()
}

func (h *Harness) evaluate(a Assertion, trace []TraceEvent) error {
	switch a.Type {
	case AssertState:
		return h.assertState(a)
	case AssertTraceContains:
		return assertTraceContains(trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(trace, a)
	case AssertTraceCount:
		return assertTraceCount(trace, a)
	case AssertEchoes:
		return assertEchoes(trace, a)
	case AssertPending:
		game, discord := h.engine.PendingExpectations()
		if game+discord != a.Count {
			return &AssertionError{
				Type:     AssertPending,
				Expected: fmt.Sprintf("%d pending expectations", a.Count),
				Actual:   fmt.Sprintf("%d (game=%d, discord=%d)", game+discord, game, discord),
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (h *Harness) assertState(a Assertion) error {
	var has bool
	if side, _ := ir.ParseSide(a.Side); side == ir.SideGame {
		has = h.backend.HasGame(ir.GameActor(a.Actor), ir.ParseGameID(a.ID))
	} else {
		has = h.backend.HasDiscord(ir.DiscordActor(a.Actor), ir.DiscordID(a.ID))
	}
	if has != a.State {
		return &AssertionError{
			Type:     AssertState,
			Expected: fmt.Sprintf("%s %s has %s = %t", a.Side, a.Actor, a.ID, a.State),
			Actual:   fmt.Sprintf("%t", has),
		}
	}
	return nil
}

// matches reports whether an outcome event satisfies the result, pairing
// and origin filters of a (empty filters match anything).
func matches(ev TraceEvent, a Assertion) bool {
	return ev.Type == EventOutcome &&
		ev.Result == a.Result &&
		(a.Pairing == "" || ev.Pairing == a.Pairing) &&
		(a.Origin == "" || ev.Origin == a.Origin)
}

func describe(a Assertion) string {
	desc := a.Result
	if a.Pairing != "" {
		desc += " on " + a.Pairing
	}
	if a.Origin != "" {
		desc += " from " + a.Origin
	}
	return desc
}

// assertTraceContains checks that some outcome matches the assertion.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describe(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the results appear in the given relative
// order. Intervening outcomes are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next < len(a.Results) && ev.Type == EventOutcome && ev.Result == a.Results[next] {
			next++
		}
	}
	if next == len(a.Results) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: strings.Join(a.Results, " -> "),
		Actual:   fmt.Sprintf("only the first %d found in order", next),
		Trace:    trace,
	}
}

// assertTraceCount checks that exactly Count outcomes match.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	n := 0
	for _, ev := range trace {
		if matches(ev, a) {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s exactly %d times", describe(a), a.Count),
			Actual:   fmt.Sprintf("%d times", n),
			Trace:    trace,
		}
	}
	return nil
}

// assertEchoes checks the number of suppressed echoes, optionally on one
// side.
func assertEchoes(trace []TraceEvent, a Assertion) error {
	n := 0
	for _, ev := range trace {
		if ev.Type == EventEcho && (a.Side == "" || ev.Side == a.Side) {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertEchoes,
			Expected: fmt.Sprintf("%d suppressed echoes", a.Count),
			Actual:   fmt.Sprintf("%d", n),
			Trace:    trace,
		}
	}
	return nil
}
