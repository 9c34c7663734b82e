package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Type: EventOutcome, Seq: 1, Origin: "discord", Pairing: "vip", GameActor: "alice", DiscordActor: "d-alice", Result: "ADD_GAME"},
		{Type: EventOutcome, Seq: 2, Origin: "discord", Pairing: "vip-alt", GameActor: "alice", DiscordActor: "d-alice", Result: "ADD_DISCORD"},
		{Type: EventEcho, Side: "game"},
		{Type: EventOutcome, Seq: 3, Origin: "timer", Pairing: "vip", GameActor: "alice", DiscordActor: "d-alice", Result: "BOTH_TRUE"},
		{Type: EventEcho, Side: "discord"},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Result: "ADD_GAME"}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Result: "ADD_DISCORD", Pairing: "vip-alt"}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Result: "BOTH_TRUE", Origin: "timer"}))

	err := assertTraceContains(trace, Assertion{Type: AssertTraceContains, Result: "ADD_GAME", Origin: "timer"})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "ADD_GAME from timer", ae.Expected)
	assert.Len(t, ae.Trace, 5)
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Results: []string{"ADD_GAME", "BOTH_TRUE"}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Results: []string{"ADD_GAME", "ADD_DISCORD", "BOTH_TRUE"}}))

	err := assertTraceOrder(trace, Assertion{Results: []string{"BOTH_TRUE", "ADD_GAME"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only the first 1 found in order")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Result: "ADD_GAME", Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Result: "REMOVE_GAME", Count: 0}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Result: "BOTH_TRUE", Pairing: "vip", Count: 1}))

	err := assertTraceCount(trace, Assertion{Result: "ADD_GAME", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 times")
}

func TestAssertEchoes(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertEchoes(trace, Assertion{Count: 2}))
	assert.NoError(t, assertEchoes(trace, Assertion{Side: "game", Count: 1}))
	assert.Error(t, assertEchoes(trace, Assertion{Side: "discord", Count: 0}))
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "ADD_GAME exactly 2 times",
		Actual:   "1 times",
		Trace:    sampleTrace()[:3],
	}

	want := "Assertion failed: trace_count\n" +
		"  Expected: ADD_GAME exactly 2 times\n" +
		"  Actual: 1 times\n" +
		"\nFull trace:\n" +
		"  [1] seq=1 discord vip alice/d-alice ADD_GAME\n" +
		"  [2] seq=2 discord vip-alt alice/d-alice ADD_DISCORD\n" +
		"  [3] echo suppressed (game)\n"
	assert.Equal(t, want, err.Error())
}
