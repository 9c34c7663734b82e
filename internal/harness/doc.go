// Package harness runs scripted sync scenarios against the engine.
//
// A scenario configures pairings and account links over an in-memory
// fake of both stores, then drives the engine step by step. After every
// step the writes the engine made are replayed back into it as store
// notifications, exactly as real backends would report them, until no
// echo is left. The resulting trace of outcomes and suppressed echoes is
// checked against the scenario's assertions and, optionally, a golden
// file.
//
// # Scenario Format
//
//	name: fan_out
//	description: "A role change reaches every role paired with the group"
//	pairings:
//	  - {name: vip-a, game: vip, discord: role-a}
//	  - {name: vip-b, game: vip, discord: role-b}
//	links:
//	  alice: "1111"
//	setup:
//	  - {side: discord, actor: "1111", id: role-a, state: true}
//	steps:
//	  - notify: {side: discord, actor: "1111", id: role-a, state: true}
//	    expect: [ADD_GAME, ADD_DISCORD]
//	assertions:
//	  - {type: state, side: discord, actor: "1111", id: role-b, state: true}
//	  - {type: trace_count, result: ADD_DISCORD, count: 1}
//
// Steps (exactly one action per step):
//
//   - notify: change one store and report the change to the engine
//   - drift: change one store silently (no notification)
//   - resync: one-shot resync of a pairing for an actor pair
//   - resync_all: resync one actor against every pairing
//   - timer: run one timer pass for a pairing
//   - advance: move the expectation clock forward ("31s")
//   - replay: deliver echoes held back by an earlier hold_echoes step
//   - fail: make reads, writes or link lookups fail (error "" heals)
//
// # Assertion Types
//
//   - state: membership of one actor on one side
//   - trace_contains: an outcome with the given result (and pairing/origin)
//   - trace_order: results appear in the given relative order
//   - trace_count: a result appears exactly N times
//   - echoes: number of suppressed echoes
//   - pending: number of unconsumed expectations
//
// # Deterministic Testing
//
// Flow tokens come from testutil.SequenceFlowGenerator, the expectation
// clock is a testutil.ManualClock and outcome seqs come from a fresh
// logical clock, so identical scenarios produce identical traces.
package harness
