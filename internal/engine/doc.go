// Package engine implements the linksync reconciliation core.
//
// The engine keeps "has group G" on the game side equal to "has role R" on
// the discord side for every configured pairing. It never talks to either
// store directly; a sync kind supplies Accessors (see groupsync) and the
// host supplies a Linker for account mapping.
//
// ENTRY POINTS:
//
// Reactive propagation: GameChanged / DiscordChanged handle one external
// notification. OnExternalGameChange / OnExternalDiscordChange queue the
// notification instead, and Run drains each source's queue on its own
// goroutine. Per-source order is preserved; nothing orders the two
// sources against each other.
//
// Full resync: Resync reconciles one actor pair on one pairing using the
// pairing's tie-breaker. ResyncAll does it for every pairing of one actor.
// ResyncTimer does it for every member of one pairing and runs on a
// per-pairing schedule when the pairing has an enabled timer.
//
// LOOP SUPPRESSION:
//
// Every write is preceded by an expectation (package expect) on the
// written side. The store's echo of that write matches the expectation and
// is dropped. A failed write rolls the expectation back at once. Entries
// expire after the TTL, so a lost echo cannot mask a real change for long.
//
// CONCURRENCY:
//
// No lock is held across a store call. Two reconciliations of the same
// actor and pairing are not serialized: both may read the old state and
// both may write. Store writes are "set membership to X", so the second
// write is redundant but harmless.
//
// FAILURES:
//
// Query, mutation and link failures are converted to result tags on an
// ir.Outcome with an *ir.Failure attached. They are logged, journaled and
// counted, and never abort sibling pairings or other actors.
package engine
