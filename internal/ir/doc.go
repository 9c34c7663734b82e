// Package ir holds the shared vocabulary of linksync: pairings, sync
// states, result tags and the typed failure signal.
//
// This package contains type definitions and small pure helpers only.
// All other internal packages import ir; ir imports nothing internal, so
// the registry, the engine, the stores and the CLI can exchange values
// without circular dependencies.
//
// Key design constraints:
//   - Pairing identity is (GameID, DiscordID); Name is a display label only
//   - Identifiers are normalized once, at configuration time (see Normalize)
//   - Result values are immutable tags, never mutated after creation
//   - All JSON tags use snake_case
package ir
