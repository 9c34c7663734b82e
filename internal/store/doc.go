// Package store provides a SQLite snapshot of both membership stores and
// the append-only sync result journal.
//
// The snapshot holds current state only:
//   - game_groups: game actor -> permission group (per context)
//   - group_parents: group inheritance, used by inherited reads
//   - discord_roles: discord actor -> role
//   - links: the one-to-one account link table
//
// A Store implements groupsync.GameStore, groupsync.DiscordStore,
// engine.Linker and engine.Journal, so a stand-alone engine can run
// entirely against one database file.
//
// # Ordering
//
// Journal rows are keyed by the engine's logical seq. All history queries
// order by seq, never by wall time, and MaxSeq lets a restarted engine
// resume its clock after the last journaled outcome.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
