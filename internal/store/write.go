package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/roach88/linksync/internal/ir"
)

// AddGroup grants actor the group id. Idempotent: granting a group the
// actor already holds changes nothing and notifies nobody.
func (s *Store) AddGroup(ctx context.Context, actor ir.GameActor, id ir.GameID) error {
	id = ir.NormalizeGameID(id)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO game_groups (actor, grp, context)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING
	`, string(actor), id.Group, id.Context)
	if err != nil {
		return fmt.Errorf("add group: %w", err)
	}
	s.notifyGame(res, actor, id, true)
	return nil
}

// RemoveGroup revokes the group id from actor. Idempotent.
func (s *Store) RemoveGroup(ctx context.Context, actor ir.GameActor, id ir.GameID) error {
	id = ir.NormalizeGameID(id)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM game_groups
		WHERE actor = ? AND grp = ? AND context = ?
	`, string(actor), id.Group, id.Context)
	if err != nil {
		return fmt.Errorf("remove group: %w", err)
	}
	s.notifyGame(res, actor, id, false)
	return nil
}

// AddParent makes child inherit parent within child's context.
func (s *Store) AddParent(ctx context.Context, child ir.GameID, parent string) error {
	child = ir.NormalizeGameID(child)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_parents (grp, context, parent)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING
	`, child.Group, child.Context, ir.NormalizeName(parent))
	if err != nil {
		return fmt.Errorf("add parent: %w", err)
	}
	return nil
}

// AddRole grants actor the role id. Idempotent.
func (s *Store) AddRole(ctx context.Context, actor ir.DiscordActor, id ir.DiscordID) error {
	id = ir.NormalizeDiscordID(id)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO discord_roles (actor, role)
		VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, string(actor), string(id))
	if err != nil {
		return fmt.Errorf("add role: %w", err)
	}
	s.notifyDiscord(res, actor, id, true)
	return nil
}

// RemoveRole revokes the role id from actor. Idempotent.
func (s *Store) RemoveRole(ctx context.Context, actor ir.DiscordActor, id ir.DiscordID) error {
	id = ir.NormalizeDiscordID(id)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM discord_roles
		WHERE actor = ? AND role = ?
	`, string(actor), string(id))
	if err != nil {
		return fmt.Errorf("remove role: %w", err)
	}
	s.notifyDiscord(res, actor, id, false)
	return nil
}

// Link records that game and discord are the same person. Any previous
// link of either account is replaced.
func (s *Store) Link(ctx context.Context, game ir.GameActor, discord ir.DiscordActor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM links WHERE game_actor = ? OR discord_actor = ?
	`, string(game), string(discord)); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO links (game_actor, discord_actor) VALUES (?, ?)
	`, string(game), string(discord)); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	return nil
}

// Unlink removes the link of a game account, if any.
func (s *Store) Unlink(ctx context.Context, game ir.GameActor) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM links WHERE game_actor = ?`, string(game)); err != nil {
		return fmt.Errorf("unlink: %w", err)
	}
	return nil
}

// Append journals one outcome, keyed by its seq.
// Uses ON CONFLICT(seq) DO NOTHING for idempotency.
func (s *Store) Append(ctx context.Context, o ir.Outcome) error {
	pairingJSON, err := marshalPairing(o.Pairing)
	if err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_results
		(seq, flow_token, origin, pairing, game_group, game_context, discord_role,
		 game_actor, discord_actor, result, error, engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		o.Seq,
		o.FlowToken,
		string(o.Origin),
		pairingJSON,
		o.Pairing.GameID.Group,
		o.Pairing.GameID.Context,
		string(o.Pairing.DiscordID),
		string(o.GameActor),
		string(o.DiscordActor),
		string(o.Result),
		o.ErrorText(),
		ir.EngineVersion,
	)
	if err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}
	return nil
}

// notifyGame reports a committed change. Statements that matched no row
// did not change membership and are not reported.
func (s *Store) notifyGame(res sql.Result, actor ir.GameActor, id ir.GameID, state bool) {
	n := s.currentNotifier()
	if n == nil || !changed(res) {
		return
	}
	if err := n.OnExternalGameChange(actor, id, state); err != nil {
		slog.Warn("game change not delivered", "actor", actor, "group", id.String(), "error", err)
	}
}

func (s *Store) notifyDiscord(res sql.Result, actor ir.DiscordActor, id ir.DiscordID, state bool) {
	n := s.currentNotifier()
	if n == nil || !changed(res) {
		return
	}
	if err := n.OnExternalDiscordChange(actor, id, state); err != nil {
		slog.Warn("discord change not delivered", "actor", actor, "role", id, "error", err)
	}
}

func changed(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err == nil && n > 0
}
