package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/linksync/internal/ir"
)

// HasGroup reports whether actor holds id. With includeInherited, a group
// reached through group_parents from any group the actor holds in the
// same context counts as well.
func (s *Store) HasGroup(ctx context.Context, actor ir.GameActor, id ir.GameID, includeInherited bool) (bool, error) {
	id = ir.NormalizeGameID(id)

	query := `
		SELECT EXISTS(
			SELECT 1 FROM game_groups
			WHERE actor = ? AND grp = ? AND context = ?
		)
	`
	args := []any{string(actor), id.Group, id.Context}
	if includeInherited {
		// UNION (not UNION ALL) discards revisited groups, so an
		// inheritance cycle terminates.
		query = `
			WITH RECURSIVE held(grp) AS (
				SELECT grp FROM game_groups WHERE actor = ? AND context = ?
				UNION
				SELECT p.parent FROM group_parents p
				JOIN held h ON p.grp = h.grp
				WHERE p.context = ?
			)
			SELECT EXISTS(SELECT 1 FROM held WHERE grp = ?)
		`
		args = []any{string(actor), id.Context, id.Context, id.Group}
	}

	var has bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&has); err != nil {
		return false, fmt.Errorf("has group: %w", err)
	}
	return has, nil
}

// GroupMembers returns the actors directly holding id, in byte order.
func (s *Store) GroupMembers(ctx context.Context, id ir.GameID) ([]ir.GameActor, error) {
	id = ir.NormalizeGameID(id)
	rows, err := s.db.QueryContext(ctx, `
		SELECT actor FROM game_groups
		WHERE grp = ? AND context = ?
		ORDER BY actor COLLATE BINARY ASC
	`, id.Group, id.Context)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer rows.Close()

	var out []ir.GameActor
	for rows.Next() {
		var actor string
		if err := rows.Scan(&actor); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		out = append(out, ir.GameActor(actor))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group members: %w", err)
	}
	return out, nil
}

// HasRole reports whether actor holds the role id.
func (s *Store) HasRole(ctx context.Context, actor ir.DiscordActor, id ir.DiscordID) (bool, error) {
	var has bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM discord_roles WHERE actor = ? AND role = ?)
	`, string(actor), string(ir.NormalizeDiscordID(id))).Scan(&has)
	if err != nil {
		return false, fmt.Errorf("has role: %w", err)
	}
	return has, nil
}

// RoleMembers returns the actors holding id, in byte order.
func (s *Store) RoleMembers(ctx context.Context, id ir.DiscordID) ([]ir.DiscordActor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT actor FROM discord_roles
		WHERE role = ?
		ORDER BY actor COLLATE BINARY ASC
	`, string(ir.NormalizeDiscordID(id)))
	if err != nil {
		return nil, fmt.Errorf("query role members: %w", err)
	}
	defer rows.Close()

	var out []ir.DiscordActor
	for rows.Next() {
		var actor string
		if err := rows.Scan(&actor); err != nil {
			return nil, fmt.Errorf("scan role member: %w", err)
		}
		out = append(out, ir.DiscordActor(actor))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role members: %w", err)
	}
	return out, nil
}

// DiscordFor returns the discord account linked to a game account.
func (s *Store) DiscordFor(ctx context.Context, actor ir.GameActor) (ir.DiscordActor, bool, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `
		SELECT discord_actor FROM links WHERE game_actor = ?
	`, string(actor)).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup link: %w", err)
	}
	return ir.DiscordActor(d), true, nil
}

// GameFor returns the game account linked to a discord account.
func (s *Store) GameFor(ctx context.Context, actor ir.DiscordActor) (ir.GameActor, bool, error) {
	var g string
	err := s.db.QueryRowContext(ctx, `
		SELECT game_actor FROM links WHERE discord_actor = ?
	`, string(actor)).Scan(&g)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup link: %w", err)
	}
	return ir.GameActor(g), true, nil
}

// MaxSeq returns the highest journaled seq, or 0 for an empty journal.
// A restarted engine resumes its logical clock from here.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM sync_results`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq.Int64, nil
}

// Record is one journaled outcome as read back.
type Record struct {
	ir.Outcome
	Error         string `json:"error,omitempty"`
	EngineVersion string `json:"engine_version"`
}

// HistoryFilter narrows a History query. Zero fields match everything.
type HistoryFilter struct {
	GameActor    ir.GameActor
	DiscordActor ir.DiscordActor
	FlowToken    string
	// Limit keeps only the newest Limit records; 0 means no limit.
	Limit int
}

// History returns journaled outcomes matching f in ascending seq order.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) History(ctx context.Context, f HistoryFilter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if f.GameActor != "" {
		where = append(where, "game_actor = ?")
		args = append(args, string(f.GameActor))
	}
	if f.DiscordActor != "" {
		where = append(where, "discord_actor = ?")
		args = append(args, string(f.DiscordActor))
	}
	if f.FlowToken != "" {
		where = append(where, "flow_token = ?")
		args = append(args, f.FlowToken)
	}

	query := `
		SELECT seq, flow_token, origin, pairing, game_actor, discord_actor, result, error, engine_version
		FROM sync_results`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Limit > 0 {
		// Newest Limit rows, re-sorted ascending.
		query = "SELECT * FROM (" + query + " ORDER BY seq DESC LIMIT ?) ORDER BY seq ASC"
		args = append(args, f.Limit)
	} else {
		query += " ORDER BY seq ASC"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		rec                                        Record
		origin, pairingJSON, game, discord, result string
	)
	if err := rows.Scan(
		&rec.Seq,
		&rec.FlowToken,
		&origin,
		&pairingJSON,
		&game,
		&discord,
		&result,
		&rec.Error,
		&rec.EngineVersion,
	); err != nil {
		return Record{}, fmt.Errorf("scan sync result: %w", err)
	}

	p, err := unmarshalPairing(pairingJSON)
	if err != nil {
		return Record{}, fmt.Errorf("scan sync result seq=%d: %w", rec.Seq, err)
	}
	rec.Origin = ir.Origin(origin)
	rec.Pairing = p
	rec.GameActor = ir.GameActor(game)
	rec.DiscordActor = ir.DiscordActor(discord)
	rec.Result = ir.Result(result)
	if rec.Error != "" {
		rec.Err = errors.New(rec.Error)
	}
	return rec, nil
}
