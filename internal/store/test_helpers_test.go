package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/linksync/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestOutcome creates an outcome with minimal required fields.
func createTestOutcome(seq int64, flow string, game ir.GameActor, result ir.Result) ir.Outcome {
	return ir.Outcome{
		Seq:       seq,
		FlowToken: flow,
		Origin:    ir.OriginResync,
		Pairing: ir.Pairing{
			Name:       "VIP",
			GameID:     ir.GameID{Group: "vip"},
			DiscordID:  "role-1",
			Direction:  ir.DirectionBidirectional,
			TieBreaker: ir.SideDiscord,
		},
		GameActor:    game,
		DiscordActor: "1111",
		Result:       result,
	}
}

// recordingNotifier captures store change notifications.
type recordingNotifier struct {
	game    []string
	discord []string
}

func (n *recordingNotifier) OnExternalGameChange(actor ir.GameActor, group ir.GameID, state bool) error {
	n.game = append(n.game, change(string(actor), group.String(), state))
	return nil
}

func (n *recordingNotifier) OnExternalDiscordChange(actor ir.DiscordActor, role ir.DiscordID, state bool) error {
	n.discord = append(n.discord, change(string(actor), string(role), state))
	return nil
}

func change(actor, id string, state bool) string {
	if state {
		return "+" + actor + ":" + id
	}
	return "-" + actor + ":" + id
}
