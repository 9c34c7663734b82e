package groupsync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linksync/internal/engine"
	"github.com/roach88/linksync/internal/ir"
	"github.com/roach88/linksync/internal/testutil"
)

var (
	_ engine.Accessors = (*Sync)(nil)
	_ engine.Roster    = (*Sync)(nil)
)

var vip = ir.Pairing{
	GameID:     ir.GameID{Group: "vip"},
	DiscordID:  "role-1",
	Direction:  ir.DirectionBidirectional,
	TieBreaker: ir.SideDiscord,
}

func TestSync_ReadsAndWrites(t *testing.T) {
	ctx := context.Background()
	b := testutil.NewFakeBackend()
	s := New(b, b)

	has, err := s.GetGame(ctx, "alice", vip)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.ApplyGame(ctx, "alice", vip, true))
	require.NoError(t, s.ApplyDiscord(ctx, "1111", vip, true))
	assert.True(t, b.HasGame("alice", vip.GameID))
	assert.True(t, b.HasDiscord("1111", vip.DiscordID))

	has, err = s.GetDiscord(ctx, "1111", vip)
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, s.ApplyGame(ctx, "alice", vip, false))
	assert.False(t, b.HasGame("alice", vip.GameID))
}

func TestSync_Members(t *testing.T) {
	ctx := context.Background()
	b := testutil.NewFakeBackend()
	b.SetGame("bob", vip.GameID, true)
	b.SetGame("alice", vip.GameID, true)
	b.SetDiscord("2222", vip.DiscordID, true)
	s := New(b, b)

	game, err := s.GameMembers(ctx, vip.GameID)
	require.NoError(t, err)
	assert.Equal(t, []ir.GameActor{"alice", "bob"}, game)

	discord, err := s.DiscordMembers(ctx, vip.DiscordID)
	require.NoError(t, err)
	assert.Equal(t, []ir.DiscordActor{"2222"}, discord)
}

func TestSync_WrapsWriteErrors(t *testing.T) {
	ctx := context.Background()
	b := testutil.NewFakeBackend()
	offline := errors.New("offline")
	b.FailApply(ir.SideDiscord, offline)
	s := New(b, b)

	err := s.ApplyDiscord(ctx, "1111", vip, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, offline)
	assert.Contains(t, err.Error(), "remove role role-1 for 1111")
}

// inheritStore records the includeInherited flag it was queried with.
type inheritStore struct {
	*testutil.FakeBackend
	inherited []bool
}

func (s *inheritStore) HasGroup(ctx context.Context, actor ir.GameActor, id ir.GameID, inherited bool) (bool, error) {
	s.inherited = append(s.inherited, inherited)
	return s.FakeBackend.HasGroup(ctx, actor, id, inherited)
}

func TestSync_Inherited(t *testing.T) {
	ctx := context.Background()
	store := &inheritStore{FakeBackend: testutil.NewFakeBackend()}

	_, err := New(store, store).GetGame(ctx, "alice", vip)
	require.NoError(t, err)
	_, err = New(store, store, WithInherited(true)).GetGame(ctx, "alice", vip)
	require.NoError(t, err)

	assert.Equal(t, []bool{false, true}, store.inherited)
}

// parentStore grants groups through a parent that RemoveGroup cannot touch.
type parentStore struct {
	*testutil.FakeBackend
	viaParent map[ir.GameID]bool
}

func (s *parentStore) HasGroup(ctx context.Context, actor ir.GameActor, id ir.GameID, inherited bool) (bool, error) {
	if inherited && s.viaParent[id] {
		return true, nil
	}
	return s.FakeBackend.HasGroup(ctx, actor, id, inherited)
}

func TestSync_RemoveInheritedGroupFails(t *testing.T) {
	ctx := context.Background()
	store := &parentStore{
		FakeBackend: testutil.NewFakeBackend(),
		viaParent:   map[ir.GameID]bool{vip.GameID: true},
	}
	store.SetGame("alice", vip.GameID, true)

	err := New(store, store, WithInherited(true)).ApplyGame(ctx, "alice", vip, false)
	require.ErrorIs(t, err, ErrInherited)
	// The direct grant is still removed.
	assert.False(t, store.HasGame("alice", vip.GameID))

	// Without inherited reads the removal is taken at face value.
	require.NoError(t, New(store, store).ApplyGame(ctx, "alice", vip, false))
	// Adds are never second-guessed.
	require.NoError(t, New(store, store, WithInherited(true)).ApplyGame(ctx, "alice", vip, true))
}

func TestSync_DrivesEngine(t *testing.T) {
	ctx := context.Background()
	b := testutil.NewFakeBackend()
	b.Link("alice", "1111")
	b.SetDiscord("1111", vip.DiscordID, true)

	s := New(b, b)
	e := engine.New(s, b, engine.WithRoster(s))
	defer e.Close()
	require.Empty(t, e.Configure([]ir.Pairing{vip}))

	out := e.Resync(ctx, e.ByGame(vip.GameID)[0], "alice", "1111")
	assert.Equal(t, ir.ResultAddGame, out.Result)
	assert.True(t, b.HasGame("alice", vip.GameID))

	// The echo of the write is suppressed.
	assert.Empty(t, e.GameChanged(ctx, "alice", vip.GameID, true))

	outcomes := e.ResyncTimer(ctx, vip)
	require.Len(t, outcomes, 1)
	assert.Equal(t, ir.ResultBothTrue, outcomes[0].Result)
}
