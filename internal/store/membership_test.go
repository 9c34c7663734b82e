package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linksync/internal/ir"
)

var vip = ir.GameID{Group: "vip"}

func TestGroups_AddRemove(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.NoError(t, s.AddGroup(ctx, "alice", vip))
	require.NoError(t, s.AddGroup(ctx, "alice", vip)) // idempotent

	has, err := s.HasGroup(ctx, "alice", vip, false)
	require.NoError(t, err)
	assert.True(t, has)

	// Identifiers are normalized on the way in.
	has, err = s.HasGroup(ctx, "alice", ir.GameID{Group: " VIP ", Context: "global"}, false)
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, s.RemoveGroup(ctx, "alice", vip))
	require.NoError(t, s.RemoveGroup(ctx, "alice", vip))
	has, err = s.HasGroup(ctx, "alice", vip, false)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestGroups_ContextIsolation(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	survival := ir.GameID{Group: "vip", Context: "survival"}

	require.NoError(t, s.AddGroup(ctx, "alice", survival))

	has, err := s.HasGroup(ctx, "alice", vip, false)
	require.NoError(t, err)
	assert.False(t, has)

	has, err = s.HasGroup(ctx, "alice", survival, false)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestGroups_Inheritance(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	admin := ir.GameID{Group: "admin"}
	mod := ir.GameID{Group: "mod"}

	// admin -> mod -> vip, plus a cycle back to admin.
	require.NoError(t, s.AddParent(ctx, admin, "mod"))
	require.NoError(t, s.AddParent(ctx, mod, "vip"))
	require.NoError(t, s.AddParent(ctx, vip, "admin"))
	require.NoError(t, s.AddGroup(ctx, "alice", admin))

	has, err := s.HasGroup(ctx, "alice", vip, false)
	require.NoError(t, err)
	assert.False(t, has, "direct read ignores parents")

	has, err = s.HasGroup(ctx, "alice", vip, true)
	require.NoError(t, err)
	assert.True(t, has, "inherited through two levels")

	has, err = s.HasGroup(ctx, "bob", vip, true)
	require.NoError(t, err)
	assert.False(t, has)

	// Members are direct holders only.
	members, err := s.GroupMembers(ctx, vip)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestGroupMembers_Sorted(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	for _, a := range []ir.GameActor{"carol", "alice", "bob"} {
		require.NoError(t, s.AddGroup(ctx, a, vip))
	}

	members, err := s.GroupMembers(ctx, vip)
	require.NoError(t, err)
	assert.Equal(t, []ir.GameActor{"alice", "bob", "carol"}, members)
}

func TestRoles(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.NoError(t, s.AddRole(ctx, "2222", "role-1"))
	require.NoError(t, s.AddRole(ctx, "1111", "role-1"))
	require.NoError(t, s.AddRole(ctx, "1111", "role-2"))

	members, err := s.RoleMembers(ctx, "role-1")
	require.NoError(t, err)
	assert.Equal(t, []ir.DiscordActor{"1111", "2222"}, members)

	require.NoError(t, s.RemoveRole(ctx, "1111", "role-1"))
	has, err := s.HasRole(ctx, "1111", "role-1")
	require.NoError(t, err)
	assert.False(t, has)

	has, err = s.HasRole(ctx, "1111", " role-2 ")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestLinks(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, ok, err := s.DiscordFor(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Link(ctx, "alice", "1111"))
	d, ok, err := s.DiscordFor(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ir.DiscordActor("1111"), d)

	g, ok, err := s.GameFor(ctx, "1111")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ir.GameActor("alice"), g)

	// Relinking the discord account to bob drops alice's link.
	require.NoError(t, s.Link(ctx, "bob", "1111"))
	_, ok, err = s.DiscordFor(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
	g, _, err = s.GameFor(ctx, "1111")
	require.NoError(t, err)
	assert.Equal(t, ir.GameActor("bob"), g)

	require.NoError(t, s.Unlink(ctx, "bob"))
	_, ok, err = s.GameFor(ctx, "1111")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNotifier_OnlyRealChanges(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	n := &recordingNotifier{}
	s.SetNotifier(n)

	require.NoError(t, s.AddGroup(ctx, "alice", vip))
	require.NoError(t, s.AddGroup(ctx, "alice", vip))
	require.NoError(t, s.RemoveGroup(ctx, "alice", vip))
	require.NoError(t, s.RemoveGroup(ctx, "alice", vip))
	require.NoError(t, s.AddRole(ctx, "1111", "role-1"))
	require.NoError(t, s.RemoveRole(ctx, "2222", "role-1"))

	assert.Equal(t, []string{"+alice:vip", "-alice:vip"}, n.game)
	assert.Equal(t, []string{"+1111:role-1"}, n.discord)

	s.SetNotifier(nil)
	require.NoError(t, s.AddGroup(ctx, "bob", vip))
	assert.Len(t, n.game, 2)
}
