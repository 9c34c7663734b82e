package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linksync/internal/ir"
	"github.com/roach88/linksync/internal/store"
)

func results(rows []outcomeRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Result
	}
	return out
}

func TestSyncCommands_EndToEnd(t *testing.T) {
	path, db := writeConfig(t, testConfig)

	out, err := execute(t, "link", "alice", "d-alice", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "linked alice <-> d-alice")

	// A role granted on discord reaches the game group.
	out, err = execute(t, "set", "-c", path, "--db", db, "--format", "json", "discord", "d-alice", "100", "true")
	require.NoError(t, err)
	set := decode[OutcomesResult](t, out)
	require.Len(t, set.Data.Outcomes, 1)
	assert.Equal(t, OutcomesResult{Outcomes: []outcomeRow{{
		Seq:          1,
		Flow:         set.Data.Outcomes[0].Flow,
		Origin:       "discord",
		Pairing:      "vip",
		GameActor:    "alice",
		DiscordActor: "d-alice",
		Result:       "ADD_GAME",
	}}}, set.Data)

	st, err := store.Open(db)
	require.NoError(t, err)
	has, err := st.HasGroup(context.Background(), "alice", ir.GameID{Group: "vip"}, false)
	require.NoError(t, err)
	assert.True(t, has)
	require.NoError(t, st.Close())

	// Setting a state that already holds changes no row and syncs nothing.
	out, err = execute(t, "set", "-c", path, "--db", db, "--format", "json", "discord", "d-alice", "100", "true")
	require.NoError(t, err)
	assert.Empty(t, decode[OutcomesResult](t, out).Data.Outcomes)

	// One-way pairing: the discord side may not write the game group.
	out, err = execute(t, "set", "-c", path, "--db", db, "--format", "json", "discord", "d-alice", "200", "true")
	require.NoError(t, err)
	assert.Equal(t, []string{"WRONG_DIRECTION"}, results(decode[OutcomesResult](t, out).Data.Outcomes))

	// Resync of every pairing; staff's tie-breaker is the game side.
	out, err = execute(t, "resync", "-c", path, "--db", db, "--game", "alice", "--format", "json")
	require.NoError(t, err)
	resync := decode[OutcomesResult](t, out)
	assert.Equal(t, []string{"BOTH_TRUE", "REMOVE_DISCORD"}, results(resync.Data.Outcomes))
	assert.Equal(t, int64(3), resync.Data.Outcomes[0].Seq, "seq resumes after the journal")

	// Unlinked accounts fail with exit code 1 but still report.
	out, err = execute(t, "resync", "-c", path, "--db", db, "--discord", "d-bob", "--pairing", "vip", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	bob := decode[OutcomesResult](t, out)
	assert.Equal(t, 1, bob.Data.Failed)
	assert.Equal(t, []string{"NOT_LINKED"}, results(bob.Data.Outcomes))

	out, err = execute(t, "history", "--db", db, "--game", "alice", "--format", "json")
	require.NoError(t, err)
	history := decode[HistoryResult](t, out)
	assert.Equal(t, []string{"ADD_GAME", "WRONG_DIRECTION", "BOTH_TRUE", "REMOVE_DISCORD"}, results(history.Data.Records))

	out, err = execute(t, "history", "--db", db, "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "NOT_LINKED")
	assert.Contains(t, out, "UNRESOLVED_ACTOR")
	assert.NotContains(t, out, "ADD_GAME")
}

func TestSet_Parent(t *testing.T) {
	path, db := writeConfig(t, testConfig)

	out, err := execute(t, "set", "-c", path, "--db", db, "parent", "VIP@Survival", "Donor")
	require.NoError(t, err)
	assert.Contains(t, out, "vip@survival inherits from donor")
}

func TestSet_BadArguments(t *testing.T) {
	path, db := writeConfig(t, testConfig)

	for name, args := range map[string][]string{
		"unknown side":  {"steam", "alice", "vip", "true"},
		"bad state":     {"game", "alice", "vip", "maybe"},
		"missing state": {"game", "alice", "vip"},
		"parent extra":  {"parent", "vip", "donor", "x"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, append([]string{"set", "-c", path, "--db", db}, args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestResync_UnknownPairing(t *testing.T) {
	path, db := writeConfig(t, testConfig)

	_, err := execute(t, "resync", "-c", path, "--db", db, "--game", "alice", "--pairing", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `unknown pairing "nope"`)
}

func TestResync_ActorFlags(t *testing.T) {
	path, db := writeConfig(t, testConfig)

	_, err := execute(t, "resync", "-c", path, "--db", db)
	require.Error(t, err)

	_, err = execute(t, "resync", "-c", path, "--db", db, "--game", "a", "--discord", "b")
	require.Error(t, err)
}

func TestLink_Unlink(t *testing.T) {
	_, db := writeConfig(t, testConfig)

	_, err := execute(t, "link", "alice", "d-alice", "--db", db)
	require.NoError(t, err)
	out, err := execute(t, "link", "alice", "--unlink", "--db", db, "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, LinkResult{GameActor: "alice"}, decode[LinkResult](t, out).Data)

	_, err = execute(t, "link", "alice", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestHistory_Empty(t *testing.T) {
	_, db := writeConfig(t, testConfig)

	out, err := execute(t, "history", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No outcomes recorded.")
}

func TestResync_RunsWithDuplicatePairing(t *testing.T) {
	path, db := writeConfig(t, testConfig+`
  - name: vip-again
    game: vip
    discord: "100"
`)
	_, err := execute(t, "link", "alice", "d-alice", "--db", db)
	require.NoError(t, err)

	out, err := execute(t, "resync", "-c", path, "--db", db, "--game", "alice", "--format", "json")
	require.NoError(t, err)
	resync := decode[OutcomesResult](t, out)
	assert.Equal(t, []string{"BOTH_FALSE", "BOTH_FALSE"}, results(resync.Data.Outcomes))
	assert.Equal(t, "vip", resync.Data.Outcomes[0].Pairing)

	// validate still reports the duplicate as a failure.
	_, err = execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
