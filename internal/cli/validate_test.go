package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linksync/internal/config"
	"github.com/roach88/linksync/internal/registry"
)

func TestValidate_Valid(t *testing.T) {
	path, _ := writeConfig(t, testConfig)

	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2 pairing(s) valid")
}

func TestValidate_ValidJSON(t *testing.T) {
	path, _ := writeConfig(t, testConfig)

	out, err := execute(t, "validate", path, "--format", "json")
	require.NoError(t, err)

	resp := decode[ValidationResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.Pairings)
	assert.Empty(t, resp.Data.Errors)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	path, _ := writeConfig(t, `
pairings:
  - name: vip
    game: vip
    discord: "100"
  - name: vip-copy
    game: VIP
    discord: "100"
  - name: spaced
    game: "bad group"
    discord: "300"
  - name: sideways
    game: mods
    discord: "400"
    direction: sideways
`)

	out, err := execute(t, "validate", path, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decode[ValidationResult](t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)

	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, details["valid"])
	assert.Equal(t, float64(1), details["pairings"])

	var codes []string
	for _, e := range details["errors"].([]any) {
		codes = append(codes, e.(map[string]any)["code"].(string))
	}
	assert.Equal(t, []string{config.ErrCodeInvalidValue, registry.ErrDuplicatePairing, registry.ErrGroupInvalid}, codes)
}

func TestValidate_TextListsIssues(t *testing.T) {
	path, _ := writeConfig(t, `
pairings:
  - game: vip
`)

	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Contains(t, out, "Error [E001]: 1 problem(s) in "+path)
	assert.Contains(t, out, "pairings[0].discord [E204] discord is required")
}

func TestValidate_MissingFile(t *testing.T) {
	out, err := execute(t, "validate", filepath.Join(t.TempDir(), "missing.yaml"), "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decode[any](t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, config.ErrCodeNotFound, resp.Error.Code)
}

func TestPairs_ListsActivePairings(t *testing.T) {
	path, _ := writeConfig(t, testConfig)

	out, err := execute(t, "pairs", path, "--format", "json")
	require.NoError(t, err)

	resp := decode[PairsResult](t, out)
	require.Len(t, resp.Data.Pairings, 2)

	vip, staff := resp.Data.Pairings[0], resp.Data.Pairings[1]
	assert.Equal(t, "vip", vip.Name)
	assert.Equal(t, "vip/100", vip.Key.String())
	assert.False(t, vip.TimerActive)

	assert.Equal(t, "staff@survival/200", staff.Key.String())
	assert.Equal(t, "game_to_discord", string(staff.Direction))
	assert.Equal(t, "game", string(staff.TieBreaker))
	assert.True(t, staff.TimerActive)
	assert.Equal(t, "15m0s", staff.Period)
}

func TestPairs_Text(t *testing.T) {
	path, _ := writeConfig(t, testConfig)

	out, err := execute(t, "pairs", path)
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "staff@survival")
	assert.Contains(t, out, "every 15m0s")
}
