package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testConfig = `
settings:
  expectation_ttl: 10s
pairings:
  - name: vip
    game: vip
    discord: "100"
  - name: staff
    game: staff
    context: survival
    discord: "200"
    direction: game_to_discord
    tie_breaker: game
    timer:
      cycle_minutes: 15
`

// writeConfig writes content as linksync.yaml in a temp dir and returns
// its path and a database path next to it.
func writeConfig(t *testing.T, content string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "linksync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path, filepath.Join(dir, "linksync.db")
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// response decodes a JSON CLIResponse with a typed payload.
type response[T any] struct {
	Status string    `json:"status"`
	Data   T         `json:"data"`
	Error  *CLIError `json:"error"`
}

func decode[T any](t *testing.T, out string) response[T] {
	t.Helper()
	var resp response[T]
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}
