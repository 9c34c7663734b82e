package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Golden traces pin seq numbering, flow grouping and echo placement.
// Regenerate with:
//
//	go test ./internal/harness -run TestRunWithGolden -update
func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"fan_out", "echo_expired", "wrong_direction", "tie_break"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario failed: %v", result.Errors)
		})
	}
}

func TestAssertGolden_ReusesResult(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "fan_out.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NoError(t, AssertGolden(t, "fan_out", result))

	outcomes := result.Outcomes()
	require.Len(t, outcomes, 2)
	assert.Equal(t, outcomes[0].Flow, outcomes[1].Flow, "fan-out shares the flow of its trigger")
}
