package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "file name must match scenario name")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/rejected_record_stays_queued.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := MarshalSnapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := MarshalSnapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ExpectStatusMismatch(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_status
description: "expects a queued response while online"
initial_online: true
flow:
  - submit: { type: income, amount: "1", description: "Kopi", channel: walkin }
    expect: { status: 202 }
assertions:
  - type: received
    descriptions: ["Kopi"]
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "flow[0]: expected status 202, got 200", result.Errors[0])
}

func TestRun_FailingAssertionReported(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_queue
description: "claims the queue is empty after an offline submit"
flow:
  - submit: { type: income, amount: "1", description: "Kopi", channel: walkin }
assertions:
  - type: queue_state
    unsynced: 0
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unsynced 1, want 0")
	assert.Equal(t, QueueState{Total: 1, Unsynced: 1}, result.State)
}
