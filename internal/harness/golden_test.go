package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/resmodel/internal/ir"
)

// TestScenarios runs the shipped scenarios: the JDBC store whose
// binary-table attribute became the table=binary child in 2.0.0.
//
// To regenerate golden files:
//
//	go test ./internal/harness -run TestScenarios -update
func TestScenarios(t *testing.T) {
	tests := []string{
		"legacy_write_creates_child",
		"legacy_read_projects_attribute",
		"current_read_shows_children",
		"remove_cascades",
		"composite_conflict",
	}

	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			path, err := filepath.Abs(filepath.Join("../../testdata/scenarios", name+".yaml"))
			require.NoError(t, err)

			scenario, err := LoadScenarioWithBasePath(path, filepath.Dir(path))
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestScenarios_LegacyReadHidesChild(t *testing.T) {
	path, err := filepath.Abs("../../testdata/scenarios/legacy_read_projects_attribute.yaml")
	require.NoError(t, err)
	scenario, err := LoadScenarioWithBasePath(path, filepath.Dir(path))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	// Subset matching cannot prove absence; check the full value.
	ev, ok := result.FlowEvent(2)
	require.True(t, ok)
	doc, ok := ev.Result.(ir.Object)
	require.True(t, ok)
	assert.NotContains(t, doc, "table")
	assert.Contains(t, doc, "binary-table")
}

func TestTraceSnapshot_OmitsEmptyFields(t *testing.T) {
	s := TraceSnapshot{
		ScenarioName: "minimal",
		Trace: []TraceEvent{
			{Phase: PhaseFlow, Step: 1, Operation: "/a=b:read-resource", Outcome: OutcomeSuccess},
		},
	}

	data, err := s.Canonical()
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"minimal","trace":[{"operation":"/a=b:read-resource","outcome":"success","phase":"flow","step":1}]}`,
		string(data))
}

func TestTraceSnapshot_FullEvent(t *testing.T) {
	s := TraceSnapshot{
		ScenarioName: "full",
		Trace: []TraceEvent{{
			Phase:     PhaseSetup,
			Step:      2,
			Operation: "/a=b:add",
			Version:   "1.4.0",
			Outcome:   OutcomeSuccess,
			Seq:       7,
			ID:        "op-0007",
			Applied:   []string{"/a=b:add"},
			Built:     []string{"/a=b"},
			Result:    ir.Object{"k": ir.Int(1)},
		}},
	}

	data, err := s.Canonical()
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"full","trace":[{"applied":["/a=b:add"],"built":["/a=b"],"id":"op-0007","operation":"/a=b:add","outcome":"success","phase":"setup","result":{"k":1},"seq":7,"step":2,"version":"1.4.0"}]}`,
		string(data))
}
