package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenariosDir = filepath.Join("..", "..", "testdata", "scenarios")

// writeScenario writes a small passing scenario into a fresh directory and
// returns the directory.
func writeScenario(t *testing.T) string {
	t.Helper()
	specs, err := filepath.Abs(specsDir)
	require.NoError(t, err)

	dir := t.TempDir()
	scenario := fmt.Sprintf(`name: add_container
description: "Adding a container makes it readable"
specs: %s
flow:
  - op: add
    address: /subsystem=infinispan
    expect:
      outcome: success
  - op: add
    address: /subsystem=infinispan/cache-container=web
    params:
      default-cache: local
    expect:
      outcome: success
  - op: read-attribute
    address: /subsystem=infinispan/cache-container=web
    name: default-cache
    expect:
      outcome: success
      result: local
assertions:
  - type: resource_exists
    address: /subsystem=infinispan/cache-container=web
`, specs)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "add_container.yaml"), []byte(scenario), 0644))
	return dir
}

func TestTestCommandMissingArgs(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	_, err := execute(t, cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	_, err := execute(t, cmd, "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandNotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(file, []byte("name: x\n"), 0644))

	cmd := NewTestCommand(&RootOptions{Format: "text"})
	_, err := execute(t, cmd, file)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "not a directory")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd, t.TempDir())
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
	assert.Empty(t, resp.Data.Scenarios)
}

func TestTestCommandConformanceScenarios(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, scenariosDir)
	require.NoError(t, err, "output: %s", out)

	assert.Contains(t, out, "✓ legacy_read_projects_attribute")
	assert.Contains(t, out, "✓ legacy_write_creates_child")
	assert.Contains(t, out, "Test Summary: 5 passed, 0 failed, 5 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandFilter(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd, scenariosDir, "--filter", "legacy_*")
	require.NoError(t, err)

	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Passed)
	for _, s := range resp.Data.Scenarios {
		assert.Contains(t, s.Name, "legacy_")
	}
}

func TestTestCommandInvalidFilter(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	_, err := execute(t, cmd, scenariosDir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandGoldenFiles(t *testing.T) {
	dir := writeScenario(t)
	golden := goldenFilePath(dir, "add_container")

	// --update writes the golden trace.
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, dir, "--update")
	require.NoError(t, err, "output: %s", out)
	assert.Contains(t, out, "✓ add_container (golden updated)")

	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), "add_container")

	// The golden directory is not scanned for scenarios, and the trace
	// matches on a second run.
	cmd = NewTestCommand(&RootOptions{Format: "text"})
	out, err = execute(t, cmd, dir)
	require.NoError(t, err, "output: %s", out)
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")

	// A drifted golden file fails the scenario.
	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario":"add_container","trace":[]}`), 0644))
	cmd = NewTestCommand(&RootOptions{Format: "text"})
	out, err = execute(t, cmd, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ add_container")
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandFailingScenarioJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\nflow: [\n"), 0644))

	cmd := NewTestCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "broken.yaml", resp.Data.Scenarios[0].Name)
	require.NotEmpty(t, resp.Data.Scenarios[0].Errors)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "failed to load scenario")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("scenarios", "golden", "remove_cascades.golden"),
		goldenFilePath("scenarios", "remove_cascades"))
}
