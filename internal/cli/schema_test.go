package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/resmodel/internal/compiler"
	"github.com/roach88/resmodel/internal/ir"
	"github.com/roach88/resmodel/internal/transform"
)

// schemaJSON runs the schema command in JSON mode and decodes the payload.
func schemaJSON(t *testing.T, args ...string) (map[string]any, error) {
	t.Helper()
	cmd := NewSchemaCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd, append([]string{specsDir}, args...)...)

	var resp struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp.Data, err
}

func properties(t *testing.T, data map[string]any) map[string]any {
	t.Helper()
	schema, ok := data["schema"].(map[string]any)
	require.True(t, ok, "schema missing: %v", data)
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok, "properties missing: %v", schema)
	return props
}

func TestSchemaCurrentVersion(t *testing.T) {
	data, err := schemaJSON(t, storeAddr)
	require.NoError(t, err)

	assert.Equal(t, storeAddr, data["canonical"])
	assert.Equal(t, "2.0.0", data["version"])

	props := properties(t, data)
	assert.Contains(t, props, "fetch-size")
	assert.Contains(t, props, "data-source")
	assert.Contains(t, props, "properties")
	assert.NotContains(t, props, "binary-table")
	assert.NotContains(t, props, "string-table")
}

func TestSchemaLegacyVersion(t *testing.T) {
	data, err := schemaJSON(t, aliasAddr, "--version", "1.4.0")
	require.NoError(t, err)

	assert.Equal(t, aliasAddr, data["address"])
	assert.Equal(t, storeAddr, data["canonical"])
	assert.Equal(t, "1.4.0", data["version"])

	props := properties(t, data)
	assert.NotContains(t, props, "fetch-size")
	assert.NotContains(t, props, "properties", "legacy clients see property children")
	require.Contains(t, props, "binary-table")

	binary := props["binary-table"].(map[string]any)
	assert.Equal(t, true, binary["deprecated"])
	assert.Equal(t, "object", binary["type"])
	assert.Contains(t, binary["properties"], "columns")
}

func TestSchemaText(t *testing.T) {
	cmd := NewSchemaCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, specsDir, storeAddr)
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Equal(t, "store=jdbc", schema["title"])
	assert.Equal(t, false, schema["additionalProperties"])
}

func TestSchemaAliasAtCurrentVersion(t *testing.T) {
	cmd := NewSchemaCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, specsDir, aliasAddr)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ir.KindNotFound, ir.KindOf(err))
	assert.Contains(t, out, "Error [NotFound]")
}

func TestSchemaNewerVersion(t *testing.T) {
	cmd := NewSchemaCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, specsDir, storeAddr, "--version", "3.0.0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [ValidationFailure]")
}

func TestSchemaInvalidAddress(t *testing.T) {
	cmd := NewSchemaCommand(&RootOptions{Format: "text"})
	_, err := execute(t, cmd, specsDir, "store=jdbc")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSchemaMissingSpecs(t *testing.T) {
	cmd := NewSchemaCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, "/nonexistent/specs", storeAddr)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestPlanSchemaOptions(t *testing.T) {
	plan := &transform.Plan{
		AttributeMap: map[string]ir.AttributeRewrite{
			"binary-table": {Deprecated: "binary-table", Target: "table=binary"},
			"timeout":      {Deprecated: "timeout", Target: "timeout-ms"},
		},
		Omitted: []string{"fetch-size"},
	}

	opts := planSchemaOptions(plan)
	assert.Equal(t, compiler.SchemaOptions{
		Deprecated: map[string]bool{"binary-table": true, "timeout": true},
		Omit:       map[string]bool{"timeout-ms": true, "fetch-size": true},
	}, opts)
}
