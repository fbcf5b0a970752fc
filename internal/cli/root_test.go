package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/resmodel/internal/bootstrap"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "resmodel", cmd.Use)
	assert.Contains(t, cmd.Long, "older model version")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"compile", "validate", "schema", "op", "history", "replay", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestOpCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	opCmd, _, err := cmd.Find([]string{"op"})
	require.NoError(t, err)

	for _, name := range []string{"specs", "db", "version", "name", "value", "params", "steps", "recursive"} {
		assert.NotNil(t, opCmd.Flags().Lookup(name), "flag --%s", name)
	}
}

func TestHistoryCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	historyCmd, _, err := cmd.Find([]string{"history"})
	require.NoError(t, err)

	dbFlag := historyCmd.Flags().Lookup("db")
	require.NotNil(t, dbFlag)
	// --db is required, so default is empty
	assert.Equal(t, "", dbFlag.DefValue)

	afterFlag := historyCmd.Flags().Lookup("after")
	require.NotNil(t, afterFlag)
	assert.Equal(t, "0", afterFlag.DefValue)
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	assert.NotNil(t, testCmd.Flags().Lookup("filter"))
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("yaml"))
	assert.False(t, isValidFormat(""))
}

func TestRootInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	_, err := execute(t, cmd, "--format", "yaml", "validate", specsDir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

// keepDefaultLogger restores slog's default logger after setup replaces it.
func keepDefaultLogger(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestSetupLoadsConfig(t *testing.T) {
	keepDefaultLogger(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "resmodel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("specs: defs\nlog_level: debug\nactivation: lazy\n"), 0644))

	stderr := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetErr(stderr)

	opts := &RootOptions{ConfigFile: path}
	require.NoError(t, opts.setup(cmd))

	cfg := opts.config()
	assert.Equal(t, filepath.Join(dir, "defs"), cfg.Specs)
	assert.Equal(t, bootstrap.ActivationLazy, cfg.Activation)

	require.NotNil(t, opts.Logger)
	assert.True(t, opts.logger().Enabled(context.Background(), slog.LevelDebug))
	opts.logger().Debug("configured", "specs", cfg.Specs)
	assert.Contains(t, stderr.String(), "configured")
}

func TestSetupDefaults(t *testing.T) {
	keepDefaultLogger(t)

	cmd := &cobra.Command{}
	cmd.SetErr(&bytes.Buffer{})

	opts := &RootOptions{}
	require.NoError(t, opts.setup(cmd))
	assert.Equal(t, "info", opts.config().LogLevel)
	assert.False(t, opts.logger().Enabled(context.Background(), slog.LevelDebug))

	opts = &RootOptions{Verbose: true}
	require.NoError(t, opts.setup(cmd))
	assert.True(t, opts.logger().Enabled(context.Background(), slog.LevelDebug))
}

func TestSetupBadConfig(t *testing.T) {
	keepDefaultLogger(t)

	path := filepath.Join(t.TempDir(), "resmodel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data-dir: /tmp\n"), 0644))

	cmd := NewRootCommand()
	_, err := execute(t, cmd, "--config", path, "validate", specsDir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestOptionsFallBackToDefaults(t *testing.T) {
	opts := &RootOptions{}
	assert.Equal(t, "info", opts.config().LogLevel)
	assert.Equal(t, slog.Default(), opts.logger())
}
