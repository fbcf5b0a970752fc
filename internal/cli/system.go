package cli

import (
	"context"
	"fmt"

	"github.com/roach88/resmodel/internal/bootstrap"
)

// SystemFlags are the flags of commands that open a registry.
type SystemFlags struct {
	Specs    string // overrides the config file's specs
	Database string // overrides the config file's database

	// Activation overrides the configured policy when set.
	Activation bootstrap.Activation
}

// openSystem assembles and starts a registry from the configuration file,
// with the command's flags taking precedence. The caller stops it.
func openSystem(ctx context.Context, opts *RootOptions, flags SystemFlags) (*bootstrap.System, error) {
	sc := opts.config().SystemConfig()
	if flags.Specs != "" {
		sc.SpecsDir = flags.Specs
	}
	if flags.Database != "" {
		sc.Database = flags.Database
	}
	if flags.Activation != "" {
		sc.Activation = flags.Activation
	}
	if sc.SpecsDir == "" {
		return nil, NewExitError(ExitCommandError, "no definitions directory: pass --specs or set specs in the config file")
	}

	logger := opts.logger()
	logger.Debug("opening registry", "specs", sc.SpecsDir, "db", sc.DatabasePath(), "activation", sc.Activation)

	sys, err := bootstrap.NewSystem(sc, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to assemble registry", err)
	}
	report, err := sys.Start(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to start registry", err)
	}
	for _, d := range report.Degraded {
		logger.Warn("collaborator degraded", "name", d.Name, "error", d.Err)
	}
	logger.Debug("registry ready",
		"resources", sys.Registry.Len(),
		"version", sys.Policy.Current().String(),
		"restored", sys.Restored,
	)
	return sys, nil
}

// stopSystem stops sys with a fresh context so shutdown runs even after
// the command's context was cancelled.
func stopSystem(sys *bootstrap.System) {
	sys.Stop(context.Background())
}

// describeVersion renders a client version flag for messages.
func describeVersion(v string) string {
	if v == "" {
		return "current"
	}
	return fmt.Sprintf("version %s", v)
}
