package cli

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/roach88/resmodel/internal/bootstrap"
	"github.com/roach88/resmodel/internal/compiler"
	"github.com/roach88/resmodel/internal/ir"
	"github.com/roach88/resmodel/internal/registry"
	"github.com/roach88/resmodel/internal/transform"
)

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	Version string // client version or named threshold; empty means current
}

// SchemaResult is the JSON payload of the schema command.
type SchemaResult struct {
	Address   string             `json:"address"`
	Canonical string             `json:"canonical"`
	Version   string             `json:"version"`
	Schema    *jsonschema.Schema `json:"schema"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema <specs-dir> <address>",
		Short: "Print the JSON Schema of a resource as a version sees it",
		Long: `Print the JSON Schema of the model of one resource definition.

Without --version the schema describes the current model. With --version
it describes what a client at that version reads and writes: attributes
introduced later are omitted and deprecated attributes reappear, taking
the shape of the child resource they were folded into. The address may
use legacy aliases that are active for the version.

Examples:
  resmodel schema ./specs /subsystem=infinispan/cache-container=web/store=jdbc
  resmodel schema ./specs /subsystem=infinispan/cache-container=web/mixed-keyed-jdbc-store=MIXED_KEYED_JDBC_STORE --version 1.4.0`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Version, "version", "", "client model version or named threshold")

	return cmd
}

func runSchema(opts *SchemaOptions, specsDir, address string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	addr, err := ir.ParseAddress(address)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, err)
	}

	reg, policy, err := loadRegistry(specsDir)
	if err != nil {
		code, message := parseCompileError(err)
		return outputCompileError(formatter, code, message, nil)
	}

	version, err := policy.ClientVersion(opts.Version)
	if err != nil {
		return outputCommandError(formatter, string(ir.KindValidationFailure), err)
	}

	resolved, err := reg.LookupAt(addr, version, policy)
	if err != nil {
		return outputCommandError(formatter, string(ir.KindOf(err)), err)
	}
	resolver := transform.NewResolver(reg, policy, transform.WithCatalog(transform.NewCatalog()))
	plan, err := resolver.Resolve(resolved.Address, version)
	if err != nil {
		return outputCommandError(formatter, string(ir.KindOf(err)), err)
	}
	formatter.VerboseLog("Resolved %s to %s at %s", addr, plan.Address, version)

	result := SchemaResult{
		Address:   addr.String(),
		Canonical: plan.Address.String(),
		Version:   version.String(),
		Schema:    compiler.ResourceSchema(plan.Definition, planSchemaOptions(plan)),
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	data, err := json.MarshalIndent(result.Schema, "", "  ")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to marshal schema", err)
	}
	fmt.Fprintln(formatter.Writer, string(data))
	return nil
}

// planSchemaOptions selects the attributes a plan's client sees: the
// deprecated attributes it still uses, minus newer attributes and the
// current attributes that renamed ones stand in for.
func planSchemaOptions(plan *transform.Plan) compiler.SchemaOptions {
	opts := compiler.SchemaOptions{
		Deprecated: make(map[string]bool, len(plan.AttributeMap)),
		Omit:       make(map[string]bool, len(plan.Omitted)),
	}
	for name, rw := range plan.AttributeMap {
		opts.Deprecated[name] = true
		if rw.Kind() == ir.RewriteRename {
			opts.Omit[rw.Target] = true
		}
	}
	for _, name := range plan.Omitted {
		opts.Omit[name] = true
	}
	return opts
}

// loadRegistry compiles and validates a definitions directory and builds
// the sealed registry with the version policy the definitions declare.
func loadRegistry(specsDir string) (*registry.Registry, ir.VersionPolicy, error) {
	loadResult, err := LoadSpecs(specsDir)
	if err != nil {
		return nil, ir.VersionPolicy{}, err
	}
	if verrs := compiler.Validate(loadResult.Model, transform.NewCatalog()); len(verrs) > 0 {
		return nil, ir.VersionPolicy{}, &LoadError{Code: verrs[0].Code, Message: verrs[0].Error()}
	}

	spec := loadResult.Model.Versions
	if spec == nil {
		spec = &compiler.VersionSpec{Current: bootstrap.DefaultVersion}
	}
	policy, err := spec.Policy()
	if err != nil {
		return nil, ir.VersionPolicy{}, &LoadError{Code: compiler.ErrInvalidVersionSpec, Message: err.Error()}
	}

	reg, err := registry.Build(loadResult.Model.Resources)
	if err != nil {
		return nil, ir.VersionPolicy{}, err
	}
	return reg, policy, nil
}

// outputCommandError reports a failure that is not a load error.
func outputCommandError(formatter *OutputFormatter, code string, err error) error {
	if code == "" {
		code = ErrCodeGeneric
	}
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(ExitCommandError, code, err)
}
