package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/resmodel/internal/ir"
	"github.com/roach88/resmodel/internal/store"
)

// OpOptions holds flags for the op command.
type OpOptions struct {
	*RootOptions
	SystemFlags
	Version   string
	Name      string
	Value     string // JSON
	Params    string // JSON object
	Steps     string // JSON list of operation objects
	Recursive bool
}

// OpResult is the JSON payload of the op command.
type OpResult struct {
	Operation string   `json:"operation"`
	Version   string   `json:"version,omitempty"`
	Result    any      `json:"result,omitempty"`
	Applied   []string `json:"applied,omitempty"`
	Seq       int64    `json:"seq,omitempty"`
}

// NewOpCommand creates the op command.
func NewOpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "op <operation> [address]",
		Short: "Execute one management operation",
		Long: `Execute one management operation against the registry.

The registry is opened from --specs and --db (or the config file), the
operation runs at the client version given by --version and, if it
changed the tree, is journaled before the command returns.

Operations: add, remove, read-resource, read-attribute, write-attribute,
undefine-attribute, composite.

Exit codes:
  0 - Operation succeeded
  1 - Operation failed (NotFound, ValidationFailure, ...)
  2 - Command error (bad flags, registry failed to start)

Examples:
  resmodel op add /subsystem=infinispan --specs ./specs --db ./state.db
  resmodel op write-attribute /subsystem=infinispan/cache-container=web/mixed-keyed-jdbc-store=MIXED_KEYED_JDBC_STORE \
    --version 1.4.0 --name binary-table --value '{"columns":[{"name":"id","type":"VARCHAR"}]}'
  resmodel op read-resource /subsystem=infinispan --recursive --format json
  resmodel op composite --steps '[{"operation":"remove","address":"/subsystem=infinispan"}]'`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Specs, "specs", "", "definitions directory (overrides config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.Version, "version", "", "client model version or named threshold")
	cmd.Flags().StringVar(&opts.Name, "name", "", "attribute name")
	cmd.Flags().StringVar(&opts.Value, "value", "", "attribute value as JSON")
	cmd.Flags().StringVar(&opts.Params, "params", "", "add parameters as a JSON object")
	cmd.Flags().StringVar(&opts.Steps, "steps", "", "composite steps as a JSON list of operations")
	cmd.Flags().BoolVar(&opts.Recursive, "recursive", false, "include children in read-resource")

	return cmd
}

func runOp(opts *OpOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	op, err := buildOperation(opts, args)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid operation", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys, err := openSystem(ctx, opts.RootOptions, opts.SystemFlags)
	if err != nil {
		_ = formatter.Error(string(ir.KindBootstrapFailure), err.Error(), nil)
		return err
	}
	defer stopSystem(sys)

	before, err := sys.Store.LastSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	res, err := sys.Controller.Execute(ctx, op)
	if err != nil {
		opts.logger().Debug("operation failed", "operation", op.String(), "kind", ir.KindOf(err))
		return outputOpFailure(formatter, op, err)
	}

	out := OpResult{
		Operation: op.String(),
		Version:   op.Version,
		Applied:   make([]string, len(res.Applied)),
	}
	if res.Value != nil {
		out.Result = ir.ToAny(res.Value)
	}
	for i, a := range res.Applied {
		out.Applied[i] = a.String()
	}

	var entry *store.Entry
	if len(res.Applied) > 0 {
		entries, err := sys.Store.ReadOperations(ctx, before)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		if len(entries) > 0 {
			entry = &entries[len(entries)-1]
			out.Seq = entry.Seq
		}
	}

	return outputOpSuccess(formatter, out, entry)
}

// buildOperation turns the command line into an operation.
func buildOperation(opts *OpOptions, args []string) (ir.Operation, error) {
	op := ir.Operation{
		Name:      ir.OperationName(args[0]),
		Version:   opts.Version,
		Attribute: opts.Name,
		Recursive: opts.Recursive,
	}
	if !ir.ValidOperations[op.Name] {
		return op, fmt.Errorf("unknown operation %q", args[0])
	}

	if len(args) > 1 {
		addr, err := ir.ParseAddress(args[1])
		if err != nil {
			return op, err
		}
		op.Address = addr
	} else if op.Name != ir.OpComposite {
		return op, fmt.Errorf("%s requires an address", op.Name)
	}

	if opts.Value != "" {
		v, err := ir.ParseValue([]byte(opts.Value))
		if err != nil {
			return op, fmt.Errorf("--value: %w", err)
		}
		op.Value = v
	}
	if opts.Params != "" {
		v, err := ir.ParseValue([]byte(opts.Params))
		if err != nil {
			return op, fmt.Errorf("--params: %w", err)
		}
		params, ok := v.(ir.Object)
		if !ok {
			return op, fmt.Errorf("--params: not a JSON object")
		}
		op.Params = params
	}
	if opts.Steps != "" {
		v, err := ir.ParseValue([]byte(opts.Steps))
		if err != nil {
			return op, fmt.Errorf("--steps: %w", err)
		}
		composite, err := ir.OperationFromObject(ir.Object{"operation": ir.String(ir.OpComposite), "steps": v})
		if err != nil {
			return op, fmt.Errorf("--steps: %w", err)
		}
		op.Steps = composite.Steps
	}

	if verrs := op.Validate(); len(verrs) > 0 {
		return op, verrs[0]
	}
	return op, nil
}

func outputOpSuccess(formatter *OutputFormatter, out OpResult, entry *store.Entry) error {
	if formatter.Format == "json" {
		response := CLIResponse{Status: "ok", Data: out}
		if entry != nil {
			response.OperationID = entry.ID
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(response)
	}

	w := formatter.Writer
	if out.Result != nil {
		data, err := json.MarshalIndent(out.Result, "", "  ")
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to marshal result", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	if entry == nil {
		fmt.Fprintf(w, "✓ %s (%s): no change\n", out.Operation, describeVersion(out.Version))
		return nil
	}
	fmt.Fprintf(w, "✓ %s (%s) committed as seq %d (%s)\n", out.Operation, describeVersion(out.Version), entry.Seq, entry.ID)
	for _, a := range out.Applied {
		fmt.Fprintf(w, "  %s\n", a)
	}
	return nil
}

func outputOpFailure(formatter *OutputFormatter, op ir.Operation, err error) error {
	cliErr := operationError(err)
	_ = formatter.Error(cliErr.Code, cliErr.Message, cliErr.Details)
	// Operation failures = exit code 1
	return WrapExitError(ExitFailure, fmt.Sprintf("%s failed", op), err)
}
