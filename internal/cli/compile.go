package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/resmodel/internal/compiler"
	"github.com/roach88/resmodel/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	TopLevel        int
	Definitions     int
	AttributeSets   int
	LegacyAliases   int
	Transformations int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <specs-dir>",
		Short: "Compile CUE resource definitions to canonical IR",
		Long: `Compile CUE resource definitions to canonical IR format.

The compiler parses CUE files, flattens attribute set bases into each
definition and outputs the resulting model as JSON.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, specsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loadResult, err := LoadSpecs(specsDir)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			return outputCompileErrors(formatter, []error{loadErr})
		}
		code, message := parseCompileError(err)
		return outputCompileError(formatter, code, message, nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)
	for _, def := range loadResult.Model.Resources {
		formatter.VerboseLog("Compiled resource: %s", def.Path)
	}

	stats := calculateStats(loadResult.Model)

	if opts.Output != "" {
		if err := writeIRToFile(loadResult.Model, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, loadResult.Model, stats, opts.Output)
}

// calculateStats computes summary statistics from a compiled model.
func calculateStats(m *compiler.Model) CompilationStats {
	stats := CompilationStats{
		TopLevel:      len(m.Resources),
		AttributeSets: len(m.AttributeSets),
	}

	var walk func(def *ir.ResourceDefinition)
	walk = func(def *ir.ResourceDefinition) {
		stats.Definitions++
		stats.LegacyAliases += len(def.LegacyPaths)
		stats.Transformations += len(def.Transformations)
		for _, c := range def.Children {
			walk(c)
		}
	}
	for _, def := range m.Resources {
		walk(def)
	}

	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, m *compiler.Model, stats CompilationStats, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(m)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d resource definition(s), %d attribute set(s)\n\n",
		stats.Definitions, stats.AttributeSets)

	if m.Versions != nil {
		fmt.Fprintf(formatter.Writer, "Model version: %s\n\n", m.Versions.Current)
	}

	if len(m.Resources) > 0 {
		fmt.Fprintln(formatter.Writer, "Resources:")
		for _, def := range m.Resources {
			printDefinition(formatter, def, "/"+def.Path.String(), 1)
		}
		fmt.Fprintln(formatter.Writer)
	}

	if stats.Transformations > 0 {
		fmt.Fprintf(formatter.Writer, "%d legacy alias(es), %d transformation rule(s)\n",
			stats.LegacyAliases, stats.Transformations)
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote canonical IR to %s\n", outputFile)
	}

	return nil
}

func printDefinition(formatter *OutputFormatter, def *ir.ResourceDefinition, addr string, depth int) {
	indent := fmt.Sprintf("%*s", depth*2, "")
	fmt.Fprintf(formatter.Writer, "%s%s: %d attribute(s)", indent, addr, len(def.Attributes))
	if len(def.Transformations) > 0 {
		fmt.Fprintf(formatter.Writer, ", %d rule(s)", len(def.Transformations))
	}
	fmt.Fprintln(formatter.Writer)
	for _, c := range def.Children {
		printDefinition(formatter, c, addr+"/"+c.Path.String(), depth+1)
	}
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{
				Code:    code,
				Message: message,
			}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return MapFieldToErrorCode(compileErr.Field), compileErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeIRToFile writes the compiled model to a file as indented JSON.
func writeIRToFile(m *compiler.Model, filename string) error {
	// Indented for readability; canonical JSON is only used for hashing.
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling IR: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
