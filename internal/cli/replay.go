package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/resmodel/internal/bootstrap"
	"github.com/roach88/resmodel/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	SystemFlags
}

// ReplayResult holds the replay outcome.
type ReplayResult struct {
	Operations   int    `json:"operations"`
	LastSeq      int64  `json:"last_seq"`
	SnapshotSeq  int64  `json:"snapshot_seq"`
	SnapshotHash string `json:"snapshot_hash,omitempty"`
	ReplayHash   string `json:"replay_hash"`
	Match        bool   `json:"match"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild state from the journal and verify the snapshot",
		Long: `Replay the operation journal into an empty tree and compare the
rebuilt document with the stored snapshot.

Entries are replayed as the current-schema operations they were applied
as, so the result does not depend on the transformation rules in force
today.

Exit codes:
  0 - The journal reproduces the snapshot
  1 - Mismatch between journal and snapshot
  2 - Command error (database not found, definitions invalid, etc.)

Examples:
  resmodel replay --db ./state.db --specs ./specs
  resmodel replay --config ./resmodel.yaml --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.Specs, "specs", "", "definitions directory (overrides config)")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// The journal check is run here, not during startup.
	flags := opts.SystemFlags
	flags.Activation = bootstrap.ActivationLazy

	sys, err := openSystem(ctx, opts.RootOptions, flags)
	if err != nil {
		return err
	}
	defer stopSystem(sys)

	res, err := sys.Controller.Replay(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay journal", err)
	}
	result := replayResult(res)

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

func replayResult(res *store.ReplayResult) ReplayResult {
	return ReplayResult{
		Operations:   res.Operations,
		LastSeq:      res.LastSeq,
		SnapshotSeq:  res.SnapshotSeq,
		SnapshotHash: res.SnapshotHash,
		ReplayHash:   res.ReplayHash,
		Match:        res.Match,
	}
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.Match {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_REPLAY_MISMATCH",
			Message: "journal does not reproduce the snapshot",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.Match {
		return NewExitError(ExitFailure, "journal does not reproduce the snapshot")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if result.Operations == 0 && result.SnapshotSeq == 0 {
		fmt.Fprintln(w, "No operations found in journal.")
		return nil
	}

	fmt.Fprintf(w, "Replayed %d operation(s) up to seq %d\n", result.Operations, result.LastSeq)
	if verbose {
		fmt.Fprintf(w, "  Snapshot seq:  %d\n", result.SnapshotSeq)
		fmt.Fprintf(w, "  Snapshot hash: %s\n", result.SnapshotHash)
		fmt.Fprintf(w, "  Replay hash:   %s\n", result.ReplayHash)
	}
	fmt.Fprintln(w)

	if result.Match {
		fmt.Fprintln(w, "✓ Journal reproduces the snapshot")
		return nil
	}

	fmt.Fprintf(w, "✗ Journal (seq %d) does not reproduce the snapshot (seq %d)\n", result.LastSeq, result.SnapshotSeq)
	return NewExitError(ExitFailure, "journal does not reproduce the snapshot")
}
