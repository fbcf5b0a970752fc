package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/resmodel/internal/ir"
	"github.com/roach88/resmodel/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	After    int64
}

// HistoryEntry is one journal entry in the history output.
type HistoryEntry struct {
	Seq     int64    `json:"seq"`
	ID      string   `json:"id"`
	Request any      `json:"request"`
	Applied []string `json:"applied"`
	Hash    string   `json:"hash"`
}

// HistoryResult holds the complete history output.
type HistoryResult struct {
	Address string         `json:"address,omitempty"`
	Entries []HistoryEntry `json:"entries"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [address]",
		Short: "List journaled operations",
		Long: `List the management operations recorded in the journal.

Each entry shows the request as the client sent it, at its client
version and possibly through a legacy alias, followed by the
current-schema operations it was applied as.

With an address, only requests sent to exactly that address are listed.

Examples:
  resmodel history --db ./state.db
  resmodel history --db ./state.db /subsystem=infinispan/cache-container=web/store=jdbc
  resmodel history --db ./state.db --after 10 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only entries with a greater seq")

	return cmd
}

func runHistory(opts *HistoryOptions, args []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var addr ir.Address
	if len(args) == 1 {
		a, err := ir.ParseAddress(args[0])
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid address", err)
		}
		addr = a
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var entries []store.Entry
	if addr != nil {
		entries, err = st.ReadHistory(ctx, addr)
	} else {
		entries, err = st.ReadOperations(ctx, opts.After)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	result := HistoryResult{Entries: make([]HistoryEntry, 0, len(entries))}
	if addr != nil {
		result.Address = addr.String()
	}
	for _, e := range entries {
		if e.Seq <= opts.After {
			continue
		}
		result.Entries = append(result.Entries, historyEntry(e))
	}

	if opts.Format == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: result})
	}
	return outputHistoryText(cmd, result, opts.Verbose)
}

func historyEntry(e store.Entry) HistoryEntry {
	h := HistoryEntry{
		Seq:     e.Seq,
		ID:      e.ID,
		Request: ir.ToAny(e.Request.ToObject()),
		Applied: make([]string, len(e.Applied)),
		Hash:    e.Hash,
	}
	for i, a := range e.Applied {
		h.Applied[i] = a.String()
	}
	return h
}

func outputHistoryText(cmd *cobra.Command, result HistoryResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if len(result.Entries) == 0 {
		if result.Address != "" {
			fmt.Fprintf(w, "No operations found for %s\n", result.Address)
		} else {
			fmt.Fprintln(w, "No operations found.")
		}
		return nil
	}

	for _, e := range result.Entries {
		req := e.Request.(map[string]any)
		line := fmt.Sprintf("[%d] %v", e.Seq, req["operation"])
		if addr, ok := req["address"]; ok {
			line += fmt.Sprintf(" %v", addr)
		}
		if name, ok := req["name"]; ok {
			line += fmt.Sprintf("(%v)", name)
		}
		if v, ok := req["version"]; ok {
			line += fmt.Sprintf(" @%v", v)
		}
		fmt.Fprintln(w, line)
		for _, a := range e.Applied {
			fmt.Fprintf(w, "    -> %s\n", a)
		}
		if verbose {
			fmt.Fprintf(w, "    id: %s\n    hash: %s\n", e.ID, e.Hash)
		}
	}
	fmt.Fprintf(w, "\n%d operation(s)\n", len(result.Entries))
	return nil
}
