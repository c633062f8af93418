package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rulecore/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database   string
	Cycle      int64  // optional - only this cycle
	Expression string // optional - only fires of this expression
}

// TraceEntry represents a single write or fire in the trace timeline.
type TraceEntry struct {
	Cycle      int64  `json:"cycle"`
	Seq        int64  `json:"seq"`
	Type       string `json:"type"` // "write" or "fire"
	Status     string `json:"status,omitempty"`
	Operator   string `json:"operator,omitempty"`
	Value      string `json:"value,omitempty"`
	Applied    *bool  `json:"applied,omitempty"`
	Expression string `json:"expression,omitempty"`
	Handler    string `json:"handler,omitempty"`
	Priority   int32  `json:"priority,omitempty"`
	Now        string `json:"now,omitempty"`
	Last       string `json:"last,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunID    string            `json:"run_id"`
	Name     string            `json:"name,omitempty"`
	Source   string            `json:"source,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
	Timeline []TraceEntry      `json:"timeline"`
	Stats    TraceStats        `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int   `json:"total_events"`
	Writes      int   `json:"writes"`
	Rejected    int   `json:"rejected"`
	Fires       int   `json:"fires"`
	Cycles      int64 `json:"cycles"`
}

// RunListing is one line of the run list.
type RunListing struct {
	RunID  string `json:"run_id"`
	Name   string `json:"name,omitempty"`
	Source string `json:"source,omitempty"`
	Cycles int64  `json:"cycles"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Show the recorded trace of a run",
		Long: `Show what a recorded run did, cycle by cycle.

Without a run id, lists the runs in the database. With one, prints the
run's timeline: every status write the modifier attempted (and whether the
reservoir accepted it) and every handler call the dispatcher made, in
(cycle, seq) order.

Examples:
  rulecore trace --db ./trace.db
  rulecore trace --db ./trace.db 01925f3c-...
  rulecore trace --db ./trace.db 01925f3c-... --cycle 2
  rulecore trace --db ./trace.db 01925f3c-... --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Database == "" {
				return NewExitError(ExitCommandError, "--db is required (or set RULECORE_DB)")
			}
			if len(args) == 0 {
				return runListRuns(opts, cmd)
			}
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", rootOpts.Config.DBPath, "path to SQLite trace database")
	cmd.Flags().Int64Var(&opts.Cycle, "cycle", 0, "only show this cycle")
	cmd.Flags().StringVar(&opts.Expression, "expression", "", "only show fires of this expression")

	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runListRuns(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	runs, err := st.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	listing := make([]RunListing, 0, len(runs))
	for _, run := range runs {
		cycles, err := st.LastCycle(ctx, run.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}
		listing = append(listing, RunListing{RunID: run.ID, Name: run.Name, Source: run.Source, Cycles: cycles})
	}

	if opts.Format == "json" {
		return encodeIndented(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: listing})
	}

	w := cmd.OutOrStdout()
	if len(listing) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, r := range listing {
		fmt.Fprintf(w, "%s  %-24s %4d cycles  %s\n", r.RunID, r.Name, r.Cycles, r.Source)
	}
	return nil
}

func runTrace(opts *TraceOptions, runID string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	run, records, err := st.ReadRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		msg := fmt.Sprintf("run not found: %s", runID)
		if opts.Format == "json" {
			if err := encodeIndented(cmd.OutOrStdout(), CLIResponse{
				Status: "error",
				Error:  &CLIError{Code: ErrCodeNotFound, Message: msg},
			}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "No run found with id: %s\n", runID)
		}
		return NewExitError(ExitCommandError, msg)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	result := TraceResult{
		RunID:    run.ID,
		Name:     run.Name,
		Source:   run.Source,
		Labels:   run.Labels,
		Timeline: buildTimeline(records, opts.Cycle, opts.Expression),
	}
	result.Stats = traceStats(records)

	if opts.Format == "json" {
		return encodeIndented(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result, RunID: run.ID})
	}
	return outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
}

// buildTimeline converts store records to timeline entries.
// A non-zero cycle keeps only that cycle; an expression keeps only fires
// of that expression.
func buildTimeline(records []store.Record, cycle int64, expression string) []TraceEntry {
	timeline := []TraceEntry{}
	for _, rec := range records {
		if cycle > 0 && rec.Cycle != cycle {
			continue
		}
		switch rec.Kind {
		case store.RecordWrite:
			if expression != "" {
				continue
			}
			applied := rec.Write.Applied
			timeline = append(timeline, TraceEntry{
				Cycle:    rec.Cycle,
				Seq:      rec.Seq,
				Type:     rec.Kind.String(),
				Status:   rec.Write.Status,
				Operator: rec.Write.Operator,
				Value:    rec.Write.Value,
				Applied:  &applied,
			})
		case store.RecordFire:
			if expression != "" && rec.Fire.Expression != expression {
				continue
			}
			timeline = append(timeline, TraceEntry{
				Cycle:      rec.Cycle,
				Seq:        rec.Seq,
				Type:       rec.Kind.String(),
				Expression: rec.Fire.Expression,
				Handler:    rec.Fire.Handler,
				Priority:   rec.Fire.Priority,
				Now:        rec.Fire.Now,
				Last:       rec.Fire.Last,
			})
		}
	}
	return timeline
}

// traceStats summarizes the whole run, ignoring filters.
func traceStats(records []store.Record) TraceStats {
	var stats TraceStats
	for _, rec := range records {
		stats.TotalEvents++
		stats.Cycles = max(stats.Cycles, rec.Cycle)
		switch rec.Kind {
		case store.RecordWrite:
			stats.Writes++
			if !rec.Write.Applied {
				stats.Rejected++
			}
		case store.RecordFire:
			stats.Fires++
		}
	}
	return stats
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintf(w, "Trace for Run: %s\n", result.RunID)
	if result.Name != "" {
		fmt.Fprintf(w, "Name: %s\n", result.Name)
	}
	if verbose {
		if result.Source != "" {
			fmt.Fprintf(w, "Source: %s\n", result.Source)
		}
		if len(result.Labels) > 0 {
			fmt.Fprintf(w, "Labels: %s\n", formatLabels(result.Labels))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	var cycle int64
	for _, e := range result.Timeline {
		if e.Cycle != cycle {
			cycle = e.Cycle
			fmt.Fprintf(w, "  cycle %d\n", cycle)
		}
		formatTimelineEntry(w, e, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Writes:       %d (%d rejected)\n", result.Stats.Writes, result.Stats.Rejected)
	fmt.Fprintf(w, "  Fires:        %d\n", result.Stats.Fires)
	fmt.Fprintf(w, "  Cycles:       %d\n", result.Stats.Cycles)
	return nil
}

// formatTimelineEntry formats a single timeline entry for text output.
func formatTimelineEntry(w io.Writer, e TraceEntry, verbose bool) {
	switch e.Type {
	case "write":
		mark := ""
		if e.Applied != nil && !*e.Applied {
			mark = "  (rejected)"
		}
		fmt.Fprintf(w, "    [%d] SET  %s %s %s%s\n", e.Seq, e.Status, e.Operator, e.Value, mark)
	case "fire":
		fmt.Fprintf(w, "    [%d] FIRE %s -> %s: %s -> %s\n", e.Seq, e.Expression, e.Handler, e.Last, e.Now)
		if verbose && e.Priority != 0 {
			fmt.Fprintf(w, "         priority %d\n", e.Priority)
		}
	}
}

// formatLabels formats labels with sorted keys for deterministic output.
func formatLabels(labels map[string]string) string {
	keys := slices.Sorted(maps.Keys(labels))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+labels[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
