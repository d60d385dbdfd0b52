package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/simkernel/internal/store"
	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // defaults to the most recent run
	Tick     int64  // optional - filter to one tick
	Event    string // optional - filter to one event name
	Subject  string // optional - filter to one simulant
	Under    bool   // include the subject's descendants
	List     bool   // list runs and snapshots instead
}

// TraceEvent represents a single event in the trace timeline.
type TraceEvent struct {
	Seq      int64       `json:"seq"`
	Tick     int64       `json:"tick"`
	Name     string      `json:"name"`
	Subject  string      `json:"subject"`
	Data     value.Value `json:"data,omitempty"`
	Trace    world.Trace `json:"trace,omitempty"`
	Handled  bool        `json:"handled"`
	Notified int         `json:"notified"`
	Depth    int         `json:"depth"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunID    string       `json:"run_id"`
	Source   string       `json:"source"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the whole run, regardless of
// filters.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	Ticks       int64          `json:"ticks"`
	Handled     int            `json:"handled"`
	MaxDepth    int            `json:"max_depth"`
	ByName      map[string]int `json:"by_name"`
}

// RunListing is the --list output.
type RunListing struct {
	Runs      []store.Run `json:"runs"`
	Snapshots []string    `json:"snapshots"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query the event log of a run",
		Long: `Query the events recorded by "simk run --db".

Shows every dispatched event of a run in publish order: the tick it
happened in, its name and subject, its data, the publish trace and
whether a handler marked it handled.

The output includes:
- Timeline: Events in seq order, narrowed by the filter flags
- Stats: Summary statistics for the whole run

Examples:
  simk trace --db ./simk.db
  simk trace --db ./simk.db --run 0192... --tick 3
  simk trace --db ./simk.db --event Change/Health --subject Level/Player --under
  simk trace --db ./simk.db --list
  simk trace --db ./simk.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite event log (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to trace (default most recent)")
	cmd.Flags().Int64Var(&opts.Tick, "tick", 0, "only events published during this tick")
	cmd.Flags().StringVar(&opts.Event, "event", "", "only events with this name")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "only events about this simulant address")
	cmd.Flags().BoolVar(&opts.Under, "under", false, "with --subject, include descendants")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list recorded runs and snapshot keys")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	subject, err := world.ParseAddress(opts.Subject)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --subject", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	f := opts.formatter(cmd)
	if opts.List {
		return runListing(ctx, st, f)
	}

	runID := opts.RunID
	if runID == "" {
		runs, err := st.Runs(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		if len(runs) == 0 {
			return NewExitError(ExitCommandError, "no runs recorded")
		}
		runID = runs[len(runs)-1].ID
	}

	sum, err := st.Summarize(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", runID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to summarize run", err)
	}

	events, err := st.ReadEvents(ctx, runID, store.EventFilter{
		Tick:    opts.Tick,
		Name:    opts.Event,
		Subject: subject,
		Under:   opts.Under,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := TraceResult{
		RunID:    runID,
		Source:   sum.Run.Source,
		Timeline: buildTimeline(events),
		Stats: TraceStats{
			TotalEvents: sum.Events,
			Ticks:       sum.Ticks,
			Handled:     sum.Handled,
			MaxDepth:    sum.MaxDepth,
			ByName:      sum.ByName,
		},
	}

	return writeTrace(f, result)
}

// buildTimeline converts store records to timeline events.
func buildTimeline(events []store.EventRecord) []TraceEvent {
	timeline := make([]TraceEvent, 0, len(events))
	for _, ev := range events {
		timeline = append(timeline, TraceEvent{
			Seq:      ev.Seq,
			Tick:     ev.Tick,
			Name:     ev.Name,
			Subject:  ev.Subject.String(),
			Data:     ev.Data,
			Trace:    ev.Trace,
			Handled:  ev.Handled,
			Notified: ev.Notified,
			Depth:    ev.Depth,
		})
	}
	return timeline
}

func runListing(ctx context.Context, st *store.Store, f *OutputFormatter) error {
	runs, err := st.Runs(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	keys, err := st.SnapshotKeys(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list snapshots", err)
	}
	if f.json() {
		return f.respond(CLIResponse{Status: "ok", Data: RunListing{Runs: runs, Snapshots: keys}})
	}

	rows := make([]string, len(runs))
	for i, r := range runs {
		rows[i] = r.ID + "  " + r.Source
	}
	writeSection(f.Writer, "Runs", rows, "(no runs)")
	fmt.Fprintln(f.Writer)
	writeSection(f.Writer, "Snapshots", keys, "(no snapshots)")
	return nil
}

// writeSection prints a "=== title ===" header and one indented line per
// row, or empty when there are none.
func writeSection(w io.Writer, title string, rows []string, empty string) {
	fmt.Fprintf(w, "=== %s ===\n", title)
	if len(rows) == 0 {
		rows = []string{empty}
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %s\n", r)
	}
}

func writeTrace(f *OutputFormatter, result TraceResult) error {
	if f.json() {
		return f.respond(CLIResponse{Status: "ok", Data: result, RunID: result.RunID})
	}

	w := f.Writer
	fmt.Fprintf(w, "Trace for Run: %s\nSource: %s\n\n", result.RunID, result.Source)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Timeline {
		writeTimelineEvent(w, ev, f.Verbose)
	}
	fmt.Fprintln(w)

	st := result.Stats
	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", st.TotalEvents)
	fmt.Fprintf(w, "  Ticks:        %d\n", st.Ticks)
	fmt.Fprintf(w, "  Handled:      %d\n", st.Handled)
	fmt.Fprintf(w, "  Max Depth:    %d\n", st.MaxDepth)
	if len(st.ByName) > 0 {
		fmt.Fprintf(w, "  By Name:      %s\n", formatCounts(st.ByName))
	}
	return nil
}

func writeTimelineEvent(w io.Writer, ev TraceEvent, verbose bool) {
	var flags []string
	if ev.Handled {
		flags = append(flags, "handled")
	}
	if ev.Depth > 0 {
		flags = append(flags, fmt.Sprintf("depth=%d", ev.Depth))
	}
	suffix := ""
	if len(flags) > 0 {
		suffix = " (" + strings.Join(flags, ", ") + ")"
	}
	fmt.Fprintf(w, "  [%d] tick=%d %s @%s%s\n", ev.Seq, ev.Tick, ev.Name, ev.Subject, suffix)
	if !verbose {
		return
	}

	if _, null := ev.Data.(value.Null); ev.Data != nil && !null {
		fmt.Fprintf(w, "       Data: %s\n", value.Format(ev.Data))
	}
	if len(ev.Trace) > 0 {
		fmt.Fprintf(w, "       Trace: %s\n", ev.Trace)
	}
	fmt.Fprintf(w, "       Notified: %d\n", ev.Notified)
}

// formatCounts renders counts as {name=n, ...} in key order.
func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
