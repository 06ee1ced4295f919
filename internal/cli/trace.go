package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/worklets/internal/store"
	"github.com/roach88/worklets/internal/trace"
	"github.com/roach88/worklets/internal/value"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string // defaults to the latest session
	Kind     string // optional - filter to one event kind
	List     bool
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  string        `json:"session"`
	Name     string        `json:"name"`
	Timeline []trace.Event `json:"timeline"`
	Stats    TraceStats    `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	Shown       int            `json:"shown"`
	ByKind      map[string]int `json:"by_kind"`
}

// SessionSummary is one row of `trace --list`.
type SessionSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Events int    `json:"events"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show a saved engine trace",
		Long: `Show the timeline of a trace session saved by "worklets run --db".

Without --session the most recent session is shown. --list prints every
session instead.

Examples:
  worklets trace --db ./traces.db
  worklets trace --db ./traces.db --list
  worklets trace --db ./traces.db --session 01929b2c-... --kind event
  worklets trace --db ./traces.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session (engine id) to show")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one event kind (e.g. event, frame)")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list sessions")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.List {
		return listSessions(ctx, st, opts, cmd)
	}

	var sess store.Session
	if opts.Session == "" {
		sess, err = st.LatestSession(ctx)
	} else {
		sess, err = st.ReadSession(ctx, opts.Session)
	}
	if errors.Is(err, store.ErrSessionNotFound) {
		if opts.Session == "" {
			return NewExitError(ExitCommandError, "no sessions in database")
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", opts.Session))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	total, err := st.CountEvents(ctx, sess.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count events", err)
	}
	events, err := st.ReadEvents(ctx, sess.ID, trace.Kind(opts.Kind))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := TraceResult{
		Session:  sess.ID,
		Name:     sess.Name,
		Timeline: events,
		Stats: TraceStats{
			TotalEvents: total,
			Shown:       len(events),
			ByKind:      make(map[string]int),
		},
	}
	for _, ev := range events {
		result.Stats.ByKind[string(ev.Kind)]++
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
}

func listSessions(ctx context.Context, st *store.Store, opts *TraceOptions, cmd *cobra.Command) error {
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		n, err := st.CountEvents(ctx, sess.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to count events", err)
		}
		summaries = append(summaries, SessionSummary{ID: sess.ID, Name: sess.Name, Events: n})
	}

	if opts.Format == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: summaries})
	}

	w := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(w, "%s  %-24s %d events\n", s.ID, s.Name, s.Events)
	}
	return nil
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	response := CLIResponse{
		Status:  "ok",
		Data:    result,
		Session: result.Session,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintf(w, "Trace for Session: %s (%s)\n", result.Session, result.Name)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Timeline {
		fmt.Fprintf(w, "  [%d] %s %s\n", ev.Seq, ev.Kind, ev.Subject)
		if verbose && len(ev.Data) > 0 {
			data, err := value.MarshalCanonical(ev.Data)
			if err != nil {
				return fmt.Errorf("format event %d: %w", ev.Seq, err)
			}
			fmt.Fprintf(w, "       %s\n", data)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Shown:        %d\n", result.Stats.Shown)
	return nil
}
