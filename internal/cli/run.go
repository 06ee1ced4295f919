package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/worklets/internal/engine"
	"github.com/roach88/worklets/internal/harness"
	"github.com/roach88/worklets/internal/metrics"
	"github.com/roach88/worklets/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Realtime bool

	// IDGenerator overrides the engine id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.IDGenerator
}

// RunReport is the outcome of one scenario run.
type RunReport struct {
	Scenario string           `json:"scenario"`
	EngineID string           `json:"engine_id"`
	Pass     bool             `json:"pass"`
	Events   int              `json:"events"`
	Errors   []string         `json:"errors,omitempty"`
	Database string           `json:"database,omitempty"`
	Metrics  []metrics.Sample `json:"metrics,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario on a fresh engine",
		Long: `Run one scenario on a fresh engine and report whether its
expectations held.

The engine trace is saved as a session (keyed by the engine id) when a
database is given with --db or trace_db in the config file. --realtime
spaces frames frame_interval_ms apart in wall-clock time without changing
the trace. --verbose also prints the engine metrics.

Exit codes:
  0 - Scenario passed
  1 - Scenario failed or could not run
  2 - Command error (invalid paths, bad config, etc.)

Examples:
  worklets run ./scenarios/scroll.yaml
  worklets run ./scenarios/scroll.yaml --db ./traces.db
  worklets run ./scenarios/scroll.yaml --realtime
  worklets run ./scenarios/scroll.yaml --verbose --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (overrides trace_db)")
	cmd.Flags().BoolVar(&opts.Realtime, "realtime", false, "pace frames in wall-clock time")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, opts.Verbose, cmd.ErrOrStderr())

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		_ = formatter.Error(ErrCodeLoadFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	idGen := opts.IDGenerator
	if idGen == nil {
		idGen = engine.UUIDv7Generator{}
	}
	collector := metrics.NewCollector(cfg.MetricsNamespace)

	formatter.VerboseLog("Running %s", scenario.Name)
	runOpts := []harness.Option{
		harness.WithLogger(logger),
		harness.WithMetrics(collector),
		harness.WithIDGenerator(idGen),
		harness.WithFrameInterval(float64(cfg.FrameIntervalMs)),
	}
	if opts.Realtime {
		runOpts = append(runOpts, harness.WithPacing(cfg.FrameInterval()))
	}
	result, err := harness.Run(scenario, runOpts...)
	if err != nil {
		_ = formatter.Error(ErrCodeRunFailed, err.Error(), nil)
		return WrapExitError(ExitFailure, "scenario execution failed", err)
	}

	report := RunReport{
		Scenario: scenario.Name,
		EngineID: result.EngineID,
		Pass:     result.Pass,
		Events:   len(result.Trace),
		Errors:   result.Errors,
	}

	db := opts.Database
	if db == "" {
		db = cfg.TraceDB
	}
	if db != "" {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := saveSession(ctx, db, scenario.Name, result); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to save trace", err)
		}
		report.Database = db
	}

	if opts.Verbose {
		samples, err := collector.Summary()
		if err != nil {
			return WrapExitError(ExitFailure, "failed to gather metrics", err)
		}
		report.Metrics = samples
	}

	if opts.Format == "json" {
		if err := formatter.Success(report); err != nil {
			return err
		}
	} else {
		writeRunReport(cmd.OutOrStdout(), report)
	}

	if !report.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

// saveSession writes the run's trace to the database as a new session.
func saveSession(ctx context.Context, path, name string, result *harness.Result) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.CreateSession(ctx, store.Session{ID: result.EngineID, Name: name}); err != nil {
		return err
	}
	return st.WriteEvents(ctx, result.EngineID, result.Trace)
}

func writeRunReport(w io.Writer, r RunReport) {
	mark := "✓"
	if !r.Pass {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s (engine %s, %d events)\n", mark, r.Scenario, r.EngineID, r.Events)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(strings.TrimRight(e, "\n"), "\n", "\n  "))
	}
	if r.Database != "" {
		fmt.Fprintf(w, "Trace saved to %s (session %s)\n", r.Database, r.EngineID)
	}
	if len(r.Metrics) > 0 {
		fmt.Fprintln(w, "Metrics:")
		for _, s := range r.Metrics {
			fmt.Fprintf(w, "  %s %g\n", sampleName(s), s.Value)
		}
	}
}

// sampleName renders a sample the way Prometheus exposes it.
func sampleName(s metrics.Sample) string {
	if len(s.Labels) == 0 {
		return s.Name
	}
	keys := make([]string, 0, len(s.Labels))
	for k := range s.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, s.Labels[k])
	}
	return s.Name + "{" + strings.Join(parts, ",") + "}"
}
