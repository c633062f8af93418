package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/rulecore/internal/engine"
	"github.com/roach88/rulecore/internal/harness"
	"github.com/roach88/rulecore/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database  string
	MaxCycles int

	// RunIDGenerator allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator when recording to a database.
	RunIDGenerator engine.RunIDGenerator
}

// RunSummary is the outcome of one scenario run.
type RunSummary struct {
	Scenario string   `json:"scenario"`
	RunID    string   `json:"run_id"`
	Pass     bool     `json:"pass"`
	Cycles   int64    `json:"cycles"`
	Fires    int      `json:"fires"`
	Writes   int      `json:"writes"`
	Database string   `json:"database,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a scenario through the engine",
		Long: `Run one scenario file through the rule engine.

The scenario's rules are loaded, its steps drive status writes through
update cycles, and its assertions are checked against the trace. With --db
the trace is recorded to a SQLite database (created if missing) under a
fresh run id, so it can be inspected later with the trace command.

Example:
  rulecore run ./scenarios/low_hp.yaml
  rulecore run --db ./trace.db ./scenarios/low_hp.yaml --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", rootOpts.Config.DBPath, "path to SQLite trace database (optional)")
	cmd.Flags().IntVar(&opts.MaxCycles, "max-cycles", rootOpts.Config.MaxCycles, "cycle bound for each settling step (0 keeps the scenario's)")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(cmd.ErrOrStderr(), opts.RootOptions)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, "failed to load scenario", err)
	}
	if opts.MaxCycles > 0 {
		scenario.MaxCycles = opts.MaxCycles
	}

	harnessOpts := []harness.Option{harness.WithLogger(logger)}
	if opts.Database != "" {
		logger.Info("opening database", "path", opts.Database)
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()

		gen := opts.RunIDGenerator
		if gen == nil {
			gen = engine.UUIDv7Generator{}
		}
		harnessOpts = append(harnessOpts, harness.WithStore(st), harness.WithRunIDGenerator(gen))
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("running scenario", "scenario", scenario.Name, "source", path)
	result, err := harness.Run(ctx, scenario, harnessOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeRunFailed, "failed to run scenario", err)
	}

	summary := summarize(scenario.Name, opts.Database, result)
	logger.Debug("scenario finished",
		"scenario", summary.Scenario,
		"run_id", summary.RunID,
		"cycles", summary.Cycles,
		"pass", summary.Pass,
	)

	if err := outputRunSummary(formatter, summary); err != nil {
		return err
	}
	if !summary.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", summary.Scenario))
	}
	return nil
}

func summarize(name, database string, result *harness.Result) RunSummary {
	fires := len(result.Fires())
	return RunSummary{
		Scenario: name,
		RunID:    result.RunID,
		Pass:     result.Pass,
		Cycles:   result.Cycles,
		Fires:    fires,
		Writes:   len(result.Trace) - fires,
		Database: database,
		Errors:   result.Errors,
		Warnings: result.Warnings,
	}
}

func outputRunSummary(formatter *OutputFormatter, s RunSummary) error {
	if formatter.Format == "json" {
		response := CLIResponse{Status: "ok", Data: s, RunID: s.RunID}
		if !s.Pass {
			response.Status = "error"
			response.Error = &CLIError{Code: ErrCodeTestFailed, Message: fmt.Sprintf("scenario %s failed", s.Scenario)}
		}
		return encodeIndented(formatter.Writer, response)
	}

	w := formatter.Writer
	mark := "✓"
	if !s.Pass {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s (%d cycles, %d writes, %d fires)\n", mark, s.Scenario, s.Cycles, s.Writes, s.Fires)
	for _, e := range s.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
	for _, warning := range s.Warnings {
		fmt.Fprintf(w, "  ⚠ %s\n", warning)
	}
	if s.Database != "" {
		fmt.Fprintf(w, "Run %s recorded to %s\n", s.RunID, s.Database)
	}
	return nil
}
