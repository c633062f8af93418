package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/rulecore/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	LogLevel string

	// Config carries the environment settings the flags were seeded from.
	Config config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the rulecore CLI.
// Flag defaults come from cfg, so an explicit flag overrides the
// environment.
func NewRootCommand(cfg config.Config) *cobra.Command {
	opts := &RootOptions{Config: cfg}

	cmd := &cobra.Command{
		Use:   "rulecore",
		Short: "rulecore - reactive status rules",
		Long: `A reactive rule engine: typed statuses, boolean expressions over them,
and handlers that fire when an expression's evaluation changes.

Rules are written in CUE; scenarios in YAML or CUE drive them through
update cycles and assert on the recorded trace.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if _, err := config.ParseLevel(opts.LogLevel); err != nil {
				return err
			}
			return nil
		},
	}

	format := cfg.Format
	if format == "" {
		format = "text"
	}
	level := cfg.LogLevel
	if level == "" {
		level = "info"
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", format, "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", level, "engine log level (debug|info|warn|error)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// newLogger returns the engine logger for a command. Logs follow --format
// and --verbose lowers the level to debug.
func newLogger(w io.Writer, opts *RootOptions) *slog.Logger {
	level, err := config.ParseLevel(opts.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if opts.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}
