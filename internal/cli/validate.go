package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rulecore/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Chunks   int                        `json:"chunks"`
	Handlers int                        `json:"handlers"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <rules-path>...",
		Short: "Validate rules without running them",
		Long: `Validate CUE rule files without running them.

Each path is a CUE file or a directory holding one CUE package. Chunks and
handlers are compiled, then checked together: every name a comparison,
transition, sub-expression, handler or write uses must be defined somewhere.
Handlers that can re-trigger each other through their writes are reported
as warnings.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loadResult, loadErrors := LoadRules(paths, LoadModeCollectAll)

	// Nothing loaded at all (path not found, no files, CUE syntax)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, ErrCodeGeneric, loadErrors[0].Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %d path(s)", loadResult.FileCount, len(paths))

	var validationErrors []compiler.ValidationError
	for _, err := range loadErrors {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			validationErrors = append(validationErrors, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    lineOf(loadErr),
			})
		}
	}

	spec := loadResult.Spec
	for _, c := range spec.Chunks {
		formatter.VerboseLog("Validating chunk: %s", c.Name)
	}
	for _, h := range spec.Handlers {
		formatter.VerboseLog("Validating handler: %s", h.Name)
	}
	validationErrors = append(validationErrors, compiler.ValidateSpec(spec)...)

	result := ValidationResult{
		Valid:    len(validationErrors) == 0,
		Chunks:   len(spec.Chunks),
		Handlers: len(spec.Handlers),
		Errors:   validationErrors,
		Warnings: compiler.AnalyzeCycles(spec),
	}

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

func lineOf(e *LoadError) int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ All rules valid (%d chunks, %d handlers)\n", result.Chunks, result.Handlers)
	writeWarnings(formatter, result.Warnings)
	return nil
}

func writeWarnings(formatter *OutputFormatter, warnings []compiler.CycleWarning) {
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "⚠ %s\n", w.Message)
	}
}

// outputValidateError reports a load error; those are command errors.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	return formatter.Fail(ExitCommandError, code, message, nil)
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := encodeIndented(formatter.Writer, response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	writeWarnings(formatter, result.Warnings)

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

// ValidateRules compiles and checks the rules at paths.
// This is a helper function for external callers.
func ValidateRules(paths ...string) ([]compiler.ValidationError, error) {
	loadResult, loadErrors := LoadRules(paths, LoadModeFailFast)
	if loadResult == nil {
		return nil, loadErrors[0]
	}
	if len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}
	return compiler.ValidateSpec(loadResult.Spec), nil
}
