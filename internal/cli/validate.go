package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/simkernel/internal/compiler"
	"github.com/roach88/simkernel/internal/content"
	"github.com/roach88/simkernel/internal/world"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []content.CycleWarning     `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <content-dir>",
		Short: "Validate content without writing output",
		Long: `Validate CUE dispatcher schemas and content trees.

Compiles the content, checks it against the descriptor rules (names,
kinds, sources, dispatcher references, effect targets) and reports
property bindings that feed back into themselves. Cycles are warnings:
they do not fail validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, contentDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, loadErrors := LoadContent(contentDir, LoadModeCollectAll)

	if loadResult == nil {
		le := asLoadError(loadErrors[0])
		return formatter.commandError(le.Code, le.Message)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, contentDir)

	// Compile errors come first, then descriptor rule violations in what
	// did compile.
	var validationErrors []compiler.ValidationError
	for _, err := range loadErrors {
		le := asLoadError(err)
		ve := compiler.ValidationError{Field: "load", Message: le.Message, Code: le.Code}
		if le.Pos.IsValid() {
			ve.Line = le.Pos.Line()
		}
		validationErrors = append(validationErrors, ve)
	}
	validationErrors = append(validationErrors, validateProgram(loadResult.Program, formatter)...)
	warnings := analyzeProgram(loadResult.Program, formatter)

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors, warnings)
	}

	return outputValidateSuccess(formatter, warnings)
}

// validateProgram runs schema validation over everything that compiled.
// Program-level checks (dispatcher references, duplicates) cover the
// whole program at once.
func validateProgram(prog *compiler.Program, formatter *OutputFormatter) []compiler.ValidationError {
	for _, d := range prog.Dispatchers {
		formatter.VerboseLog("Validating dispatcher: %s", d.DispatcherName)
	}
	for _, d := range prog.Content {
		formatter.VerboseLog("Validating content: %s", d.Name)
	}
	return compiler.Validate(prog)
}

// analyzeProgram reports binding cycles in each content root as if it
// were expanded under the Game.
func analyzeProgram(prog *compiler.Program, formatter *OutputFormatter) []content.CycleWarning {
	var warnings []content.CycleWarning
	for _, d := range prog.Content {
		found := content.AnalyzeBindings(d, world.GameAddress)
		if len(found) > 0 {
			formatter.VerboseLog("Content %s: %d binding cycle(s)", d.Name, len(found))
		}
		warnings = append(warnings, found...)
	}
	return warnings
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, warnings []content.CycleWarning) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Warnings: warnings})
	}

	writeWarnings(formatter.Writer, warnings)
	fmt.Fprintln(formatter.Writer, "✓ All content valid")
	return nil
}

func writeWarnings(w io.Writer, warnings []content.CycleWarning) {
	for _, warn := range warnings {
		fmt.Fprintf(w, "⚠ %s\n", warn.Message)
	}
	if len(warnings) > 0 {
		fmt.Fprintln(w)
	}
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError, warnings []content.CycleWarning) error {
	// Invalid content is a failed check, not a failed command.
	failed := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		result := ValidationResult{Errors: errs, Warnings: warnings}
		if err := formatter.Fail(result, CLIError{Code: errs[0].Code, Message: errs[0].Message}); err != nil {
			return err
		}
		return failed
	}

	fmt.Fprintf(formatter.Writer, "✗ Validation failed\n\n")
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	writeWarnings(formatter.Writer, warnings)
	return failed
}

// ValidateContentDir validates all content in a directory.
// This is a helper function for external callers.
func ValidateContentDir(contentDir string) ([]compiler.ValidationError, error) {
	loadResult, loadErrors := LoadContent(contentDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}

	silentFormatter := &OutputFormatter{Format: "text", Verbose: false, Writer: io.Discard}
	return validateProgram(loadResult.Program, silentFormatter), nil
}
