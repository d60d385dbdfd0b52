package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/simkernel/internal/compiler"
	"github.com/roach88/simkernel/internal/content"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	DispatcherCount int
	RootCount       int
	SimulantCount   int
	PropertyCount   int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <content-dir>",
		Short: "Compile CUE content to descriptors",
		Long: `Compile CUE dispatcher schemas and content trees to JSON.

The compiler loads the CUE package in the directory, compiles every
entry under "dispatcher" and "content", and outputs the program as
JSON for inspection or for loading without CUE.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, contentDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, loadErrors := LoadContent(contentDir, LoadModeCollectAll)

	if loadResult == nil {
		le := asLoadError(loadErrors[0])
		return formatter.commandError(le.Code, le.Message)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, contentDir)

	prog := loadResult.Program
	for _, d := range prog.Dispatchers {
		formatter.VerboseLog("Compiling dispatcher: %s", d.DispatcherName)
	}
	for _, d := range prog.Content {
		formatter.VerboseLog("Compiling content: %s", d.Name)
	}

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	stats := calculateStats(prog)

	if opts.Output != "" {
		if err := writeProgramToFile(prog, opts.Output); err != nil {
			return formatter.commandError(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, prog, stats, opts.Output)
}

// calculateStats computes summary statistics from a compiled program.
func calculateStats(prog *compiler.Program) CompilationStats {
	stats := CompilationStats{
		DispatcherCount: len(prog.Dispatchers),
		RootCount:       len(prog.Content),
	}
	for _, d := range prog.Dispatchers {
		stats.PropertyCount += len(d.Props)
	}
	for _, d := range prog.Content {
		stats.SimulantCount += countSimulants(d)
	}
	return stats
}

// countSimulants counts d and its static descendants. Stream templates
// are not counted since their element count is only known at runtime.
func countSimulants(d content.Descriptor) int {
	n := 1
	for _, c := range d.Children {
		n += countSimulants(c)
	}
	return n
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, prog *compiler.Program, stats CompilationStats, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(prog)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d dispatcher(s), %d content root(s)\n\n",
		stats.DispatcherCount, stats.RootCount)

	if len(prog.Dispatchers) > 0 {
		fmt.Fprintln(formatter.Writer, "Dispatchers:")
		for _, d := range prog.Dispatchers {
			fmt.Fprintf(formatter.Writer, "  %s: %d property(s), %d signal(s)\n",
				d.DispatcherName, len(d.Props), len(d.Signals))
		}
		fmt.Fprintln(formatter.Writer)
	}

	if len(prog.Content) > 0 {
		fmt.Fprintln(formatter.Writer, "Content:")
		for _, d := range prog.Content {
			kind := d.Kind
			if kind == "" {
				kind = "Entity"
			}
			fmt.Fprintf(formatter.Writer, "  %s (%s): %d simulant(s)\n", d.Name, kind, countSimulants(d))
		}
		fmt.Fprintln(formatter.Writer)
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote program to %s\n", outputFile)
	}

	return nil
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	failed := NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))

	loadErrs := make([]*LoadError, len(errs))
	cliErrors := make([]CLIError, len(errs))
	for i, err := range errs {
		loadErrs[i] = asLoadError(err)
		cliErrors[i] = CLIError{Code: loadErrs[i].Code, Message: loadErrs[i].Message}
	}
	if formatter.Format == "json" {
		if err := formatter.Fail(cliErrors, cliErrors[0]); err != nil {
			return err
		}
		return failed
	}

	fmt.Fprintf(formatter.Writer, "✗ Compilation failed\n\n")
	for _, le := range loadErrs {
		if pos := le.Pos; pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", pos.Filename(), pos.Line(), pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", le.Code, le.Message)
	}
	return failed
}

// writeProgramToFile writes the compiled program as indented JSON.
// Property values are value.Value and marshal canonically on their own.
func writeProgramToFile(prog *compiler.Program, filename string) error {
	data, err := json.MarshalIndent(prog, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling program: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
