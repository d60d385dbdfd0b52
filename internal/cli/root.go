package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// Version is reported by simk --version. Release builds set it with
// -ldflags "-X github.com/roach88/simkernel/internal/cli.Version=...".
var Version = "dev"

// RootOptions holds the persistent flags every subcommand sees.
type RootOptions struct {
	Verbose bool
	Format  string // one of ValidFormats
}

// ValidFormats are the values accepted by --format.
var ValidFormats = []string{"text", "json"}

// formatter returns an OutputFormatter writing to the command's streams.
// Verbose diagnostics go to stderr so JSON on stdout stays parseable.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// NewRootCommand builds the simk command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "simk",
		Short:   "simk - simulation kernel",
		Long:    "Compile, run, test and inspect simulant trees authored as CUE content.",
		Version: Version,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(
		NewCompileCommand(opts),
		NewValidateCommand(opts),
		NewRunCommand(opts),
		NewTestCommand(opts),
		NewTraceCommand(opts),
	)
	return cmd
}
