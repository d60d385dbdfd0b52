// Command simk compiles, runs, tests and inspects simulant trees.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/simkernel/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
