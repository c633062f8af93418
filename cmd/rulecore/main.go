// Command rulecore loads, runs and tests reactive rule sets.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rulecore/internal/cli"
	"github.com/roach88/rulecore/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCommandError)
	}

	if err := cli.NewRootCommand(cfg).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
