// Command chronicle saves keyed records with a hash-chained audit trail.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/chronicle/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		var exitErr *cli.ExitError
		// Commands report their own errors; print only what they did not.
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
