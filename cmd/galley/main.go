// Command galley runs the order queue and fulfillment engine.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/galley/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
