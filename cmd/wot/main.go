// Command wot serves the webhook notification API and its tooling.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/wot/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "wot: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
