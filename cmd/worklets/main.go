// Command worklets runs worklet scenarios and inspects their traces.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/worklets/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
