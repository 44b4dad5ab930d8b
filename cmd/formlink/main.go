// Command formlink checks form definitions, runs form scenarios and reads
// event journals.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/formlink/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
