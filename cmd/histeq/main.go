// Command histeq is the entrypoint for both the coordinator and worker
// processes. All of its logic lives in internal/cli; this file only
// wires it up and translates a top-level error into an exit code.
package main

import (
	"fmt"
	"os"

	"github.com/histeq/cluster/internal/cli"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "histeq: fatal: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := cli.BuildCLI().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "histeq: %v\n", err)
		os.Exit(1)
	}
}
