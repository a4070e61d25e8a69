// Command nanostat is a diagnostic inspector over a nanokern instance: it
// boots a kernel, runs a small demo workload, then reports on process and
// thread state (§6 "diagnostic output").
//
// Grounded on arctir-proctor/cmd/cmd.go's cobra command-tree layout
// (a root command with no-op Run plus get/ls/tree subcommands), adapted
// here to ps/threads/dump subcommands over a nanokern.Kernel instead of
// host OS processes.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := SetupCommands().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
