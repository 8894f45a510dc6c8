// Package cli is the workermgr command line: the manager itself (serve), the
// worker process entry point (worker) and a small control client (ctl).
package cli

import (
	"fmt"
	"os"
)

// MainWithArgs runs the command line and returns the process exit code:
// 0 on success (including a signal-initiated shutdown), 1 on any failure.
func MainWithArgs(args []string) int {
	root := buildRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "workermgr:", err.Error())
		return 1
	}
	return 0
}

// Main returns an exit code for use by cmd/workermgr.
func Main() int { return MainWithArgs(os.Args[1:]) }
