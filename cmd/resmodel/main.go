// Package main is the entry point for the resmodel CLI.
//
// resmodel compiles CUE resource definitions and manages a versioned
// configuration tree: clients at older model versions read and write it
// through legacy paths and attributes that are translated to the current
// model.
//
// Commands: compile, validate, schema, op, history, replay, test.
//
// For detailed usage information, run:
//
//	resmodel --help
package main

import (
	"fmt"
	"os"

	"github.com/roach88/resmodel/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
