// Command loxvm is the CLI front end for the bytecode VM (spec §6.1): a
// bare invocation starts the REPL, a path argument compiles and runs a
// source file, and the `compile`/`exec` subcommands round-trip through
// the binary bytecode format in pkg/bytefile.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "loxvm",
		Usage: "a stack-based bytecode VM for a small class-based scripting language",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "trace", Aliases: []string{"d"}, Usage: "trace execution, one line per instruction"},
			&cli.BoolFlag{Name: "disasm", Aliases: []string{"s"}, Usage: "dump disassembly after compilation"},
			&cli.BoolFlag{Name: "labels", Aliases: []string{"l"}, Usage: "annotate disassembly with jump-target labels"},
			&cli.BoolFlag{Name: "gc-stress", Usage: "collect garbage before every allocation"},
		},
		Action: runAction,
		Commands: []*cli.Command{
			compileCommand,
			execCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		reportAndExit(err)
	}
}

// exitError carries the process exit code alongside the category banner
// spec §6.1 specifies (`== compile error ==`, `== runtime error ==`,
// `== io error ==`), so main's single reportAndExit call can format any
// failure path the same way.
type exitError struct {
	category string
	err      error
	code     int
}

func (e *exitError) Error() string { return e.err.Error() }

func reportAndExit(err error) {
	if ee, ok := err.(*exitError); ok {
		fmt.Fprintf(os.Stderr, "== %s ==\n%v\n", ee.category, ee.err)
		os.Exit(ee.code)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
