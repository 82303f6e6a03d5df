package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/kristofer/loxvm/pkg/bytefile"
)

// execCommand implements `loxvm exec <path>`, the subcommand form of
// spec §6.1's `-b <path>` flag: load a precompiled bytecode file and
// run it directly, skipping lexing and compilation entirely.
var execCommand = &cli.Command{
	Name:      "exec",
	Usage:     "load and execute a precompiled bytecode file",
	ArgsUsage: "<path>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 1 {
			return &exitError{category: "io error", err: errUsage("exec requires exactly one <path>"), code: 64}
		}
		path := c.Args().First()

		in, err := os.Open(path)
		if err != nil {
			return &exitError{category: "io error", err: err, code: 74}
		}
		defer in.Close()

		machine := newVM(c)
		fn, derr := bytefile.Decode(in, machine.InternPublic)
		if derr != nil {
			return &exitError{category: "io error", err: derr, code: 74}
		}

		if c.Bool("disasm") {
			printDisassembly(fn, path, c.Bool("labels"))
		}

		if _, rerr := machine.Run(fn); rerr != nil {
			return &exitError{category: "runtime error", err: rerr, code: 70}
		}
		return nil
	},
}
