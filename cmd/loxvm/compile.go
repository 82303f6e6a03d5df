package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/kristofer/loxvm/pkg/bytefile"
)

// compileCommand implements `loxvm compile <src> <out>`, the subcommand
// form of spec §6.1's `-c <out> <src>` flag: compile source and write
// its bytecode to out without running it.
var compileCommand = &cli.Command{
	Name:      "compile",
	Usage:     "compile source to a bytecode file without running it",
	ArgsUsage: "<src> <out>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 2 {
			return &exitError{category: "io error", err: errUsage("compile requires <src> and <out>"), code: 64}
		}
		srcPath, outPath := c.Args().Get(0), c.Args().Get(1)

		src, err := os.ReadFile(srcPath)
		if err != nil {
			return &exitError{category: "io error", err: err, code: 74}
		}

		machine := newVM(c)
		fn, cerr := machine.CompileScript(string(src), srcPath)
		if cerr != nil {
			return &exitError{category: "compile error", err: cerr, code: 65}
		}

		out, err := os.Create(outPath)
		if err != nil {
			return &exitError{category: "io error", err: err, code: 73}
		}
		defer out.Close()

		if err := bytefile.Encode(fn, out); err != nil {
			return &exitError{category: "io error", err: err, code: 73}
		}
		return nil
	},
}

type errUsage string

func (e errUsage) Error() string { return string(e) }
