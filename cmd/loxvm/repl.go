package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"

	"github.com/kristofer/loxvm/pkg/vm"
)

const historyFile = ".loxvm_history"

// runREPL implements the interactive mode spec §6.1 starts when invoked
// with no arguments. Every line is compiled and run as its own entry
// script against the same *vm.VM. Run binds each line to a fresh entry
// module with its own globals, so globals declared on one line are not
// visible to the next.
func runREPL(machine *vm.VM) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := filepath.Join(os.TempDir(), historyFile)
	if f, err := os.Open(historyPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	errColor := color.New(color.FgRed)
	colorize := isatty.IsTerminal(os.Stdout.Fd())

	for {
		input, err := line.Prompt("lox> ")
		if err != nil {
			fmt.Println()
			return nil
		}
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		fn, cerr := machine.CompileScript(input, "<repl>")
		if cerr != nil {
			printREPLError(errColor, colorize, "compile error", cerr)
			continue
		}
		if _, rerr := machine.Run(fn); rerr != nil {
			printREPLError(errColor, colorize, "runtime error", rerr)
		}
	}
}

func printREPLError(c *color.Color, colorize bool, category string, err error) {
	banner := fmt.Sprintf("== %s ==", category)
	if colorize {
		c.Fprintln(os.Stderr, banner)
	} else {
		fmt.Fprintln(os.Stderr, banner)
	}
	fmt.Fprintln(os.Stderr, err)
}
