package main

import (
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/value"
	"github.com/kristofer/loxvm/pkg/vm"
)

// runAction implements `loxvm` (REPL) and `loxvm <path>` (compile and
// run a source file), the two forms spec §6.1 lists before the
// `compile`/`exec` subcommands.
func runAction(c *cli.Context) error {
	machine := newVM(c)

	if c.Args().Len() == 0 {
		return runREPL(machine)
	}
	return runFile(machine, c.Args().First(), c.Bool("disasm"), c.Bool("labels"))
}

func newVM(c *cli.Context) *vm.VM {
	opts := []vm.Option{
		vm.WithTrace(c.Bool("trace")),
		vm.WithGCStress(c.Bool("gc-stress")),
	}
	if c.Bool("trace") || c.Bool("gc-stress") {
		opts = append(opts, vm.WithLogger(diagnosticLogger()))
	}
	return vm.New(opts...)
}

// diagnosticLogger builds a message-only logger for -d/--gc-stress
// output: no timestamp, level, or caller prefix, so a `-d` trace stays
// line-for-line diffable against `loxvm -disasm`'s plain-text dump.
func diagnosticLogger() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.TimeKey = ""
	cfg.LevelKey = ""
	cfg.NameKey = ""
	cfg.CallerKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(os.Stderr), zapcore.DebugLevel)
	return zap.New(core).Sugar()
}

func runFile(machine *vm.VM, path string, dumpDisasm, withLabels bool) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return &exitError{category: "io error", err: err, code: 74}
	}

	fn, cerr := machine.CompileScript(string(src), path)
	if cerr != nil {
		return &exitError{category: "compile error", err: cerr, code: 65}
	}

	if dumpDisasm {
		printDisassembly(fn, path, withLabels)
	}

	if _, rerr := machine.Run(fn); rerr != nil {
		return &exitError{category: "runtime error", err: rerr, code: 70}
	}
	return nil
}

func printDisassembly(fn *value.Function, name string, withLabels bool) {
	os.Stdout.WriteString(chunk.Disassemble(fn.Chunk, name, withLabels))
	for _, c := range fn.Chunk.Constants {
		if nested, ok := c.AsObj().(*value.Function); ok && c.Kind == value.Ref {
			label := name
			if nested.Name != nil {
				label = string(nested.Name.Chars)
			}
			printDisassembly(nested, label, withLabels)
		}
	}
}
