package vm

import (
	"fmt"
	"strings"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/value"
)

// traceInstruction logs the current stack and the instruction about to
// execute, in the same format pkg/chunk/disasm.go produces for a static
// dump, so `-d` output can be diffed directly against `loxvm -disasm`
// (spec §6.1). It goes through vm.log rather than Stderr directly: the
// default logger is a no-op, so tracing only costs anything once a host
// wires one in with WithLogger (cmd/loxvm does this whenever -d is set).
func (vm *VM) traceInstruction() {
	f := vm.currentFrame()

	var stack strings.Builder
	stack.WriteString("          ")
	for i := 0; i < vm.sp; i++ {
		fmt.Fprintf(&stack, "[ %s ]", value.Stringify(vm.stack[i]))
	}
	vm.log.Debug(stack.String())

	line, _ := chunk.DisassembleInstruction(f.closure.Fn.Chunk, f.ip)
	vm.log.Debug(line)
}
