// Package vm implements the dispatch loop described in spec §4.5: a
// loop over call frames that reads one opcode at a time from the active
// frame's chunk and switches on it. There is no computed-goto in Go, so
// this is a plain `for { switch }`, the same shape original_source/vm.c
// uses (its own run() is a stub in this retrieval pack, so the opcode
// semantics below are grounded directly in spec.md §4.5 and §6.2 rather
// than copied from a complete C reference — see DESIGN.md).
//
// A worked trace, ADD on two locals:
//
//	GET_LOCAL 1   ; stack: [..., a]
//	GET_LOCAL 2   ; stack: [..., a, b]
//	ADD           ; stack: [..., a+b]
package vm

import (
	"bufio"
	"fmt"
	"path/filepath"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/gc"
	"github.com/kristofer/loxvm/pkg/table"
	"github.com/kristofer/loxvm/pkg/value"
	"go.uber.org/zap"
)

const (
	framesMax = 64
	stackMax  = framesMax * 256
)

// Frame is one call frame (spec §4.5 "Call frame"): a closure, its
// instruction pointer into that closure's chunk, and the base index
// ("FP") into the VM's value stack where its locals begin. Slot FP+0 is
// the callee itself, or `this` for a method call.
type Frame struct {
	closure *value.Closure
	ip      int
	fp      int
}

// handler is one entry of the try/catch handler stack (spec §4.5
// "Exceptions"): SET_TRY records exactly these three numbers, and an
// unhandled error unwinds straight to the innermost one.
type handler struct {
	pc         int
	stackDepth int
	frameDepth int
}

// VM executes compiled bytecode. One VM owns one value stack, one
// frame stack, and the shared tables (string intern, builtins) that
// every module's Globals fall back to (spec §4.5 "State").
type VM struct {
	frames     [framesMax]Frame
	frameCount int

	stack [stackMax]value.Value
	sp    int // index of the next free slot

	openUpvalues *value.Upvalue // head of the list, sorted by descending StackIndex

	strings  *table.Table // VM-wide interned string table (spec §4.2)
	builtins *table.Table // shared names every module falls back to (spec §6.5)

	modules map[string]*value.Module // resolved-path -> already-loaded module cache
	loader  ModuleLoader

	gcRef *gc.Collector

	handlers []handler
	// stopDepth is the frameCount floor of the innermost active run()
	// call on the Go call stack; raise consults it to decide whether a
	// matching handler can be jumped to directly or belongs to an
	// enclosing run() invocation reached only by returning first.
	stopDepth int
	// pending holds a thrown error value that raise could not resolve
	// locally, for bubbleError to collect.
	pending value.Value

	errorClasses map[string]*value.Class

	Stdout interface {
		io_Writer
	}

	log   *zap.SugaredLogger
	trace bool
	rng   randSource

	scriptDir   string // directory of the entry script, for import resolution
	stdinReader *bufio.Reader
	gcStress    bool
}

// io_Writer is spelled out locally (rather than importing io) only so
// this file's import list stays focused; it is structurally io.Writer.
type io_Writer interface {
	Write(p []byte) (n int, err error)
}

// randSource abstracts math/rand's Rand so tests can supply a seeded
// source for deterministic `rand()` native behavior.
type randSource interface {
	Float64() float64
}

// New constructs a VM with its core tables wired up (spec §4.5 "State").
// It also installs the error classes (installErrorClasses, errors.go)
// and the native builtins (registerNatives, natives.go) itself, so the
// returned VM is ready to run scripts.
func New(opts ...Option) *VM {
	vm := &VM{
		strings:      table.New(),
		builtins:     table.New(),
		modules:      make(map[string]*value.Module),
		loader:       fileLoader{baseDir: "."},
		errorClasses: make(map[string]*value.Class),
		log:          zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(vm)
	}
	vm.gcRef = gc.New(vm.gcStress)
	vm.gcRef.MarkRoots = vm.markRoots
	vm.gcRef.PruneStrings = func() { vm.strings.RemoveUnreachable() }
	if vm.rng == nil {
		vm.rng = defaultRand()
	}
	vm.installErrorClasses()
	vm.registerNatives()
	return vm
}

func (vm *VM) push(v value.Value) {
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() value.Value {
	vm.sp--
	return vm.stack[vm.sp]
}

// peek looks distance slots below the top without popping; peek(0) is
// the top of stack.
func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.sp-1-distance]
}

func (vm *VM) resetStack() {
	vm.sp = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
	vm.handlers = nil
}

// currentFrame panics if called with no active frame; every opcode
// handler below runs with frameCount > 0 guaranteed by the dispatch
// loop's own condition.
func (vm *VM) currentFrame() *Frame { return &vm.frames[vm.frameCount-1] }

func (vm *VM) currentModule() *value.Module { return vm.currentFrame().closure.Module }

// readByte/readUint16 advance the current frame's ip exactly like
// pkg/chunk/disasm.go's nextIP decodes operand widths, so trace output
// and execution never disagree about instruction boundaries.
func (vm *VM) readByte() byte {
	f := vm.currentFrame()
	b := f.closure.Fn.Chunk.OpAt(f.ip)
	f.ip++
	return b
}

func (vm *VM) readUint16() uint16 {
	f := vm.currentFrame()
	v := f.closure.Fn.Chunk.ReadUint16(f.ip)
	f.ip += 2
	return v
}

func (vm *VM) readConstant(idx uint16) value.Value {
	return vm.currentFrame().closure.Fn.Chunk.Constants[idx]
}

// Interpret compiles and runs src as the entry script (spec §6.1 "compile
// and run source file"). scriptPath is used to resolve relative imports.
func (vm *VM) Interpret(src, scriptPath string) (value.Value, error) {
	fn, cerr := vm.CompileScript(src, scriptPath)
	if cerr != nil {
		return value.NilValue, cerr
	}
	return vm.Run(fn)
}

// CompileScript compiles src as a standalone entry module without
// running it, for the `-c`/`-s` CLI paths (spec §6.1) that need the
// compiled Function without executing it.
func (vm *VM) CompileScript(src, scriptPath string) (*value.Function, error) {
	vm.scriptDir = filepath.Dir(scriptPath)
	if _, ok := vm.loader.(fileLoader); ok {
		vm.loader = fileLoader{baseDir: vm.scriptDir}
	}

	mod := value.NewModule(vm.intern(scriptPath))
	mod.Globals = table.New()
	vm.track(mod, 64)

	return vm.compile(src, mod)
}

// Run executes a function already produced by CompileScript or loaded
// from a bytecode file via pkg/bytefile (spec §6.1's `-b` path), binding
// it to a fresh entry module the same way Interpret does.
func (vm *VM) Run(fn *value.Function) (value.Value, error) {
	mod := value.NewModule(vm.intern("<bytecode>"))
	mod.Globals = table.New()
	vm.track(mod, 64)

	closure := vm.newClosure(fn, mod)
	vm.push(value.RefValue(closure))
	if !vm.callClosure(closure, 0) {
		return vm.bubbleError()
	}
	return vm.run(0)
}

// run executes opcodes until the frame stack unwinds back down to
// stopDepth. A top-level call passes 0; a nested module import (spec
// §4.5 "Modules") passes the depth captured just before pushing the
// imported script's frame, so this same loop serves both without
// needing a second copy of the switch.
func (vm *VM) run(stopDepth int) (value.Value, error) {
	savedStopDepth := vm.stopDepth
	vm.stopDepth = stopDepth
	defer func() { vm.stopDepth = savedStopDepth }()

	for vm.frameCount > stopDepth {
		if vm.trace {
			vm.traceInstruction()
		}
		f := vm.currentFrame()
		instruction := chunk.OpCode(vm.readByte())

		switch instruction {
		case chunk.OpLoadConstant:
			vm.push(vm.readConstant(vm.readUint16()))
		case chunk.OpLoadNil:
			vm.push(value.NilValue)
		case chunk.OpLoadTrue:
			vm.push(value.TrueValue)
		case chunk.OpLoadFalse:
			vm.push(value.FalseValue)
		case chunk.OpLoadAbsence:
			vm.push(value.AbsenceValue)

		case chunk.OpNegate:
			if !vm.negate() {
				return vm.bubbleError()
			}
		case chunk.OpAdd:
			if !vm.add() {
				return vm.bubbleError()
			}
		case chunk.OpSubtract:
			if !vm.numericBinary(subOp) {
				return vm.bubbleError()
			}
		case chunk.OpMultiply:
			if !vm.numericBinary(mulOp) {
				return vm.bubbleError()
			}
		case chunk.OpDivide:
			if !vm.divide() {
				return vm.bubbleError()
			}
		case chunk.OpMod:
			if !vm.mod() {
				return vm.bubbleError()
			}
		case chunk.OpPower:
			if !vm.power() {
				return vm.bubbleError()
			}
		case chunk.OpNot:
			vm.push(value.BoolValue(!vm.pop().Truthy()))
		case chunk.OpTestLess:
			if !vm.compare(lessOp) {
				return vm.bubbleError()
			}
		case chunk.OpTestGreater:
			if !vm.compare(greaterOp) {
				return vm.bubbleError()
			}
		case chunk.OpTestEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.BoolValue(value.Equal(a, b)))

		case chunk.OpPop:
			vm.pop()
		case chunk.OpCopy:
			vm.push(vm.peek(0))
		case chunk.OpCopy2:
			a, b := vm.peek(1), vm.peek(0)
			vm.push(a)
			vm.push(b)
		case chunk.OpCopyN:
			n := int(vm.readByte())
			vm.push(vm.peek(n))
		case chunk.OpSwap:
			n := int(vm.readByte())
			i, j := vm.sp-1, vm.sp-1-n
			vm.stack[i], vm.stack[j] = vm.stack[j], vm.stack[i]
		case chunk.OpNop:

		case chunk.OpPrint:
			fmt.Fprintln(vm.stdout(), vm.stringify(vm.pop()))
		case chunk.OpReplAutoPrint:
			fmt.Fprintln(vm.stdout(), vm.stringify(vm.peek(0)))

		case chunk.OpDefGlobal:
			vm.defineGlobal(vm.readUint16(), false, false)
		case chunk.OpDefGlobalConst:
			vm.defineGlobal(vm.readUint16(), true, false)
		case chunk.OpDefPubGlobal:
			vm.defineGlobal(vm.readUint16(), false, true)
		case chunk.OpDefPubGlobalConst:
			vm.defineGlobal(vm.readUint16(), true, true)
		case chunk.OpExport:
			name := vm.readConstant(vm.readUint16()).AsString()
			vm.currentModule().PublicNames[string(name.Chars)] = true
		case chunk.OpGetGlobal:
			if !vm.getGlobal(vm.readUint16()) {
				return vm.bubbleError()
			}
		case chunk.OpSetGlobal:
			if !vm.setGlobal(vm.readUint16()) {
				return vm.bubbleError()
			}
		case chunk.OpGetLocal:
			slot := int(vm.readByte())
			vm.push(vm.stack[f.fp+slot])
		case chunk.OpSetLocal:
			slot := int(vm.readByte())
			vm.stack[f.fp+slot] = vm.peek(0)
		case chunk.OpGetUpvalue:
			slot := int(vm.readByte())
			uv := f.closure.Upvalues[slot]
			vm.push(vm.upvalueValue(uv))
		case chunk.OpSetUpvalue:
			slot := int(vm.readByte())
			uv := f.closure.Upvalues[slot]
			vm.setUpvalueValue(uv, vm.peek(0))

		case chunk.OpJump:
			offset := vm.readUint16()
			f.ip += int(offset)
		case chunk.OpJumpBack:
			offset := vm.readUint16()
			f.ip -= int(offset)
		case chunk.OpJumpIfFalse:
			offset := vm.readUint16()
			if !vm.peek(0).Truthy() {
				f.ip += int(offset)
			}
		case chunk.OpJumpIfTrue:
			offset := vm.readUint16()
			if vm.peek(0).Truthy() {
				f.ip += int(offset)
			}
		case chunk.OpPopJumpIfFalse:
			offset := vm.readUint16()
			if !vm.pop().Truthy() {
				f.ip += int(offset)
			}
		case chunk.OpPopJumpIfTrue:
			offset := vm.readUint16()
			if vm.pop().Truthy() {
				f.ip += int(offset)
			}
		case chunk.OpJumpIfNotEqual:
			offset := vm.readUint16()
			caseVal := vm.peek(0)
			switchVal := vm.peek(1)
			if !value.Equal(caseVal, switchVal) {
				f.ip += int(offset)
			}
		case chunk.OpJumpIfNotAbsence:
			offset := vm.readUint16()
			if vm.peek(0).Kind != value.Absence {
				f.ip += int(offset)
			}

		case chunk.OpCall:
			argCount := int(vm.readByte())
			if !vm.callValue(argCount) {
				return vm.bubbleError()
			}
		case chunk.OpMakeClosure:
			vm.makeClosure()
		case chunk.OpCloseUpvalue:
			vm.closeUpvalues(vm.sp - 1)
			vm.pop()

		case chunk.OpMakeClass:
			name := vm.readConstant(vm.readUint16()).AsString()
			cls := vm.newClass(name)
			vm.push(value.RefValue(cls))
		case chunk.OpGetProperty:
			if !vm.getProperty(vm.readUint16()) {
				return vm.bubbleError()
			}
		case chunk.OpSetProperty:
			if !vm.setProperty(vm.readUint16()) {
				return vm.bubbleError()
			}
		case chunk.OpMakeMethod:
			vm.makeMethod()
		case chunk.OpPropertyInvoke:
			name := vm.readUint16()
			argCount := int(vm.readByte())
			if !vm.propertyInvoke(name, argCount) {
				return vm.bubbleError()
			}
		case chunk.OpInherit:
			if !vm.inherit() {
				return vm.bubbleError()
			}
		case chunk.OpSuperAccess:
			if !vm.superAccess(vm.readUint16()) {
				return vm.bubbleError()
			}
		case chunk.OpSuperInvoke:
			name := vm.readUint16()
			argCount := int(vm.readByte())
			if !vm.superInvoke(name, argCount) {
				return vm.bubbleError()
			}
		case chunk.OpMakeStaticField:
			vm.makeStaticField(vm.readUint16())

		case chunk.OpMakeArray:
			count := int(vm.readUint16())
			vm.makeArray(count)
		case chunk.OpUnpackArray:
			count := int(vm.readUint16())
			if !vm.unpackArray(count) {
				return vm.bubbleError()
			}
		case chunk.OpIndexingGet:
			if !vm.indexingGet() {
				return vm.bubbleError()
			}
		case chunk.OpIndexingSet:
			if !vm.indexingSet() {
				return vm.bubbleError()
			}
		case chunk.OpDimensionArray:
			dims := int(vm.readByte())
			if !vm.dimensionArray(dims) {
				return vm.bubbleError()
			}
		case chunk.OpNewMap:
			vm.push(value.RefValue(vm.newMap()))
		case chunk.OpMapAddPair:
			if !vm.mapAddPair() {
				return vm.bubbleError()
			}
		case chunk.OpGetIterator:
			if !vm.getIterator() {
				return vm.bubbleError()
			}
		case chunk.OpJumpForIter:
			offset := vm.readUint16()
			ok, done := vm.iterateNext()
			if !ok {
				return vm.bubbleError()
			}
			if done {
				f.ip += int(offset)
			}
		case chunk.OpArrAsVarArg:
			// A no-op marker at the bytecode level: the array stays on
			// the stack as one ordinary argument, and CALL does not
			// spread its elements into the callee's parameters. It marks
			// `f(xs...)` call sites in disassembly (spec §6.2).

		case chunk.OpImport:
			if !vm.doImport() {
				return vm.bubbleError()
			}
		case chunk.OpRestoreModule:
			// Defensive re-sync: frame push/pop already restores the
			// importing frame's module as the active one once the
			// imported script's own RETURN drops its frame, but this
			// makes that invariant explicit at the bytecode level
			// rather than relying on it implicitly (spec §4.5 "Modules").
		case chunk.OpSetTry:
			offset := vm.readUint16()
			vm.handlers = append(vm.handlers, handler{
				pc:         f.ip + int(offset),
				stackDepth: vm.sp,
				frameDepth: vm.frameCount,
			})
		case chunk.OpSkipCatch:
			if len(vm.handlers) > 0 {
				vm.handlers = vm.handlers[:len(vm.handlers)-1]
			}

		case chunk.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(f.fp)
			vm.sp = f.fp
			vm.push(result)
			vm.frameCount--

		default:
			if !vm.throwFatal(fmt.Sprintf("unknown opcode %d", instruction)) {
				return vm.bubbleError()
			}
		}
	}
	return vm.peek(0), nil
}

func (vm *VM) stdout() io_Writer {
	if vm.Stdout != nil {
		return vm.Stdout
	}
	return stdoutWriter{}
}
