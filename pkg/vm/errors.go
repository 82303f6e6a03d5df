package vm

import (
	"fmt"
	"strings"

	"github.com/kristofer/loxvm/pkg/value"
	"github.com/pkg/errors"
)

// RuntimeError wraps a thrown script-level error value once it has
// unwound all the way past every try/catch in the program (spec §7
// "Runtime errors" / "Fatal conditions"). Its Trace is the call-frame
// backtrace captured at the point of the throw, formatted the way the
// `backtrace` native renders one on request (spec §6.5).
type RuntimeError struct {
	Value value.Value
	Trace []string
}

func (e *RuntimeError) Error() string {
	msg := value.Stringify(e.Value)
	if inst, ok := e.Value.AsObj().(*value.Instance); ok {
		if m, ok := inst.Fields["message"]; ok {
			msg = fmt.Sprintf("%s: %s", inst.Class.Name.Chars, value.Stringify(m))
		}
	}
	return msg
}

// handler is consulted in raise; declared in vm.go alongside Frame.

// raise implements the throw half of spec §4.5 "Exceptions": search the
// handler stack for the innermost catch. If the chosen handler belongs
// to a frame this particular run() invocation owns (frameDepth >
// stopDepth, since the handler's frame is frames[frameDepth-1]), jump
// straight to it and return true so the dispatch loop keeps going.
// Otherwise leave the handler in place for an enclosing run() level
// (reached via IMPORT's call site) and return false with vm.pending
// set, so this level's caller can re-raise one frame up.
func (vm *VM) raise(errVal value.Value) bool {
	if len(vm.handlers) == 0 {
		vm.pending = errVal
		return false
	}
	h := vm.handlers[len(vm.handlers)-1]
	if h.frameDepth <= vm.stopDepth {
		vm.pending = errVal
		return false
	}
	vm.handlers = vm.handlers[:len(vm.handlers)-1]
	vm.frameCount = h.frameDepth
	vm.sp = h.stackDepth
	vm.push(errVal)
	vm.frames[vm.frameCount-1].ip = h.pc
	return true
}

// bubbleError turns a pending raise (one that could not be handled at
// this run() level) into the Go error this level's caller observes.
// At the true top level (Interpret's initial run(0) call, where no
// IMPORT frame exists to re-raise it) this is simply the fatal,
// uncaught error.
func (vm *VM) bubbleError() (value.Value, error) {
	err := &RuntimeError{Value: vm.pending, Trace: vm.backtrace()}
	vm.pending = value.NilValue
	// Only the true top level (stopDepth 0, no enclosing IMPORT frame
	// waiting to re-raise) clears the stack: a nested run() unwinding
	// through doImport still needs its caller's frames intact so that
	// level's own raise/bubbleError can see them (spec §4.5 "Modules").
	if vm.stopDepth == 0 {
		vm.resetStack()
	}
	return value.NilValue, err
}

// newErrorInstance builds an instance of the named built-in error class
// (spec §6.5's error hierarchy) with a `message` field and a `position`
// field holding the backtrace at the raise site, falling back to plain
// `Error` if className is not one the host installed.
func (vm *VM) newErrorInstance(className, message string) *value.Instance {
	cls, ok := vm.errorClasses[className]
	if !ok {
		cls = vm.errorClasses["Error"]
	}
	inst := value.NewInstance(cls)
	inst.Fields["message"] = value.RefValue(vm.intern(message))
	inst.Fields["position"] = value.RefValue(vm.intern(strings.Join(vm.backtrace(), "\n")))
	vm.track(inst, 32)
	return inst
}

func (vm *VM) throwError(className, format string, args ...interface{}) bool {
	msg := fmt.Sprintf(format, args...)
	inst := vm.newErrorInstance(className, msg)
	return vm.raise(value.RefValue(inst))
}

func (vm *VM) throwTypeError(format string, args ...interface{}) bool {
	return vm.throwError("TypeError", format, args...)
}

func (vm *VM) throwIndexError(format string, args ...interface{}) bool {
	return vm.throwError("IndexError", format, args...)
}

func (vm *VM) throwArgError(format string, args ...interface{}) bool {
	return vm.throwError("ArgError", format, args...)
}

func (vm *VM) throwNameError(format string, args ...interface{}) bool {
	return vm.throwError("NameError", format, args...)
}

func (vm *VM) throwPropertyError(format string, args ...interface{}) bool {
	return vm.throwError("PropertyError", format, args...)
}

// throwFatal reports a condition spec §7 classifies as unrecoverable
// (stack overflow, a corrupt or unrecognized opcode) rather than a
// catchable script-level error: the "fatal: "-prefixed Error instance
// is set pending without consulting the handler stack, so no try/catch
// in the running run() level intercepts it. Raised inside an imported
// module, it is re-raised by IMPORT at the importing level like any
// other error.
func (vm *VM) throwFatal(msg string) bool {
	vm.pending = value.RefValue(vm.newErrorInstance("Error", "fatal: "+msg))
	return false
}

// installErrorClasses populates the built-in exception hierarchy (spec
// §6.5): Error is the root; every other kind subclasses it so a
// `catch (e)` without a type test still catches everything.
func (vm *VM) installErrorClasses() {
	root := value.NewClass(vm.intern("Error"))
	vm.errorClasses["Error"] = root
	for _, name := range []string{"TypeError", "IndexError", "ArgError", "NameError", "PropertyError", "ValueError"} {
		cls := value.NewClass(vm.intern(name))
		cls.Super = root
		vm.errorClasses[name] = cls
		vm.builtins.SetStr(name, value.RefValue(cls))
	}
	vm.builtins.SetStr("Error", value.RefValue(root))
}

// backtrace renders the active call stack innermost-first, the format
// the `backtrace` native (spec §6.5) returns as a string.
func (vm *VM) backtrace() []string {
	lines := make([]string, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		fr := vm.frames[i]
		fn := fr.closure.Fn
		name := "<script>"
		if fn.Name != nil {
			name = string(fn.Name.Chars)
		}
		line := 0
		if fn.Chunk != nil && fr.ip-1 < len(fn.Chunk.Lines) && fr.ip-1 >= 0 {
			line = fn.Chunk.Lines[fr.ip-1]
		}
		lines = append(lines, fmt.Sprintf("  at %s (line %d)", name, line))
	}
	return lines
}

// wrapGoError lifts a plain Go error (e.g. from a native calling into
// the standard library) into the language's Error hierarchy, per the
// NativeFn contract documented on value.NativeFn.
func wrapGoError(err error) error {
	return errors.Wrap(err, "native call failed")
}
