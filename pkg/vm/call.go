package vm

import "github.com/kristofer/loxvm/pkg/value"

// callValue implements the generic CALL n dispatch (spec §4.5 "Call
// protocol"): the callee sits argCount slots below the top of stack, and
// every branch ends up either pushing exactly one call frame (closures,
// bound methods, and classes with an `init`) or leaving one result
// value in the callee's slot (natives, and classes without `init`).
func (vm *VM) callValue(argCount int) bool {
	callee := vm.peek(argCount)
	if callee.Kind != value.Ref {
		return vm.throwTypeError("'%s' is not callable", value.Stringify(callee))
	}
	switch obj := callee.AsObj().(type) {
	case *value.Closure:
		return vm.callClosure(obj, argCount)
	case *value.Native:
		return vm.callNative(obj, argCount)
	case *value.Class:
		return vm.instantiate(obj, argCount)
	case *value.BoundMethod:
		calleeSlot := vm.sp - argCount - 1
		vm.stack[calleeSlot] = obj.Receiver
		return vm.callClosure(obj.Method, argCount)
	default:
		return vm.throwTypeError("'%s' is not callable", value.Stringify(callee))
	}
}

// instantiate implements calling a Class as a constructor (spec §4.5):
// allocate the Instance, splice it into the callee slot so `init` (if
// any) sees it as `this`, then run init's body like any other call.
func (vm *VM) instantiate(cls *value.Class, argCount int) bool {
	inst := value.NewInstance(cls)
	vm.track(inst, 48)
	calleeSlot := vm.sp - argCount - 1
	vm.stack[calleeSlot] = value.RefValue(inst)

	if init, ok := cls.Methods["init"]; ok {
		return vm.callClosure(init, argCount)
	}
	if argCount != 0 {
		return vm.throwArgError("expected 0 arguments but got %d", argCount)
	}
	return true
}

// callClosure implements the Arity-driven argument-shaping rules (spec
// §4.5 "Call protocol"): verify the fixed minimum, pad missing optional
// parameters with Absence, and fold any surplus positional arguments
// into a trailing Array when the function is variadic. FP is computed
// only after all of that, because padding and collection keep moving
// the stack top by exactly as much as they move the logical argument
// count, leaving the callee's own slot position unchanged throughout.
func (vm *VM) callClosure(closure *value.Closure, argCount int) bool {
	ar := closure.Fn.Arity
	if argCount < ar.Fixed {
		return vm.throwArgError("expected at least %d arguments but got %d", ar.Fixed, argCount)
	}
	maxFixed := ar.Fixed + ar.Optional
	if !ar.Variadic && argCount > maxFixed {
		return vm.throwArgError("expected at most %d arguments but got %d", maxFixed, argCount)
	}
	for argCount < maxFixed {
		vm.push(value.AbsenceValue)
		argCount++
	}
	if ar.Variadic {
		extra := 0
		if argCount > maxFixed {
			extra = argCount - maxFixed
		}
		elems := make([]value.Value, extra)
		if extra > 0 {
			copy(elems, vm.stack[vm.sp-extra:vm.sp])
			vm.sp -= extra
		}
		arr := &value.Array{Elements: elems}
		vm.track(arr, 16+extra*8)
		vm.push(value.RefValue(arr))
		argCount = maxFixed + 1
	}

	if vm.frameCount >= framesMax {
		return vm.throwFatal("stack overflow")
	}
	fp := vm.sp - argCount - 1
	vm.frames[vm.frameCount] = Frame{closure: closure, ip: 0, fp: fp}
	vm.frameCount++
	return true
}

// callNative implements calling a host Native (spec §6.4 "Host
// Interface to Natives"). Arity -1 opts the native out of the
// pre-check, per value.Native's doc comment, and validates its own
// argument count internally.
func (vm *VM) callNative(nat *value.Native, argCount int) bool {
	if nat.Arity >= 0 && argCount != nat.Arity {
		return vm.throwArgError("expected %d arguments but got %d", nat.Arity, argCount)
	}
	args := make([]value.Value, argCount)
	copy(args, vm.stack[vm.sp-argCount:vm.sp])

	result, err := nat.Fn(vm, args)
	vm.sp -= argCount + 1
	if err != nil {
		if thr, ok := err.(*nativeThrow); ok {
			return vm.raise(thr.val)
		}
		// Anything a native returns that isn't already a language-level
		// nativeThrow is a plain Go error (e.g. a failed os/strconv
		// call) and is wrapped so its cause chain survives into the
		// language Error's message (spec §6.4).
		return vm.throwError("Error", "%s", wrapGoError(err))
	}
	vm.push(result)
	return true
}
