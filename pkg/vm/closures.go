package vm

import "github.com/kristofer/loxvm/pkg/value"

// newClosure allocates a Closure with no captured upvalues yet, bound to
// mod so global lookups inside its body resolve against that module's
// namespace (spec §4.5 "Modules").
func (vm *VM) newClosure(fn *value.Function, mod *value.Module) *value.Closure {
	cl := &value.Closure{Fn: fn, Upvalues: make([]*value.Upvalue, fn.UpvalueCount), Module: mod}
	vm.track(cl, 24+fn.UpvalueCount*8)
	return cl
}

// makeClosure executes MAKE_CLOSURE (spec §6.2): read the function
// constant, then for each of its declared upvalues either capture a
// local slot from the enclosing frame or copy an upvalue already held
// by the enclosing closure.
func (vm *VM) makeClosure() {
	idx := vm.readUint16()
	fn := vm.readConstant(idx).AsObj().(*value.Function)
	enclosing := vm.currentFrame().closure

	closure := vm.newClosure(fn, enclosing.Module)
	for i := 0; i < fn.UpvalueCount; i++ {
		isLocal := vm.readByte()
		index := int(vm.readByte())
		if isLocal != 0 {
			closure.Upvalues[i] = vm.captureUpvalue(vm.currentFrame().fp + index)
		} else {
			closure.Upvalues[i] = enclosing.Upvalues[index]
		}
	}
	vm.push(value.RefValue(closure))
}

// captureUpvalue finds-or-creates the open Upvalue for stackIndex,
// keeping the VM-wide open list sorted by descending StackIndex so a
// second closure capturing the same slot shares the first one's Upvalue
// object rather than aliasing two independent copies (spec §4.5
// "Upvalue capture").
func (vm *VM) captureUpvalue(stackIndex int) *value.Upvalue {
	var prev *value.Upvalue
	cur := vm.openUpvalues
	for cur != nil && cur.StackIndex > stackIndex {
		prev = cur
		cur = cur.NextOpen
	}
	if cur != nil && cur.StackIndex == stackIndex {
		return cur
	}
	uv := &value.Upvalue{Open: true, StackIndex: stackIndex, NextOpen: cur}
	vm.track(uv, 24)
	if prev == nil {
		vm.openUpvalues = uv
	} else {
		prev.NextOpen = uv
	}
	return uv
}

// closeUpvalues closes every open upvalue pointing at or above
// fromStackIndex, copying the live stack slot into Closed before the
// owning frame's locals are discarded (spec §4.5, on function return
// and on CLOSE_UPVALUE at block exit).
func (vm *VM) closeUpvalues(fromStackIndex int) {
	for vm.openUpvalues != nil && vm.openUpvalues.StackIndex >= fromStackIndex {
		uv := vm.openUpvalues
		uv.Closed = vm.stack[uv.StackIndex]
		uv.Open = false
		vm.openUpvalues = uv.NextOpen
		uv.NextOpen = nil
	}
}

func (vm *VM) upvalueValue(uv *value.Upvalue) value.Value {
	if uv.Open {
		return vm.stack[uv.StackIndex]
	}
	return uv.Closed
}

func (vm *VM) setUpvalueValue(uv *value.Upvalue, v value.Value) {
	if uv.Open {
		vm.stack[uv.StackIndex] = v
	} else {
		uv.Closed = v
	}
}
