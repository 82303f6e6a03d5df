package vm

import "github.com/kristofer/loxvm/pkg/value"

// stringify renders v for PRINT and the REPL's auto-print (spec §4.5,
// §6.1). It defers to value.Stringify for everything except an Instance
// whose class defines `toString`, which is invoked and its result used
// instead. `f("#", obj)` and string concatenation use value.Stringify
// directly and do not call `toString`.
func (vm *VM) stringify(v value.Value) string {
	inst, ok := v.AsObj().(*value.Instance)
	if v.Kind != value.Ref || !ok {
		return value.Stringify(v)
	}
	method, ok := inst.Class.Methods["toString"]
	if !ok {
		return value.Stringify(v)
	}

	calleeSlot := vm.sp
	vm.push(v)
	stopDepth := vm.frameCount
	if !vm.callClosure(method, 0) {
		vm.pending = value.NilValue
		return value.Stringify(v)
	}
	result, err := vm.run(stopDepth)
	if err != nil {
		vm.sp = calleeSlot
		return value.Stringify(v)
	}
	vm.sp = calleeSlot
	return value.Stringify(result)
}
