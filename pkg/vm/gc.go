package vm

import "github.com/kristofer/loxvm/pkg/value"

// markRoots is wired to the Collector's MarkRoots hook in New. It marks
// every place a live object reference can be reached from without going
// through another already-tracked object (spec §4.3 step 1): the value
// stack up to sp, every active frame's closure, the open-upvalue list,
// the shared builtins table, the module cache, and an in-flight thrown
// value.
func (vm *VM) markRoots(mark func(value.Value)) {
	for i := 0; i < vm.sp; i++ {
		mark(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		mark(value.RefValue(vm.frames[i].closure))
	}
	for uv := vm.openUpvalues; uv != nil; uv = uv.NextOpen {
		mark(value.RefValue(uv))
	}
	vm.builtins.Each(func(k *value.String, v value.Value) bool {
		mark(value.RefValue(k))
		mark(v)
		return true
	})
	for _, mod := range vm.modules {
		mark(value.RefValue(mod))
	}
	mark(vm.pending)
}
