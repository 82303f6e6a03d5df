package vm

import "github.com/kristofer/loxvm/pkg/table"

// defineGlobal implements the four DEF_*_GLOBAL* opcodes (spec §6.2):
// each pops its initializer value off the stack and stores it in the
// current module's own globals table, optionally flagging the name
// const and/or exported.
func (vm *VM) defineGlobal(nameIdx uint16, isConst, isPublic bool) {
	name := vm.readConstant(nameIdx).AsString()
	v := vm.pop()
	mod := vm.currentModule()
	tbl := mod.Globals.(*table.Table)
	tbl.Set(name, v)
	key := string(name.Chars)
	if isConst {
		mod.ConstNames[key] = true
	}
	if isPublic {
		mod.PublicNames[key] = true
	}
}

// getGlobal resolves a name against the current module's globals first,
// falling back to the VM-wide builtins table (spec §4.5 "State": every
// module's Globals fall back to a shared builtins table for names like
// `clock` or the preloaded `Array`/`Error` classes).
func (vm *VM) getGlobal(nameIdx uint16) bool {
	name := vm.readConstant(nameIdx).AsString()
	mod := vm.currentModule()
	tbl := mod.Globals.(*table.Table)
	if v, ok := tbl.Get(name); ok {
		vm.push(v)
		return true
	}
	if v, ok := vm.builtins.Get(name); ok {
		vm.push(v)
		return true
	}
	return vm.throwNameError("undefined variable '%s'", name.Chars)
}

// setGlobal implements global assignment: the name must already exist
// (assignment never implicitly declares), and writing to a name the
// defining module marked const is a runtime error. Like SET_LOCAL, the
// assigned value is left on the stack rather than popped.
func (vm *VM) setGlobal(nameIdx uint16) bool {
	name := vm.readConstant(nameIdx).AsString()
	mod := vm.currentModule()
	tbl := mod.Globals.(*table.Table)
	if _, ok := tbl.Get(name); !ok {
		return vm.throwNameError("undefined variable '%s'", name.Chars)
	}
	if mod.ConstNames[string(name.Chars)] {
		return vm.throwError("ValueError", "cannot assign to const '%s'", name.Chars)
	}
	tbl.Set(name, vm.peek(0))
	return true
}
