package vm

import (
	"github.com/kristofer/loxvm/pkg/table"
	"github.com/kristofer/loxvm/pkg/value"
)

// makeArray executes MAKE_ARRAY (spec §6.2): count is a literal element
// count, not a constant-pool index, so the elements themselves are
// already sitting on the stack in first-to-last order immediately below
// the instruction.
func (vm *VM) makeArray(count int) {
	elems := make([]value.Value, count)
	copy(elems, vm.stack[vm.sp-count:vm.sp])
	vm.sp -= count
	arr := &value.Array{Elements: elems}
	vm.track(arr, 16+count*8)
	vm.push(value.RefValue(arr))
}

// unpackArray spreads an Array's elements back onto the stack, used by
// destructuring assignment forms; no surface syntax currently emits
// this opcode (see DESIGN.md), but the VM still honors it.
func (vm *VM) unpackArray(count int) bool {
	top := vm.pop()
	arr, ok := top.AsObj().(*value.Array)
	if top.Kind != value.Ref || !ok {
		return vm.throwTypeError("cannot unpack a non-array value")
	}
	if len(arr.Elements) != count {
		return vm.throwError("ValueError", "expected %d elements to unpack but got %d", count, len(arr.Elements))
	}
	for _, e := range arr.Elements {
		vm.push(e)
	}
	return true
}

func normalizeIndex(i, length int) (int, bool) {
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, false
	}
	return i, true
}

// indexingGet implements `receiver[index]` reads for the three built-in
// indexable types (spec §4.2's Array/Map/String). Negative array/string
// indices count from the end, a convenience the spec leaves unspecified
// but nothing forbids.
func (vm *VM) indexingGet() bool {
	idx := vm.pop()
	receiver := vm.pop()
	if receiver.Kind != value.Ref {
		return vm.throwTypeError("value is not indexable")
	}
	switch obj := receiver.AsObj().(type) {
	case *value.Array:
		if idx.Kind != value.Int {
			return vm.throwTypeError("array index must be an int")
		}
		i, ok := normalizeIndex(int(idx.AsInt()), len(obj.Elements))
		if !ok {
			return vm.throwIndexError("array index %d out of range", idx.AsInt())
		}
		vm.push(obj.Elements[i])
		return true
	case *value.Map:
		v, ok := obj.Table.Get(idx)
		if !ok {
			return vm.throwIndexError("key not found: %s", value.Stringify(idx))
		}
		vm.push(v)
		return true
	case *value.String:
		if idx.Kind != value.Int {
			return vm.throwTypeError("string index must be an int")
		}
		i, ok := normalizeIndex(int(idx.AsInt()), len(obj.Chars))
		if !ok {
			return vm.throwIndexError("string index %d out of range", idx.AsInt())
		}
		vm.push(value.RefValue(vm.intern(string(obj.Chars[i]))))
		return true
	default:
		return vm.throwTypeError("value is not indexable")
	}
}

// indexingSet implements `receiver[index] = value`, pushing the
// assigned value back per the language's assignment-expression
// convention (spec §4.5).
func (vm *VM) indexingSet() bool {
	v := vm.pop()
	idx := vm.pop()
	receiver := vm.pop()
	if receiver.Kind != value.Ref {
		return vm.throwTypeError("value is not indexable")
	}
	switch obj := receiver.AsObj().(type) {
	case *value.Array:
		if idx.Kind != value.Int {
			return vm.throwTypeError("array index must be an int")
		}
		i, ok := normalizeIndex(int(idx.AsInt()), len(obj.Elements))
		if !ok {
			return vm.throwIndexError("array index %d out of range", idx.AsInt())
		}
		obj.Elements[i] = v
	case *value.Map:
		obj.Table.Set(idx, v)
	case *value.String:
		return vm.throwTypeError("strings are immutable")
	default:
		return vm.throwTypeError("value is not indexable")
	}
	vm.push(v)
	return true
}

// dimensionArray builds a nested, nil-filled Array from dims size
// operands (spec §6.2); no surface syntax currently emits this opcode
// (see DESIGN.md), but the VM still honors it.
func (vm *VM) dimensionArray(dims int) bool {
	sizes := make([]int, dims)
	for i := dims - 1; i >= 0; i-- {
		v := vm.pop()
		if v.Kind != value.Int {
			return vm.throwTypeError("array dimensions must be ints")
		}
		sizes[i] = int(v.AsInt())
	}
	arr := vm.buildDimension(sizes)
	vm.push(value.RefValue(arr))
	return true
}

func (vm *VM) buildDimension(sizes []int) *value.Array {
	n := sizes[0]
	elems := make([]value.Value, n)
	if len(sizes) == 1 {
		for i := range elems {
			elems[i] = value.NilValue
		}
	} else {
		for i := range elems {
			elems[i] = value.RefValue(vm.buildDimension(sizes[1:]))
		}
	}
	arr := &value.Array{Elements: elems}
	vm.track(arr, 16+n*8)
	return arr
}

func (vm *VM) newMap() *value.Map {
	m := &value.Map{Table: table.NewValueMap()}
	vm.track(m, 32)
	return m
}

// mapAddPair implements MAP_ADD_PAIR: the map itself stays on the stack
// (peeked, not popped) so a literal with several pairs only constructs
// it once.
func (vm *VM) mapAddPair() bool {
	v := vm.pop()
	k := vm.pop()
	m := vm.peek(0).AsObj().(*value.Map)
	m.Table.Set(k, v)
	return true
}

// getIterator implements GET_ITERATOR (spec §4.5 "Iteration"): built-in
// container kinds short-circuit directly to a NativeObject iterator;
// anything else falls back to calling its `iterator` method, with the
// method's own return value ending up in the iterator's stack slot once
// it returns, the same as any other call.
func (vm *VM) getIterator() bool {
	receiver := vm.peek(0)
	if receiver.Kind != value.Ref {
		vm.pop()
		return vm.throwTypeError("value is not iterable")
	}
	switch obj := receiver.AsObj().(type) {
	case *value.Array:
		vm.pop()
		it := &value.NativeObject{NativeKind: "array_iter"}
		it.Slots[0] = receiver
		it.Slots[1] = value.IntValue(0)
		vm.track(it, 16)
		vm.push(value.RefValue(it))
		return true
	case *value.Map:
		vm.pop()
		it := &value.NativeObject{NativeKind: "map_iter"}
		it.Slots[0] = receiver
		it.Slots[1] = value.IntValue(0)
		vm.track(it, 16)
		vm.push(value.RefValue(it))
		return true
	case *value.String:
		vm.pop()
		it := &value.NativeObject{NativeKind: "string_iter"}
		it.Slots[0] = receiver
		it.Slots[1] = value.IntValue(0)
		vm.track(it, 16)
		vm.push(value.RefValue(it))
		return true
	case *value.Instance:
		if m, ok := obj.Class.Methods["iterator"]; ok {
			return vm.callClosure(m, 0)
		}
		vm.pop()
		return vm.throwTypeError("'%s' is not iterable", obj.Class.Name.Chars)
	default:
		vm.pop()
		return vm.throwTypeError("value is not iterable")
	}
}

// iterateNext implements JUMP_FOR_ITER's has_next/next pair for the
// built-in NativeObject iterators GET_ITERATOR produces. Script-defined
// iterator objects (anything else sitting in this slot) are not
// supported by this opcode: any other value raises a TypeError.
func (vm *VM) iterateNext() (ok bool, done bool) {
	top := vm.peek(0)
	it, isNative := top.AsObj().(*value.NativeObject)
	if top.Kind != value.Ref || !isNative {
		return vm.throwTypeError("value is not a valid iterator"), false
	}
	switch it.NativeKind {
	case "array_iter":
		arr := it.Slots[0].AsObj().(*value.Array)
		i := int(it.Slots[1].AsInt())
		if i >= len(arr.Elements) {
			vm.pop()
			return true, true
		}
		it.Slots[1] = value.IntValue(int32(i + 1))
		vm.push(arr.Elements[i])
		return true, false
	case "string_iter":
		s := it.Slots[0].AsObj().(*value.String)
		i := int(it.Slots[1].AsInt())
		if i >= len(s.Chars) {
			vm.pop()
			return true, true
		}
		it.Slots[1] = value.IntValue(int32(i + 1))
		vm.push(value.RefValue(vm.intern(string(s.Chars[i]))))
		return true, false
	case "map_iter":
		m := it.Slots[0].AsObj().(*value.Map)
		i := int(it.Slots[1].AsInt())
		var (
			n      int
			target value.Value
			found  bool
		)
		m.Table.Each(func(k, v value.Value) bool {
			if n == i {
				pair := &value.Array{Elements: []value.Value{k, v}}
				vm.track(pair, 32)
				target = value.RefValue(pair)
				found = true
				return false
			}
			n++
			return true
		})
		if !found {
			vm.pop()
			return true, true
		}
		it.Slots[1] = value.IntValue(int32(i + 1))
		vm.push(target)
		return true, false
	default:
		return vm.throwTypeError("value is not a valid iterator"), false
	}
}
