package vm

import "github.com/kristofer/loxvm/pkg/value"

func (vm *VM) newClass(name *value.String) *value.Class {
	cls := value.NewClass(name)
	vm.track(cls, 40)
	return cls
}

// getProperty implements plain `receiver.name` reads (spec §4.5
// "Property access"). Net stack effect is zero: pop the receiver, push
// the result, so a chained read like `a.b.c` composes without leftover
// stack slots. A method hit allocates a BoundMethod; PROPERTY_INVOKE
// exists specifically to avoid that allocation on an immediate call.
func (vm *VM) getProperty(nameIdx uint16) bool {
	name := vm.readConstant(nameIdx).AsString()
	receiver := vm.pop()
	if receiver.Kind != value.Ref {
		return vm.throwTypeError("only instances and classes have properties")
	}
	switch obj := receiver.AsObj().(type) {
	case *value.Instance:
		if v, ok := obj.Fields[string(name.Chars)]; ok {
			vm.push(v)
			return true
		}
		if m, ok := obj.Class.Methods[string(name.Chars)]; ok {
			bm := &value.BoundMethod{Receiver: receiver, Method: m}
			vm.track(bm, 24)
			vm.push(value.RefValue(bm))
			return true
		}
		return vm.throwPropertyError("undefined property '%s'", name.Chars)
	case *value.Class:
		if v, ok := obj.StaticFields[string(name.Chars)]; ok {
			vm.push(v)
			return true
		}
		return vm.throwPropertyError("undefined static field '%s'", name.Chars)
	case *value.Module:
		if v, ok := vm.moduleMember(obj, string(name.Chars)); ok {
			vm.push(v)
			return true
		}
		return vm.throwPropertyError("undefined or unexported module member '%s'", name.Chars)
	default:
		return vm.throwTypeError("only instances and classes have properties")
	}
}

// moduleMember resolves `module.name` against mod's own globals,
// restricted to names `export` marked public (spec §4.5 "Modules":
// import resolution only ever surfaces exported bindings).
func (vm *VM) moduleMember(mod *value.Module, name string) (value.Value, bool) {
	if !mod.PublicNames[name] {
		return value.NilValue, false
	}
	return mod.Globals.GetStr(name)
}

// setProperty implements `receiver.name = value` (and is the second
// half of every compound field assignment). It consumes both operands
// and pushes the assigned value back, matching every other assignment
// expression's "result is the assigned value" convention.
func (vm *VM) setProperty(nameIdx uint16) bool {
	name := vm.readConstant(nameIdx).AsString()
	v := vm.pop()
	receiver := vm.pop()
	if receiver.Kind != value.Ref {
		return vm.throwTypeError("only instances and classes have properties")
	}
	switch obj := receiver.AsObj().(type) {
	case *value.Instance:
		obj.Fields[string(name.Chars)] = v
	case *value.Class:
		obj.StaticFields[string(name.Chars)] = v
	default:
		return vm.throwTypeError("only instances and classes have properties")
	}
	vm.push(v)
	return true
}

// makeMethod attaches a just-compiled closure to the class beneath it on
// the stack, keyed by the closure's own compiled name (spec §4.4
// "Class compilation"); the class value is left on the stack for any
// further members.
func (vm *VM) makeMethod() {
	closure := vm.pop().AsObj().(*value.Closure)
	cls := vm.peek(0).AsObj().(*value.Class)
	cls.Methods[string(closure.Fn.Name.Chars)] = closure
}

// makeStaticField attaches a static field's already-evaluated value to
// the class beneath it on the stack (spec §4.4's `static` member form).
func (vm *VM) makeStaticField(nameIdx uint16) {
	name := vm.readConstant(nameIdx).AsString()
	v := vm.pop()
	cls := vm.peek(0).AsObj().(*value.Class)
	cls.StaticFields[string(name.Chars)] = v
}

// propertyInvoke implements PROPERTY_INVOKE (spec §4.5 "Property
// access"): a method hit is called directly against the receiver
// already sitting in the callee slot, skipping the BoundMethod
// allocation a plain GET_PROPERTY followed by CALL would need. A field
// hit falls back to the generic call protocol, since the field's value
// might be any callable (a closure stored in a field, for instance).
func (vm *VM) propertyInvoke(nameIdx uint16, argCount int) bool {
	name := vm.readConstant(nameIdx).AsString()
	calleeSlot := vm.sp - argCount - 1
	receiver := vm.stack[calleeSlot]
	if receiver.Kind != value.Ref {
		return vm.throwTypeError("only instances and classes have properties")
	}
	switch obj := receiver.AsObj().(type) {
	case *value.Instance:
		if v, ok := obj.Fields[string(name.Chars)]; ok {
			vm.stack[calleeSlot] = v
			return vm.callValue(argCount)
		}
		if m, ok := obj.Class.Methods[string(name.Chars)]; ok {
			return vm.callClosure(m, argCount)
		}
		return vm.throwPropertyError("undefined property '%s'", name.Chars)
	case *value.Class:
		if v, ok := obj.StaticFields[string(name.Chars)]; ok {
			vm.stack[calleeSlot] = v
			return vm.callValue(argCount)
		}
		return vm.throwPropertyError("undefined static field '%s'", name.Chars)
	case *value.Module:
		if v, ok := vm.moduleMember(obj, string(name.Chars)); ok {
			vm.stack[calleeSlot] = v
			return vm.callValue(argCount)
		}
		return vm.throwPropertyError("undefined or unexported module member '%s'", name.Chars)
	default:
		return vm.throwTypeError("only instances and classes have properties")
	}
}

// inherit implements INHERIT (spec §4.4): flatten the superclass's
// methods into the subclass once, at declaration time, so method lookup
// never needs to walk a Super chain at runtime.
func (vm *VM) inherit() bool {
	classVal := vm.pop()
	superVal := vm.peek(0)
	super, ok := superVal.AsObj().(*value.Class)
	if superVal.Kind != value.Ref || !ok {
		return vm.throwTypeError("superclass must be a class")
	}
	cls := classVal.AsObj().(*value.Class)
	for name, m := range super.Methods {
		cls.Methods[name] = m
	}
	cls.Super = super
	return true
}

// superAccess implements SUPER_ACCESS (`super.name` used as a value,
// not immediately called): look the method up on the captured
// superclass and bind it to `this` (spec §4.5).
func (vm *VM) superAccess(nameIdx uint16) bool {
	name := vm.readConstant(nameIdx).AsString()
	superVal := vm.pop()
	thisVal := vm.pop()
	super := superVal.AsObj().(*value.Class)
	m, ok := super.Methods[string(name.Chars)]
	if !ok {
		return vm.throwPropertyError("undefined property '%s'", name.Chars)
	}
	bm := &value.BoundMethod{Receiver: thisVal, Method: m}
	vm.track(bm, 24)
	vm.push(value.RefValue(bm))
	return true
}

// superInvoke implements SUPER_INVOKE (`super.name(args)`), the same
// direct-call shortcut PROPERTY_INVOKE uses: `this` and the arguments
// are already laid out as a valid call frame, so the superclass method
// closure can be invoked in place without building a BoundMethod.
func (vm *VM) superInvoke(nameIdx uint16, argCount int) bool {
	name := vm.readConstant(nameIdx).AsString()
	superVal := vm.pop()
	super := superVal.AsObj().(*value.Class)
	m, ok := super.Methods[string(name.Chars)]
	if !ok {
		return vm.throwPropertyError("undefined property '%s'", name.Chars)
	}
	return vm.callClosure(m, argCount)
}
