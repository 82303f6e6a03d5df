package vm

import (
	"math"

	"github.com/kristofer/loxvm/pkg/value"
)

// binOp names which arithmetic operator numericBinary is performing, so
// one function can share the int/float widening rule (spec §4.2
// "Numeric promotion": Int op Int stays Int, any Float operand widens
// the whole operation to Float) across subtract and multiply.
type binOp int

const (
	subOp binOp = iota
	mulOp
)

type cmpOp int

const (
	lessOp cmpOp = iota
	greaterOp
)

func (vm *VM) numericBinary(o binOp) bool {
	b := vm.peek(0)
	a := vm.peek(1)
	if !a.IsNumber() || !b.IsNumber() {
		return vm.throwTypeError("operands must be numbers")
	}
	vm.pop()
	vm.pop()
	if a.Kind == value.Int && b.Kind == value.Int {
		ai, bi := a.AsInt(), b.AsInt()
		switch o {
		case subOp:
			vm.push(value.IntValue(ai - bi))
		case mulOp:
			vm.push(value.IntValue(ai * bi))
		}
		return true
	}
	af, bf := a.AsNumber(), b.AsNumber()
	switch o {
	case subOp:
		vm.push(value.FloatValue(af - bf))
	case mulOp:
		vm.push(value.FloatValue(af * bf))
	}
	return true
}

// add implements `+`, which additionally overloads onto string
// concatenation when either operand is a string (spec §4.2 "Addition").
func (vm *VM) add() bool {
	b := vm.peek(0)
	a := vm.peek(1)
	switch {
	case a.IsString() || b.IsString():
		vm.pop()
		vm.pop()
		s := value.Stringify(a) + value.Stringify(b)
		vm.push(value.RefValue(vm.intern(s)))
		return true
	case a.IsNumber() && b.IsNumber():
		vm.pop()
		vm.pop()
		if a.Kind == value.Int && b.Kind == value.Int {
			vm.push(value.IntValue(a.AsInt() + b.AsInt()))
		} else {
			vm.push(value.FloatValue(a.AsNumber() + b.AsNumber()))
		}
		return true
	default:
		return vm.throwTypeError("operands must be two numbers or at least one string")
	}
}

func (vm *VM) divide() bool {
	b := vm.peek(0)
	a := vm.peek(1)
	if !a.IsNumber() || !b.IsNumber() {
		return vm.throwTypeError("operands must be numbers")
	}
	if a.Kind == value.Int && b.Kind == value.Int {
		if b.AsInt() == 0 {
			return vm.throwError("ValueError", "integer division by zero")
		}
		vm.pop()
		vm.pop()
		vm.push(value.IntValue(a.AsInt() / b.AsInt()))
		return true
	}
	vm.pop()
	vm.pop()
	vm.push(value.FloatValue(a.AsNumber() / b.AsNumber()))
	return true
}

func (vm *VM) mod() bool {
	b := vm.peek(0)
	a := vm.peek(1)
	if !a.IsNumber() || !b.IsNumber() {
		return vm.throwTypeError("operands must be numbers")
	}
	if a.Kind == value.Int && b.Kind == value.Int {
		if b.AsInt() == 0 {
			return vm.throwError("ValueError", "integer modulo by zero")
		}
		vm.pop()
		vm.pop()
		vm.push(value.IntValue(a.AsInt() % b.AsInt()))
		return true
	}
	vm.pop()
	vm.pop()
	af, bf := a.AsNumber(), b.AsNumber()
	r := af - bf*float64(int64(af/bf))
	vm.push(value.FloatValue(r))
	return true
}

// power implements `**`. A nonnegative integer exponent on two Int
// operands stays an Int (repeated multiplication); anything else promotes to
// float64 math.Pow, matching numericBinary's widening rule.
func (vm *VM) power() bool {
	b := vm.peek(0)
	a := vm.peek(1)
	if !a.IsNumber() || !b.IsNumber() {
		return vm.throwTypeError("operands must be numbers")
	}
	vm.pop()
	vm.pop()
	if a.Kind == value.Int && b.Kind == value.Int && b.AsInt() >= 0 {
		base, exp := a.AsInt(), b.AsInt()
		result := int32(1)
		for ; exp > 0; exp-- {
			result *= base
		}
		vm.push(value.IntValue(result))
		return true
	}
	vm.push(value.FloatValue(math.Pow(a.AsNumber(), b.AsNumber())))
	return true
}

func (vm *VM) negate() bool {
	a := vm.peek(0)
	if !a.IsNumber() {
		return vm.throwTypeError("operand must be a number")
	}
	vm.pop()
	if a.Kind == value.Int {
		vm.push(value.IntValue(-a.AsInt()))
	} else {
		vm.push(value.FloatValue(-a.AsNumber()))
	}
	return true
}

func (vm *VM) compare(o cmpOp) bool {
	b := vm.peek(0)
	a := vm.peek(1)
	if !a.IsNumber() || !b.IsNumber() {
		return vm.throwTypeError("operands must be numbers")
	}
	vm.pop()
	vm.pop()
	af, bf := a.AsNumber(), b.AsNumber()
	switch o {
	case lessOp:
		vm.push(value.BoolValue(af < bf))
	case greaterOp:
		vm.push(value.BoolValue(af > bf))
	}
	return true
}
