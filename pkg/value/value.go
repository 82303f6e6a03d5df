// Package value defines the tagged value representation and heap object
// model shared by the compiler and the virtual machine.
//
// A Value is a small fixed-size struct rather than an interface so that
// the VM's stack (pkg/vm) can be a plain []Value with no per-push heap
// allocation for numbers and booleans. Heap data (strings, functions,
// classes, ...) is reached through the Ref kind, which carries an Obj.
package value

import "fmt"

// Kind tags which variant of Value is populated.
type Kind uint8

const (
	Nil Kind = iota
	Bool
	Int
	Float
	// Absence marks an optional parameter the caller did not supply. It is
	// distinct from Nil so that library code can tell "not given" apart
	// from "given as nil".
	Absence
	Ref
)

// Value is a tagged union. Only the field matching Kind is meaningful.
type Value struct {
	Kind Kind
	b    bool
	i    int32
	f    float64
	obj  Obj
}

var (
	NilValue     = Value{Kind: Nil}
	AbsenceValue = Value{Kind: Absence}
	TrueValue    = Value{Kind: Bool, b: true}
	FalseValue   = Value{Kind: Bool, b: false}
)

func BoolValue(v bool) Value {
	if v {
		return TrueValue
	}
	return FalseValue
}

func IntValue(v int32) Value    { return Value{Kind: Int, i: v} }
func FloatValue(v float64) Value { return Value{Kind: Float, f: v} }

func RefValue(o Obj) Value {
	if o == nil {
		return NilValue
	}
	return Value{Kind: Ref, obj: o}
}

func (v Value) AsBool() bool     { return v.b }
func (v Value) AsInt() int32     { return v.i }
func (v Value) AsFloat() float64 { return v.f }
func (v Value) AsObj() Obj       { return v.obj }

// AsNumber widens an Int to float64 regardless of which numeric kind is
// stored; callers that need to distinguish int-ness should check Kind
// directly first.
func (v Value) AsNumber() float64 {
	if v.Kind == Int {
		return float64(v.i)
	}
	return v.f
}

func (v Value) IsString() bool { return v.Kind == Ref && v.obj != nil && v.obj.ObjKind() == ObjString }
func (v Value) IsNumber() bool { return v.Kind == Int || v.Kind == Float }

func (v Value) AsString() *String {
	return v.obj.(*String)
}

// Truthy implements the language's notion of falsiness: nil and the
// boolean false are falsy, every other value (including 0, 0.0, and the
// empty string) is truthy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case Nil:
		return false
	case Bool:
		return v.b
	default:
		return true
	}
}

// Equal implements value equality. Equality never holds across mismatched
// Kinds (spec §3.1), with Nil/Nil the only boundary exception baked directly
// into the switch below. Int and Float are never cross-compared: `1 ==
// 1.0` is false, per the Open Question in spec.md §9 pinned here.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Nil, Absence:
		return true
	case Bool:
		return a.b == b.b
	case Int:
		return a.i == b.i
	case Float:
		return a.f == b.f
	case Ref:
		return refEqual(a.obj, b.obj)
	default:
		return false
	}
}

func refEqual(a, b Obj) bool {
	if a == b {
		return true
	}
	as, aok := a.(*String)
	bs, bok := b.(*String)
	if aok && bok {
		// Interning means pointer equality should already hold; this
		// fallback only matters for strings built outside the intern
		// table (e.g. during deserialization before re-interning).
		return as.Hash == bs.Hash && string(as.Chars) == string(bs.Chars)
	}
	return false
}

// Stringify renders a Value the way the language's implicit string
// coercion (e.g. string concatenation with `+`, or `print`) does.
func Stringify(v Value) string {
	switch v.Kind {
	case Nil:
		return "nil"
	case Absence:
		return "<absence>"
	case Bool:
		if v.b {
			return "true"
		}
		return "false"
	case Int:
		return fmt.Sprintf("%d", v.i)
	case Float:
		return fmt.Sprintf("%g", v.f)
	case Ref:
		return stringifyObj(v.obj)
	default:
		return "<unknown>"
	}
}

func stringifyObj(o Obj) string {
	switch obj := o.(type) {
	case *String:
		return string(obj.Chars)
	case *Function:
		if obj.Name == nil {
			return "<script>"
		}
		return fmt.Sprintf("<fn %s>", string(obj.Name.Chars))
	case *Closure:
		return stringifyObj(obj.Fn)
	case *Class:
		return fmt.Sprintf("<class %s>", string(obj.Name.Chars))
	case *Instance:
		return fmt.Sprintf("<instance %s>", string(obj.Class.Name.Chars))
	case *BoundMethod:
		return stringifyObj(obj.Method)
	case *Array:
		s := "["
		for i, e := range obj.Elements {
			if i > 0 {
				s += ", "
			}
			s += Stringify(e)
		}
		return s + "]"
	case *Map:
		return "<map>"
	case *Module:
		return fmt.Sprintf("<module %s>", string(obj.Path.Chars))
	case *Native:
		return fmt.Sprintf("<native %s>", string(obj.Name.Chars))
	case *NativeObject:
		return fmt.Sprintf("<native %s>", obj.NativeKind)
	default:
		return "<object>"
	}
}
