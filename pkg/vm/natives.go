package vm

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kristofer/loxvm/pkg/value"
)

// nativeThrow lets a Native raise a specific language-level error
// instance rather than a generic wrapped Error (spec §6.4 "Host
// Interface to Natives").
type nativeThrow struct{ val value.Value }

func (e *nativeThrow) Error() string { return value.Stringify(e.val) }

func (vm *VM) nativeError(class, format string, args ...interface{}) error {
	return &nativeThrow{val: value.RefValue(vm.newErrorInstance(class, fmt.Sprintf(format, args...)))}
}

func (vm *VM) defineNative(name string, arity int, fn value.NativeFn) {
	nat := &value.Native{Name: vm.intern(name), Arity: arity, Fn: fn}
	vm.track(nat, 24)
	vm.builtins.SetStr(name, value.RefValue(nat))
}

type goRand struct{ r *rand.Rand }

func (g goRand) Float64() float64 { return g.r.Float64() }

func defaultRand() randSource {
	return goRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// typeName renders the name `type()` reports for v (spec §6.5).
func typeName(v value.Value) string {
	switch v.Kind {
	case value.Nil:
		return "nil"
	case value.Bool:
		return "bool"
	case value.Int:
		return "int"
	case value.Float:
		return "float"
	case value.Absence:
		return "absence"
	case value.Ref:
		switch obj := v.AsObj().(type) {
		case *value.String:
			return "string"
		case *value.Function, *value.Closure, *value.Native, *value.BoundMethod:
			return "function"
		case *value.Class:
			return "class"
		case *value.Instance:
			return string(obj.Class.Name.Chars)
		case *value.Array:
			return "array"
		case *value.Map:
			return "map"
		case *value.Module:
			return "module"
		default:
			return "object"
		}
	default:
		return "unknown"
	}
}

// registerNatives installs the static globals spec §6.5 says the host
// must populate: clock, int, float, read, rand, type, f, backtrace.
// Preloading the two bundled bytecode libraries (liblox_core,
// liblox_iter) that would otherwise define Array/String/Map/Error... on
// top of these is approximated by installErrorClasses and the built-in
// container/iterator handling in containers.go rather than an actual
// compiled bytecode blob (see DESIGN.md).
func (vm *VM) registerNatives() {
	vm.defineNative("clock", 0, func(_ interface{}, args []value.Value) (value.Value, error) {
		return value.FloatValue(float64(time.Now().UnixNano()) / 1e9), nil
	})

	vm.defineNative("rand", 0, func(_ interface{}, args []value.Value) (value.Value, error) {
		return value.FloatValue(vm.rng.Float64()), nil
	})

	vm.defineNative("int", 1, func(_ interface{}, args []value.Value) (value.Value, error) {
		a := args[0]
		switch a.Kind {
		case value.Int:
			return a, nil
		case value.Float:
			return value.IntValue(int32(a.AsFloat())), nil
		case value.Ref:
			if a.IsString() {
				n, err := strconv.ParseInt(strings.TrimSpace(string(a.AsString().Chars)), 10, 32)
				if err != nil {
					return value.NilValue, vm.nativeError("ValueError", "cannot convert '%s' to int", a.AsString().Chars)
				}
				return value.IntValue(int32(n)), nil
			}
		}
		return value.NilValue, vm.nativeError("TypeError", "cannot convert %s to int", typeName(a))
	})

	vm.defineNative("float", 1, func(_ interface{}, args []value.Value) (value.Value, error) {
		a := args[0]
		switch a.Kind {
		case value.Float:
			return a, nil
		case value.Int:
			return value.FloatValue(float64(a.AsInt())), nil
		case value.Ref:
			if a.IsString() {
				f, err := strconv.ParseFloat(strings.TrimSpace(string(a.AsString().Chars)), 64)
				if err != nil {
					return value.NilValue, vm.nativeError("ValueError", "cannot convert '%s' to float", a.AsString().Chars)
				}
				return value.FloatValue(f), nil
			}
		}
		return value.NilValue, vm.nativeError("TypeError", "cannot convert %s to float", typeName(a))
	})

	vm.defineNative("read", 0, func(_ interface{}, args []value.Value) (value.Value, error) {
		if vm.stdinReader == nil {
			vm.stdinReader = bufio.NewReader(os.Stdin)
		}
		line, err := vm.stdinReader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if err != nil && line == "" {
			return value.NilValue, nil
		}
		return value.RefValue(vm.intern(line)), nil
	})

	vm.defineNative("type", 1, func(_ interface{}, args []value.Value) (value.Value, error) {
		return value.RefValue(vm.intern(typeName(args[0]))), nil
	})

	// f formats its first argument as a template, replacing each `#`
	// with the Stringify of the next positional argument (spec §6.5).
	vm.defineNative("f", -1, func(_ interface{}, args []value.Value) (value.Value, error) {
		if len(args) == 0 || !args[0].IsString() {
			return value.NilValue, vm.nativeError("ArgError", "f() requires a format string")
		}
		tmpl := string(args[0].AsString().Chars)
		rest := args[1:]
		var b strings.Builder
		ri := 0
		for _, r := range tmpl {
			if r == '#' && ri < len(rest) {
				b.WriteString(value.Stringify(rest[ri]))
				ri++
				continue
			}
			b.WriteRune(r)
		}
		return value.RefValue(vm.intern(b.String())), nil
	})

	vm.defineNative("backtrace", 0, func(_ interface{}, args []value.Value) (value.Value, error) {
		return value.RefValue(vm.intern(strings.Join(vm.backtrace(), "\n"))), nil
	})
}
