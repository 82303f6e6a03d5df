package vm

import (
	"strings"

	"github.com/kristofer/loxvm/pkg/compiler"
	"github.com/kristofer/loxvm/pkg/value"
)

// intern returns the canonical *value.String for s, allocating and
// registering a new one only on a miss (spec §3.3). This is the
// function handed to compiler.New so string constants compiled into a
// chunk share the same table the VM's own runtime string creation uses.
func (vm *VM) intern(s string) *value.String {
	bytes := []byte(s)
	hash := value.HashBytes(bytes)
	if existing := vm.strings.FindInterned(bytes, hash); existing != nil {
		return existing
	}
	str := &value.String{Chars: bytes, Hash: hash}
	vm.track(str, 16+len(bytes))
	vm.strings.Set(str, value.NilValue)
	return str
}

// InternPublic exposes intern for callers outside the package, namely
// pkg/bytefile's Decode, which needs to rebuild String constants through
// the same table a freshly compiled chunk would use (spec §6.3).
func (vm *VM) InternPublic(s string) *value.String { return vm.intern(s) }

// track runs the allocate-then-maybe-collect protocol (spec §4.3's
// trigger policy, §5's allocation-safety contract): a collection is
// only ever triggered before a fresh object is registered, never in the
// middle of building one, so nothing already on the heap can be
// half-initialized when a cycle runs.
func (vm *VM) track(o value.Obj, size int) {
	if vm.gcRef.ShouldCollect() {
		before := vm.gcRef.BytesAllocated()
		vm.gcRef.Collect()
		vm.log.Debugw("gc collect", "freed_bytes", before-vm.gcRef.BytesAllocated(), "stress", vm.gcStress)
	}
	vm.gcRef.Track(o, size)
}

// compile runs the compiler against src. mod is not used here: callers
// bind the resulting function to its home module when they wrap it in
// a closure (newClosure, spec §4.5). Diagnostics are joined into a
// single error since the host only needs to report them, not recover
// individual positions programmatically.
func (vm *VM) compile(src string, mod *value.Module) (*value.Function, error) {
	c := compiler.New(vm.intern)
	fn, errs := c.Compile(src)
	if len(errs) > 0 {
		var b strings.Builder
		for i, e := range errs {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(e.Error())
		}
		return nil, &CompileFailure{Errors: errs, msg: b.String()}
	}
	return fn, nil
}

// CompileFailure wraps every diagnostic the compiler accumulated during
// one Compile call (spec §4.4's "keeps going after the first error").
type CompileFailure struct {
	Errors []*compiler.CompileError
	msg    string
}

func (e *CompileFailure) Error() string { return e.msg }
