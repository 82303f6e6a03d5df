package vm

import (
	"os"
	"path/filepath"

	"github.com/kristofer/loxvm/pkg/table"
	"github.com/kristofer/loxvm/pkg/value"
)

// ModuleLoader resolves an import path (as written in source) to a
// canonical cache key and loads its source text. The default loader
// reads from disk relative to the entry script's directory; tests
// substitute their own through WithModuleLoader. No loader serves
// bundled libraries: the error classes and container behavior are
// installed natively instead (see DESIGN.md).
type ModuleLoader interface {
	Load(path string) (resolved, src string, err error)
}

type fileLoader struct{ baseDir string }

func (f fileLoader) Load(path string) (string, string, error) {
	resolved := path
	if !filepath.IsAbs(path) {
		resolved = filepath.Join(f.baseDir, path)
	}
	b, err := os.ReadFile(resolved)
	if err != nil {
		return "", "", err
	}
	return resolved, string(b), nil
}

// doImport implements IMPORT (spec §4.5 "Modules"): resolve the path
// popped off the stack, serve it from the module cache if already
// loaded, else compile and run it to completion as a nested script via
// a re-entrant call into run(), then splice the resulting Module object
// into the call's own leftover return slot.
func (vm *VM) doImport() bool {
	pathVal := vm.pop()
	if pathVal.Kind != value.Ref || !pathVal.IsString() {
		return vm.throwTypeError("import path must be a string")
	}
	pathStr := string(pathVal.AsString().Chars)

	resolved, src, err := vm.loader.Load(pathStr)
	if err != nil {
		return vm.throwError("Error", "cannot import '%s': %s", pathStr, err)
	}
	if mod, ok := vm.modules[resolved]; ok {
		vm.push(value.RefValue(mod))
		return true
	}

	mod := value.NewModule(vm.intern(resolved))
	mod.Globals = table.New()
	vm.track(mod, 64)

	fn, cerr := vm.compile(src, mod)
	if cerr != nil {
		return vm.throwError("Error", "cannot import '%s': %s", pathStr, cerr)
	}
	closure := vm.newClosure(fn, mod)
	calleeSlot := vm.sp
	vm.push(value.RefValue(closure))
	stopDepth := vm.frameCount
	if !vm.callClosure(closure, 0) {
		return false
	}
	if _, runErr := vm.run(stopDepth); runErr != nil {
		rt := runErr.(*RuntimeError)
		return vm.raise(rt.Value)
	}

	vm.modules[resolved] = mod
	vm.sp = calleeSlot
	vm.push(value.RefValue(mod))
	return true
}
