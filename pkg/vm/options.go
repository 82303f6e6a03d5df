package vm

import "go.uber.org/zap"

// Option configures a VM at construction time. cmd/loxvm assembles these
// from its CLI flags (spec §6.1: -d/--trace, --gc-stress, etc.).
type Option func(*VM)

// WithLogger wires a zap logger for diagnostic output; the default is a
// no-op logger so library callers pay nothing unless asked.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(vm *VM) { vm.log = log }
}

// WithTrace turns on per-instruction disassembly tracing to Stderr-style
// diagnostic output (spec §6.1 -d flag), mirroring original_source's
// DEBUG_TRACE_EXECUTION build flag as a runtime switch instead.
func WithTrace(on bool) Option {
	return func(vm *VM) { vm.trace = on }
}

// WithGCStress forces a collection before every single allocation (spec
// §4.3's stress-test mode), trading throughput for a much higher chance
// of surfacing a missed root during development.
func WithGCStress(on bool) Option {
	return func(vm *VM) { vm.gcStress = on }
}

// WithStdout redirects OpPrint/OpReplAutoPrint output, for embedding the
// VM in a test harness or a host that captures script output.
func WithStdout(w io_Writer) Option {
	return func(vm *VM) { vm.Stdout = w }
}

// WithRand substitutes the source backing the `rand` native, so tests can
// supply a deterministic sequence.
func WithRand(r randSource) Option {
	return func(vm *VM) { vm.rng = r }
}

// WithModuleLoader substitutes the default filesystem loader, e.g. to
// serve imports from an in-memory map in tests.
func WithModuleLoader(l ModuleLoader) Option {
	return func(vm *VM) { vm.loader = l }
}
