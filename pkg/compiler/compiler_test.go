package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/value"
)

func internerFor(t *testing.T) func(string) *value.String {
	seen := make(map[string]*value.String)
	return func(s string) *value.String {
		if existing, ok := seen[s]; ok {
			return existing
		}
		str := &value.String{Chars: []byte(s)}
		seen[s] = str
		return str
	}
}

// opcodesOf walks a chunk's instruction stream and returns just the
// opcode bytes, skipping their operands, mirroring the teacher's
// exact-opcode-sequence compiler assertions but against this project's
// own OpCode set (spec §4.1/§6.2) rather than the teacher's.
func opcodesOf(t *testing.T, c *value.Chunk) []chunk.OpCode {
	t.Helper()
	var ops []chunk.OpCode
	for ip := 0; ip < c.Len(); {
		op := chunk.OpCode(c.OpAt(ip))
		ops = append(ops, op)
		_, next := chunk.DisassembleInstruction(c, ip)
		ip = next
	}
	return ops
}

func TestCompileArithmeticEmitsExpectedOpcodes(t *testing.T) {
	c := New(internerFor(t))
	fn, errs := c.Compile("1 + 2 * 3;")
	require.Empty(t, errs)
	require.NotNil(t, fn)

	ops := opcodesOf(t, fn.Chunk)
	require.Contains(t, ops, chunk.OpLoadConstant)
	require.Contains(t, ops, chunk.OpAdd)
	require.Contains(t, ops, chunk.OpMultiply)
	require.Contains(t, ops, chunk.OpPop)
	require.Equal(t, chunk.OpReturn, ops[len(ops)-1])
}

func TestCompileVarDeclarationEmitsGlobalDef(t *testing.T) {
	c := New(internerFor(t))
	fn, errs := c.Compile(`var x = 1;`)
	require.Empty(t, errs)
	require.Contains(t, opcodesOf(t, fn.Chunk), chunk.OpDefGlobal)
}

func TestCompileConstDeclarationEmitsConstGlobalDef(t *testing.T) {
	c := New(internerFor(t))
	fn, errs := c.Compile(`const x = 1;`)
	require.Empty(t, errs)
	require.Contains(t, opcodesOf(t, fn.Chunk), chunk.OpDefGlobalConst)
}

func TestCompileLocalVariableUsesGetSetLocal(t *testing.T) {
	c := New(internerFor(t))
	fn, errs := c.Compile(`{ var x = 1; x = 2; print x; }`)
	require.Empty(t, errs)
	ops := opcodesOf(t, fn.Chunk)
	require.Contains(t, ops, chunk.OpSetLocal)
	require.Contains(t, ops, chunk.OpGetLocal)
	require.Contains(t, ops, chunk.OpPrint)
}

func TestCompileFunctionEmitsClosure(t *testing.T) {
	c := New(internerFor(t))
	fn, errs := c.Compile(`fun f(a, b) { return a + b; }`)
	require.Empty(t, errs)
	require.Contains(t, opcodesOf(t, fn.Chunk), chunk.OpMakeClosure)
}

func TestCompileClassEmitsClassAndMethodOps(t *testing.T) {
	c := New(internerFor(t))
	fn, errs := c.Compile(`class A { greet() { return "hi"; } }`)
	require.Empty(t, errs)
	ops := opcodesOf(t, fn.Chunk)
	require.Contains(t, ops, chunk.OpMakeClass)
	require.Contains(t, ops, chunk.OpMakeMethod)
}

func TestCompileClassInheritanceEmitsInherit(t *testing.T) {
	c := New(internerFor(t))
	fn, errs := c.Compile(`class A {} class B < A {}`)
	require.Empty(t, errs)
	require.Contains(t, opcodesOf(t, fn.Chunk), chunk.OpInherit)
}

func TestCompileStaticFieldEmitsMakeStaticField(t *testing.T) {
	c := New(internerFor(t))
	fn, errs := c.Compile(`class A { static count = 0; }`)
	require.Empty(t, errs)
	require.Contains(t, opcodesOf(t, fn.Chunk), chunk.OpMakeStaticField)
}

func TestCompileArrayLiteralEmitsMakeArray(t *testing.T) {
	c := New(internerFor(t))
	fn, errs := c.Compile(`var a = [1, 2, 3];`)
	require.Empty(t, errs)
	require.Contains(t, opcodesOf(t, fn.Chunk), chunk.OpMakeArray)
}

func TestCompileMapLiteralEmitsNewMapAndAddPair(t *testing.T) {
	c := New(internerFor(t))
	fn, errs := c.Compile(`var m = {"a": 1};`)
	require.Empty(t, errs)
	ops := opcodesOf(t, fn.Chunk)
	require.Contains(t, ops, chunk.OpNewMap)
	require.Contains(t, ops, chunk.OpMapAddPair)
}

func TestCompileSwitchEmitsJumps(t *testing.T) {
	c := New(internerFor(t))
	fn, errs := c.Compile(`switch (1) { case 1: print "one"; default: print "other"; }`)
	require.Empty(t, errs)
	ops := opcodesOf(t, fn.Chunk)
	require.Contains(t, ops, chunk.OpJumpIfNotEqual)
	require.Contains(t, ops, chunk.OpJump)
}

func TestCompileWhileLoopEmitsJumpBack(t *testing.T) {
	c := New(internerFor(t))
	fn, errs := c.Compile(`while (true) { break; }`)
	require.Empty(t, errs)
	require.Contains(t, opcodesOf(t, fn.Chunk), chunk.OpJumpBack)
}

func TestCompileCompoundAssignmentDesugarsToArithmeticOp(t *testing.T) {
	c := New(internerFor(t))
	fn, errs := c.Compile(`var x = 1; x += 2;`)
	require.Empty(t, errs)
	require.Contains(t, opcodesOf(t, fn.Chunk), chunk.OpAdd)
}

func TestCompileTryCatchEmitsSetTryAndSkipCatch(t *testing.T) {
	c := New(internerFor(t))
	fn, errs := c.Compile(`try { print 1; } catch (e) { print e; }`)
	require.Empty(t, errs)
	ops := opcodesOf(t, fn.Chunk)
	require.Contains(t, ops, chunk.OpSetTry)
	require.Contains(t, ops, chunk.OpSkipCatch)
}

func TestCompileImportEmitsImportAndRestoreModule(t *testing.T) {
	c := New(internerFor(t))
	fn, errs := c.Compile(`import "other" as o;`)
	require.Empty(t, errs)
	ops := opcodesOf(t, fn.Chunk)
	require.Contains(t, ops, chunk.OpImport)
	require.Contains(t, ops, chunk.OpRestoreModule)
}

func TestCompileKeepsGoingAfterFirstError(t *testing.T) {
	c := New(internerFor(t))
	_, errs := c.Compile(`var = 1; var y = ;`)
	require.GreaterOrEqual(t, len(errs), 2, "panic-mode recovery should surface more than the first diagnostic")
}

func TestCompileReportsUndefinedVariableAtRuntimeNotCompileTime(t *testing.T) {
	// Global resolution is late-bound (spec §4.5): referencing an
	// undeclared global is not a compile error, only a runtime one.
	c := New(internerFor(t))
	_, errs := c.Compile(`print undeclared;`)
	require.Empty(t, errs)
}

func TestCompileVariadicParameterRequiresTrailingPosition(t *testing.T) {
	c := New(internerFor(t))
	_, errs := c.Compile(`fun f(...rest, a) {}`)
	require.NotEmpty(t, errs)
}
