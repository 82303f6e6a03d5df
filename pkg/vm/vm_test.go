package vm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/value"
)

func runScript(t *testing.T, src string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	machine := New(WithStdout(&buf))
	_, err := machine.Interpret(src, "<test>")
	return buf.String(), err
}

func TestInterpretArithmeticAndPrint(t *testing.T) {
	out, err := runScript(t, `print 1 + 2 * 3;`)
	require.NoError(t, err)
	require.Equal(t, "7\n", out)
}

func TestInterpretStringConcatenation(t *testing.T) {
	out, err := runScript(t, `print "a" + "b" + "c";`)
	require.NoError(t, err)
	require.Equal(t, "abc\n", out)
}

func TestInterpretVariablesAndScope(t *testing.T) {
	out, err := runScript(t, `
		var x = 10;
		{
			var x = 20;
			print x;
		}
		print x;
	`)
	require.NoError(t, err)
	require.Equal(t, "20\n10\n", out)
}

func TestInterpretConstReassignmentIsRuntimeError(t *testing.T) {
	_, err := runScript(t, `const x = 1; x = 2;`)
	require.Error(t, err)
}

func TestInterpretClosureCapturesUpvalue(t *testing.T) {
	out, err := runScript(t, `
		fun makeCounter() {
			var count = 0;
			fun inc() {
				count = count + 1;
				return count;
			}
			return inc;
		}
		var counter = makeCounter();
		print counter();
		print counter();
		print counter();
	`)
	require.NoError(t, err)
	require.Equal(t, "1\n2\n3\n", out)
}

func TestInterpretClassesAndInheritance(t *testing.T) {
	out, err := runScript(t, `
		class Animal {
			init(name) { this.name = name; }
			speak() { return this.name + " makes a sound"; }
		}
		class Dog < Animal {
			speak() { return this.name + " barks"; }
		}
		var d = Dog("Rex");
		print d.speak();
	`)
	require.NoError(t, err)
	require.Equal(t, "Rex barks\n", out)
}

func TestInterpretSuperCallsParentMethod(t *testing.T) {
	out, err := runScript(t, `
		class A { greet() { return "A"; } }
		class B < A { greet() { return super.greet() + "B"; } }
		print B().greet();
	`)
	require.NoError(t, err)
	require.Equal(t, "AB\n", out)
}

func TestInterpretStaticClassField(t *testing.T) {
	out, err := runScript(t, `
		class Counter {
			static total = 0;
		}
		print Counter.total;
	`)
	require.NoError(t, err)
	require.Equal(t, "0\n", out)
}

func TestInterpretArraysAndIndexing(t *testing.T) {
	out, err := runScript(t, `
		var a = [1, 2, 3];
		a[1] = 20;
		print a[0];
		print a[1];
		print a[2];
	`)
	require.NoError(t, err)
	require.Equal(t, "1\n20\n3\n", out)
}

func TestInterpretMapLiteralAndAccess(t *testing.T) {
	out, err := runScript(t, `
		var m = {"a": 1, "b": 2};
		print m["a"];
		print m["b"];
	`)
	require.NoError(t, err)
	require.Equal(t, "1\n2\n", out)
}

func TestInterpretForLoopAndBreakContinue(t *testing.T) {
	out, err := runScript(t, `
		var sum = 0;
		for (var i = 0; i < 10; i = i + 1) {
			if (i == 5) break;
			if (i == 2) continue;
			sum = sum + i;
		}
		print sum;
	`)
	require.NoError(t, err)
	// 0+1+3+4 = 8 (2 skipped by continue, loop stops before 5 via break)
	require.Equal(t, "8\n", out)
}

func TestInterpretSwitchFallsThroughByJumpNotCase(t *testing.T) {
	out, err := runScript(t, `
		var x = 2;
		switch (x) { case 1: print "one"; case 2: print "two"; case 3: print "three"; default: print "d"; }
	`)
	require.NoError(t, err)
	require.Equal(t, "two\n", out)
}

func TestInterpretSwitchDefaultWhenNoCaseMatches(t *testing.T) {
	out, err := runScript(t, `
		switch (99) {
			case 1: print "one";
			default: print "fallback";
		}
	`)
	require.NoError(t, err)
	require.Equal(t, "fallback\n", out)
}

func TestInterpretCompoundAssignment(t *testing.T) {
	out, err := runScript(t, `
		var x = 10;
		x += 5;
		x -= 2;
		x *= 2;
		x /= 2;
		print x;
	`)
	require.NoError(t, err)
	require.Equal(t, "13\n", out)
}

func TestInterpretOptionalParameterDefault(t *testing.T) {
	out, err := runScript(t, `
		fun greet(name, greeting = "hello") {
			return greeting + " " + name;
		}
		print greet("world");
		print greet("world", "hi");
	`)
	require.NoError(t, err)
	require.Equal(t, "hello world\nhi world\n", out)
}

func TestInterpretVariadicParameterCollectsArgs(t *testing.T) {
	out, err := runScript(t, `
		fun sum(...nums) {
			return nums[0] + nums[1] + nums[2] + nums[3];
		}
		print sum(1, 2, 3, 4);
	`)
	require.NoError(t, err)
	require.Equal(t, "10\n", out)
}

func TestInterpretTryCatchHandlesThrownError(t *testing.T) {
	out, err := runScript(t, `
		try {
			print 1 / 0;
		} catch (e) {
			print "caught";
		}
	`)
	require.NoError(t, err)
	require.Equal(t, "caught\n", out)
}

func TestInterpretUncaughtErrorBecomesRuntimeError(t *testing.T) {
	_, err := runScript(t, `var a = [1]; print a[5];`)
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
}

func TestInterpretModuleImportExposesExportedGlobals(t *testing.T) {
	machine := New(WithModuleLoader(mapLoader{
		"math.lox": `export var pi = 3; fun square(x) { return x * x; } export square;`,
	}))
	var buf bytes.Buffer
	machine.Stdout = &buf
	_, err := machine.Interpret(`
		import "math.lox" as math;
		print math.pi;
		print math.square(4);
	`, "<test>")
	require.NoError(t, err)
	require.Equal(t, "3\n16\n", buf.String())
}

func TestInterpretDivisionByZeroIsRuntimeError(t *testing.T) {
	_, err := runScript(t, `print 1 / 0;`)
	require.Error(t, err)
}

func TestInterpretUndefinedGlobalIsRuntimeError(t *testing.T) {
	_, err := runScript(t, `print undeclaredName;`)
	require.Error(t, err)
}

func TestCompileScriptThenRunAllowsInspectionBeforeExecution(t *testing.T) {
	var buf bytes.Buffer
	machine := New(WithStdout(&buf))
	fn, cerr := machine.CompileScript(`print "hi";`, "<test>")
	require.NoError(t, cerr)
	require.NotNil(t, fn)
	require.Empty(t, buf.String(), "CompileScript must not execute anything")

	_, rerr := machine.Run(fn)
	require.NoError(t, rerr)
	require.Equal(t, "hi\n", buf.String())
}

func TestGCStressOptionSurvivesAllocationHeavyProgram(t *testing.T) {
	var buf bytes.Buffer
	machine := New(WithStdout(&buf), WithGCStress(true))
	_, err := machine.Interpret(`
		var acc = 0;
		for (var i = 0; i < 500; i = i + 1) {
			var pair = {"n": i};
			acc = acc + pair["n"];
		}
		print acc;
	`, "<test>")
	require.NoError(t, err)
	require.Equal(t, "124750\n", buf.String())
}

// emitOp/emitU16/emitU8/patchForwardJump/emitJumpBack mirror
// pkg/compiler's own emitByte/emitOpU16/emitOpU8/patchJump/emitLoop
// helpers (compiler.go), just operating on a *value.Chunk directly
// instead of through a Compiler, so a test can hand-assemble bytecode
// no surface grammar currently emits.
func emitOp(c *value.Chunk, op chunk.OpCode) int { return c.WriteByte(byte(op), 1) }

func emitU16(c *value.Chunk, op chunk.OpCode, operand uint16) int {
	emitOp(c, op)
	return c.WriteUint16(operand, 1)
}

func emitU8(c *value.Chunk, op chunk.OpCode, operand byte) {
	emitOp(c, op)
	c.WriteByte(operand, 1)
}

func patchForwardJump(c *value.Chunk, placeholderOffset int) {
	dest := c.Len() - (placeholderOffset + 2)
	c.PatchUint16(placeholderOffset, uint16(dest))
}

func emitJumpBack(c *value.Chunk, loopStart int) {
	emitOp(c, chunk.OpJumpBack)
	offset := c.Len() + 2 - loopStart
	c.WriteUint16(uint16(offset), 1)
}

// TestHandAssembledForIterLoopSumsArrayElements exercises
// GET_ITERATOR/JUMP_FOR_ITER directly: no surface grammar (there is no
// `for...in`) ever emits these two opcodes (see DESIGN.md), so this
// builds the chunk by hand rather than compiling source, to keep the
// implemented-but-unemitted opcodes from silently rotting.
func TestHandAssembledForIterLoopSumsArrayElements(t *testing.T) {
	c := value.NewChunk()
	idx0 := c.AddConstant(value.IntValue(0))
	idx10 := c.AddConstant(value.IntValue(10))
	idx20 := c.AddConstant(value.IntValue(20))
	idx30 := c.AddConstant(value.IntValue(30))

	// Local slot 1 (the running sum) is reserved by pushing its initial
	// value first and never popping it, exactly like a compiled `var`
	// declaration reserves its stack slot — the iterator and per-
	// iteration temporaries are pushed and popped above it.
	emitU16(c, chunk.OpLoadConstant, uint16(idx0))
	emitU16(c, chunk.OpLoadConstant, uint16(idx10))
	emitU16(c, chunk.OpLoadConstant, uint16(idx20))
	emitU16(c, chunk.OpLoadConstant, uint16(idx30))
	emitU16(c, chunk.OpMakeArray, 3)
	emitOp(c, chunk.OpGetIterator)

	loopStart := c.Len()
	forIterOperand := emitU16(c, chunk.OpJumpForIter, 0xFFFF)
	emitU8(c, chunk.OpGetLocal, 1)
	emitOp(c, chunk.OpAdd)
	emitU8(c, chunk.OpSetLocal, 1)
	emitOp(c, chunk.OpPop)
	emitJumpBack(c, loopStart)

	patchForwardJump(c, forIterOperand)
	emitU8(c, chunk.OpGetLocal, 1)
	emitOp(c, chunk.OpPrint)
	emitOp(c, chunk.OpLoadNil)
	emitOp(c, chunk.OpReturn)

	fn := &value.Function{Chunk: c, Arity: value.Arity{Fixed: 0}}

	var buf bytes.Buffer
	machine := New(WithStdout(&buf))
	_, err := machine.Run(fn)
	require.NoError(t, err)
	require.Equal(t, "60\n", buf.String())
}

// mapLoader serves module source from an in-memory map, for import
// tests that should not touch the filesystem.
type mapLoader map[string]string

func (m mapLoader) Load(path string) (string, string, error) {
	src, ok := m[path]
	if !ok {
		return "", "", errNotFound(path)
	}
	return path, src, nil
}

type errNotFound string

func (e errNotFound) Error() string { return "module not found: " + string(e) }
