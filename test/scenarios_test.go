// Package test holds black-box end-to-end scenarios exercising the VM
// the way a script author would, one compiled-and-run program at a
// time, rather than poking at internal opcode sequences.
package test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/loxvm/pkg/bytefile"
	"github.com/kristofer/loxvm/pkg/vm"
)

func runAndCapture(t *testing.T, src string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	machine := vm.New(vm.WithStdout(&buf))
	_, err := machine.Interpret(src, "<scenario>")
	return buf.String(), err
}

func TestClosuresCaptureByReference(t *testing.T) {
	out, err := runAndCapture(t, `
		fun makeCounter() { var n = 0; fun inc() { n = n + 1; return n; } return inc; }
		var c = makeCounter(); print c(); print c(); print c();
	`)
	require.NoError(t, err)
	require.Equal(t, "1\n2\n3\n", out)
}

func TestInheritanceWithSuper(t *testing.T) {
	out, err := runAndCapture(t, `
		class A { greet() { print "A"; } }
		class B < A { greet() { super.greet(); print "B"; } }
		B().greet();
	`)
	require.NoError(t, err)
	require.Equal(t, "A\nB\n", out)
}

func TestConstGlobalEnforcement(t *testing.T) {
	_, err := runAndCapture(t, `const PI = 3; PI = 4;`)
	require.Error(t, err, `re-assigning a const global must fail, at compile time or at runtime`)
}

func TestSwitchWithFallThroughByJump(t *testing.T) {
	out, err := runAndCapture(t, `
		var x = 2;
		switch (x) { case 1: print "one"; case 2: print "two"; case 3: print "three"; default: print "d"; }
	`)
	require.NoError(t, err)
	require.Equal(t, "two\n", out)
}

func TestTryCatchCatchesNameError(t *testing.T) {
	out, err := runAndCapture(t, `
		try { print undefined_name; } catch (e) { print e.message; }
	`)
	require.NoError(t, err)
	require.Contains(t, out, "undefined_name")
}

func TestBytecodeRoundTripMatchesDirectExecution(t *testing.T) {
	src := `
		class Greeter {
			init(name) { this.name = name; }
			hello() { return "hello, " + this.name; }
		}
		var g = Greeter("world");
		print g.hello();
		var total = 0;
		for (var i = 0; i < 5; i = i + 1) { total = total + i; }
		print total;
	`

	direct, err := runAndCapture(t, src)
	require.NoError(t, err)

	compiler := vm.New()
	fn, cerr := compiler.CompileScript(src, "<scenario>")
	require.NoError(t, cerr)

	var encoded bytes.Buffer
	require.NoError(t, bytefile.Encode(fn, &encoded))

	runner := vm.New()
	var runnerOut bytes.Buffer
	runner.Stdout = &runnerOut
	decoded, derr := bytefile.Decode(&encoded, runner.InternPublic)
	require.NoError(t, derr)

	_, rerr := runner.Run(decoded)
	require.NoError(t, rerr)
	require.Equal(t, direct, runnerOut.String())
}

func TestMaximumCallDepthRaisesBeforeAnySideEffect(t *testing.T) {
	_, err := runAndCapture(t, `
		fun recurse(n) { return recurse(n + 1); }
		recurse(0);
	`)
	require.Error(t, err)
}

func TestEqualityAcrossMismatchedKindsIsFalse(t *testing.T) {
	out, err := runAndCapture(t, `print 1 == 1.0;`)
	require.NoError(t, err)
	require.Equal(t, "false\n", out)
}

func TestMixedIntFloatArithmeticPromotesToFloat(t *testing.T) {
	out, err := runAndCapture(t, `print 1 + 1.5;`)
	require.NoError(t, err)
	require.Equal(t, "2.5\n", out)
}
