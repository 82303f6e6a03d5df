// Package compiler implements the single-pass Pratt-style compiler
// described in spec §4.4: no AST, tokens are consumed and bytecode is
// emitted directly into a chunk as each construct is recognized, exactly
// the way original_source/compiler.c's `statement`/`expression`/
// `parsePrecedence` trio works.
package compiler

import (
	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/lexer"
	"github.com/kristofer/loxvm/pkg/value"
)

// op is a short local alias so emit call sites read `op(chunk.OpAdd)`
// instead of the more verbose `byte(chunk.OpAdd)` everywhere.
func op(o chunk.OpCode) byte { return byte(o) }

const maxLocals = 256
const maxUpvalues = 256

// Local tracks one slot in a FunctionCompiler's locals array.
type Local struct {
	Name       string
	Depth      int // -1 while the initializer is still being compiled
	IsConst    bool
	IsCaptured bool
}

// UpvalueRef records how a FunctionCompiler's Nth upvalue should be
// populated by MAKE_CLOSURE: either by copying a local slot from the
// immediately enclosing function's frame, or by copying one of the
// enclosing function's own upvalues.
type UpvalueRef struct {
	Index   byte
	IsLocal bool
}

// loopState is saved/restored around each loop so break/continue know
// where to jump and how many locals to pop first (spec §4.4). breakPoint
// and continuePoint are both bytecode offsets that always lie *behind*
// any break/continue compiled against them, so both always resolve to a
// backward JUMP_BACK: breakPoint names the loop's own condition-testing
// jump instruction (break pushes a synthetic `false` and re-enters it,
// which is what sends control past the loop), continuePoint names
// wherever the next iteration's test begins (the condition for `while`,
// the increment clause for `for`).
type loopState struct {
	enclosing     *loopState
	breakPoint    int
	continuePoint int
	continueDepth int // scope depth at loop entry, for break/continue POP counting
}

// classCompiler chains to support `this`/`super` resolution inside
// nested class bodies (only one deep in this language, but the chain
// mirrors the function-compiler stack for symmetry).
type classCompiler struct {
	enclosing    *classCompiler
	hasSuperclass bool
}

// functionCompiler holds all per-function compile state: the teacher's
// Compiler struct had exactly one flat `locals`/`symbols` table because
// smog has no nested closures; loxvm needs one of these per function
// being compiled, chained through enclosing so resolveVariable can walk
// outward (spec §4.4 "Variable resolution").
type functionCompiler struct {
	enclosing *functionCompiler
	fn        *value.Function
	kind      value.FunctionKind

	locals     []Local
	scopeDepth int
	upvalues   []UpvalueRef

	loop *loopState
}

// Compiler drives the scanner and emits into the current
// functionCompiler's chunk. One Compiler compiles one module (one
// top-level Compile call). There is no incremental mode: pkg/vm builds a
// fresh Compiler for every source it compiles, REPL lines included, so
// nothing is kept across separate inputs.
type Compiler struct {
	lx       *lexer.Lexer
	current  lexer.Token
	previous lexer.Token

	panicMode bool
	hadError  bool
	errors    []*CompileError

	fc    *functionCompiler
	class *classCompiler

	// Intern is supplied by the host (the VM) so string constants share
	// the VM-wide intern table rather than each compile allocating its
	// own throwaway ObjStrings (spec §3.3).
	Intern func(s string) *value.String

	// pendingUpvalues is a one-shot handoff from endFunction to the
	// MAKE_CLOSURE emitter (expr.go), which needs the just-closed
	// function's upvalue table to know what {is_local,index} pairs to
	// emit after the MAKE_CLOSURE opcode.
	pendingUpvalues []UpvalueRef
}

func New(intern func(s string) *value.String) *Compiler {
	if intern == nil {
		intern = func(s string) *value.String { return value.NewString(s) }
	}
	return &Compiler{Intern: intern}
}

// Compile compiles src as a fresh top-level script and returns the
// resulting script function, or the accumulated CompileErrors on
// failure. The chunk is always fully emitted (with a final RETURN) even
// on error, so disassembly remains possible (spec §4.4).
func (c *Compiler) Compile(src string) (*value.Function, []*CompileError) {
	c.lx = lexer.New(src)
	c.fc = &functionCompiler{
		fn:   &value.Function{Chunk: value.NewChunk(), Kind: value.FnScript},
		kind: value.FnScript,
	}
	// Slot 0 is reserved for the callee/this in every frame (spec §4.5).
	c.fc.locals = append(c.fc.locals, Local{Name: "", Depth: 0})

	c.advance()
	for !c.check(lexer.TokenEOF) {
		c.declaration()
	}
	c.consume(lexer.TokenEOF, "expected end of expression")

	fn := c.endFunction()
	if c.hadError {
		return fn, c.errors
	}
	return fn, nil
}

func (c *Compiler) Errors() []*CompileError { return c.errors }

func (c *Compiler) chunk() *value.Chunk { return c.fc.fn.Chunk }

// --- token plumbing -------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.lx.Next()
		if c.current.Type != lexer.TokenError {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(t lexer.TokenType) bool { return c.current.Type == t }

func (c *Compiler) matchToken(t lexer.TokenType) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(t lexer.TokenType, msg string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

// --- emit helpers -----------------------------------------------------

func (c *Compiler) line() int { return c.previous.Line }

func (c *Compiler) emitByte(b byte) int { return c.chunk().WriteByte(b, c.line()) }

func (c *Compiler) emitOp(op byte) int { return c.emitByte(op) }

func (c *Compiler) emitUint16(v uint16) int { return c.chunk().WriteUint16(v, c.line()) }

func (c *Compiler) emitOpU16(op byte, operand uint16) int {
	c.emitByte(op)
	return c.emitUint16(operand)
}

func (c *Compiler) emitOpU8(op byte, operand byte) {
	c.emitByte(op)
	c.emitByte(operand)
}

// emitJump emits op followed by a placeholder 16-bit operand and returns
// the offset to later pass to patchJump.
func (c *Compiler) emitJump(op byte) int {
	c.emitByte(op)
	return c.emitUint16(0xFFFF)
}

// patchJump backfills a forward jump's operand with the distance from
// just after the operand to the current chunk position (spec §9).
func (c *Compiler) patchJump(offset int) {
	dest := c.chunk().Len() - (offset + 2)
	if dest > 0xFFFF {
		c.errorAtPrevious("jump target too far")
	}
	c.chunk().PatchUint16(offset, uint16(dest))
}

// emitLoop emits a backward jump (JUMP_BACK) to loopStart.
func (c *Compiler) emitLoop(loopStart int) {
	c.emitByte(op(chunk.OpJumpBack))
	offset := c.chunk().Len() + 2 - loopStart
	if offset > 0xFFFF {
		c.errorAtPrevious("loop body too large")
	}
	c.emitUint16(uint16(offset))
}

func (c *Compiler) makeConstant(v value.Value) uint16 {
	idx := c.chunk().AddConstant(v)
	if idx > 0xFFFF {
		c.errorAtPrevious("too many constants in one chunk")
		return 0
	}
	return uint16(idx)
}

func (c *Compiler) identifierConstant(name string) uint16 {
	return c.makeConstant(value.RefValue(c.Intern(name)))
}

// endFunction closes out the function currently being compiled: emits an
// implicit `nil; return`, pops the functionCompiler stack, and returns
// the finished, immutable Function.
func (c *Compiler) endFunction() *value.Function {
	c.emitReturnDefault()
	fn := c.fc.fn
	fn.UpvalueCount = len(c.fc.upvalues)
	upvalues := c.fc.upvalues
	c.fc = c.fc.enclosing
	c.pendingUpvalues = upvalues
	return fn
}

func (c *Compiler) emitReturnDefault() {
	if c.fc.kind == value.FnInitializer {
		// `init` implicitly returns `this` (slot 0), not nil.
		c.emitOpU8(op(chunk.OpGetLocal), 0)
	} else {
		c.emitOp(op(chunk.OpLoadNil))
	}
	c.emitOp(op(chunk.OpReturn))
}

// synchronize implements panic-mode recovery (spec §4.4): discard
// tokens until a statement boundary is plausible, so one bad statement
// doesn't cascade into dozens of spurious errors.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Type != lexer.TokenEOF {
		if c.previous.Type == lexer.TokenSemicolon {
			return
		}
		switch c.current.Type {
		case lexer.TokenClass, lexer.TokenFun, lexer.TokenVar, lexer.TokenConst,
			lexer.TokenFor, lexer.TokenIf, lexer.TokenWhile, lexer.TokenPrint,
			lexer.TokenReturn, lexer.TokenTry, lexer.TokenSwitch, lexer.TokenBreak,
			lexer.TokenContinue, lexer.TokenImport:
			return
		}
		c.advance()
	}
}
