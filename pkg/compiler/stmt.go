package compiler

import (
	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/lexer"
	"github.com/kristofer/loxvm/pkg/value"
)

// declaration is the outermost production: a top-level or block-level
// item that may introduce a name, falling back to statement() for
// everything else (spec §4.4).
func (c *Compiler) declaration() {
	switch {
	case c.matchToken(lexer.TokenClass):
		c.classDeclaration()
	case c.matchToken(lexer.TokenFun):
		c.funDeclaration()
	case c.matchToken(lexer.TokenVar):
		c.varDeclaration(false, false)
	case c.matchToken(lexer.TokenConst):
		c.varDeclaration(true, false)
	case c.matchToken(lexer.TokenImport):
		c.importStatement()
	case c.matchToken(lexer.TokenExport):
		c.exportDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) statement() {
	switch {
	case c.matchToken(lexer.TokenPrint):
		c.printStatement()
	case c.matchToken(lexer.TokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	case c.matchToken(lexer.TokenIf):
		c.ifStatement()
	case c.matchToken(lexer.TokenWhile):
		c.whileStatement()
	case c.matchToken(lexer.TokenFor):
		c.forStatement()
	case c.matchToken(lexer.TokenSwitch):
		c.switchStatement()
	case c.matchToken(lexer.TokenBreak):
		c.breakStatement()
	case c.matchToken(lexer.TokenContinue):
		c.continueStatement()
	case c.matchToken(lexer.TokenReturn):
		c.returnStatement()
	case c.matchToken(lexer.TokenTry):
		c.tryStatement()
	default:
		c.expressionStatement()
	}
}

// block compiles statements until the closing brace; the caller is
// responsible for begin/endScope (so function bodies can reuse block()
// without double-scoping their parameter locals).
func (c *Compiler) block() {
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.declaration()
	}
	c.consume(lexer.TokenRightBrace, "expected '}' after block")
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "expected ';' after expression")
	c.emitOp(op(chunk.OpPop))
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "expected ';' after value")
	c.emitOp(op(chunk.OpPrint))
}

func (c *Compiler) returnStatement() {
	if c.fc.kind == value.FnScript {
		c.errorAtPrevious("cannot return from top-level code")
	}
	if c.matchToken(lexer.TokenSemicolon) {
		c.emitReturnDefault()
		return
	}
	if c.fc.kind == value.FnInitializer {
		c.errorAtPrevious("cannot return a value from an initializer")
	}
	c.expression()
	c.consume(lexer.TokenSemicolon, "expected ';' after return value")
	c.emitOp(op(chunk.OpReturn))
}

// --- variable declarations --------------------------------------------

func (c *Compiler) varDeclaration(isConst, isPub bool) {
	c.consume(lexer.TokenIdentifier, "expected variable name")
	name := c.previous.Lexeme
	c.declareVariable(name, isConst)

	if c.matchToken(lexer.TokenEqual) {
		c.expression()
	} else {
		c.emitOp(op(chunk.OpLoadNil))
	}
	c.consume(lexer.TokenSemicolon, "expected ';' after variable declaration")
	c.defineVariable(name, isConst, isPub)
}

// defineVariable finishes a local (just marks it initialized, its value
// is already sitting on the stack where the local lives) or emits the
// matching DEF_GLOBAL* opcode for a top-level binding.
func (c *Compiler) defineVariable(name string, isConst, isPub bool) {
	if c.fc.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	idx := c.identifierConstant(name)
	var o chunk.OpCode
	switch {
	case isPub && isConst:
		o = chunk.OpDefPubGlobalConst
	case isPub:
		o = chunk.OpDefPubGlobal
	case isConst:
		o = chunk.OpDefGlobalConst
	default:
		o = chunk.OpDefGlobal
	}
	c.emitOpU16(op(o), idx)
}

func (c *Compiler) funDeclaration() {
	c.consume(lexer.TokenIdentifier, "expected function name")
	name := c.previous.Lexeme
	c.declareVariable(name, false)
	if c.fc.scopeDepth > 0 {
		c.markInitialized()
	}
	c.function(value.FnFunction, name)
	c.defineVariable(name, false, false)
}

// --- modules -----------------------------------------------------------

// importStatement compiles `import "path" [as name];`. IMPORT pops the
// path constant, compiles-and-runs the target module if not cached, and
// pushes the resulting Module object. RESTORE_MODULE follows it; the VM
// executes it as a no-op, since the importing frame's module is current
// again as soon as the imported script's frame returns (spec §4.5
// "Modules").
func (c *Compiler) importStatement() {
	c.consume(lexer.TokenString, "expected a module path string after 'import'")
	path := lexer.Unescape(c.previous.Lexeme)
	c.emitConstant(value.RefValue(c.Intern(path)))
	c.emitOp(op(chunk.OpImport))
	c.emitOp(op(chunk.OpRestoreModule))

	var bindName string
	if c.matchToken(lexer.TokenAs) {
		c.consume(lexer.TokenIdentifier, "expected a binding name after 'as'")
		bindName = c.previous.Lexeme
	} else {
		bindName = moduleBindingName(path)
	}
	c.consume(lexer.TokenSemicolon, "expected ';' after import")
	c.declareVariable(bindName, false)
	c.defineVariable(bindName, false, false)
}

// moduleBindingName derives the default local/global name for an
// unaliased import from its path's final, extension-stripped segment
// (`import "lib/json.lox";` binds `json`).
func moduleBindingName(path string) string {
	start := 0
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			start = i + 1
			break
		}
	}
	name := path[start:]
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i]
		}
	}
	return name
}

func (c *Compiler) exportDeclaration() {
	switch {
	case c.matchToken(lexer.TokenVar):
		c.varDeclaration(false, true)
	case c.matchToken(lexer.TokenConst):
		c.varDeclaration(true, true)
	default:
		c.consume(lexer.TokenIdentifier, "expected a name after 'export'")
		idx := c.identifierConstant(c.previous.Lexeme)
		c.consume(lexer.TokenSemicolon, "expected ';' after export")
		c.emitOpU16(op(chunk.OpExport), idx)
	}
}

// --- control flow --------------------------------------------------------

func (c *Compiler) ifStatement() {
	c.consume(lexer.TokenLeftParen, "expected '(' after 'if'")
	c.expression()
	c.consume(lexer.TokenRightParen, "expected ')' after condition")

	thenJump := c.emitJump(op(chunk.OpPopJumpIfFalse))
	c.statement()
	elseJump := c.emitJump(op(chunk.OpJump))

	c.patchJump(thenJump)
	if c.matchToken(lexer.TokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loop := &loopState{enclosing: c.fc.loop, continueDepth: c.fc.scopeDepth}
	c.fc.loop = loop

	loop.continuePoint = c.chunk().Len()
	c.consume(lexer.TokenLeftParen, "expected '(' after 'while'")
	c.expression()
	c.consume(lexer.TokenRightParen, "expected ')' after condition")

	loop.breakPoint = c.chunk().Len()
	exitJump := c.emitJump(op(chunk.OpPopJumpIfFalse))

	c.statement()
	c.emitLoop(loop.continuePoint)
	c.patchJump(exitJump)

	c.fc.loop = loop.enclosing
}

// forStatement desugars the three-clause form into the same
// init/condition/increment/body jump layout as the original while-based
// expansion (spec §4.4): the increment clause, if present, runs between
// the backward jump from the body and the jump back to the condition.
func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(lexer.TokenLeftParen, "expected '(' after 'for'")

	switch {
	case c.matchToken(lexer.TokenSemicolon):
	case c.matchToken(lexer.TokenVar):
		c.varDeclaration(false, false)
	default:
		c.expressionStatement()
	}

	loop := &loopState{enclosing: c.fc.loop, continueDepth: c.fc.scopeDepth}
	c.fc.loop = loop

	condStart := c.chunk().Len()
	loop.continuePoint = condStart
	if !c.matchToken(lexer.TokenSemicolon) {
		c.expression()
		c.consume(lexer.TokenSemicolon, "expected ';' after loop condition")
	} else {
		c.emitOp(op(chunk.OpLoadTrue))
	}

	loop.breakPoint = c.chunk().Len()
	exitJump := c.emitJump(op(chunk.OpPopJumpIfFalse))
	bodyJump := c.emitJump(op(chunk.OpJump))

	if !c.check(lexer.TokenRightParen) {
		incrementStart := c.chunk().Len()
		loop.continuePoint = incrementStart
		c.expression()
		c.emitOp(op(chunk.OpPop))
		c.consume(lexer.TokenRightParen, "expected ')' after for clauses")
		c.emitLoop(condStart)
	} else {
		c.consume(lexer.TokenRightParen, "expected ')' after for clauses")
	}

	c.patchJump(bodyJump)
	c.statement()
	c.emitLoop(loop.continuePoint)
	c.patchJump(exitJump)

	c.fc.loop = loop.enclosing
	c.endScope()
}

// breakStatement and continueStatement both reuse the loop's already-
// emitted condition-testing jump (see loopState's doc comment): the only
// difference is which saved offset they target.
func (c *Compiler) breakStatement() {
	c.consume(lexer.TokenSemicolon, "expected ';' after 'break'")
	loop := c.fc.loop
	if loop == nil {
		c.errorAtPrevious("cannot use 'break' outside of a loop")
		return
	}
	c.emitPopsToClear(loop.continueDepth)
	c.emitOp(op(chunk.OpLoadFalse))
	c.emitLoop(loop.breakPoint)
}

func (c *Compiler) continueStatement() {
	c.consume(lexer.TokenSemicolon, "expected ';' after 'continue'")
	loop := c.fc.loop
	if loop == nil {
		c.errorAtPrevious("cannot use 'continue' outside of a loop")
		return
	}
	c.emitPopsToClear(loop.continueDepth)
	c.emitLoop(loop.continuePoint)
}

// emitPopsToClear pops every local deeper than depth without touching
// c.fc.locals: the compiler's view of which locals are in scope must
// survive a break/continue that only affects one runtime path through
// the block (spec §4.4, grounded in original_source's emit_pops_to_clear).
func (c *Compiler) emitPopsToClear(depth int) {
	locals := c.fc.locals
	for i := len(locals) - 1; i >= 0 && locals[i].Depth > depth; i-- {
		if locals[i].IsCaptured {
			c.emitOp(op(chunk.OpCloseUpvalue))
		} else {
			c.emitOp(op(chunk.OpPop))
		}
	}
}

// switchStatement implements fall-through-by-jump (spec §4.4, §8 example
// 4): the switch value is pushed once and kept on the stack across every
// case comparison. JUMP_IF_NOT_EQUAL never pops; a failed comparison
// leaves both operands and jumps to a single POP that discards the
// tried case constant before the next one is pushed, while a successful
// comparison falls through into a POP POP (discarding constant and
// switch value both) followed by the arm body, which then jumps
// unconditionally past every remaining case to the end.
func (c *Compiler) switchStatement() {
	c.consume(lexer.TokenLeftParen, "expected '(' after 'switch'")
	c.expression()
	c.consume(lexer.TokenRightParen, "expected ')' after switch value")
	c.consume(lexer.TokenLeftBrace, "expected '{' before switch body")

	// The first JUMP skips the second one; each case body jumps back to
	// that second JUMP, which is patched to lead to the end.
	skip := c.emitJump(op(chunk.OpJump))
	trampoline := c.chunk().Len()
	toEnd := c.emitJump(op(chunk.OpJump))
	c.patchJump(skip)
	bridge := -1
	sawCase := false
	for c.matchToken(lexer.TokenCase) {
		sawCase = true
		if bridge != -1 {
			c.patchJump(bridge)
			c.emitOp(op(chunk.OpPop))
		}
		c.switchCaseConstant()
		c.consume(lexer.TokenColon, "expected ':' after case value")
		bridge = c.emitJump(op(chunk.OpJumpIfNotEqual))
		c.emitOp(op(chunk.OpPop))
		c.emitOp(op(chunk.OpPop))

		for !c.check(lexer.TokenCase) && !c.check(lexer.TokenDefault) &&
			!c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
			c.statement()
		}
		c.emitLoop(trampoline) // jump to end: cases never fall into one another
	}

	if bridge != -1 {
		c.patchJump(bridge)
		c.emitOp(op(chunk.OpPop))
	}
	if sawCase {
		c.emitOp(op(chunk.OpPop)) // discard the switch value itself
	}

	if c.matchToken(lexer.TokenDefault) {
		c.consume(lexer.TokenColon, "expected ':' after 'default'")
		for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
			c.statement()
		}
	}

	c.consume(lexer.TokenRightBrace, "expected '}' after switch body")
	c.patchJump(toEnd)
}

// switchCaseConstant compiles a single case label. Only literal values
// are allowed (spec §4.4): re-using the literal-compiling parse
// functions directly sidesteps full expression parsing (and its
// assignment/operator machinery) for a position where none of that is
// legal anyway.
func (c *Compiler) switchCaseConstant() {
	switch {
	case c.matchToken(lexer.TokenNumber):
		number(c, false)
	case c.matchToken(lexer.TokenString):
		stringLiteral(c, false)
	case c.matchToken(lexer.TokenTrue), c.matchToken(lexer.TokenFalse), c.matchToken(lexer.TokenNil):
		literal(c, false)
	default:
		c.errorAtCurrent("only constant values can be used as switch cases")
		c.advance()
	}
}

// --- exceptions ----------------------------------------------------------

// tryStatement compiles `try { ... } catch (name) { ... }`. SET_TRY
// records the handler PC (patched below), current stack depth, and
// frame depth; a runtime error unwinds straight to that recorded state
// and lands here with the thrown error instance already sitting on top
// of the stack, which the catch clause simply declares as its local
// (spec §4.5 "Exceptions").
func (c *Compiler) tryStatement() {
	handlerJump := c.emitJump(op(chunk.OpSetTry))

	c.consume(lexer.TokenLeftBrace, "expected '{' after 'try'")
	c.beginScope()
	c.block()
	c.endScope()
	c.emitOp(op(chunk.OpSkipCatch))
	afterCatch := c.emitJump(op(chunk.OpJump))

	c.patchJump(handlerJump)
	c.consume(lexer.TokenCatch, "expected 'catch' after 'try' block")
	c.consume(lexer.TokenLeftParen, "expected '(' after 'catch'")
	c.consume(lexer.TokenIdentifier, "expected an error variable name")
	errName := c.previous.Lexeme
	c.consume(lexer.TokenRightParen, "expected ')' after catch variable")

	c.beginScope()
	c.addLocal(errName, false)
	c.markInitialized()
	c.consume(lexer.TokenLeftBrace, "expected '{' after catch clause")
	c.block()
	c.endScope()

	c.patchJump(afterCatch)
}
