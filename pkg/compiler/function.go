package compiler

import (
	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/lexer"
	"github.com/kristofer/loxvm/pkg/value"
)

// function compiles a parameter list and body into a brand new
// functionCompiler, then emits MAKE_CLOSURE (plus its upvalue pairs)
// into the *enclosing* chunk — the function/lambda/method body itself is
// compiled in a fresh nested context so its locals and upvalues don't
// collide with the surroundings (spec §4.4 "Function & closure
// compilation").
func (c *Compiler) function(kind value.FunctionKind, name string) {
	child := &functionCompiler{
		enclosing: c.fc,
		fn:        &value.Function{Chunk: value.NewChunk(), Kind: kind},
		kind:      kind,
	}
	if name != "" && name != "<lambda>" {
		child.fn.Name = c.Intern(name)
	}
	c.fc = child
	c.beginScope()

	// Slot 0: `this` for methods/initializers, otherwise unused/callee.
	if kind == value.FnMethod || kind == value.FnInitializer {
		c.fc.locals = append(c.fc.locals, Local{Name: "this", Depth: c.fc.scopeDepth})
	} else {
		c.fc.locals = append(c.fc.locals, Local{Name: "", Depth: c.fc.scopeDepth})
	}

	c.consume(lexer.TokenLeftParen, "expected '(' after function name")
	arity := c.parameterList()
	c.consume(lexer.TokenRightParen, "expected ')' after parameters")
	c.fc.fn.Arity = arity

	c.consume(lexer.TokenLeftBrace, "expected '{' before function body")
	c.block()

	fn := c.endFunction()
	upvalues := c.pendingUpvalues

	idx := c.makeConstant(value.RefValue(fn))
	c.emitOpU16(op(chunk.OpMakeClosure), idx)
	for _, uv := range upvalues {
		isLocal := byte(0)
		if uv.IsLocal {
			isLocal = 1
		}
		c.emitByte(isLocal)
		c.emitByte(uv.Index)
	}
}

// parameterList compiles `name`, `name = default`, and a single trailing
// `...name` variadic parameter, declaring each as a local in order
// (spec §4.4, §4.5 CALL arity rules). Parameters always occupy slots
// 1..N (slot 0 is `this`/callee).
func (c *Compiler) parameterList() value.Arity {
	var arity value.Arity
	if c.check(lexer.TokenRightParen) {
		return arity
	}
	sawOptional := false
	for {
		if c.matchToken(lexer.TokenDotDotDot) {
			c.consume(lexer.TokenIdentifier, "expected parameter name after '...'")
			c.declareVariable(c.previous.Lexeme, false)
			c.markInitialized()
			arity.Variadic = true
			break
		}
		c.consume(lexer.TokenIdentifier, "expected parameter name")
		name := c.previous.Lexeme
		c.declareVariable(name, false)
		c.markInitialized()
		if c.matchToken(lexer.TokenEqual) {
			sawOptional = true
			arity.Optional++
			c.defaultValueFixup(len(c.fc.locals) - 1)
		} else {
			if sawOptional {
				c.errorAtPrevious("required parameter cannot follow an optional parameter")
			}
			arity.Fixed++
		}
		if !c.matchToken(lexer.TokenComma) {
			break
		}
	}
	return arity
}

// defaultValueFixup compiles `= expr` for an optional parameter as a
// prologue guarded by JUMP_IF_NOT_ABSENCE: the VM pre-fills missing
// optional arguments with Absence (spec §4.5), and the callee's own
// prologue fills in the default only when the slot still holds Absence.
func (c *Compiler) defaultValueFixup(slot int) {
	c.emitOpU8(op(chunk.OpGetLocal), byte(slot))
	skip := c.emitJump(op(chunk.OpJumpIfNotAbsence))
	c.emitOp(op(chunk.OpPop))
	c.expression()
	c.emitOpU8(op(chunk.OpSetLocal), byte(slot))
	c.patchJump(skip)
	c.emitOp(op(chunk.OpPop))
}
