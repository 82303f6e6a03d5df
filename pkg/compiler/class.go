package compiler

import (
	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/lexer"
	"github.com/kristofer/loxvm/pkg/value"
)

// classDeclaration compiles `class Name [< Super] { members }` (spec
// §4.4 "Class compilation"). The class value stays on the stack for the
// whole body so each member can attach itself with MAKE_METHOD /
// MAKE_STATIC_FIELD without re-resolving the class name; when a
// superclass is present it is captured as a synthetic local named
// "super" so nested methods can reach it as an upvalue.
func (c *Compiler) classDeclaration() {
	c.consume(lexer.TokenIdentifier, "expected a class name")
	className := c.previous.Lexeme
	nameConstant := c.identifierConstant(className)
	c.declareVariable(className, false)

	c.emitOpU16(op(chunk.OpMakeClass), nameConstant)
	c.defineVariable(className, false, false)

	cc := &classCompiler{enclosing: c.class}
	c.class = cc

	if c.matchToken(lexer.TokenLess) {
		c.consume(lexer.TokenIdentifier, "expected a superclass name")
		if c.previous.Lexeme == className {
			c.errorAtPrevious("a class cannot inherit from itself")
		}
		variable(c, false)

		c.beginScope()
		c.addLocal("super", false)
		c.markInitialized()

		c.namedVariable(className, false)
		c.emitOp(op(chunk.OpInherit))
		cc.hasSuperclass = true
	}

	c.namedVariable(className, false)
	c.consume(lexer.TokenLeftBrace, "expected '{' before class body")
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.classMember()
	}
	c.consume(lexer.TokenRightBrace, "expected '}' after class body")
	c.emitOp(op(chunk.OpPop)) // drop the class value kept live for the members above

	if cc.hasSuperclass {
		c.endScope()
	}
	c.class = cc.enclosing
}

func (c *Compiler) classMember() {
	if c.matchToken(lexer.TokenStatic) {
		c.consume(lexer.TokenIdentifier, "expected a static field name")
		name := c.identifierConstant(c.previous.Lexeme)
		c.consume(lexer.TokenEqual, "expected '=' after static field name")
		c.expression()
		c.consume(lexer.TokenSemicolon, "expected ';' after static field initializer")
		c.emitOpU16(op(chunk.OpMakeStaticField), name)
		return
	}

	c.consume(lexer.TokenIdentifier, "expected a method name")
	name := c.previous.Lexeme
	kind := value.FnMethod
	if name == "init" {
		kind = value.FnInitializer
	}
	c.function(kind, name)
	c.emitOp(op(chunk.OpMakeMethod))
}
