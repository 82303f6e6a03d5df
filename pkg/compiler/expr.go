package compiler

import (
	"strconv"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/lexer"
	"github.com/kristofer/loxvm/pkg/value"
)

// Precedence mirrors spec §4.4's parsePrecedence ladder, low to high.
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssignment
	PrecOr
	PrecAnd
	PrecEquality
	PrecComparison
	PrecTerm
	PrecFactor
	PrecPower
	PrecUnary
	PrecCall
	PrecPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

var rules map[lexer.TokenType]parseRule

func init() {
	rules = map[lexer.TokenType]parseRule{
		lexer.TokenLeftParen:    {prefix: grouping, infix: call, precedence: PrecCall},
		lexer.TokenDot:          {infix: dot, precedence: PrecCall},
		lexer.TokenLeftBracket:  {prefix: arrayLiteral, infix: indexOp, precedence: PrecCall},
		lexer.TokenLeftBrace:    {prefix: mapLiteral},
		lexer.TokenMinus:        {prefix: unary, infix: binary, precedence: PrecTerm},
		lexer.TokenPlus:         {infix: binary, precedence: PrecTerm},
		lexer.TokenSlash:        {infix: binary, precedence: PrecFactor},
		lexer.TokenStar:         {infix: binary, precedence: PrecFactor},
		lexer.TokenPercent:      {infix: binary, precedence: PrecFactor},
		lexer.TokenCaret:        {infix: binary, precedence: PrecPower},
		lexer.TokenBang:         {prefix: unary},
		lexer.TokenBangEqual:    {infix: binary, precedence: PrecEquality},
		lexer.TokenEqualEqual:   {infix: binary, precedence: PrecEquality},
		lexer.TokenGreater:      {infix: binary, precedence: PrecComparison},
		lexer.TokenGreaterEqual: {infix: binary, precedence: PrecComparison},
		lexer.TokenLess:         {infix: binary, precedence: PrecComparison},
		lexer.TokenLessEqual:    {infix: binary, precedence: PrecComparison},
		lexer.TokenIdentifier:   {prefix: variable},
		lexer.TokenString:       {prefix: stringLiteral},
		lexer.TokenNumber:       {prefix: number},
		lexer.TokenAnd:          {infix: and_, precedence: PrecAnd},
		lexer.TokenOr:           {infix: or_, precedence: PrecOr},
		lexer.TokenFalse:        {prefix: literal},
		lexer.TokenTrue:         {prefix: literal},
		lexer.TokenNil:          {prefix: literal},
		lexer.TokenThis:         {prefix: this_},
		lexer.TokenSuper:        {prefix: super_},
		lexer.TokenFun:          {prefix: lambda},
	}
}

func getRule(t lexer.TokenType) parseRule { return rules[t] }

// parsePrecedence is the heart of the Pratt parser (spec §4.4):
// consume one token, run its prefix rule, then keep consuming infix
// operators whose precedence is at least p.
func (c *Compiler) parsePrecedence(p Precedence) {
	c.advance()
	rule := getRule(c.previous.Type)
	if rule.prefix == nil {
		c.errorAtPrevious("expected expression")
		return
	}
	canAssign := p <= PrecAssignment
	rule.prefix(c, canAssign)

	for p <= getRule(c.current.Type).precedence {
		c.advance()
		infix := getRule(c.previous.Type).infix
		infix(c, canAssign)
	}

	if canAssign && (c.matchToken(lexer.TokenEqual) || c.isCompoundAssign()) {
		c.errorAtPrevious("invalid assignment target")
	}
}

// isCompoundAssign reports (without consuming) whether the current token
// is a compound-assignment operator. Valid assignment targets
// (variable/dot/index) already consume and handle their own compound-op
// inline from within their parslet; reaching here with one still pending
// means parsePrecedence's infix loop landed on a non-assignable
// expression immediately followed by e.g. `+=`.
func (c *Compiler) isCompoundAssign() bool {
	switch c.current.Type {
	case lexer.TokenPlusEqual, lexer.TokenMinusEqual, lexer.TokenStarEqual,
		lexer.TokenSlashEqual, lexer.TokenPercentEqual:
		return true
	}
	return false
}

func (c *Compiler) expression() { c.parsePrecedence(PrecAssignment) }

// --- literals -----------------------------------------------------

func number(c *Compiler, _ bool) {
	text := c.previous.Lexeme
	if containsDot(text) {
		f, _ := strconv.ParseFloat(text, 64)
		c.emitConstant(value.FloatValue(f))
		return
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		f, _ := strconv.ParseFloat(text, 64)
		c.emitConstant(value.FloatValue(f))
		return
	}
	c.emitConstant(value.IntValue(int32(n)))
}

func containsDot(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return true
		}
	}
	return false
}

func stringLiteral(c *Compiler, _ bool) {
	s := lexer.Unescape(c.previous.Lexeme)
	c.emitConstant(value.RefValue(c.Intern(s)))
}

func literal(c *Compiler, _ bool) {
	switch c.previous.Type {
	case lexer.TokenFalse:
		c.emitOp(op(chunk.OpLoadFalse))
	case lexer.TokenTrue:
		c.emitOp(op(chunk.OpLoadTrue))
	case lexer.TokenNil:
		c.emitOp(op(chunk.OpLoadNil))
	}
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitOpU16(op(chunk.OpLoadConstant), c.makeConstant(v))
}

func grouping(c *Compiler, _ bool) {
	c.expression()
	c.consume(lexer.TokenRightParen, "expected ')' after expression")
}

func unary(c *Compiler, _ bool) {
	opType := c.previous.Type
	c.parsePrecedence(PrecUnary)
	switch opType {
	case lexer.TokenMinus:
		c.emitOp(op(chunk.OpNegate))
	case lexer.TokenBang:
		c.emitOp(op(chunk.OpNot))
	}
}

func binary(c *Compiler, _ bool) {
	opType := c.previous.Type
	rule := getRule(opType)
	c.parsePrecedence(rule.precedence + 1)
	switch opType {
	case lexer.TokenPlus:
		c.emitOp(op(chunk.OpAdd))
	case lexer.TokenMinus:
		c.emitOp(op(chunk.OpSubtract))
	case lexer.TokenStar:
		c.emitOp(op(chunk.OpMultiply))
	case lexer.TokenSlash:
		c.emitOp(op(chunk.OpDivide))
	case lexer.TokenPercent:
		c.emitOp(op(chunk.OpMod))
	case lexer.TokenCaret:
		c.emitOp(op(chunk.OpPower))
	case lexer.TokenBangEqual:
		c.emitOp(op(chunk.OpTestEqual))
		c.emitOp(op(chunk.OpNot))
	case lexer.TokenEqualEqual:
		c.emitOp(op(chunk.OpTestEqual))
	case lexer.TokenGreater:
		c.emitOp(op(chunk.OpTestGreater))
	case lexer.TokenGreaterEqual:
		c.emitOp(op(chunk.OpTestLess))
		c.emitOp(op(chunk.OpNot))
	case lexer.TokenLess:
		c.emitOp(op(chunk.OpTestLess))
	case lexer.TokenLessEqual:
		c.emitOp(op(chunk.OpTestGreater))
		c.emitOp(op(chunk.OpNot))
	}
}

// and_/or_ implement short-circuit evaluation: the left operand stays on
// the stack as the result when it already determines the outcome.
func and_(c *Compiler, _ bool) {
	endJump := c.emitJump(op(chunk.OpJumpIfFalse))
	c.emitOp(op(chunk.OpPop))
	c.parsePrecedence(PrecAnd)
	c.patchJump(endJump)
}

func or_(c *Compiler, _ bool) {
	elseJump := c.emitJump(op(chunk.OpJumpIfFalse))
	endJump := c.emitJump(op(chunk.OpJump))
	c.patchJump(elseJump)
	c.emitOp(op(chunk.OpPop))
	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}

// --- calls, property access, containers ----------------------------

func call(c *Compiler, _ bool) {
	argCount := c.argumentList()
	c.emitOpU8(op(chunk.OpCall), argCount)
}

// argumentList parses a parenthesized, comma-separated argument list. A
// `...` after an argument (`f(xs...)`) emits ARR_AS_VAR_ARG after it
// (spec §6.2); the VM executes that opcode as a no-op, so the array is
// passed as one ordinary argument and its elements are not spread.
func (c *Compiler) argumentList() byte {
	var count int
	if !c.check(lexer.TokenRightParen) {
		for {
			c.expression()
			if c.matchToken(lexer.TokenDotDotDot) {
				c.emitOp(op(chunk.OpArrAsVarArg))
			}
			count++
			if count > 255 {
				c.errorAtPrevious("too many arguments")
			}
			if !c.matchToken(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "expected ')' after arguments")
	return byte(count)
}

func dot(c *Compiler, canAssign bool) {
	c.consume(lexer.TokenIdentifier, "expected property name after '.'")
	name := c.identifierConstant(c.previous.Lexeme)

	switch {
	case canAssign && c.matchToken(lexer.TokenEqual):
		c.expression()
		c.emitOpU16(op(chunk.OpSetProperty), name)
	case canAssign && c.matchCompoundOp() != 0:
		compoundOp := c.previous.Type
		c.emitOp(op(chunk.OpCopy))
		c.emitOpU16(op(chunk.OpGetProperty), name)
		c.compoundRHS(compoundOp)
		c.emitOpU16(op(chunk.OpSetProperty), name)
	case c.matchToken(lexer.TokenLeftParen):
		argCount := c.argumentList()
		c.emitOpU16(op(chunk.OpPropertyInvoke), name)
		c.emitByte(argCount)
	default:
		c.emitOpU16(op(chunk.OpGetProperty), name)
	}
}

// matchCompoundOp consumes and returns the current token's type if it is
// one of the compound-assignment operators, else returns 0.
func (c *Compiler) matchCompoundOp() lexer.TokenType {
	switch c.current.Type {
	case lexer.TokenPlusEqual, lexer.TokenMinusEqual, lexer.TokenStarEqual,
		lexer.TokenSlashEqual, lexer.TokenPercentEqual:
		t := c.current.Type
		c.advance()
		return t
	}
	return 0
}

// compoundRHS parses the right-hand side of `x += expr` and emits the
// arithmetic opcode matching compoundOp; the GET of `x` is assumed
// already emitted by the caller, and the SET is left to the caller too.
func (c *Compiler) compoundRHS(compoundOp lexer.TokenType) {
	c.parsePrecedence(PrecAssignment)
	switch compoundOp {
	case lexer.TokenPlusEqual:
		c.emitOp(op(chunk.OpAdd))
	case lexer.TokenMinusEqual:
		c.emitOp(op(chunk.OpSubtract))
	case lexer.TokenStarEqual:
		c.emitOp(op(chunk.OpMultiply))
	case lexer.TokenSlashEqual:
		c.emitOp(op(chunk.OpDivide))
	case lexer.TokenPercentEqual:
		c.emitOp(op(chunk.OpMod))
	}
}

func arrayLiteral(c *Compiler, _ bool) {
	var count uint16
	if !c.check(lexer.TokenRightBracket) {
		for {
			c.expression()
			count++
			if !c.matchToken(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightBracket, "expected ']' after array elements")
	c.emitOpU16(op(chunk.OpMakeArray), count)
}

func indexOp(c *Compiler, canAssign bool) {
	c.expression()
	c.consume(lexer.TokenRightBracket, "expected ']' after index")
	switch {
	case canAssign && c.matchToken(lexer.TokenEqual):
		c.expression()
		c.emitOp(op(chunk.OpIndexingSet))
	case canAssign && c.matchCompoundOp() != 0:
		// INDEXING_GET consumes [receiver, index] and INDEXING_SET needs
		// them again afterwards, so compound index assignment duplicates
		// receiver+index with COPY2 before the get.
		c.emitOp(op(chunk.OpCopy2))
		c.emitOp(op(chunk.OpIndexingGet))
		compoundOp := c.previous.Type
		c.compoundRHS(compoundOp)
		c.emitOp(op(chunk.OpIndexingSet))
	default:
		c.emitOp(op(chunk.OpIndexingGet))
	}
}

func mapLiteral(c *Compiler, _ bool) {
	c.emitOp(op(chunk.OpNewMap))
	if !c.check(lexer.TokenRightBrace) {
		for {
			c.expression()
			c.consume(lexer.TokenColon, "expected ':' after map key")
			c.expression()
			c.emitOp(op(chunk.OpMapAddPair))
			if !c.matchToken(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightBrace, "expected '}' after map entries")
}

// --- variables -------------------------------------------------------

func variable(c *Compiler, canAssign bool) {
	c.namedVariable(c.previous.Lexeme, canAssign)
}

func (c *Compiler) namedVariable(name string, canAssign bool) {
	var getOp, setOp chunk.OpCode
	arg, kind := c.resolveVariable(c.fc, name)

	switch kind {
	case varLocal:
		getOp, setOp = chunk.OpGetLocal, chunk.OpSetLocal
	case varUpvalue:
		getOp, setOp = chunk.OpGetUpvalue, chunk.OpSetUpvalue
	default:
		getOp, setOp = chunk.OpGetGlobal, chunk.OpSetGlobal
		arg = int(c.identifierConstant(name))
	}

	switch {
	case canAssign && c.matchToken(lexer.TokenEqual):
		c.expression()
		c.emitSetVariable(setOp, arg)
	case canAssign && c.matchCompoundOp() != 0:
		compoundOp := c.previous.Type
		c.emitGetVariable(getOp, arg)
		c.compoundRHS(compoundOp)
		c.emitSetVariable(setOp, arg)
	default:
		c.emitGetVariable(getOp, arg)
	}
}

func (c *Compiler) emitGetVariable(getOp chunk.OpCode, arg int) {
	if getOp == chunk.OpGetLocal || getOp == chunk.OpGetUpvalue {
		c.emitOpU8(op(getOp), byte(arg))
	} else {
		c.emitOpU16(op(getOp), uint16(arg))
	}
}

func (c *Compiler) emitSetVariable(setOp chunk.OpCode, arg int) {
	if setOp == chunk.OpSetLocal || setOp == chunk.OpSetUpvalue {
		c.emitOpU8(op(setOp), byte(arg))
	} else {
		c.emitOpU16(op(setOp), uint16(arg))
	}
}

func this_(c *Compiler, _ bool) {
	if c.class == nil {
		c.errorAtPrevious("cannot use 'this' outside of a class method")
		return
	}
	variable(c, false)
}

func super_(c *Compiler, _ bool) {
	if c.class == nil {
		c.errorAtPrevious("cannot use 'super' outside of a class")
		return
	} else if !c.class.hasSuperclass {
		c.errorAtPrevious("cannot use 'super' in a class with no superclass")
	}
	c.consume(lexer.TokenDot, "expected '.' after 'super'")
	c.consume(lexer.TokenIdentifier, "expected superclass method name")
	name := c.identifierConstant(c.previous.Lexeme)

	c.namedVariable("this", false)
	if c.matchToken(lexer.TokenLeftParen) {
		argCount := c.argumentList()
		c.namedVariable("super", false)
		c.emitOpU16(op(chunk.OpSuperInvoke), name)
		c.emitByte(argCount)
	} else {
		c.namedVariable("super", false)
		c.emitOpU16(op(chunk.OpSuperAccess), name)
	}
}

// lambda compiles an anonymous `fun(params) { body }` expression,
// producing a closure on the stack exactly like a named function
// declaration's MAKE_CLOSURE, just without a DEF_GLOBAL/local binding
// afterward.
func lambda(c *Compiler, _ bool) {
	c.function(value.FnLambda, "<lambda>")
}
