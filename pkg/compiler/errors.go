package compiler

import "fmt"

// CompileError is one diagnostic produced during compilation. Compile
// errors are reported, never thrown (spec §7): the compiler keeps going
// after the first one via panic-mode synchronization so later real
// errors are not buried under a cascade, and so that a partial chunk
// remains available for disassembly even on failure (spec §4.4).
type CompileError struct {
	Line    int
	Where   string
	Message string
}

func (e *CompileError) Error() string {
	if e.Where != "" {
		return fmt.Sprintf("[line %d] Error %s: %s", e.Line, e.Where, e.Message)
	}
	return fmt.Sprintf("[line %d] Error: %s", e.Line, e.Message)
}

func (c *Compiler) errorAt(line int, where, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true
	c.errors = append(c.errors, &CompileError{Line: line, Where: where, Message: msg})
}

func (c *Compiler) errorAtCurrent(msg string) {
	c.errorAt(c.current.Line, "at '"+c.current.Lexeme+"'", msg)
}

func (c *Compiler) errorAtPrevious(msg string) {
	c.errorAt(c.previous.Line, "at '"+c.previous.Lexeme+"'", msg)
}
