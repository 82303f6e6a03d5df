package compiler

import "github.com/kristofer/loxvm/pkg/chunk"

// varKind tags how namedVariable should address a resolved name (spec
// §4.4 "Variable resolution").
type varKind int

const (
	varGlobal varKind = iota
	varLocal
	varUpvalue
)

func (c *Compiler) beginScope() { c.fc.scopeDepth++ }

// endScope pops every local declared at the scope being closed, emitting
// CLOSE_UPVALUE for ones that were captured and POP for the rest (spec
// §4.4), then truncates the locals slice.
func (c *Compiler) endScope() {
	c.fc.scopeDepth--
	locals := c.fc.locals
	n := len(locals)
	for n > 0 && locals[n-1].Depth > c.fc.scopeDepth {
		if locals[n-1].IsCaptured {
			c.emitOp(op(chunk.OpCloseUpvalue))
		} else {
			c.emitOp(op(chunk.OpPop))
		}
		n--
	}
	c.fc.locals = locals[:n]
}

func (c *Compiler) declareVariable(name string, isConst bool) {
	if c.fc.scopeDepth == 0 {
		return // globals are resolved dynamically by name, no local slot
	}
	locals := c.fc.locals
	for i := len(locals) - 1; i >= 0; i-- {
		l := &locals[i]
		if l.Depth != -1 && l.Depth < c.fc.scopeDepth {
			break
		}
		if l.Name == name {
			c.errorAtPrevious("a variable with this name already exists in this scope")
		}
	}
	c.addLocal(name, isConst)
}

func (c *Compiler) addLocal(name string, isConst bool) {
	if len(c.fc.locals) >= maxLocals {
		c.errorAtPrevious("too many local variables in one function")
		return
	}
	c.fc.locals = append(c.fc.locals, Local{Name: name, Depth: -1, IsConst: isConst})
}

// markInitialized makes the most recently declared local resolvable,
// i.e. marks it as no longer "currently being defined" (spec §4.4 step
// 1's "cannot use in its own initialization" guard).
func (c *Compiler) markInitialized() {
	if c.fc.scopeDepth == 0 {
		return
	}
	c.fc.locals[len(c.fc.locals)-1].Depth = c.fc.scopeDepth
}

// resolveVariable walks the given function's locals, then (recursively)
// its enclosing functions for a capturable upvalue, then falls back to
// global (spec §4.4).
func (c *Compiler) resolveVariable(fc *functionCompiler, name string) (int, varKind) {
	if slot, ok := resolveLocal(fc, name, c); ok {
		return slot, varLocal
	}
	if fc.enclosing == nil {
		return -1, varGlobal
	}
	if idx, ok := c.resolveUpvalue(fc, name); ok {
		return idx, varUpvalue
	}
	return -1, varGlobal
}

func resolveLocal(fc *functionCompiler, name string, c *Compiler) (int, bool) {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if fc.locals[i].Name == name {
			if fc.locals[i].Depth == -1 {
				c.errorAtPrevious("cannot use a variable in its own initializer")
			}
			return i, true
		}
	}
	return -1, false
}

// resolveUpvalue implements the recursive-capture half of spec §4.4 step
// 2: find the name as a local in some enclosing function, mark it
// captured there, and add an upvalue entry to every function compiler
// between here and there (each referring to the next one in, either by
// local slot or by upvalue index).
func (c *Compiler) resolveUpvalue(fc *functionCompiler, name string) (int, bool) {
	if fc.enclosing == nil {
		return -1, false
	}
	if slot, ok := resolveLocal(fc.enclosing, name, c); ok {
		fc.enclosing.locals[slot].IsCaptured = true
		return c.addUpvalue(fc, byte(slot), true), true
	}
	if idx, ok := c.resolveUpvalue(fc.enclosing, name); ok {
		return c.addUpvalue(fc, byte(idx), false), true
	}
	return -1, false
}

func (c *Compiler) addUpvalue(fc *functionCompiler, index byte, isLocal bool) int {
	for i, uv := range fc.upvalues {
		if uv.Index == index && uv.IsLocal == isLocal {
			return i
		}
	}
	if len(fc.upvalues) >= maxUpvalues {
		c.errorAtPrevious("too many closure variables in one function")
		return 0
	}
	fc.upvalues = append(fc.upvalues, UpvalueRef{Index: index, IsLocal: isLocal})
	return len(fc.upvalues) - 1
}
