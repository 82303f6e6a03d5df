package chunk

import (
	"fmt"
	"strings"

	"github.com/kristofer/loxvm/pkg/value"
)

// Disassemble renders every instruction in c as human-readable text,
// used by the `-s` (dump disassembly) CLI flag. withLabels adds a
// `L<offset>:` prefix to instructions that are jump targets, matching
// the `-l` flag (spec §6.1).
func Disassemble(c *value.Chunk, name string, withLabels bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	labels := map[int]bool{}
	if withLabels {
		collectJumpTargets(c, labels)
	}
	for ip := 0; ip < c.Len(); {
		if withLabels && labels[ip] {
			fmt.Fprintf(&b, "L%d:\n", ip)
		}
		var line string
		line, ip = DisassembleInstruction(c, ip)
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func collectJumpTargets(c *value.Chunk, labels map[int]bool) {
	for ip := 0; ip < c.Len(); {
		op := OpCode(c.OpAt(ip))
		shape := shapes[op]
		switch op {
		case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpPopJumpIfFalse, OpPopJumpIfTrue,
			OpJumpIfNotEqual, OpJumpIfNotAbsence, OpJumpForIter, OpSetTry:
			offset := int(c.ReadUint16(ip + 1))
			labels[ip+3+offset] = true
		case OpJumpBack:
			offset := int(c.ReadUint16(ip + 1))
			labels[ip+3-offset] = true
		}
		ip = nextIP(ip, op, shape, c)
	}
}

func nextIP(ip int, op OpCode, shape operandShape, c *value.Chunk) int {
	switch shape {
	case shapeNone:
		return ip + 1
	case shapeU8:
		return ip + 2
	case shapeU16:
		return ip + 3
	case shapeInvoke:
		return ip + 4
	case shapeClosure:
		idx := int(c.ReadUint16(ip + 1))
		fn := c.Constants[idx].AsObj().(*value.Function)
		return ip + 3 + fn.UpvalueCount*2
	default:
		return ip + 1
	}
}

// DisassembleInstruction formats the single instruction at ip and
// returns the formatted line along with the offset of the next
// instruction, the same two-value shape the VM's own decode step uses.
func DisassembleInstruction(c *value.Chunk, ip int) (string, int) {
	op := OpCode(c.OpAt(ip))
	line := c.Lines[ip]
	prefix := fmt.Sprintf("%4d %4d  %-20s", ip, line, op.String())

	switch shapes[op] {
	case shapeNone:
		return prefix, ip + 1
	case shapeU8:
		operand := c.OpAt(ip + 1)
		return fmt.Sprintf("%s %d", prefix, operand), ip + 2
	case shapeU16:
		operand := c.ReadUint16(ip + 1)
		extra := ""
		switch op {
		case OpLoadConstant, OpDefGlobal, OpDefGlobalConst, OpDefPubGlobal, OpDefPubGlobalConst,
			OpExport, OpGetGlobal, OpSetGlobal, OpGetProperty, OpSetProperty, OpSuperAccess,
			OpMakeStaticField:
			if int(operand) < len(c.Constants) {
				extra = fmt.Sprintf(" ; %s", value.Stringify(c.Constants[operand]))
			}
		}
		return fmt.Sprintf("%s %d%s", prefix, operand, extra), ip + 3
	case shapeInvoke:
		nameIdx := c.ReadUint16(ip + 1)
		argc := c.OpAt(ip + 3)
		extra := ""
		if int(nameIdx) < len(c.Constants) {
			extra = fmt.Sprintf(" ; %s", value.Stringify(c.Constants[nameIdx]))
		}
		return fmt.Sprintf("%s %d %d%s", prefix, nameIdx, argc, extra), ip + 4
	case shapeClosure:
		idx := c.ReadUint16(ip + 1)
		fn := c.Constants[idx].AsObj().(*value.Function)
		out := fmt.Sprintf("%s %d ; %s", prefix, idx, value.Stringify(c.Constants[idx]))
		next := ip + 3
		for i := 0; i < fn.UpvalueCount; i++ {
			isLocal := c.OpAt(next)
			index := c.OpAt(next + 1)
			kind := "upvalue"
			if isLocal != 0 {
				kind = "local"
			}
			out += fmt.Sprintf("\n%4d      |     %s %d", next, kind, index)
			next += 2
		}
		return out, next
	default:
		return prefix, ip + 1
	}
}
