// Package debugger renders compiled chunks back into readable listings, for
// the disasm CLI mode, execution tracing, and golden tests.
package debugger

import (
	"fmt"
	"strings"

	"sigil/internal/bytecode"
	"sigil/internal/runtime"
)

// DisassembleChunk lists every instruction in chunk under a header.
func DisassembleChunk(chunk *runtime.Chunk, name string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "== %s ==\n", name)
	for offset := 0; offset < len(chunk.Code); {
		var line string
		line, offset = DisassembleInstruction(chunk, offset)
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// DisassembleInstruction formats the instruction at offset and returns the
// offset of the next one. Offsets count 16-bit words.
func DisassembleInstruction(chunk *runtime.Chunk, offset int) (string, int) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%04d ", offset)
	if offset > 0 && chunk.Lines[offset] == chunk.Lines[offset-1] {
		sb.WriteString("   | ")
	} else {
		fmt.Fprintf(&sb, "%4d ", chunk.Lines[offset])
	}

	op := bytecode.OpCode(chunk.Code[offset])
	switch op {
	case bytecode.OpConstant, bytecode.OpGetGlobal, bytecode.OpDefineGlobal,
		bytecode.OpSetGlobal, bytecode.OpGetProperty, bytecode.OpSetProperty,
		bytecode.OpGetSuper, bytecode.OpClass, bytecode.OpMethod:
		return constantInstruction(&sb, op, chunk, offset)
	case bytecode.OpGetLocal, bytecode.OpSetLocal, bytecode.OpGetUpvalue,
		bytecode.OpSetUpvalue, bytecode.OpCall:
		return wordInstruction(&sb, op, chunk, offset)
	case bytecode.OpJump, bytecode.OpJumpIfFalse:
		return jumpInstruction(&sb, op, 1, chunk, offset)
	case bytecode.OpLoop:
		return jumpInstruction(&sb, op, -1, chunk, offset)
	case bytecode.OpInvoke, bytecode.OpSuperInvoke:
		return invokeInstruction(&sb, op, chunk, offset)
	case bytecode.OpClosure:
		return closureInstruction(&sb, op, chunk, offset)
	default:
		sb.WriteString(op.String())
		return sb.String(), offset + 1
	}
}

func constantInstruction(sb *strings.Builder, op bytecode.OpCode, chunk *runtime.Chunk, offset int) (string, int) {
	constant := chunk.Code[offset+1]
	fmt.Fprintf(sb, "%-16s %4d '%s'", op.String(), constant, chunk.Constants[constant])
	return sb.String(), offset + 2
}

func wordInstruction(sb *strings.Builder, op bytecode.OpCode, chunk *runtime.Chunk, offset int) (string, int) {
	fmt.Fprintf(sb, "%-16s %4d", op.String(), chunk.Code[offset+1])
	return sb.String(), offset + 2
}

func jumpInstruction(sb *strings.Builder, op bytecode.OpCode, sign int, chunk *runtime.Chunk, offset int) (string, int) {
	jump := int(chunk.Code[offset+1])
	fmt.Fprintf(sb, "%-16s %4d -> %d", op.String(), offset, offset+2+sign*jump)
	return sb.String(), offset + 2
}

func invokeInstruction(sb *strings.Builder, op bytecode.OpCode, chunk *runtime.Chunk, offset int) (string, int) {
	constant := chunk.Code[offset+1]
	argCount := chunk.Code[offset+2]
	fmt.Fprintf(sb, "%-16s (%d args) %4d '%s'", op.String(), argCount, constant, chunk.Constants[constant])
	return sb.String(), offset + 3
}

// closureInstruction also decodes the trailing (isLocal, index) pairs, one
// per captured upvalue.
func closureInstruction(sb *strings.Builder, op bytecode.OpCode, chunk *runtime.Chunk, offset int) (string, int) {
	offset++
	constant := chunk.Code[offset]
	offset++
	fmt.Fprintf(sb, "%-16s %4d %s", op.String(), constant, chunk.Constants[constant])

	fn := chunk.Constants[constant].AsObj().(*runtime.ObjFunction)
	for i := 0; i < fn.UpvalueCount; i++ {
		isLocal := chunk.Code[offset]
		index := chunk.Code[offset+1]
		kind := "upvalue"
		if isLocal == 1 {
			kind = "local"
		}
		fmt.Fprintf(sb, "\n%04d      |                     %s %d", offset, kind, index)
		offset += 2
	}
	return sb.String(), offset
}

// DisassembleFunction lists fn and, recursively, every function nested in
// its constant pool, script first.
func DisassembleFunction(fn *runtime.ObjFunction) string {
	var sb strings.Builder
	sb.WriteString(DisassembleChunk(&fn.Chunk, functionName(fn)))
	for _, c := range fn.Chunk.Constants {
		if !c.IsObj() {
			continue
		}
		if nested, ok := c.AsObj().(*runtime.ObjFunction); ok {
			sb.WriteString(DisassembleFunction(nested))
		}
	}
	return sb.String()
}

func functionName(fn *runtime.ObjFunction) string {
	if fn.Name == nil {
		return "<script>"
	}
	return fn.Name.Chars
}
