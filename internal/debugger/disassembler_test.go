package debugger

import (
	"strings"
	"testing"

	"sigil/internal/bytecode"
	"sigil/internal/runtime"
)

func TestDisassembleChunkGolden(t *testing.T) {
	h := runtime.NewHeap(runtime.Config{})
	var chunk runtime.Chunk

	constant := chunk.AddConstant(runtime.NumberVal(1.2))
	chunk.Write(uint16(bytecode.OpConstant), 123)
	chunk.Write(uint16(constant), 123)
	name := chunk.AddConstant(runtime.ObjVal(h.Intern("answer")))
	chunk.Write(uint16(bytecode.OpDefineGlobal), 123)
	chunk.Write(uint16(name), 123)
	chunk.Write(uint16(bytecode.OpGetLocal), 124)
	chunk.Write(2, 124)
	chunk.Write(uint16(bytecode.OpReturn), 125)

	want := strings.Join([]string{
		"== test ==",
		"0000  123 OP_CONSTANT         0 '1.2'",
		"0002    | OP_DEFINE_GLOBAL    1 'answer'",
		"0004  124 OP_GET_LOCAL        2",
		"0006  125 OP_RETURN",
		"",
	}, "\n")
	if got := DisassembleChunk(&chunk, "test"); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestJumpTargets(t *testing.T) {
	var chunk runtime.Chunk
	chunk.Write(uint16(bytecode.OpJumpIfFalse), 1)
	chunk.Write(3, 1)
	chunk.Write(uint16(bytecode.OpLoop), 1)
	chunk.Write(4, 1)

	line, next := DisassembleInstruction(&chunk, 0)
	if !strings.Contains(line, "OP_JUMP_IF_FALSE") || !strings.Contains(line, "0 -> 5") {
		t.Errorf("forward jump line %q", line)
	}
	if next != 2 {
		t.Errorf("next offset = %d, want 2", next)
	}

	line, next = DisassembleInstruction(&chunk, 2)
	if !strings.Contains(line, "OP_LOOP") || !strings.Contains(line, "2 -> 0") {
		t.Errorf("backward jump line %q", line)
	}
	if next != 4 {
		t.Errorf("next offset = %d, want 4", next)
	}
}

func TestInvokeInstruction(t *testing.T) {
	h := runtime.NewHeap(runtime.Config{})
	var chunk runtime.Chunk
	method := chunk.AddConstant(runtime.ObjVal(h.Intern("update")))
	chunk.Write(uint16(bytecode.OpInvoke), 7)
	chunk.Write(uint16(method), 7)
	chunk.Write(2, 7)

	line, next := DisassembleInstruction(&chunk, 0)
	if !strings.Contains(line, "OP_INVOKE") || !strings.Contains(line, "(2 args)") ||
		!strings.Contains(line, "'update'") {
		t.Errorf("invoke line %q", line)
	}
	if next != 3 {
		t.Errorf("next offset = %d, want 3", next)
	}
}

func TestClosureInstructionDecodesUpvalues(t *testing.T) {
	h := runtime.NewHeap(runtime.Config{})
	var chunk runtime.Chunk

	fn := h.NewFunction()
	fn.Name = h.Intern("inner")
	fn.UpvalueCount = 2
	constant := chunk.AddConstant(runtime.ObjVal(fn))
	chunk.Write(uint16(bytecode.OpClosure), 9)
	chunk.Write(uint16(constant), 9)
	chunk.Write(1, 9) // local
	chunk.Write(0, 9)
	chunk.Write(0, 9) // upvalue
	chunk.Write(1, 9)

	line, next := DisassembleInstruction(&chunk, 0)
	if !strings.Contains(line, "OP_CLOSURE") || !strings.Contains(line, "<fn inner>") {
		t.Errorf("closure line %q", line)
	}
	if !strings.Contains(line, "local 0") || !strings.Contains(line, "upvalue 1") {
		t.Errorf("upvalue pairs not decoded: %q", line)
	}
	if next != 6 {
		t.Errorf("next offset = %d, want 6", next)
	}
}
