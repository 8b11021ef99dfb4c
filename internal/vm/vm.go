// Package vm executes compiled bytecode on an explicit value stack and a
// stack of call frames.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"sigil/internal/compiler"
	"sigil/internal/errors"
	"sigil/internal/runtime"
)

const (
	FramesMax = 64
	StackMax  = FramesMax * 256
)

type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

// CallFrame is one function activation: the closure being run, its
// instruction pointer, and the base of its locals window on the value stack.
// Slot 0 of the window holds the callee (the receiver, for method calls).
type CallFrame struct {
	closure *runtime.ObjClosure
	ip      int
	slots   int
}

type Config struct {
	Trace    bool
	StressGC bool
	LogGC    bool
	Stdout   io.Writer
	Stderr   io.Writer
	Logger   zerolog.Logger
}

// VM executes bytecode. One VM owns its heap, globals, and interned strings;
// nothing is process-global, so independent VMs don't share state.
type VM struct {
	cfg  Config
	heap *runtime.Heap

	stack    [StackMax]runtime.Value
	stackTop int

	frames     [FramesMax]CallFrame
	frameCount int

	globals      runtime.Table
	openUpvalues *runtime.ObjUpvalue
	initString   *runtime.ObjString

	stdout io.Writer
	stderr io.Writer
}

func New(cfg Config) *VM {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	vm := &VM{
		cfg:    cfg,
		stdout: cfg.Stdout,
		stderr: cfg.Stderr,
	}
	vm.heap = runtime.NewHeap(runtime.Config{
		StressGC: cfg.StressGC,
		LogGC:    cfg.LogGC,
		Logger:   cfg.Logger,
	})
	vm.heap.SetVMRoots(vm.markRoots)
	vm.initString = vm.heap.Intern("init")
	registerNatives(vm)
	return vm
}

func (vm *VM) Heap() *runtime.Heap { return vm.heap }

// Interpret compiles and runs one source unit against the VM's persistent
// state. Globals and interned strings survive across calls, which is what
// the REPL leans on.
func (vm *VM) Interpret(source string) InterpretResult {
	fn := compiler.Compile(source, vm.heap, vm.stderr)
	if fn == nil {
		return InterpretCompileError
	}

	// The function must be rooted while its closure allocates.
	vm.push(runtime.ObjVal(fn))
	closure := vm.heap.NewClosure(fn)
	vm.pop()
	vm.push(runtime.ObjVal(closure))
	vm.call(closure, 0)

	return vm.run()
}

// Compile compiles source without running it, for the disassembly surface.
func (vm *VM) Compile(source string) *runtime.ObjFunction {
	return compiler.Compile(source, vm.heap, vm.stderr)
}

func (vm *VM) markRoots(h *runtime.Heap) {
	for i := 0; i < vm.stackTop; i++ {
		h.MarkValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		h.MarkObject(vm.frames[i].closure)
	}
	for u := vm.openUpvalues; u != nil; u = u.NextOpen {
		h.MarkObject(u)
	}
	h.MarkTable(&vm.globals)
	// initString is still nil while New interns it.
	if vm.initString != nil {
		h.MarkObject(vm.initString)
	}
}

// Stack discipline. The stack array never moves, so pointers into it stay
// valid for open upvalues.

func (vm *VM) push(v runtime.Value) {
	if vm.stackTop == StackMax {
		panic(stackOverflow{})
	}
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() runtime.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) runtime.Value {
	return vm.stack[vm.stackTop-1-distance]
}

type stackOverflow struct{}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

// runtimeError reports message plus a stack trace, innermost frame first,
// then resets the VM for the next Interpret.
func (vm *VM) runtimeError(format string, args ...interface{}) {
	re := &errors.RuntimeError{Message: fmt.Sprintf(format, args...)}
	for i := vm.frameCount - 1; i >= 0; i-- {
		frame := &vm.frames[i]
		fn := frame.closure.Function
		name := ""
		if fn.Name != nil {
			name = fn.Name.Chars
		}
		line := 0
		if frame.ip > 0 && frame.ip <= len(fn.Chunk.Lines) {
			line = fn.Chunk.Lines[frame.ip-1]
		}
		re.Trace = append(re.Trace, errors.Frame{Line: line, Function: name})
	}
	fmt.Fprint(vm.stderr, re.Error())
	vm.resetStack()
}

// Calls.

func (vm *VM) call(closure *runtime.ObjClosure, argCount int) bool {
	if argCount != closure.Function.Arity {
		vm.runtimeError("Expected %d arguments but got %d.",
			closure.Function.Arity, argCount)
		return false
	}
	if vm.frameCount == FramesMax {
		vm.runtimeError("Stack overflow.")
		return false
	}
	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.closure = closure
	frame.ip = 0
	frame.slots = vm.stackTop - argCount - 1
	return true
}

func (vm *VM) callValue(callee runtime.Value, argCount int) bool {
	if callee.IsObj() {
		switch callee := callee.AsObj().(type) {
		case *runtime.ObjBoundMethod:
			vm.stack[vm.stackTop-argCount-1] = callee.Receiver
			return vm.call(callee.Method, argCount)
		case *runtime.ObjClass:
			instance := vm.heap.NewInstance(callee)
			vm.stack[vm.stackTop-argCount-1] = runtime.ObjVal(instance)
			if initializer, ok := callee.Methods.Get(vm.initString); ok {
				return vm.call(initializer.AsObj().(*runtime.ObjClosure), argCount)
			}
			if argCount != 0 {
				vm.runtimeError("Expected 0 arguments but got %d.", argCount)
				return false
			}
			return true
		case *runtime.ObjClosure:
			return vm.call(callee, argCount)
		case *runtime.ObjNative:
			result := callee.Fn(vm.stack[vm.stackTop-argCount : vm.stackTop])
			vm.stackTop -= argCount + 1
			vm.push(result)
			return true
		}
	}
	vm.runtimeError("Can only call functions and classes.")
	return false
}

func (vm *VM) invokeFromClass(class *runtime.ObjClass, name *runtime.ObjString, argCount int) bool {
	method, ok := class.Methods.Get(name)
	if !ok {
		vm.runtimeError("Undefined property '%s'.", name.Chars)
		return false
	}
	return vm.call(method.AsObj().(*runtime.ObjClosure), argCount)
}

// invoke is the OP_INVOKE fast path: property load and call fused, unless
// the name turns out to be a field holding a callable.
func (vm *VM) invoke(name *runtime.ObjString, argCount int) bool {
	receiver := vm.peek(argCount)
	instance, ok := asInstance(receiver)
	if !ok {
		vm.runtimeError("Only instances have methods.")
		return false
	}
	if value, ok := instance.Fields.Get(name); ok {
		vm.stack[vm.stackTop-argCount-1] = value
		return vm.callValue(value, argCount)
	}
	return vm.invokeFromClass(instance.Class, name, argCount)
}

func (vm *VM) bindMethod(class *runtime.ObjClass, name *runtime.ObjString) bool {
	method, ok := class.Methods.Get(name)
	if !ok {
		vm.runtimeError("Undefined property '%s'.", name.Chars)
		return false
	}
	bound := vm.heap.NewBoundMethod(vm.peek(0), method.AsObj().(*runtime.ObjClosure))
	vm.pop()
	vm.push(runtime.ObjVal(bound))
	return true
}

func asInstance(v runtime.Value) (*runtime.ObjInstance, bool) {
	if !v.IsObj() {
		return nil, false
	}
	instance, ok := v.AsObj().(*runtime.ObjInstance)
	return instance, ok
}

// Upvalues.

// captureUpvalue returns the open upvalue for a stack slot, creating one if
// none exists. The open list is kept sorted by decreasing slot so closing a
// frame's slots only looks at the list head.
func (vm *VM) captureUpvalue(slot int) *runtime.ObjUpvalue {
	var prev *runtime.ObjUpvalue
	uv := vm.openUpvalues
	for uv != nil && uv.Slot > slot {
		prev = uv
		uv = uv.NextOpen
	}
	if uv != nil && uv.Slot == slot {
		return uv
	}

	created := vm.heap.NewUpvalue(&vm.stack[slot], slot)
	created.NextOpen = uv
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.NextOpen = created
	}
	return created
}

// closeUpvalues hoists every open upvalue at or above last off the stack:
// the value moves into the upvalue and the location pointer follows it.
func (vm *VM) closeUpvalues(last int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Slot >= last {
		uv := vm.openUpvalues
		uv.Closed = *uv.Location
		uv.Location = &uv.Closed
		uv.Slot = -1
		vm.openUpvalues = uv.NextOpen
		uv.NextOpen = nil
	}
}
