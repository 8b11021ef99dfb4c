package vm

import (
	"strings"

	"sigil/internal/bytecode"
	"sigil/internal/debugger"
	"sigil/internal/runtime"
)

// run is the dispatch loop: read one word, switch, repeat until the script
// frame returns or an error unwinds everything.
func (vm *VM) run() (result InterpretResult) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(stackOverflow); ok {
				vm.runtimeError("Stack overflow.")
				result = InterpretRuntimeError
				return
			}
			panic(r)
		}
	}()

	frame := &vm.frames[vm.frameCount-1]

	readWord := func() uint16 {
		w := frame.closure.Function.Chunk.Code[frame.ip]
		frame.ip++
		return w
	}
	readConstant := func() runtime.Value {
		return frame.closure.Function.Chunk.Constants[readWord()]
	}
	readString := func() *runtime.ObjString {
		return readConstant().AsString()
	}

	for {
		if vm.cfg.Trace {
			line, _ := debugger.DisassembleInstruction(&frame.closure.Function.Chunk, frame.ip)
			vm.cfg.Logger.Debug().Str("stack", vm.stackString()).Msg(line)
		}

		switch op := bytecode.OpCode(readWord()); op {
		case bytecode.OpConstant:
			vm.push(readConstant())
		case bytecode.OpNil:
			vm.push(runtime.NilVal())
		case bytecode.OpTrue:
			vm.push(runtime.BoolVal(true))
		case bytecode.OpFalse:
			vm.push(runtime.BoolVal(false))
		case bytecode.OpPop:
			vm.pop()

		case bytecode.OpGetLocal:
			slot := readWord()
			vm.push(vm.stack[frame.slots+int(slot)])
		case bytecode.OpSetLocal:
			slot := readWord()
			vm.stack[frame.slots+int(slot)] = vm.peek(0)

		case bytecode.OpGetGlobal:
			name := readString()
			value, ok := vm.globals.Get(name)
			if !ok {
				vm.runtimeError("Undefined variable '%s'.", name.Chars)
				return InterpretRuntimeError
			}
			vm.push(value)
		case bytecode.OpDefineGlobal:
			name := readString()
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case bytecode.OpSetGlobal:
			name := readString()
			if vm.globals.Set(name, vm.peek(0)) {
				// Assignment may not create a global; undo the insert.
				vm.globals.Delete(name)
				vm.runtimeError("Undefined variable '%s'.", name.Chars)
				return InterpretRuntimeError
			}

		case bytecode.OpGetUpvalue:
			slot := readWord()
			vm.push(*frame.closure.Upvalues[slot].Location)
		case bytecode.OpSetUpvalue:
			slot := readWord()
			*frame.closure.Upvalues[slot].Location = vm.peek(0)

		case bytecode.OpGetProperty:
			instance, ok := asInstance(vm.peek(0))
			if !ok {
				vm.runtimeError("Only instances have properties.")
				return InterpretRuntimeError
			}
			name := readString()
			if value, ok := instance.Fields.Get(name); ok {
				vm.pop()
				vm.push(value)
				break
			}
			if !vm.bindMethod(instance.Class, name) {
				return InterpretRuntimeError
			}
		case bytecode.OpSetProperty:
			instance, ok := asInstance(vm.peek(1))
			if !ok {
				vm.runtimeError("Only instances have fields.")
				return InterpretRuntimeError
			}
			instance.Fields.Set(readString(), vm.peek(0))
			value := vm.pop()
			vm.pop()
			vm.push(value)
		case bytecode.OpGetSuper:
			name := readString()
			superclass := vm.pop().AsObj().(*runtime.ObjClass)
			if !vm.bindMethod(superclass, name) {
				return InterpretRuntimeError
			}

		case bytecode.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(runtime.BoolVal(a.Equals(b)))
		case bytecode.OpGreater, bytecode.OpLess,
			bytecode.OpSubtract, bytecode.OpMultiply, bytecode.OpDivide:
			if !vm.numericBinary(op) {
				return InterpretRuntimeError
			}
		case bytecode.OpAdd:
			switch {
			case vm.peek(0).IsString() && vm.peek(1).IsString():
				vm.concatenate()
			case vm.peek(0).IsNumber() && vm.peek(1).IsNumber():
				b := vm.pop().AsNumber()
				a := vm.pop().AsNumber()
				vm.push(runtime.NumberVal(a + b))
			default:
				vm.runtimeError("Operands must be two numbers or two strings.")
				return InterpretRuntimeError
			}

		case bytecode.OpNot:
			vm.push(runtime.BoolVal(vm.pop().IsFalsey()))
		case bytecode.OpNegate:
			if !vm.peek(0).IsNumber() {
				vm.runtimeError("Operand must be a number.")
				return InterpretRuntimeError
			}
			vm.push(runtime.NumberVal(-vm.pop().AsNumber()))

		case bytecode.OpPrint:
			vm.print(vm.pop())

		case bytecode.OpJump:
			offset := readWord()
			frame.ip += int(offset)
		case bytecode.OpJumpIfFalse:
			offset := readWord()
			if vm.peek(0).IsFalsey() {
				frame.ip += int(offset)
			}
		case bytecode.OpLoop:
			offset := readWord()
			frame.ip -= int(offset)

		case bytecode.OpCall:
			argCount := int(readWord())
			if !vm.callValue(vm.peek(argCount), argCount) {
				return InterpretRuntimeError
			}
			frame = &vm.frames[vm.frameCount-1]
		case bytecode.OpInvoke:
			method := readString()
			argCount := int(readWord())
			if !vm.invoke(method, argCount) {
				return InterpretRuntimeError
			}
			frame = &vm.frames[vm.frameCount-1]
		case bytecode.OpSuperInvoke:
			method := readString()
			argCount := int(readWord())
			superclass := vm.pop().AsObj().(*runtime.ObjClass)
			if !vm.invokeFromClass(superclass, method, argCount) {
				return InterpretRuntimeError
			}
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpClosure:
			fn := readConstant().AsObj().(*runtime.ObjFunction)
			closure := vm.heap.NewClosure(fn)
			// Rooted before upvalue allocation can trigger a collection.
			vm.push(runtime.ObjVal(closure))
			for i := range closure.Upvalues {
				isLocal := readWord()
				index := int(readWord())
				if isLocal == 1 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slots + index)
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}
		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case bytecode.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slots)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return InterpretOK
			}
			vm.stackTop = frame.slots
			vm.push(result)
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpClass:
			vm.push(runtime.ObjVal(vm.heap.NewClass(readString())))
		case bytecode.OpInherit:
			superclass := vm.peek(1)
			superObj, ok := asClass(superclass)
			if !ok {
				vm.runtimeError("Superclass must be a class.")
				return InterpretRuntimeError
			}
			subclass := vm.peek(0).AsObj().(*runtime.ObjClass)
			subclass.Methods.AddAll(&superObj.Methods)
			vm.pop()
		case bytecode.OpMethod:
			name := readString()
			method := vm.peek(0)
			class := vm.peek(1).AsObj().(*runtime.ObjClass)
			class.Methods.Set(name, method)
			vm.pop()
		}
	}
}

func (vm *VM) numericBinary(op bytecode.OpCode) bool {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		vm.runtimeError("Operands must be numbers.")
		return false
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	switch op {
	case bytecode.OpGreater:
		vm.push(runtime.BoolVal(a > b))
	case bytecode.OpLess:
		vm.push(runtime.BoolVal(a < b))
	case bytecode.OpSubtract:
		vm.push(runtime.NumberVal(a - b))
	case bytecode.OpMultiply:
		vm.push(runtime.NumberVal(a * b))
	case bytecode.OpDivide:
		vm.push(runtime.NumberVal(a / b))
	}
	return true
}

// concatenate interns the joined string while both operands are still on
// the stack, keeping them alive across the allocation.
func (vm *VM) concatenate() {
	b := vm.peek(0).AsString()
	a := vm.peek(1).AsString()
	result := vm.heap.Intern(a.Chars + b.Chars)
	vm.pop()
	vm.pop()
	vm.push(runtime.ObjVal(result))
}

func asClass(v runtime.Value) (*runtime.ObjClass, bool) {
	if !v.IsObj() {
		return nil, false
	}
	class, ok := v.AsObj().(*runtime.ObjClass)
	return class, ok
}

func (vm *VM) stackString() string {
	var sb strings.Builder
	for i := 0; i < vm.stackTop; i++ {
		sb.WriteString("[ ")
		sb.WriteString(vm.stack[i].String())
		sb.WriteString(" ]")
	}
	return sb.String()
}
