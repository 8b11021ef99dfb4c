package vm

import (
	"fmt"
	"time"

	"sigil/internal/runtime"
)

var processStart = time.Now()

// clock() -> seconds elapsed since the interpreter started, for timing
// scripts against themselves.
func clockNative([]runtime.Value) runtime.Value {
	return runtime.NumberVal(time.Since(processStart).Seconds())
}

// registerNatives installs the builtins before any user code runs.
func registerNatives(vm *VM) {
	vm.defineNative("clock", clockNative)
}

// defineNative parks the name and the native on the stack while the globals
// table takes them, so neither can be collected mid-registration.
func (vm *VM) defineNative(name string, fn runtime.NativeFn) {
	vm.push(runtime.ObjVal(vm.heap.Intern(name)))
	vm.push(runtime.ObjVal(vm.heap.NewNative(fn)))
	vm.globals.Set(vm.stack[0].AsString(), vm.stack[1])
	vm.pop()
	vm.pop()
}

func (vm *VM) print(v runtime.Value) {
	fmt.Fprintln(vm.stdout, v.String())
}
