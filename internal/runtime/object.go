package runtime

import "fmt"

type ObjKind uint8

const (
	KindString ObjKind = iota
	KindFunction
	KindNative
	KindClosure
	KindUpvalue
	KindClass
	KindInstance
	KindBoundMethod
)

// Obj is the common header embedded in every heap object: the type tag, the
// collector's mark bit, and the intrusive link threading all live objects
// into the heap's object list.
type Obj struct {
	Kind   ObjKind
	Marked bool
	Next   Object
}

func (o *Obj) Header() *Obj { return o }

// Object is any heap-allocated runtime object.
type Object interface {
	Header() *Obj
	String() string
}

// ObjString is an interned, immutable string. At most one ObjString with any
// given byte content exists at a time, so equality is pointer equality.
type ObjString struct {
	Obj
	Chars string
	Hash  uint32
}

func (s *ObjString) String() string { return s.Chars }

// ObjFunction is a compiled function: its bytecode plus the metadata the VM
// needs to call it. Name is nil for the top-level script.
type ObjFunction struct {
	Obj
	Arity        int
	UpvalueCount int
	Name         *ObjString
	Chunk        Chunk
}

func (f *ObjFunction) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Chars)
}

// NativeFn is a builtin implemented in Go. The argument slice is a window
// into the value stack; its length is the call's argument count.
type NativeFn func(args []Value) Value

type ObjNative struct {
	Obj
	Fn NativeFn
}

func (n *ObjNative) String() string { return "<native fn>" }

// ObjClosure pairs a function with the upvalues it captured. The upvalue
// slice length always equals Function.UpvalueCount.
type ObjClosure struct {
	Obj
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

func (c *ObjClosure) String() string { return c.Function.String() }

// ObjUpvalue is the cell through which a closure reaches a captured
// variable. While open it points at a live stack slot (Slot records the
// stack index so the VM keeps its open list sorted); once closed the value
// moves into Closed and Location is redirected there.
type ObjUpvalue struct {
	Obj
	Location *Value
	Slot     int
	Closed   Value
	NextOpen *ObjUpvalue
}

func (u *ObjUpvalue) String() string { return "upvalue" }

type ObjClass struct {
	Obj
	Name    *ObjString
	Methods Table
}

func (c *ObjClass) String() string { return c.Name.Chars }

type ObjInstance struct {
	Obj
	Class  *ObjClass
	Fields Table
}

func (i *ObjInstance) String() string { return i.Class.Name.Chars + " instance" }

// ObjBoundMethod is a method closure snapped together with its receiver, so
// it can be called later with `this` already in place.
type ObjBoundMethod struct {
	Obj
	Receiver Value
	Method   *ObjClosure
}

func (b *ObjBoundMethod) String() string { return b.Method.Function.String() }
