package runtime

import "github.com/rs/zerolog"

// Config controls heap diagnostics. StressGC forces a collection on every
// allocation, which shakes out objects that were not rooted across an
// allocating call.
type Config struct {
	StressGC bool
	LogGC    bool
	Logger   zerolog.Logger
}

// Heap owns every runtime object. All object creation funnels through
// allocate, the one place a collection may trigger, so allocation sites are
// the VM's only GC safepoints.
type Heap struct {
	cfg     Config
	objects Object
	strings Table

	bytesAllocated int
	nextGC         int
	grayStack      []Object

	vmRoots       func(*Heap)
	compilerRoots func(*Heap)
}

const (
	initialGCThreshold = 1024 * 1024
	heapGrowFactor     = 2
)

func NewHeap(cfg Config) *Heap {
	return &Heap{
		cfg:    cfg,
		nextGC: initialGCThreshold,
	}
}

// SetVMRoots installs the callback that marks the VM's root set: the value
// stack, frame closures, open upvalues, globals, and the init string.
func (h *Heap) SetVMRoots(fn func(*Heap)) { h.vmRoots = fn }

// SetCompilerRoots installs (or, with nil, removes) the callback that marks
// the chain of in-progress functions while compilation runs.
func (h *Heap) SetCompilerRoots(fn func(*Heap)) { h.compilerRoots = fn }

func (h *Heap) BytesAllocated() int { return h.bytesAllocated }

// Rough per-object costs used for the collection threshold. They stay fixed
// for an object's lifetime so sweeping subtracts what allocation added.
func objSize(o Object) int {
	switch o := o.(type) {
	case *ObjString:
		return 40 + len(o.Chars)
	case *ObjFunction:
		return 112
	case *ObjNative:
		return 32
	case *ObjClosure:
		return 48 + 8*len(o.Upvalues)
	case *ObjUpvalue:
		return 64
	case *ObjClass:
		return 56
	case *ObjInstance:
		return 56
	case *ObjBoundMethod:
		return 56
	}
	return 32
}

// allocate links o into the object list after giving the collector a chance
// to run. The collection happens before o becomes reachable, so anything o
// will reference must already be rooted by the caller.
func (h *Heap) allocate(o Object) {
	if h.cfg.StressGC {
		h.Collect()
	}
	h.bytesAllocated += objSize(o)
	if h.bytesAllocated > h.nextGC {
		h.Collect()
	}
	hdr := o.Header()
	hdr.Next = h.objects
	h.objects = o
}

// Intern returns the canonical ObjString for chars, creating and recording
// it on first sight. Go strings are immutable, so the original's
// copy/take split collapses into this one entry point.
func (h *Heap) Intern(chars string) *ObjString {
	hash := HashString(chars)
	if interned := h.strings.FindString(chars, hash); interned != nil {
		return interned
	}
	s := &ObjString{Obj: Obj{Kind: KindString}, Chars: chars, Hash: hash}
	h.allocate(s)
	h.strings.Set(s, NilVal())
	return s
}

func (h *Heap) NewFunction() *ObjFunction {
	f := &ObjFunction{Obj: Obj{Kind: KindFunction}}
	h.allocate(f)
	return f
}

func (h *Heap) NewNative(fn NativeFn) *ObjNative {
	n := &ObjNative{Obj: Obj{Kind: KindNative}, Fn: fn}
	h.allocate(n)
	return n
}

func (h *Heap) NewClosure(function *ObjFunction) *ObjClosure {
	c := &ObjClosure{
		Obj:      Obj{Kind: KindClosure},
		Function: function,
		Upvalues: make([]*ObjUpvalue, function.UpvalueCount),
	}
	h.allocate(c)
	return c
}

func (h *Heap) NewUpvalue(location *Value, slot int) *ObjUpvalue {
	u := &ObjUpvalue{Obj: Obj{Kind: KindUpvalue}, Location: location, Slot: slot}
	h.allocate(u)
	return u
}

func (h *Heap) NewClass(name *ObjString) *ObjClass {
	c := &ObjClass{Obj: Obj{Kind: KindClass}, Name: name}
	h.allocate(c)
	return c
}

func (h *Heap) NewInstance(class *ObjClass) *ObjInstance {
	i := &ObjInstance{Obj: Obj{Kind: KindInstance}, Class: class}
	h.allocate(i)
	return i
}

func (h *Heap) NewBoundMethod(receiver Value, method *ObjClosure) *ObjBoundMethod {
	b := &ObjBoundMethod{Obj: Obj{Kind: KindBoundMethod}, Receiver: receiver, Method: method}
	h.allocate(b)
	return b
}
