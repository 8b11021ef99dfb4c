package runtime

import (
	"fmt"
	"testing"
)

func TestInternReturnsSameObject(t *testing.T) {
	h := newTestHeap()
	a := h.Intern("shared")
	b := h.Intern("shared")
	if a != b {
		t.Error("interning the same content twice should return one object")
	}
	if a.Hash != HashString("shared") {
		t.Errorf("stored hash %#x does not match content hash", a.Hash)
	}
}

// With no roots registered, a collection must reclaim everything, and the
// intern table must not keep its strings alive on its own.
func TestInternTableIsWeak(t *testing.T) {
	h := newTestHeap()
	h.Intern("ephemeral")
	h.Collect()

	if got := h.strings.FindString("ephemeral", HashString("ephemeral")); got != nil {
		t.Error("unreferenced interned string survived collection")
	}
	if h.bytesAllocated != 0 {
		t.Errorf("bytesAllocated = %d after collecting an unrooted heap", h.bytesAllocated)
	}
}

func TestRootedObjectsSurvive(t *testing.T) {
	h := newTestHeap()
	var keep *ObjString
	h.SetVMRoots(func(h *Heap) { h.MarkObject(keep) })
	keep = h.Intern("keep")
	h.Intern("drop")

	h.Collect()

	if h.strings.FindString("keep", HashString("keep")) != keep {
		t.Error("rooted string was collected")
	}
	if h.strings.FindString("drop", HashString("drop")) != nil {
		t.Error("unrooted string survived")
	}
	if h.Intern("keep") != keep {
		t.Error("re-interning after collection returned a different object")
	}
}

// Marking a closure must keep its whole object graph: function, name,
// constants, and captured upvalues.
func TestMarkTracesObjectGraph(t *testing.T) {
	h := newTestHeap()

	var closure *ObjClosure
	h.SetVMRoots(func(h *Heap) { h.MarkObject(closure) })

	fn := h.NewFunction()
	fn.Name = h.Intern("traced")
	fn.Chunk.AddConstant(ObjVal(h.Intern("constant")))
	fn.UpvalueCount = 1
	closure = h.NewClosure(fn)
	captured := ObjVal(h.Intern("captured"))
	uv := h.NewUpvalue(&captured, 0)
	uv.Closed = captured
	uv.Location = &uv.Closed
	closure.Upvalues[0] = uv

	h.Collect()

	for _, want := range []string{"traced", "constant", "captured"} {
		if h.strings.FindString(want, HashString(want)) == nil {
			t.Errorf("string %q was collected despite being reachable", want)
		}
	}
}

func TestClassGraphSurvives(t *testing.T) {
	h := newTestHeap()

	var instance *ObjInstance
	h.SetVMRoots(func(h *Heap) { h.MarkObject(instance) })

	class := h.NewClass(h.Intern("Widget"))
	methodFn := h.NewFunction()
	methodFn.Name = h.Intern("draw")
	class.Methods.Set(h.Intern("draw"), ObjVal(h.NewClosure(methodFn)))
	instance = h.NewInstance(class)
	instance.Fields.Set(h.Intern("size"), NumberVal(3))

	h.Collect()

	for _, want := range []string{"Widget", "draw", "size"} {
		if h.strings.FindString(want, HashString(want)) == nil {
			t.Errorf("string %q was collected despite being reachable", want)
		}
	}
}

func TestCollectClearsMarks(t *testing.T) {
	h := newTestHeap()
	var keep *ObjString
	h.SetVMRoots(func(h *Heap) { h.MarkObject(keep) })
	keep = h.Intern("twice")

	h.Collect()
	if keep.Marked {
		t.Error("mark bit not cleared after sweep")
	}
	h.Collect()
	if h.strings.FindString("twice", HashString("twice")) != keep {
		t.Error("object lost on second collection")
	}
}

// Stress mode collects on every allocation; rooted objects must still be
// safe while new ones are created.
func TestStressModeAllocationSafety(t *testing.T) {
	h := NewHeap(Config{StressGC: true})
	live := make([]*ObjString, 0, 64)
	h.SetVMRoots(func(h *Heap) {
		for _, s := range live {
			h.MarkObject(s)
		}
	})

	for i := 0; i < 64; i++ {
		live = append(live, h.Intern(fmt.Sprintf("stress-%d", i)))
	}
	for i, s := range live {
		want := fmt.Sprintf("stress-%d", i)
		if s.Chars != want {
			t.Fatalf("live[%d] = %q, want %q", i, s.Chars, want)
		}
		if h.Intern(want) != s {
			t.Fatalf("identity of %q lost under stress collection", want)
		}
	}
}

func TestCompilerRootsHonored(t *testing.T) {
	h := newTestHeap()
	var fn *ObjFunction
	h.SetCompilerRoots(func(h *Heap) { h.MarkObject(fn) })
	fn = h.NewFunction()
	fn.Name = h.Intern("inflight")

	h.Collect()
	if h.strings.FindString("inflight", HashString("inflight")) == nil {
		t.Error("in-progress function's name collected while compiler roots were set")
	}

	h.SetCompilerRoots(nil)
	fn = nil
	h.Collect()
	if h.strings.FindString("inflight", HashString("inflight")) != nil {
		t.Error("function survived after compiler roots were removed")
	}
}
