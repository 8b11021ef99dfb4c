package runtime

import "github.com/dustin/go-humanize"

// Collect runs a full mark-sweep cycle: mark the roots, trace the gray
// worklist to a fixpoint, drop unmarked keys from the weak intern table,
// sweep the object list, and rescale the next-collection threshold.
func (h *Heap) Collect() {
	before := h.bytesAllocated
	if h.cfg.LogGC {
		h.cfg.Logger.Debug().
			Str("heap", humanize.Bytes(uint64(before))).
			Msg("gc begin")
	}

	h.markRoots()
	h.traceReferences()
	h.strings.removeWhite()
	h.sweep()

	h.nextGC = h.bytesAllocated * heapGrowFactor
	if h.cfg.LogGC {
		h.cfg.Logger.Debug().
			Str("freed", humanize.Bytes(uint64(before-h.bytesAllocated))).
			Str("heap", humanize.Bytes(uint64(h.bytesAllocated))).
			Str("next", humanize.Bytes(uint64(h.nextGC))).
			Msg("gc end")
	}
}

func (h *Heap) markRoots() {
	if h.vmRoots != nil {
		h.vmRoots(h)
	}
	if h.compilerRoots != nil {
		h.compilerRoots(h)
	}
}

func (h *Heap) MarkValue(v Value) {
	if v.IsObj() {
		h.MarkObject(v.AsObj())
	}
}

func (h *Heap) MarkObject(o Object) {
	if o == nil {
		return
	}
	hdr := o.Header()
	if hdr.Marked {
		return
	}
	hdr.Marked = true
	// The gray stack grows with plain append; its growth must never re-enter
	// the collector.
	h.grayStack = append(h.grayStack, o)
}

func (h *Heap) MarkTable(t *Table) {
	for i := range t.entries {
		entry := &t.entries[i]
		if entry.Key != nil {
			h.MarkObject(entry.Key)
		}
		h.MarkValue(entry.Value)
	}
}

func (h *Heap) traceReferences() {
	for len(h.grayStack) > 0 {
		o := h.grayStack[len(h.grayStack)-1]
		h.grayStack = h.grayStack[:len(h.grayStack)-1]
		h.blacken(o)
	}
}

func (h *Heap) blacken(o Object) {
	switch o := o.(type) {
	case *ObjString, *ObjNative:
		// No outgoing references.
	case *ObjFunction:
		h.MarkObject(nilOr(o.Name))
		for _, c := range o.Chunk.Constants {
			h.MarkValue(c)
		}
	case *ObjClosure:
		h.MarkObject(o.Function)
		for _, u := range o.Upvalues {
			h.MarkObject(nilOrUpvalue(u))
		}
	case *ObjUpvalue:
		h.MarkValue(o.Closed)
	case *ObjClass:
		h.MarkObject(o.Name)
		h.MarkTable(&o.Methods)
	case *ObjInstance:
		h.MarkObject(o.Class)
		h.MarkTable(&o.Fields)
	case *ObjBoundMethod:
		h.MarkValue(o.Receiver)
		h.MarkObject(o.Method)
	}
}

// Typed nils must not reach MarkObject as non-nil interfaces.
func nilOr(s *ObjString) Object {
	if s == nil {
		return nil
	}
	return s
}

func nilOrUpvalue(u *ObjUpvalue) Object {
	if u == nil {
		return nil
	}
	return u
}

func (h *Heap) sweep() {
	var prev Object
	obj := h.objects
	for obj != nil {
		hdr := obj.Header()
		if hdr.Marked {
			hdr.Marked = false
			prev = obj
			obj = hdr.Next
			continue
		}
		unreached := obj
		obj = hdr.Next
		if prev == nil {
			h.objects = obj
		} else {
			prev.Header().Next = obj
		}
		h.free(unreached)
	}
}

func (h *Heap) free(o Object) {
	h.bytesAllocated -= objSize(o)
	o.Header().Next = nil
}
