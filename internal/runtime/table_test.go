package runtime

import (
	"fmt"
	"testing"
)

func newTestHeap() *Heap {
	return NewHeap(Config{})
}

func TestSetGetRoundTrip(t *testing.T) {
	h := newTestHeap()
	var table Table

	key := h.Intern("answer")
	if !table.Set(key, NumberVal(42)) {
		t.Error("first Set should report a new key")
	}
	if table.Set(key, NumberVal(43)) {
		t.Error("second Set of the same key should not report new")
	}
	got, ok := table.Get(key)
	if !ok || got.AsNumber() != 43 {
		t.Errorf("Get = (%v, %v), want most recent value 43", got, ok)
	}
}

func TestGetMissing(t *testing.T) {
	h := newTestHeap()
	var table Table
	if _, ok := table.Get(h.Intern("nope")); ok {
		t.Error("Get on empty table should miss")
	}
}

func TestDelete(t *testing.T) {
	h := newTestHeap()
	var table Table
	key := h.Intern("k")
	table.Set(key, BoolVal(true))

	if !table.Delete(key) {
		t.Error("Delete of present key should report true")
	}
	if table.Delete(key) {
		t.Error("second Delete should report false")
	}
	if _, ok := table.Get(key); ok {
		t.Error("Get after Delete should miss")
	}
}

// A deleted slot must keep later probe-chain entries reachable.
func TestTombstonePreservesProbeChain(t *testing.T) {
	h := newTestHeap()
	var table Table

	keys := make([]*ObjString, 32)
	for i := range keys {
		keys[i] = h.Intern(fmt.Sprintf("key-%d", i))
		table.Set(keys[i], NumberVal(float64(i)))
	}
	for i := 0; i < len(keys); i += 2 {
		table.Delete(keys[i])
	}
	for i := 1; i < len(keys); i += 2 {
		got, ok := table.Get(keys[i])
		if !ok || got.AsNumber() != float64(i) {
			t.Fatalf("key-%d lost after neighboring deletes", i)
		}
	}

	// Re-inserting reuses tombstones without inflating the count.
	countBefore := table.count
	table.Set(keys[0], NumberVal(0))
	if table.count != countBefore {
		t.Errorf("insert into tombstone grew count from %d to %d", countBefore, table.count)
	}
}

func TestGrowthKeepsEntries(t *testing.T) {
	h := newTestHeap()
	var table Table
	const n = 500
	for i := 0; i < n; i++ {
		table.Set(h.Intern(fmt.Sprintf("entry-%d", i)), NumberVal(float64(i)))
	}
	for i := 0; i < n; i++ {
		got, ok := table.Get(h.Intern(fmt.Sprintf("entry-%d", i)))
		if !ok || got.AsNumber() != float64(i) {
			t.Fatalf("entry-%d missing after growth", i)
		}
	}
}

func TestLoadFactorBound(t *testing.T) {
	h := newTestHeap()
	var table Table
	for i := 0; i < 1000; i++ {
		table.Set(h.Intern(fmt.Sprintf("load-%d", i)), NilVal())
		if load := float64(table.count); load > float64(len(table.entries))*tableMaxLoad {
			t.Fatalf("after %d inserts: count %d exceeds %.2f of capacity %d",
				i+1, table.count, tableMaxLoad, len(table.entries))
		}
	}
}

func TestFindStringByContent(t *testing.T) {
	h := newTestHeap()
	var table Table
	key := h.Intern("needle")
	table.Set(key, NilVal())

	if got := table.FindString("needle", HashString("needle")); got != key {
		t.Errorf("FindString returned %v, want the stored key", got)
	}
	if got := table.FindString("missing", HashString("missing")); got != nil {
		t.Errorf("FindString for absent content returned %v", got)
	}
}

func TestHashStringIsFNV1a(t *testing.T) {
	// Reference values for the 32-bit FNV-1a parameters.
	tests := []struct {
		input string
		want  uint32
	}{
		{"", 2166136261},
		{"a", 0xe40c292c},
		{"foobar", 0xbf9cf968},
	}
	for _, tt := range tests {
		if got := HashString(tt.input); got != tt.want {
			t.Errorf("HashString(%q) = %#x, want %#x", tt.input, got, tt.want)
		}
	}
}
