package runtime

// Table is an open-addressed hash map keyed by interned strings, with linear
// probing and tombstones. Capacity is always a power of two so the bucket
// index is hash & (capacity - 1). Count includes tombstones, which bounds
// probe chain length against the load factor.
type Table struct {
	count   int
	entries []Entry
}

type Entry struct {
	Key   *ObjString
	Value Value
}

const tableMaxLoad = 0.75

// A tombstone is an entry with no key and a true value; a truly empty bucket
// has no key and a nil value.
func (e *Entry) isTombstone() bool {
	return e.Key == nil && e.Value.IsBool() && e.Value.AsBool()
}

func findEntry(entries []Entry, key *ObjString) *Entry {
	mask := uint32(len(entries) - 1)
	index := key.Hash & mask
	var tombstone *Entry
	for {
		entry := &entries[index]
		if entry.Key == nil {
			if !entry.isTombstone() {
				if tombstone != nil {
					return tombstone
				}
				return entry
			}
			if tombstone == nil {
				tombstone = entry
			}
		} else if entry.Key == key {
			return entry
		}
		index = (index + 1) & mask
	}
}

func (t *Table) adjustCapacity(capacity int) {
	entries := make([]Entry, capacity)
	// Rehashing drops tombstones, so the count is rebuilt from live entries.
	t.count = 0
	for i := range t.entries {
		entry := &t.entries[i]
		if entry.Key == nil {
			continue
		}
		dest := findEntry(entries, entry.Key)
		dest.Key = entry.Key
		dest.Value = entry.Value
		t.count++
	}
	t.entries = entries
}

func growCapacity(capacity int) int {
	if capacity < 8 {
		return 8
	}
	return capacity * 2
}

func (t *Table) Get(key *ObjString) (Value, bool) {
	if t.count == 0 {
		return NilVal(), false
	}
	entry := findEntry(t.entries, key)
	if entry.Key == nil {
		return NilVal(), false
	}
	return entry.Value, true
}

// Set stores value under key and reports whether the key was not present
// before. Inserting into a recycled tombstone does not grow the count.
func (t *Table) Set(key *ObjString, value Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.adjustCapacity(growCapacity(len(t.entries)))
	}
	entry := findEntry(t.entries, key)
	isNew := entry.Key == nil
	if isNew && !entry.isTombstone() {
		t.count++
	}
	entry.Key = key
	entry.Value = value
	return isNew
}

// Delete replaces the entry with a tombstone so later probes still walk
// through it. The count is left alone; tombstones are reclaimed on grow.
func (t *Table) Delete(key *ObjString) bool {
	if t.count == 0 {
		return false
	}
	entry := findEntry(t.entries, key)
	if entry.Key == nil {
		return false
	}
	entry.Key = nil
	entry.Value = BoolVal(true)
	return true
}

func (t *Table) AddAll(from *Table) {
	for i := range from.entries {
		entry := &from.entries[i]
		if entry.Key != nil {
			t.Set(entry.Key, entry.Value)
		}
	}
}

// FindString looks a string up by content rather than identity. The
// interning path needs it: a freshly built string is not yet pointer-equal
// to any existing key.
func (t *Table) FindString(chars string, hash uint32) *ObjString {
	if t.count == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	index := hash & mask
	for {
		entry := &t.entries[index]
		if entry.Key == nil {
			if !entry.isTombstone() {
				return nil
			}
		} else if entry.Key.Hash == hash && entry.Key.Chars == chars {
			return entry.Key
		}
		index = (index + 1) & mask
	}
}

// removeWhite deletes every entry whose key survived no mark. Run between
// mark and sweep, it makes the intern table hold its strings weakly.
func (t *Table) removeWhite() {
	for i := range t.entries {
		entry := &t.entries[i]
		if entry.Key != nil && !entry.Key.Marked {
			t.Delete(entry.Key)
		}
	}
}

// HashString is FNV-1a over the string bytes.
func HashString(chars string) uint32 {
	var hash uint32 = 2166136261
	for i := 0; i < len(chars); i++ {
		hash ^= uint32(chars[i])
		hash *= 16777619
	}
	return hash
}
