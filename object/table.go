package object

// Table is an open-addressed, linear-probed hash table keyed by interned
// strings. Deleted entries leave tombstones (nil key, true value) so probe
// sequences stay intact; tombstones count toward the load factor and are
// reclaimed on resize.
type Table struct {
	count   int // live entries plus tombstones
	entries []entry
}

type entry struct {
	key   *String
	value Value
}

const tableMaxLoad = 0.75

func (t *Table) isTombstone(e *entry) bool {
	return e.key == nil && e.value.IsBool() && e.value.AsBool()
}

// findEntry locates the bucket for a key: either the entry holding it, the
// first tombstone passed on the way (for reuse), or the empty bucket that
// terminates the probe.
func findEntry(entries []entry, key *String) *entry {
	index := int(key.Hash) & (len(entries) - 1)
	var tombstone *entry
	for {
		e := &entries[index]
		if e.key == nil {
			if e.value.IsNil() {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		} else if e.key == key {
			return e
		}
		index = (index + 1) & (len(entries) - 1)
	}
}

func (t *Table) adjustCapacity(capacity int) {
	entries := make([]entry, capacity)
	t.count = 0
	for i := range t.entries {
		e := &t.entries[i]
		if e.key == nil {
			continue
		}
		dest := findEntry(entries, e.key)
		dest.key = e.key
		dest.value = e.value
		t.count++
	}
	t.entries = entries
}

// Get looks up a key. The second return is false if it is absent.
func (t *Table) Get(key *String) (Value, bool) {
	if t.count == 0 {
		return NilValue, false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return NilValue, false
	}
	return e.value, true
}

// Set inserts or updates a key and reports whether the key was new.
func (t *Table) Set(key *String, value Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		capacity := len(t.entries) * 2
		if capacity < 8 {
			capacity = 8
		}
		t.adjustCapacity(capacity)
	}
	e := findEntry(t.entries, key)
	isNew := e.key == nil
	if isNew && e.value.IsNil() {
		t.count++
	}
	e.key = key
	e.value = value
	return isNew
}

// Delete removes a key, leaving a tombstone. Reports whether it was present.
func (t *Table) Delete(key *String) bool {
	if t.count == 0 {
		return false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = Bool(true)
	return true
}

// AddAll copies every entry from another table into this one. Used by
// inheritance to copy superclass methods into a subclass.
func (t *Table) AddAll(from *Table) {
	for i := range from.entries {
		e := &from.entries[i]
		if e.key != nil {
			t.Set(e.key, e.value)
		}
	}
}

// FindString looks up a key by contents and hash rather than identity. The
// intern set uses this to canonicalize new strings.
func (t *Table) FindString(chars string, hash uint32) *String {
	if t.count == 0 {
		return nil
	}
	index := int(hash) & (len(t.entries) - 1)
	for {
		e := &t.entries[index]
		if e.key == nil {
			if e.value.IsNil() {
				return nil
			}
		} else if e.key.Hash == hash && e.key.Value == chars {
			return e.key
		}
		index = (index + 1) & (len(t.entries) - 1)
	}
}

// RemoveWhite deletes every entry whose key is unmarked. The heap calls this
// on the intern set between marking and sweeping, which is what makes the
// set weak.
func (t *Table) RemoveWhite() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !e.key.marked {
			t.Delete(e.key)
		}
	}
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	n := 0
	for i := range t.entries {
		if t.entries[i].key != nil {
			n++
		}
	}
	return n
}

// Each calls fn for every live entry.
func (t *Table) Each(fn func(key *String, value Value)) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil {
			fn(e.key, e.value)
		}
	}
}

// Reset discards all entries.
func (t *Table) Reset() {
	t.count = 0
	t.entries = nil
}
