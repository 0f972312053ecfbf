package vm

// PropertyEntry maps a key to its slot offset and attributes.
type PropertyEntry struct {
	Key    PropertyKey
	Offset int
	Attrs  Attributes
}

// PropertyTable is the key -> (offset, attributes) map of a shape.
// entries keeps insertion order; removed entries become tombstones
// (Offset == -1) until the table is compacted.
//
// Tables of uniform shapes are immutable once published. Dictionary tables
// are mutated in place under the owning shape's lock and recycle offsets.
type PropertyTable struct {
	index   map[PropertyKey]int
	entries []PropertyEntry
	removed int

	reuse bool  // recycle freed offsets (dictionary mode)
	free  []int // freed offsets, reused LIFO
	next  int   // next never-used offset
}

func NewPropertyTable(capacity int) *PropertyTable {
	return &PropertyTable{
		index:   make(map[PropertyKey]int, capacity),
		entries: make([]PropertyEntry, 0, capacity),
	}
}

// Lookup returns the entry for key. A missing key is not an error.
func (t *PropertyTable) Lookup(key PropertyKey) (PropertyEntry, bool) {
	i, ok := t.index[key]
	if !ok {
		return PropertyEntry{}, false
	}
	return t.entries[i], true
}

// Insert adds key at a fresh (or recycled) offset and returns the offset.
func (t *PropertyTable) Insert(key PropertyKey, attrs Attributes) int {
	off := t.NextOffset()
	if t.reuse && len(t.free) > 0 {
		t.free = t.free[:len(t.free)-1]
	} else {
		t.next++
	}
	t.append(key, off, attrs)
	return off
}

// NextOffset reports the offset the next Insert will use.
func (t *PropertyTable) NextOffset() int {
	if t.reuse && len(t.free) > 0 {
		return t.free[len(t.free)-1]
	}
	return t.next
}

// insertAt records key at a known offset; used when replaying transitions.
func (t *PropertyTable) insertAt(key PropertyKey, offset int, attrs Attributes) {
	if i, ok := t.index[key]; ok {
		t.entries[i].Offset = offset
		t.entries[i].Attrs = attrs
		return
	}
	if offset >= t.next {
		t.next = offset + 1
	}
	t.append(key, offset, attrs)
}

func (t *PropertyTable) append(key PropertyKey, offset int, attrs Attributes) {
	t.index[key] = len(t.entries)
	t.entries = append(t.entries, PropertyEntry{Key: key, Offset: offset, Attrs: attrs})
}

// Update replaces the attributes of an existing key, keeping its offset
// and its enumeration position.
func (t *PropertyTable) Update(key PropertyKey, attrs Attributes) bool {
	i, ok := t.index[key]
	if !ok {
		return false
	}
	t.entries[i].Attrs = attrs
	return true
}

// Remove deletes key. In a recycling table its offset becomes reusable.
func (t *PropertyTable) Remove(key PropertyKey) (PropertyEntry, bool) {
	i, ok := t.index[key]
	if !ok {
		return PropertyEntry{}, false
	}
	e := t.entries[i]
	delete(t.index, key)
	t.entries[i].Offset = -1
	t.removed++
	if t.reuse {
		t.free = append(t.free, e.Offset)
	}
	if t.removed > 8 && t.removed > len(t.entries)/2 {
		t.compact()
	}
	return e, true
}

func (t *PropertyTable) compact() {
	live := make([]PropertyEntry, 0, len(t.entries)-t.removed)
	for _, e := range t.entries {
		if e.Offset >= 0 {
			t.index[e.Key] = len(live)
			live = append(live, e)
		}
	}
	t.entries = live
	t.removed = 0
}

// Len returns the number of live properties.
func (t *PropertyTable) Len() int {
	return len(t.entries) - t.removed
}

// SlotCount returns one past the highest offset ever assigned.
func (t *PropertyTable) SlotCount() int {
	return t.next
}

// Range calls fn for every live entry in insertion order.
func (t *PropertyTable) Range(fn func(PropertyEntry) bool) {
	for _, e := range t.entries {
		if e.Offset < 0 {
			continue
		}
		if !fn(e) {
			return
		}
	}
}

// Clone returns a private copy of the table.
func (t *PropertyTable) Clone() *PropertyTable {
	c := &PropertyTable{
		index:   make(map[PropertyKey]int, t.Len()),
		entries: make([]PropertyEntry, 0, t.Len()),
		reuse:   t.reuse,
		free:    append([]int(nil), t.free...),
		next:    t.next,
	}
	t.Range(func(e PropertyEntry) bool {
		c.append(e.Key, e.Offset, e.Attrs)
		return true
	})
	return c
}

// enableReuse switches the table to dictionary behaviour: offsets below
// next that no live entry uses are recycled.
func (t *PropertyTable) enableReuse() {
	if t.reuse {
		return
	}
	t.reuse = true
	used := make([]bool, t.next)
	t.Range(func(e PropertyEntry) bool {
		used[e.Offset] = true
		return true
	})
	for off := t.next - 1; off >= 0; off-- {
		if !used[off] {
			t.free = append(t.free, off)
		}
	}
}
