package vm

import (
	"weak"
)

// WeakMap maps objects to values without keeping the keys alive. Entries
// whose key has been reclaimed disappear on the next prune.
//
// Values are held strongly, so a value that refers back to its own key
// keeps that entry alive.
type WeakMap struct {
	entries map[weak.Pointer[Object]]Value
	sets    int
}

func NewWeakMap() *WeakMap {
	return &WeakMap{entries: make(map[weak.Pointer[Object]]Value)}
}

func (m *WeakMap) Set(key *Object, v Value) {
	m.entries[weak.Make(key)] = v
	if m.sets++; m.sets >= 2*len(m.entries)+64 {
		m.Prune()
	}
}

func (m *WeakMap) Get(key *Object) (Value, bool) {
	v, ok := m.entries[weak.Make(key)]
	if !ok {
		return Undefined, false
	}
	return v, true
}

func (m *WeakMap) Has(key *Object) bool {
	_, ok := m.entries[weak.Make(key)]
	return ok
}

func (m *WeakMap) Delete(key *Object) bool {
	wp := weak.Make(key)
	if _, ok := m.entries[wp]; !ok {
		return false
	}
	delete(m.entries, wp)
	return true
}

// Prune drops entries whose keys were collected and returns how many
// remain.
func (m *WeakMap) Prune() int {
	for wp := range m.entries {
		if wp.Value() == nil {
			delete(m.entries, wp)
		}
	}
	m.sets = 0
	return len(m.entries)
}

// Len counts entries, including ones not yet pruned.
func (m *WeakMap) Len() int { return len(m.entries) }

// WeakSet is a set of objects held weakly.
type WeakSet struct {
	m WeakMap
}

func NewWeakSet() *WeakSet {
	return &WeakSet{m: WeakMap{entries: make(map[weak.Pointer[Object]]Value)}}
}

func (s *WeakSet) Add(key *Object)         { s.m.Set(key, True) }
func (s *WeakSet) Has(key *Object) bool    { return s.m.Has(key) }
func (s *WeakSet) Delete(key *Object) bool { return s.m.Delete(key) }
func (s *WeakSet) Prune() int              { return s.m.Prune() }
func (s *WeakSet) Len() int                { return s.m.Len() }
