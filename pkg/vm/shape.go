package vm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// ShapeID addresses a shape in its realm's ShapeTable. Zero is never a
// valid shape and doubles as "no parent".
type ShapeID uint32

type TransitionKind uint8

const (
	TransitionRoot TransitionKind = iota
	TransitionAdd
	TransitionReconfigure
	TransitionRemove
	TransitionSetPrototype
	TransitionPreventExtensions
)

func (k TransitionKind) String() string {
	switch k {
	case TransitionRoot:
		return "root"
	case TransitionAdd:
		return "add"
	case TransitionReconfigure:
		return "reconfigure"
	case TransitionRemove:
		return "remove"
	case TransitionSetPrototype:
		return "setproto"
	case TransitionPreventExtensions:
		return "preventext"
	default:
		return fmt.Sprintf("transition(%d)", k)
	}
}

const initialOutOfLineCapacity = 4

// Shape describes the layout of every object that has it: which keys exist,
// at which slot offsets, with which attributes, plus the prototype and
// extensibility. Uniform shapes are shared and immutable once published;
// a dictionary shape belongs to a single object and its table changes in
// place under mu.
type Shape struct {
	id       ShapeID
	parentID ShapeID
	kind     TransitionKind
	key      PropertyKey
	attrs    Attributes
	offset   int // slot touched by the transition, -1 when none

	proto             *Object
	inlineCapacity    int
	outOfLineCapacity int
	slotCount         int
	propertyCount     int
	churn             int
	extensible        bool
	dictionary        bool

	table  atomic.Pointer[PropertyTable]
	mu     sync.RWMutex
	fanout atomic.Int32
	pinned atomic.Uint64 // last collection generation an inline cache saw this shape
	owner  *ShapeTable
}

func (s *Shape) ID() ShapeID                { return s.id }
func (s *Shape) ParentID() ShapeID          { return s.parentID }
func (s *Shape) TransitionKind() TransitionKind { return s.kind }
func (s *Shape) TransitionKey() PropertyKey { return s.key }
func (s *Shape) TransitionAttrs() Attributes { return s.attrs }
func (s *Shape) Prototype() *Object         { return s.proto }
func (s *Shape) InlineCapacity() int        { return s.inlineCapacity }
func (s *Shape) IsDictionary() bool         { return s.dictionary }
func (s *Shape) IsExtensible() bool         { return s.extensible }
func (s *Shape) Churn() int                 { return s.churn }
func (s *Shape) Fanout() int                { return int(s.fanout.Load()) }

// OutOfLineCapacity is the out-of-line block size objects of this shape
// need. Dictionary objects size their block on demand and report 0.
func (s *Shape) OutOfLineCapacity() int { return s.outOfLineCapacity }

// Capacity is the number of slots an object of this shape must have.
func (s *Shape) Capacity() int {
	if s.dictionary {
		return max(s.inlineCapacity, s.SlotCount())
	}
	return s.inlineCapacity + s.outOfLineCapacity
}

// SlotCount is one past the highest slot offset in use.
func (s *Shape) SlotCount() int {
	if s.dictionary {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.table.Load().SlotCount()
	}
	return s.slotCount
}

// PropertyCount is the number of live properties.
func (s *Shape) PropertyCount() int {
	if s.dictionary {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.table.Load().Len()
	}
	return s.propertyCount
}

// Lookup finds key in the shape's property table, materialising the table
// on first use. Safe for concurrent readers.
func (s *Shape) Lookup(key PropertyKey) (PropertyEntry, bool) {
	if s.dictionary {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.table.Load().Lookup(key)
	}
	return s.propertyTable().Lookup(key)
}

// Properties returns the live entries in insertion order.
func (s *Shape) Properties() []PropertyEntry {
	if s.dictionary {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	tbl := s.propertyTable()
	out := make([]PropertyEntry, 0, tbl.Len())
	tbl.Range(func(e PropertyEntry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// IsMaterialized reports whether the property table is currently built.
func (s *Shape) IsMaterialized() bool { return s.table.Load() != nil }

func (s *Shape) propertyTable() *PropertyTable {
	if t := s.table.Load(); t != nil {
		return t
	}
	t := s.owner.materialize(s)
	if !s.table.CompareAndSwap(nil, t) {
		return s.table.Load()
	}
	return t
}

// snapshotTable returns a private copy of the current table.
func (s *Shape) snapshotTable() *PropertyTable {
	if s.dictionary {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	return s.propertyTable().Clone()
}

func (s *Shape) String() string {
	var b strings.Builder
	mode := "uniform"
	if s.dictionary {
		mode = "dictionary"
	}
	fmt.Fprintf(&b, "Shape#%d(%s){", s.id, mode)
	for i, e := range s.Properties() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s@%d:%s", e.Key, e.Offset, e.Attrs)
	}
	b.WriteString("}")
	return b.String()
}

// --- dictionary mutation; mutator only ---

func (s *Shape) dictNextOffset() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Load().NextOffset()
}

func (s *Shape) dictInsert(key PropertyKey, attrs Attributes) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Load().Insert(key, attrs)
}

func (s *Shape) dictUpdate(key PropertyKey, attrs Attributes) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table.Load().Update(key, attrs)
}

func (s *Shape) dictRemove(key PropertyKey) (PropertyEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Load().Remove(key)
}

// --- ShapeTable ---

type transitionKey struct {
	parent   ShapeID
	kind     TransitionKind
	key      PropertyKey
	attrs    Attributes
	proto    *Object
	capacity int
}

// ShapeTable is the realm-wide shape arena and transition table.
// Lookups take the read lock; creating a transition re-checks under the
// write lock so concurrent requests for the same transition agree on one
// shape.
type ShapeTable struct {
	mu          sync.RWMutex
	shapes      map[ShapeID]*Shape
	transitions map[transitionKey]*Shape
	nextID      atomic.Uint32
	maxFanout   int
	stats       *counters
}

func newShapeTable(maxFanout int, stats *counters) *ShapeTable {
	return &ShapeTable{
		shapes:      make(map[ShapeID]*Shape),
		transitions: make(map[transitionKey]*Shape),
		maxFanout:   maxFanout,
		stats:       stats,
	}
}

// Get returns the shape with the given id, or nil if it was collected or
// is a dictionary shape.
func (t *ShapeTable) Get(id ShapeID) *Shape {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.shapes[id]
}

// Len returns the number of shapes in the arena.
func (t *ShapeTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.shapes)
}

// TransitionCount returns the number of recorded transitions.
func (t *ShapeTable) TransitionCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.transitions)
}

// Shapes returns the arena contents ordered by id.
func (t *ShapeTable) Shapes() []*Shape {
	t.mu.RLock()
	out := make([]*Shape, 0, len(t.shapes))
	for _, s := range t.shapes {
		out = append(out, s)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// lookupOrCreate returns the shape recorded for k, building it when absent.
// It returns nil when parent already has the maximum number of outgoing
// transitions.
func (t *ShapeTable) lookupOrCreate(parent *Shape, k transitionKey, build func() *Shape) *Shape {
	t.mu.RLock()
	s, ok := t.transitions[k]
	t.mu.RUnlock()
	if ok {
		t.stats.transitionHits.Add(1)
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.transitions[k]; ok {
		t.stats.transitionHits.Add(1)
		return s
	}
	if parent != nil && t.maxFanout > 0 && int(parent.fanout.Load()) >= t.maxFanout {
		return nil
	}
	s = build()
	s.id = ShapeID(t.nextID.Add(1))
	s.owner = t
	t.shapes[s.id] = s
	t.transitions[k] = s
	if parent != nil {
		parent.fanout.Add(1)
	}
	t.stats.transitionMisses.Add(1)
	t.stats.shapesCreated.Add(1)
	return s
}

// Root returns the shared empty shape for objects with the given
// prototype and inline capacity.
func (t *ShapeTable) Root(proto *Object, inlineCapacity int) *Shape {
	k := transitionKey{kind: TransitionRoot, proto: proto, capacity: inlineCapacity}
	return t.lookupOrCreate(nil, k, func() *Shape {
		s := &Shape{
			kind:           TransitionRoot,
			offset:         -1,
			proto:          proto,
			inlineCapacity: inlineCapacity,
			extensible:     true,
		}
		s.table.Store(NewPropertyTable(0))
		return s
	})
}

func (s *Shape) derive(kind TransitionKind) *Shape {
	return &Shape{
		parentID:          s.id,
		kind:              kind,
		offset:            -1,
		proto:             s.proto,
		inlineCapacity:    s.inlineCapacity,
		outOfLineCapacity: s.outOfLineCapacity,
		slotCount:         s.slotCount,
		propertyCount:     s.propertyCount,
		churn:             s.churn,
		extensible:        s.extensible,
	}
}

func growOutOfLine(current, needed int) int {
	c := current
	if c == 0 {
		c = initialOutOfLineCapacity
	}
	for c < needed {
		c *= 2
	}
	return c
}

func (t *ShapeTable) addProperty(s *Shape, key PropertyKey, attrs Attributes) *Shape {
	k := transitionKey{parent: s.id, kind: TransitionAdd, key: key, attrs: attrs}
	return t.lookupOrCreate(s, k, func() *Shape {
		n := s.derive(TransitionAdd)
		n.key, n.attrs, n.offset = key, attrs, s.slotCount
		n.slotCount = s.slotCount + 1
		n.propertyCount = s.propertyCount + 1
		if n.slotCount > s.inlineCapacity+s.outOfLineCapacity {
			n.outOfLineCapacity = growOutOfLine(s.outOfLineCapacity, n.slotCount-s.inlineCapacity)
		}
		return n
	})
}

func (t *ShapeTable) reconfigureProperty(s *Shape, e PropertyEntry, attrs Attributes) *Shape {
	k := transitionKey{parent: s.id, kind: TransitionReconfigure, key: e.Key, attrs: attrs}
	return t.lookupOrCreate(s, k, func() *Shape {
		n := s.derive(TransitionReconfigure)
		n.key, n.attrs, n.offset = e.Key, attrs, e.Offset
		n.churn++
		return n
	})
}

func (t *ShapeTable) removeProperty(s *Shape, e PropertyEntry) *Shape {
	k := transitionKey{parent: s.id, kind: TransitionRemove, key: e.Key}
	return t.lookupOrCreate(s, k, func() *Shape {
		n := s.derive(TransitionRemove)
		n.key, n.offset = e.Key, e.Offset
		n.propertyCount--
		n.churn++
		return n
	})
}

func (t *ShapeTable) setPrototype(s *Shape, proto *Object) *Shape {
	k := transitionKey{parent: s.id, kind: TransitionSetPrototype, proto: proto}
	return t.lookupOrCreate(s, k, func() *Shape {
		n := s.derive(TransitionSetPrototype)
		n.proto = proto
		n.churn++
		return n
	})
}

func (t *ShapeTable) preventExtensions(s *Shape) *Shape {
	k := transitionKey{parent: s.id, kind: TransitionPreventExtensions}
	return t.lookupOrCreate(s, k, func() *Shape {
		n := s.derive(TransitionPreventExtensions)
		n.extensible = false
		return n
	})
}

// newDictionary builds a private dictionary shape holding from's
// properties. It is never recorded in the arena or the transition table.
func (t *ShapeTable) newDictionary(from *Shape, proto *Object, extensible bool) *Shape {
	tbl := from.snapshotTable()
	tbl.enableReuse()
	s := &Shape{
		id:             ShapeID(t.nextID.Add(1)),
		kind:           from.kind,
		offset:         -1,
		proto:          proto,
		inlineCapacity: from.inlineCapacity,
		churn:          from.churn,
		extensible:     extensible,
		dictionary:     true,
		owner:          t,
	}
	s.table.Store(tbl)
	t.stats.dictionaryShapes.Add(1)
	return s
}

// materialize rebuilds s's property table by replaying transitions from
// the nearest ancestor that still has a table. Later transitions for the
// same key win.
func (t *ShapeTable) materialize(s *Shape) *PropertyTable {
	var chain []*Shape
	var base *PropertyTable
	for cur := s; ; {
		if tbl := cur.table.Load(); tbl != nil {
			base = tbl
			break
		}
		chain = append(chain, cur)
		parent := t.Get(cur.parentID)
		if parent == nil {
			panic(fmt.Sprintf("vm: ancestor %d of shape %d is not in the arena", cur.parentID, s.id))
		}
		cur = parent
	}

	tbl := base.Clone()
	for i := len(chain) - 1; i >= 0; i-- {
		step := chain[i]
		switch step.kind {
		case TransitionAdd, TransitionReconfigure:
			tbl.insertAt(step.key, step.offset, step.attrs)
		case TransitionRemove:
			tbl.Remove(step.key)
		}
	}
	t.stats.tablesMaterialized.Add(1)
	return tbl
}
