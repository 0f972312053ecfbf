package vm

import (
	"fmt"
	"sync/atomic"
)

type ObjectID uint64

// ObjectKind selects the internal-method behaviour of an object. The set is
// closed; exotic behaviour is dispatched by switching on it.
type ObjectKind uint8

const (
	KindOrdinary ObjectKind = iota
	KindFunction
	KindArray
	KindTypedArray
	KindArguments
	KindStringWrapper
	KindProxy
)

func (k ObjectKind) String() string {
	switch k {
	case KindOrdinary:
		return "Object"
	case KindFunction:
		return "Function"
	case KindArray:
		return "Array"
	case KindTypedArray:
		return "TypedArray"
	case KindArguments:
		return "Arguments"
	case KindStringWrapper:
		return "String"
	case KindProxy:
		return "Proxy"
	default:
		return fmt.Sprintf("ObjectKind(%d)", k)
	}
}

// NativeFunction is the Go implementation behind a callable object.
type NativeFunction func(r *Realm, this Value, args []Value) (Value, error)

type slotBlock struct {
	slots []Value
}

// Object is a heap object: a shape, inline slots, an optional out-of-line
// slot block, and kind-specific state for exotic objects.
//
// Slot growth publishes the new block before the new shape, so a reader
// that loads the shape and then the block never sees an offset beyond the
// visible capacity.
type Object struct {
	id    ObjectID
	kind  ObjectKind
	realm *Realm
	shape atomic.Pointer[Shape]

	inline    []Value
	outOfLine atomic.Pointer[slotBlock]

	// isPrototype is set once any shape names this object as its prototype.
	// Structural changes to such objects bump the realm epoch.
	isPrototype bool

	call     NativeFunction
	funcName string

	elements *elementStorage // Array and Arguments
	array    *arrayState
	args     *argumentsState
	typed    *typedArrayState
	str      *stringState
	proxy    *proxyState
}

func (o *Object) ID() ObjectID     { return o.id }
func (o *Object) Kind() ObjectKind { return o.kind }
func (o *Object) Realm() *Realm    { return o.realm }

// Shape returns the object's current shape. Safe for concurrent readers.
func (o *Object) Shape() *Shape { return o.shape.Load() }

// Prototype returns the prototype recorded in the shape. Proxies report
// nil here; use Realm.GetPrototypeOf for the full [[GetPrototypeOf]].
func (o *Object) Prototype() *Object { return o.Shape().proto }

func (o *Object) IsDictionary() bool { return o.Shape().dictionary }
func (o *Object) IsExtensible() bool { return o.Shape().extensible }
func (o *Object) IsPrototype() bool  { return o.isPrototype }
func (o *Object) IsCallable() bool   { return o.call != nil }

func (o *Object) String() string {
	switch o.kind {
	case KindFunction:
		return fmt.Sprintf("function %s() { [native code] }", o.funcName)
	case KindTypedArray:
		return "[object " + o.typed.kind.String() + "]"
	default:
		return "[object " + o.kind.String() + "]"
	}
}

func (o *Object) markPrototype() {
	o.isPrototype = true
}

// --- slot storage ---

// Layout returns the shape and slot capacity as a concurrent reader sees
// them. The capacity always covers the shape's slots.
func (o *Object) Layout() (*Shape, int) {
	s := o.shape.Load()
	return s, o.capacity()
}

func (o *Object) capacity() int {
	n := len(o.inline)
	if b := o.outOfLine.Load(); b != nil {
		n += len(b.slots)
	}
	return n
}

func (o *Object) slot(offset int) Value {
	if offset < len(o.inline) {
		return o.inline[offset]
	}
	return o.outOfLine.Load().slots[offset-len(o.inline)]
}

func (o *Object) setSlot(offset int, v Value) {
	if offset < len(o.inline) {
		o.inline[offset] = v
	} else {
		o.outOfLine.Load().slots[offset-len(o.inline)] = v
	}
	if v.typ == TypeObject || v.typ == TypeAccessor {
		o.realm.barrier.Barrier(o, offset)
	}
}

// ensureCapacity grows the out-of-line block so total slots fit. The new
// block is fully populated before it is published.
func (o *Object) ensureCapacity(total int) {
	need := total - len(o.inline)
	if need <= 0 {
		return
	}
	old := o.outOfLine.Load()
	have := 0
	if old != nil {
		have = len(old.slots)
	}
	if need <= have {
		return
	}
	slots := o.realm.alloc.AllocateSlots(growOutOfLine(have, need))
	if old != nil {
		copy(slots, old.slots)
	}
	o.outOfLine.Store(&slotBlock{slots: slots})
}

// RangeSlots calls fn for every slot in use, in offset order.
func (o *Object) RangeSlots(fn func(offset int, v Value) bool) {
	n := min(o.Shape().SlotCount(), o.capacity())
	for i := 0; i < n; i++ {
		if !fn(i, o.slot(i)) {
			return
		}
	}
}

// --- ordinary own properties ---

func (o *Object) ordinaryGetOwn(key PropertyKey) (ownProperty, bool) {
	e, ok := o.Shape().Lookup(key)
	if !ok {
		return ownProperty{}, false
	}
	return ownProperty{value: o.slot(e.Offset), attrs: e.Attrs}, true
}

// ordinaryDefine is OrdinaryDefineOwnProperty over the shape-backed store.
func (o *Object) ordinaryDefine(key PropertyKey, desc PropertyDescriptor) (bool, error) {
	s := o.Shape()
	e, exists := s.Lookup(key)
	var cur *ownProperty
	if exists {
		cur = &ownProperty{value: o.slot(e.Offset), attrs: e.Attrs}
	}
	next, ok := validateAndApply(s.extensible, cur, desc)
	if !ok {
		return false, nil
	}
	if !exists {
		return true, o.addOwn(key, next.value, next.attrs)
	}
	if next.attrs != e.Attrs {
		o.reconfigureOwn(e, next.attrs)
	}
	o.setSlot(e.Offset, next.value)
	return true, nil
}

func (o *Object) beforeStructureChange(op string, key PropertyKey) {
	if o.isPrototype {
		o.realm.bumpEpoch(o, op+" "+key.String())
	}
}

// addOwn appends a new property, following or creating an Add transition.
func (o *Object) addOwn(key PropertyKey, v Value, attrs Attributes) error {
	r := o.realm
	if o.Shape().PropertyCount() >= r.opts.MaxPropertyCount {
		return r.rangeError("too many properties on object (limit %d)", r.opts.MaxPropertyCount)
	}
	o.addBuiltin(key, v, attrs)
	return nil
}

// addBuiltin appends without the MaxPropertyCount check. Constructors use it
// for the properties an object is created with.
func (o *Object) addBuiltin(key PropertyKey, v Value, attrs Attributes) {
	r := o.realm
	s := o.Shape()
	count := s.PropertyCount()
	o.beforeStructureChange("add", key)
	if !s.dictionary && count >= r.opts.MaxUniformProperties {
		s = o.toDictionary("property count")
	}
	if !s.dictionary {
		if next := r.shapes.addProperty(s, key, attrs); next != nil {
			o.ensureCapacity(next.Capacity())
			o.setSlot(next.offset, v)
			o.shape.Store(next)
			return
		}
		s = o.toDictionary("transition fan-out")
	}
	off := s.dictNextOffset()
	o.ensureCapacity(off + 1)
	o.setSlot(off, v)
	s.dictInsert(key, attrs)
}

// reconfigureOwn changes the attributes of an existing property in place.
func (o *Object) reconfigureOwn(e PropertyEntry, attrs Attributes) {
	r := o.realm
	s := o.Shape()
	o.beforeStructureChange("reconfigure", e.Key)
	if !s.dictionary && s.churn >= r.opts.DictionaryChurnThreshold {
		s = o.toDictionary("redefinition churn")
	}
	if !s.dictionary {
		if next := r.shapes.reconfigureProperty(s, e, attrs); next != nil {
			o.shape.Store(next)
			return
		}
		s = o.toDictionary("transition fan-out")
	}
	s.dictUpdate(e.Key, attrs)
}

// removeOwn deletes an existing property. Uniform objects leave a hole at
// the old offset; dictionary objects recycle it.
func (o *Object) removeOwn(e PropertyEntry) {
	r := o.realm
	s := o.Shape()
	o.beforeStructureChange("delete", e.Key)
	if !s.dictionary && s.churn >= r.opts.DictionaryChurnThreshold {
		s = o.toDictionary("deletion churn")
	}
	if !s.dictionary {
		if next := r.shapes.removeProperty(s, e); next != nil {
			o.shape.Store(next)
			o.setSlot(e.Offset, Undefined)
			return
		}
		s = o.toDictionary("transition fan-out")
	}
	s.dictRemove(e.Key)
	o.setSlot(e.Offset, Undefined)
}

func (o *Object) setPrototypeRaw(proto *Object) {
	r := o.realm
	s := o.Shape()
	o.beforeStructureChange("setPrototypeOf", PropertyKey{})
	if proto != nil {
		proto.markPrototype()
	}
	if !s.dictionary && s.churn < r.opts.DictionaryChurnThreshold {
		if next := r.shapes.setPrototype(s, proto); next != nil {
			o.shape.Store(next)
			return
		}
	}
	// Dictionary shapes are private, so a prototype change gets a fresh
	// private shape rather than a transition.
	d := r.shapes.newDictionary(s, proto, s.extensible)
	if !s.dictionary {
		r.stats.dictionaryPromoted.Add(1)
		log.Debugf("object #%d promoted to dictionary mode (prototype churn)", o.id)
	}
	o.shape.Store(d)
}

func (o *Object) preventExtensionsRaw() {
	r := o.realm
	s := o.Shape()
	if !s.extensible {
		return
	}
	o.beforeStructureChange("preventExtensions", PropertyKey{})
	if !s.dictionary {
		if next := r.shapes.preventExtensions(s); next != nil {
			o.shape.Store(next)
			return
		}
		s = o.toDictionary("transition fan-out")
	}
	o.shape.Store(r.shapes.newDictionary(s, s.proto, false))
}

// toDictionary moves the object to a private dictionary shape. There is no
// way back.
func (o *Object) toDictionary(reason string) *Shape {
	s := o.Shape()
	if s.dictionary {
		return s
	}
	d := o.realm.shapes.newDictionary(s, s.proto, s.extensible)
	o.shape.Store(d)
	o.realm.stats.dictionaryPromoted.Add(1)
	log.Debugf("object #%d promoted to dictionary mode (%s)", o.id, reason)
	return d
}

// MakeDictionary forces dictionary mode, as an engine would for objects
// used as hash maps.
func (o *Object) MakeDictionary() {
	o.toDictionary("requested")
}
