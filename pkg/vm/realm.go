package vm

import (
	"fmt"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/tliron/commonlog"

	errorsPkg "structura/pkg/errors"
)

var log = commonlog.GetLogger("structura.vm")

// Options are the tunable limits of a realm.
type Options struct {
	// InlineCapacity is the number of slots stored inside each object.
	InlineCapacity int
	// MaxPolymorphicEntries is how many shapes an inline cache tracks
	// before going megamorphic (2..8).
	MaxPolymorphicEntries int
	// DictionaryChurnThreshold is how many deletions and redefinitions a
	// shape lineage may accumulate before the object becomes a dictionary.
	DictionaryChurnThreshold int
	// MaxUniformProperties is the largest property count kept on shared
	// shapes.
	MaxUniformProperties int
	// MaxTransitionFanout bounds the number of outgoing transitions of one
	// shape; objects that would exceed it become dictionaries.
	MaxTransitionFanout int
	// MaxPropertyCount is the hard per-object limit; exceeding it is a
	// RangeError.
	MaxPropertyCount int
	// MaxPrototypeChainDepth bounds prototype walks.
	MaxPrototypeChainDepth int
	// ShapeGraceGenerations keeps shapes referenced by inline caches alive
	// for this many collections after their last use.
	ShapeGraceGenerations uint64
}

// MaxInlineCapacity bounds the slots stored inside an object.
const MaxInlineCapacity = 64

func DefaultOptions() Options {
	return Options{
		InlineCapacity:           4,
		MaxPolymorphicEntries:    DefaultPolymorphicLimit,
		DictionaryChurnThreshold: 16,
		MaxUniformProperties:     128,
		MaxTransitionFanout:      64,
		MaxPropertyCount:         1 << 20,
		MaxPrototypeChainDepth:   4096,
		ShapeGraceGenerations:    2,
	}
}

// Validate rejects option values the engine cannot honour.
func (o Options) Validate() error {
	switch {
	case o.InlineCapacity < 0 || o.InlineCapacity > MaxInlineCapacity:
		return fmt.Errorf("inline capacity %d out of range [0, %d]", o.InlineCapacity, MaxInlineCapacity)
	case o.MaxPolymorphicEntries < MinPolymorphicLimit || o.MaxPolymorphicEntries > MaxPolymorphicLimit:
		return fmt.Errorf("polymorphic limit %d out of range [%d, %d]", o.MaxPolymorphicEntries, MinPolymorphicLimit, MaxPolymorphicLimit)
	case o.DictionaryChurnThreshold < 1:
		return fmt.Errorf("dictionary churn threshold must be positive, got %d", o.DictionaryChurnThreshold)
	case o.MaxUniformProperties < 1:
		return fmt.Errorf("max uniform properties must be positive, got %d", o.MaxUniformProperties)
	case o.MaxTransitionFanout < 1:
		return fmt.Errorf("max transition fan-out must be positive, got %d", o.MaxTransitionFanout)
	case o.MaxPropertyCount < o.MaxUniformProperties:
		return fmt.Errorf("max property count %d is below max uniform properties %d", o.MaxPropertyCount, o.MaxUniformProperties)
	case o.MaxPrototypeChainDepth < 1:
		return fmt.Errorf("max prototype chain depth must be positive, got %d", o.MaxPrototypeChainDepth)
	}
	return nil
}

// Realm owns a shape arena, the prototype epoch and the intrinsic
// prototypes. A realm has a single mutator goroutine; other goroutines may
// read shapes, tables and object layouts concurrently.
type Realm struct {
	opts    Options
	shapes  *ShapeTable
	stats   counters
	alloc   Allocator
	barrier WriteBarrier

	epoch        atomic.Uint64
	nextObjectID atomic.Uint64
	generation   atomic.Uint64
	callDepth    int

	liveMu   sync.Mutex
	live     []weak.Pointer[Object]
	lastLive int

	ObjectPrototype     *Object
	FunctionPrototype   *Object
	ArrayPrototype      *Object
	StringPrototype     *Object
	TypedArrayPrototype *Object
	ArgumentsPrototype  *Object
}

type RealmOption func(*Realm)

func WithOptions(opts Options) RealmOption {
	return func(r *Realm) { r.opts = opts }
}

func WithAllocator(a Allocator) RealmOption {
	return func(r *Realm) { r.alloc = a }
}

func WithWriteBarrier(b WriteBarrier) RealmOption {
	return func(r *Realm) { r.barrier = b }
}

// NewRealm creates a realm with its intrinsic prototypes.
func NewRealm(options ...RealmOption) *Realm {
	r := &Realm{opts: DefaultOptions()}
	for _, opt := range options {
		opt(r)
	}
	if r.opts.MaxPolymorphicEntries == 0 {
		r.opts.MaxPolymorphicEntries = DefaultPolymorphicLimit
	}
	r.opts.MaxPolymorphicEntries = clampPolymorphicLimit(r.opts.MaxPolymorphicEntries)
	if r.alloc == nil {
		r.alloc = NewSlotHeap()
	}
	if r.barrier == nil {
		r.barrier = nopBarrier{}
	}
	r.shapes = newShapeTable(r.opts.MaxTransitionFanout, &r.stats)
	// Generation 0 marks shapes that were never cached.
	r.generation.Store(1)

	r.ObjectPrototype = r.NewObject(nil)
	r.FunctionPrototype = r.NewObject(r.ObjectPrototype)
	r.ArrayPrototype = r.NewObject(r.ObjectPrototype)
	r.StringPrototype = r.NewObject(r.ObjectPrototype)
	r.TypedArrayPrototype = r.NewObject(r.ObjectPrototype)
	r.ArgumentsPrototype = r.ObjectPrototype
	return r
}

func (r *Realm) Options() Options { return r.opts }

// Shapes returns the realm's shape arena.
func (r *Realm) Shapes() *ShapeTable { return r.shapes }

// Epoch returns the current prototype epoch.
func (r *Realm) Epoch() uint64 { return r.epoch.Load() }

// Stats returns a snapshot of the realm's counters.
func (r *Realm) Stats() Stats {
	s := r.stats.snapshot()
	s.LiveShapes = uint64(r.shapes.Len())
	if h, ok := r.alloc.(*SlotHeap); ok {
		s.SlotsAllocated = uint64(h.Slots())
	}
	return s
}

// bumpEpoch invalidates every cached lookup that depends on a prototype.
// It must run before the structural change it guards becomes visible.
func (r *Realm) bumpEpoch(o *Object, why string) {
	e := r.epoch.Add(1)
	r.stats.epochBumps.Add(1)
	if log.AllowLevel(commonlog.Debug) {
		log.Debugf("prototype epoch %d: %s on object #%d", e, why, o.id)
	}
}

func (r *Realm) allocObject(kind ObjectKind, proto *Object, inlineCapacity int) *Object {
	o := &Object{
		id:    ObjectID(r.nextObjectID.Add(1)),
		kind:  kind,
		realm: r,
	}
	if inlineCapacity > 0 {
		o.inline = r.alloc.AllocateSlots(inlineCapacity)
	}
	if proto != nil {
		proto.markPrototype()
	}
	o.shape.Store(r.shapes.Root(proto, inlineCapacity))
	r.register(o)
	r.stats.objectsCreated.Add(1)
	return o
}

func (r *Realm) register(o *Object) {
	r.liveMu.Lock()
	defer r.liveMu.Unlock()
	r.live = append(r.live, weak.Make(o))
	if len(r.live) > 2*r.lastLive+1024 {
		r.pruneLiveLocked()
	}
}

func (r *Realm) pruneLiveLocked() {
	n := 0
	for _, wp := range r.live {
		if wp.Value() != nil {
			r.live[n] = wp
			n++
		}
	}
	clear(r.live[n:])
	r.live = r.live[:n]
	r.lastLive = n
}

// NewObject creates an ordinary object with the given prototype (nil for
// none) and the realm's default inline capacity.
func (r *Realm) NewObject(proto *Object) *Object {
	return r.allocObject(KindOrdinary, proto, r.opts.InlineCapacity)
}

// NewObjectWithCapacity creates an ordinary object with a specific inline
// capacity, as an allocation site that knows its final size would.
func (r *Realm) NewObjectWithCapacity(proto *Object, inlineCapacity int) (*Object, error) {
	if inlineCapacity < 0 || inlineCapacity > MaxInlineCapacity {
		return nil, r.rangeError("inline capacity %d out of range [0, %d]", inlineCapacity, MaxInlineCapacity)
	}
	return r.allocObject(KindOrdinary, proto, inlineCapacity), nil
}

// NewPlainObject creates an ordinary object inheriting from ObjectPrototype.
func (r *Realm) NewPlainObject() *Object {
	return r.NewObject(r.ObjectPrototype)
}

func (r *Realm) typeError(format string, args ...any) error {
	return errorsPkg.NewTypeError(format, args...)
}

func (r *Realm) rangeError(format string, args ...any) error {
	return errorsPkg.NewRangeError(format, args...)
}
