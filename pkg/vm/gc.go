package vm

import (
	"github.com/tliron/commonlog"
)

// Tracer is the collector's root-scanning interface. Trace hands it the
// object's shape and then the object itself, whose values the tracer walks
// with RangeValues.
type Tracer interface {
	VisitShape(s *Shape)
	VisitSlots(o *Object)
}

func (o *Object) Trace(t Tracer) {
	t.VisitShape(o.Shape())
	t.VisitSlots(o)
}

// RangeValues calls fn for every value o holds: the prototype, slot
// values, accessor functions, element values, argument registers and a
// proxy target.
func (o *Object) RangeValues(fn func(v Value) bool) {
	emit := func(v Value) bool {
		if v.isAccessor() {
			pair := v.asAccessor()
			return fn(pair.Get) && fn(pair.Set)
		}
		return fn(v)
	}
	if p := o.Shape().proto; p != nil && !fn(ObjectValue(p)) {
		return
	}
	done := false
	o.RangeSlots(func(_ int, v Value) bool {
		done = !emit(v)
		return !done
	})
	if done {
		return
	}
	if o.elements != nil {
		for _, i := range o.elements.indices() {
			p, _ := o.elements.get(i)
			if !emit(p.value) {
				return
			}
		}
	}
	if o.args != nil {
		for _, v := range o.args.registers {
			if !fn(v) {
				return
			}
		}
	}
	if o.proxy != nil && o.proxy.target != nil {
		fn(ObjectValue(o.proxy.target))
	}
}

// shapeMarker marks shapes of live objects together with their ancestors.
// Shapes an object actually sits on are also recorded in used.
type shapeMarker struct {
	table  *ShapeTable
	marked map[ShapeID]bool
	used   map[ShapeID]bool
}

func (m *shapeMarker) VisitShape(s *Shape) {
	if s.dictionary {
		return
	}
	if m.used != nil {
		m.used[s.id] = true
	}
	m.mark(s)
}

func (m *shapeMarker) mark(s *Shape) {
	for cur := s; cur != nil && !m.marked[cur.id]; {
		m.marked[cur.id] = true
		if cur.kind == TransitionRoot {
			return
		}
		cur = m.table.shapes[cur.parentID]
	}
}

// Live objects are all enumerated through the registry, so slots need no
// traversal here.
func (m *shapeMarker) VisitSlots(*Object) {}

// CollectShapes removes arena shapes that no live object uses and no inline
// cache has seen within the grace period. Kept shapes that no object uses
// drop their property tables; they are rebuilt on demand. It returns the
// number of shapes removed.
func (r *Realm) CollectShapes() int {
	gen := r.generation.Add(1)
	grace := r.opts.ShapeGraceGenerations

	r.liveMu.Lock()
	r.pruneLiveLocked()
	live := make([]*Object, 0, len(r.live))
	for _, wp := range r.live {
		if o := wp.Value(); o != nil {
			live = append(live, o)
		}
	}
	r.liveMu.Unlock()

	t := r.shapes
	t.mu.Lock()
	m := &shapeMarker{
		table:  t,
		marked: make(map[ShapeID]bool, len(t.shapes)),
		used:   make(map[ShapeID]bool),
	}
	for _, o := range live {
		o.Trace(m)
	}
	for _, s := range t.shapes {
		if p := s.pinned.Load(); p != 0 && gen-p <= grace {
			m.mark(s)
		}
	}

	removed := 0
	for k, s := range t.transitions {
		if m.marked[s.id] {
			continue
		}
		delete(t.transitions, k)
		delete(t.shapes, s.id)
		if parent := t.shapes[s.parentID]; parent != nil && s.kind != TransitionRoot {
			parent.fanout.Add(-1)
		}
		removed++
	}
	released := 0
	for id, s := range t.shapes {
		if !m.used[id] && s.kind != TransitionRoot && s.table.Load() != nil {
			s.table.Store(nil)
			released++
		}
	}
	remaining := len(t.shapes)
	t.mu.Unlock()

	if removed > 0 {
		// Cached add transitions may point at removed shapes.
		r.bumpEpoch(r.ObjectPrototype, "shape collection")
	}
	r.stats.collections.Add(1)
	r.stats.shapesCollected.Add(uint64(removed))
	if log.AllowLevel(commonlog.Debug) {
		log.Debugf("shape collection %d: %d live objects, %d shapes removed, %d tables released, %d shapes remain",
			gen, len(live), removed, released, remaining)
	}
	return removed
}
