package vm

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestShapeSharing(t *testing.T) {
	r := NewRealm()
	a, b := r.NewPlainObject(), r.NewPlainObject()
	if a.Shape() != b.Shape() {
		t.Fatalf("fresh objects with one prototype should share the root shape")
	}
	mustSet(t, r, a, "x", NumberValue(1))
	mustSet(t, r, a, "y", NumberValue(2))
	mustSet(t, r, b, "x", NumberValue(3))
	mustSet(t, r, b, "y", NumberValue(4))
	if a.Shape() != b.Shape() {
		t.Errorf("same insertion order should yield the same shape: %s vs %s", a.Shape(), b.Shape())
	}

	c := r.NewPlainObject()
	mustSet(t, r, c, "y", NumberValue(1))
	mustSet(t, r, c, "x", NumberValue(2))
	if c.Shape() == a.Shape() {
		t.Errorf("different insertion order must give a different shape")
	}

	// Overwriting a writable property keeps the shape.
	s := a.Shape()
	mustSet(t, r, a, "x", NumberValue(10))
	if a.Shape() != s {
		t.Errorf("value replacement should not change the shape")
	}
	expectNumber(t, mustGet(t, r, a, "x"), 10)
	expectNumber(t, mustGet(t, r, b, "x"), 3)
}

func TestShapeRootsPerPrototype(t *testing.T) {
	r := NewRealm()
	p := r.NewPlainObject()
	a := r.NewObject(p)
	b := r.NewPlainObject()
	if a.Shape() == b.Shape() {
		t.Errorf("objects with different prototypes need different roots")
	}
	if a.Shape().TransitionKind() != TransitionRoot || a.Shape().Prototype() != p {
		t.Errorf("unexpected root shape %s", a.Shape())
	}
	if !p.IsPrototype() {
		t.Errorf("an object used as a prototype should be marked")
	}
}

func TestShapeTransitionChain(t *testing.T) {
	r := NewRealm()
	o := r.NewPlainObject()
	root := o.Shape()
	mustSet(t, r, o, "a", NumberValue(1))
	mustSet(t, r, o, "b", NumberValue(2))
	s := o.Shape()
	if s.TransitionKind() != TransitionAdd || s.TransitionKey() != k("b") {
		t.Errorf("last transition should add b, got %s %s", s.TransitionKind(), s.TransitionKey())
	}
	parent := r.Shapes().Get(s.ParentID())
	if parent == nil || parent.ParentID() != root.ID() {
		t.Fatalf("parent chain broken")
	}
	if s.PropertyCount() != 2 || s.SlotCount() != 2 {
		t.Errorf("PropertyCount=%d SlotCount=%d", s.PropertyCount(), s.SlotCount())
	}
}

func TestShapeReconfigureKeepsOffset(t *testing.T) {
	r := NewRealm()
	o := r.NewPlainObject()
	mustSet(t, r, o, "a", NumberValue(1))
	mustSet(t, r, o, "b", NumberValue(2))
	before, _ := o.Shape().Lookup(k("a"))

	_, err := r.DefineOwnProperty(o, k("a"), PropertyDescriptor{Writable: FlagFalse}, true)
	if err != nil {
		t.Fatalf("DefineOwnProperty failed: %v", err)
	}
	s := o.Shape()
	if s.TransitionKind() != TransitionReconfigure {
		t.Errorf("expected a Reconfigure transition, got %s", s.TransitionKind())
	}
	after, _ := s.Lookup(k("a"))
	if after.Offset != before.Offset || after.Attrs.Writable() {
		t.Errorf("reconfigure: before %+v after %+v", before, after)
	}
	keys, _ := r.OwnPropertyKeys(o, KeysAll)
	if diff := cmp.Diff([]string{"a", "b"}, keyNames(keys)); diff != "" {
		t.Errorf("reconfigure must not move the key (-want +got):\n%s", diff)
	}
}

func TestShapeDeleteTransition(t *testing.T) {
	r := NewRealm()
	o := r.NewPlainObject()
	for _, name := range []string{"a", "b", "c"} {
		mustSet(t, r, o, name, NumberValue(1))
	}
	if _, err := r.DeleteById(o, k("b"), true); err != nil {
		t.Fatal(err)
	}
	s := o.Shape()
	if s.IsDictionary() || s.TransitionKind() != TransitionRemove {
		t.Errorf("a single delete should use a Remove transition, got %s", s)
	}
	if s.PropertyCount() != 2 || s.SlotCount() != 3 {
		t.Errorf("PropertyCount=%d SlotCount=%d, want 2/3", s.PropertyCount(), s.SlotCount())
	}

	// Another object following the same path shares the post-delete shape.
	o2 := r.NewPlainObject()
	for _, name := range []string{"a", "b", "c"} {
		mustSet(t, r, o2, name, NumberValue(2))
	}
	r.DeleteById(o2, k("b"), true)
	if o2.Shape() != s {
		t.Errorf("delete transitions should be shared")
	}
}

func TestDictionaryIrreversible(t *testing.T) {
	opts := DefaultOptions()
	opts.DictionaryChurnThreshold = 4
	r := NewRealm(WithOptions(opts))
	o := r.NewPlainObject()
	for i := 0; i < 10; i++ {
		mustSet(t, r, o, "x", NumberValue(float64(i)))
		if _, err := r.DeleteById(o, k("x"), true); err != nil {
			t.Fatal(err)
		}
	}
	if !o.IsDictionary() {
		t.Fatalf("churn should have promoted the object to dictionary mode")
	}
	if r.Stats().DictionaryPromotions == 0 {
		t.Errorf("promotion should be counted")
	}
	d := o.Shape()
	if r.Shapes().Get(d.ID()) != nil {
		t.Errorf("dictionary shapes must not be published in the arena")
	}
	// Many later additions do not bring it back.
	for _, name := range []string{"a", "b", "c", "d"} {
		mustSet(t, r, o, name, NumberValue(1))
	}
	if !o.IsDictionary() {
		t.Errorf("dictionary mode must be irreversible")
	}
	keys, _ := r.OwnPropertyKeys(o, KeysAll)
	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, keyNames(keys)); diff != "" {
		t.Errorf("dictionary keys (-want +got):\n%s", diff)
	}
	expectNumber(t, mustGet(t, r, o, "c"), 1)
}

func TestDictionaryReusesOffsets(t *testing.T) {
	r := NewRealm()
	o := r.NewPlainObject()
	for _, name := range []string{"a", "b", "c"} {
		mustSet(t, r, o, name, NumberValue(1))
	}
	o.MakeDictionary()
	r.DeleteById(o, k("b"), true)
	mustSet(t, r, o, "z", NumberValue(9))
	e, _ := o.Shape().Lookup(k("z"))
	if e.Offset != 1 {
		t.Errorf("dictionary should recycle offset 1, got %d", e.Offset)
	}
	expectNumber(t, mustGet(t, r, o, "z"), 9)
	expectNumber(t, mustGet(t, r, o, "c"), 1)
}

func TestDictionaryOnPropertyCount(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxUniformProperties = 8
	opts.MaxPropertyCount = 12
	r := NewRealm(WithOptions(opts))
	o := r.NewPlainObject()
	for i := 0; i < 8; i++ {
		mustSet(t, r, o, string(rune('a'+i)), NumberValue(float64(i)))
	}
	if o.IsDictionary() {
		t.Fatalf("object should still be uniform at the limit")
	}
	mustSet(t, r, o, "overflow", True)
	if !o.IsDictionary() {
		t.Errorf("exceeding MaxUniformProperties should switch to dictionary mode")
	}
	for i := 0; i < 3; i++ {
		mustSet(t, r, o, string(rune('A'+i)), True)
	}
	err := r.Set(o, k("one-too-many"), True, true)
	expectRangeError(t, err)
}

func TestTransitionFanoutBound(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxTransitionFanout = 4
	r := NewRealm(WithOptions(opts))
	proto := r.NewPlainObject()
	var objs []*Object
	for i := 0; i < 6; i++ {
		o := r.NewObject(proto)
		mustSet(t, r, o, string(rune('a'+i)), NumberValue(float64(i)))
		objs = append(objs, o)
	}
	root := r.Shapes().Root(proto, opts.InlineCapacity)
	if root.Fanout() != 4 {
		t.Errorf("root fan-out = %d, want 4", root.Fanout())
	}
	for i, o := range objs {
		if want := i >= 4; o.IsDictionary() != want {
			t.Errorf("object %d dictionary=%v, want %v", i, o.IsDictionary(), want)
		}
	}
	expectNumber(t, mustGet(t, r, objs[5], "f"), 5)
}

func TestShapeTableLazyMaterialization(t *testing.T) {
	r := NewRealm()
	o := r.NewPlainObject()
	for _, name := range []string{"a", "b", "c"} {
		mustSet(t, r, o, name, NumberValue(1))
	}
	s := o.Shape()
	if s.IsMaterialized() {
		t.Errorf("table should not exist before the first lookup")
	}
	before := r.Stats().TablesMaterialized
	if e, ok := s.Lookup(k("b")); !ok || e.Offset != 1 {
		t.Errorf("Lookup(b) = %+v, %v", e, ok)
	}
	if !s.IsMaterialized() || r.Stats().TablesMaterialized != before+1 {
		t.Errorf("lookup should materialise exactly once")
	}
	s.Lookup(k("c"))
	if r.Stats().TablesMaterialized != before+1 {
		t.Errorf("materialised table should be cached")
	}
}

func TestConcurrentLayoutReaders(t *testing.T) {
	r := NewRealm()
	o, _ := r.NewObjectWithCapacity(r.ObjectPrototype, 1)
	const props = 200

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				// Dictionary tables grow after the slot block, so the
				// table is read before the capacity.
				s := o.Shape()
				entries := s.Properties()
				used := s.SlotCount()
				_, capacity := o.Layout()
				if used > capacity {
					t.Errorf("shape %d needs %d slots but only %d are visible", s.ID(), used, capacity)
					return
				}
				for _, e := range entries {
					if e.Offset >= capacity {
						t.Errorf("offset %d beyond capacity %d", e.Offset, capacity)
						return
					}
				}
			}
		}()
	}
	for i := 0; i < props; i++ {
		if err := r.Set(o, IndexKey(uint32(i)), NumberValue(float64(i)), true); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()

	if n := o.Shape().PropertyCount(); n != props {
		t.Errorf("PropertyCount = %d, want %d", n, props)
	}
}
