package vm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func tableKeys(t *PropertyTable) []string {
	var out []string
	t.Range(func(e PropertyEntry) bool {
		out = append(out, e.Key.String())
		return true
	})
	return out
}

func TestPropertyTableInsertLookup(t *testing.T) {
	tbl := NewPropertyTable(0)
	if off := tbl.Insert(k("a"), AttrDefault); off != 0 {
		t.Errorf("first offset = %d, want 0", off)
	}
	if off := tbl.Insert(k("b"), AttrNone); off != 1 {
		t.Errorf("second offset = %d, want 1", off)
	}
	e, ok := tbl.Lookup(k("b"))
	if !ok || e.Offset != 1 || e.Attrs != AttrNone {
		t.Errorf("Lookup(b) = %+v, %v", e, ok)
	}
	if _, ok := tbl.Lookup(k("missing")); ok {
		t.Errorf("missing key should not be found")
	}
	if tbl.Len() != 2 || tbl.SlotCount() != 2 {
		t.Errorf("Len=%d SlotCount=%d, want 2/2", tbl.Len(), tbl.SlotCount())
	}
}

func TestPropertyTableRemoveKeepsOrder(t *testing.T) {
	tbl := NewPropertyTable(0)
	for _, name := range []string{"a", "b", "c", "d"} {
		tbl.Insert(k(name), AttrDefault)
	}
	tbl.Remove(k("b"))
	tbl.Update(k("a"), AttrNone)
	tbl.Insert(k("b"), AttrDefault)

	if diff := cmp.Diff([]string{"a", "c", "d", "b"}, tableKeys(tbl)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	e, _ := tbl.Lookup(k("b"))
	if e.Offset != 4 {
		t.Errorf("non-recycling table reused offset %d", e.Offset)
	}
	if a, _ := tbl.Lookup(k("a")); a.Offset != 0 || a.Attrs != AttrNone {
		t.Errorf("Update should keep the offset: %+v", a)
	}
}

func TestPropertyTableReuse(t *testing.T) {
	tbl := NewPropertyTable(0)
	for _, name := range []string{"a", "b", "c"} {
		tbl.Insert(k(name), AttrDefault)
	}
	tbl.Remove(k("b"))
	tbl.enableReuse()
	if off := tbl.NextOffset(); off != 1 {
		t.Errorf("NextOffset = %d, want recycled 1", off)
	}
	if off := tbl.Insert(k("x"), AttrDefault); off != 1 {
		t.Errorf("Insert reused %d, want 1", off)
	}
	tbl.Remove(k("a"))
	if off := tbl.Insert(k("y"), AttrDefault); off != 0 {
		t.Errorf("Insert reused %d, want 0", off)
	}
	if tbl.SlotCount() != 3 {
		t.Errorf("SlotCount = %d, want 3", tbl.SlotCount())
	}
}

func TestPropertyTableCompaction(t *testing.T) {
	tbl := NewPropertyTable(0)
	var want []string
	for i := 0; i < 40; i++ {
		tbl.Insert(IndexKey(uint32(i)), AttrDefault)
	}
	for i := 0; i < 40; i++ {
		if i%4 != 0 {
			tbl.Remove(IndexKey(uint32(i)))
		} else {
			want = append(want, IndexKey(uint32(i)).String())
		}
	}
	if diff := cmp.Diff(want, tableKeys(tbl)); diff != "" {
		t.Errorf("keys after compaction (-want +got):\n%s", diff)
	}
	for i := 0; i < 40; i += 4 {
		if e, ok := tbl.Lookup(IndexKey(uint32(i))); !ok || e.Offset != i {
			t.Errorf("Lookup(%d) = %+v, %v", i, e, ok)
		}
	}
}

func TestPropertyTableClone(t *testing.T) {
	tbl := NewPropertyTable(0)
	tbl.Insert(k("a"), AttrDefault)
	c := tbl.Clone()
	c.Insert(k("b"), AttrDefault)
	if tbl.Len() != 1 || c.Len() != 2 {
		t.Errorf("clone should be independent: %d/%d", tbl.Len(), c.Len())
	}
}
