package snapshot

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"structura/pkg/vm"
)

func buildRealm(t *testing.T) (*vm.Realm, *vm.Object) {
	t.Helper()
	r := vm.NewRealm()
	var last *vm.Object
	for i := 0; i < 3; i++ {
		o := r.NewPlainObject()
		for _, name := range []string{"a", "b"} {
			if err := r.Set(o, vm.StringKey(name), vm.NumberValue(1), true); err != nil {
				t.Fatal(err)
			}
		}
		last = o
	}
	if err := r.Set(last, vm.IndexKey(4), vm.True, true); err != nil {
		t.Fatal(err)
	}
	return r, last
}

func TestTakeDescribesArena(t *testing.T) {
	r, o := buildRealm(t)
	s := Take(r)

	if s.Version != Version || s.Epoch != r.Epoch() {
		t.Errorf("header = version %d epoch %d", s.Version, s.Epoch)
	}
	if len(s.Shapes) != r.Shapes().Len() {
		t.Errorf("snapshot has %d shapes, arena %d", len(s.Shapes), r.Shapes().Len())
	}
	for i := 1; i < len(s.Shapes); i++ {
		if s.Shapes[i-1].ID >= s.Shapes[i].ID {
			t.Fatalf("shapes not ordered by id at %d", i)
		}
	}

	id := uint32(o.Shape().ID())
	var edges []string
	for _, sh := range s.Path(id) {
		edge := sh.Transition
		if sh.Key != nil {
			edge += " " + sh.Key.String()
		}
		edges = append(edges, edge)
	}
	if diff := cmp.Diff([]string{"root", "add a", "add b", "add 4"}, edges); diff != "" {
		t.Errorf("transition path mismatch (-want +got):\n%s", diff)
	}

	leaf, ok := s.Shape(id)
	if !ok {
		t.Fatalf("shape %d missing", id)
	}
	var keys []string
	for _, p := range leaf.Properties {
		keys = append(keys, p.Key.String())
	}
	if diff := cmp.Diff([]string{"a", "b", "4"}, keys); diff != "" {
		t.Errorf("properties mismatch (-want +got):\n%s", diff)
	}
	if leaf.Proto == 0 || !leaf.Extensible || leaf.Dictionary {
		t.Errorf("leaf = %+v", leaf)
	}
	if leaf.Properties[2].Key.Kind != uint8(vm.KeyKindIndex) || leaf.Attrs != uint8(vm.AttrDefault) {
		t.Errorf("index property encoded as %+v, attrs %d", leaf.Properties[2], leaf.Attrs)
	}
	if s.Summary()["add"] < 3 {
		t.Errorf("summary = %v", s.Summary())
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	r, _ := buildRealm(t)
	s := Take(r)
	data, err := Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(s, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	var buf bytes.Buffer
	if err := Write(&buf, r); err != nil {
		t.Fatalf("Write: %v", err)
	}
	read, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(read.Shapes) != len(s.Shapes) {
		t.Errorf("Read returned %d shapes, want %d", len(read.Shapes), len(s.Shapes))
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	r1, _ := buildRealm(t)
	r2, _ := buildRealm(t)
	a, err := Marshal(Take(r1))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Marshal(Take(r2))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("identical realms encoded differently")
	}
}

func TestUnmarshalRejectsBadInput(t *testing.T) {
	if _, err := Unmarshal([]byte{0xff, 0x00}); err == nil {
		t.Error("expected an error for garbage input")
	}
	data, err := Marshal(&Snapshot{Version: Version + 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(data); err == nil || !strings.Contains(err.Error(), "unsupported version") {
		t.Errorf("future version accepted: %v", err)
	}
}

func TestPrint(t *testing.T) {
	r, _ := buildRealm(t)
	var buf bytes.Buffer
	if err := Take(r).Print(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "epoch ") || !strings.Contains(out, "add b") {
		t.Errorf("unexpected listing:\n%s", out)
	}
}
