// Package snapshot exports a realm's shape arena in a deterministic binary
// form, so two runs of the same scenario can be compared byte for byte.
package snapshot

import (
	"fmt"
	"io"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"structura/pkg/vm"
)

// Version is bumped whenever the encoded layout changes.
const Version = 1

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Key is an encoded property key. Name holds the string form for string
// and symbol keys; symbols are not restored as identities.
type Key struct {
	Kind  uint8  `cbor:"1,keyasint"`
	Name  string `cbor:"2,keyasint,omitempty"`
	Index uint32 `cbor:"3,keyasint,omitempty"`
}

func encodeKey(k vm.PropertyKey) Key {
	switch k.Kind() {
	case vm.KeyKindIndex:
		return Key{Kind: uint8(vm.KeyKindIndex), Index: k.Index()}
	case vm.KeyKindSymbol:
		return Key{Kind: uint8(vm.KeyKindSymbol), Name: k.String()}
	default:
		return Key{Kind: uint8(vm.KeyKindString), Name: k.Name()}
	}
}

func (k Key) String() string {
	if vm.KeyKind(k.Kind) == vm.KeyKindIndex {
		return fmt.Sprint(k.Index)
	}
	return k.Name
}

type Property struct {
	Key    Key   `cbor:"1,keyasint"`
	Offset int   `cbor:"2,keyasint"`
	Attrs  uint8 `cbor:"3,keyasint"`
}

// Shape is one arena entry. Proto is the prototype's object id, zero for
// a null prototype.
type Shape struct {
	ID                uint32     `cbor:"1,keyasint"`
	Parent            uint32     `cbor:"2,keyasint,omitempty"`
	Transition        string     `cbor:"3,keyasint"`
	Key               *Key       `cbor:"4,keyasint,omitempty"`
	Attrs             uint8      `cbor:"5,keyasint,omitempty"`
	Proto             uint64     `cbor:"6,keyasint,omitempty"`
	InlineCapacity    int        `cbor:"7,keyasint"`
	OutOfLineCapacity int        `cbor:"8,keyasint"`
	Dictionary        bool       `cbor:"9,keyasint,omitempty"`
	Extensible        bool       `cbor:"10,keyasint"`
	Properties        []Property `cbor:"11,keyasint"`
}

// Snapshot is the exported state of a realm.
type Snapshot struct {
	Version     int      `cbor:"1,keyasint"`
	Epoch       uint64   `cbor:"2,keyasint"`
	Transitions int      `cbor:"3,keyasint"`
	Shapes      []Shape  `cbor:"4,keyasint"`
	Stats       vm.Stats `cbor:"5,keyasint"`
}

// Take captures r's shape arena and counters. Shapes are ordered by id.
func Take(r *vm.Realm) *Snapshot {
	table := r.Shapes()
	s := &Snapshot{
		Version:     Version,
		Epoch:       r.Epoch(),
		Transitions: table.TransitionCount(),
		Stats:       r.Stats(),
	}
	for _, sh := range table.Shapes() {
		s.Shapes = append(s.Shapes, encodeShape(sh))
	}
	return s
}

func encodeShape(sh *vm.Shape) Shape {
	out := Shape{
		ID:                uint32(sh.ID()),
		Parent:            uint32(sh.ParentID()),
		Transition:        sh.TransitionKind().String(),
		InlineCapacity:    sh.InlineCapacity(),
		OutOfLineCapacity: sh.OutOfLineCapacity(),
		Dictionary:        sh.IsDictionary(),
		Extensible:        sh.IsExtensible(),
	}
	switch sh.TransitionKind() {
	case vm.TransitionAdd, vm.TransitionReconfigure, vm.TransitionRemove:
		k := encodeKey(sh.TransitionKey())
		out.Key = &k
		out.Attrs = uint8(sh.TransitionAttrs())
	}
	if p := sh.Prototype(); p != nil {
		out.Proto = uint64(p.ID())
	}
	props := sh.Properties()
	out.Properties = make([]Property, len(props))
	for i, e := range props {
		out.Properties[i] = Property{Key: encodeKey(e.Key), Offset: e.Offset, Attrs: uint8(e.Attrs)}
	}
	return out
}

// Marshal encodes s in canonical CBOR.
func Marshal(s *Snapshot) ([]byte, error) {
	return encMode.Marshal(s)
}

// Unmarshal decodes a snapshot and rejects unknown versions.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	if s.Version != Version {
		return nil, fmt.Errorf("snapshot: unsupported version %d", s.Version)
	}
	return &s, nil
}

// Write takes a snapshot of r and encodes it to w.
func Write(w io.Writer, r *vm.Realm) error {
	return encMode.NewEncoder(w).Encode(Take(r))
}

// Read decodes one snapshot from rd.
func Read(rd io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.NewDecoder(rd).Decode(&s); err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	if s.Version != Version {
		return nil, fmt.Errorf("snapshot: unsupported version %d", s.Version)
	}
	return &s, nil
}

// Shape returns the entry with the given id.
func (s *Snapshot) Shape(id uint32) (Shape, bool) {
	i := sort.Search(len(s.Shapes), func(i int) bool { return s.Shapes[i].ID >= id })
	if i < len(s.Shapes) && s.Shapes[i].ID == id {
		return s.Shapes[i], true
	}
	return Shape{}, false
}

// Path returns the transition chain from the root to id, root first.
func (s *Snapshot) Path(id uint32) []Shape {
	var chain []Shape
	for id != 0 {
		sh, ok := s.Shape(id)
		if !ok {
			break
		}
		chain = append(chain, sh)
		id = sh.Parent
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Summary counts shapes by the transition that produced them.
func (s *Snapshot) Summary() map[string]int {
	out := make(map[string]int)
	for _, sh := range s.Shapes {
		out[sh.Transition]++
	}
	return out
}

// Print writes a one line per shape listing.
func (s *Snapshot) Print(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "epoch %d, %d shapes, %d transitions\n", s.Epoch, len(s.Shapes), s.Transitions); err != nil {
		return err
	}
	for _, sh := range s.Shapes {
		edge := sh.Transition
		if sh.Key != nil {
			edge += " " + sh.Key.String()
		}
		if _, err := fmt.Fprintf(w, "  #%d <- #%d %s, %d props, proto %d\n", sh.ID, sh.Parent, edge, len(sh.Properties), sh.Proto); err != nil {
			return err
		}
	}
	return nil
}
