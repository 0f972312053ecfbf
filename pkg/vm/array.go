package vm

import "slices"

// maxDenseGap is how far past the dense end a write may land and still
// extend the dense vector instead of going to the sparse map.
const maxDenseGap = 1024

// elementStorage holds the index-keyed properties of arrays and arguments
// objects. Values live in a dense vector (Hole = absent) or, for far
// indices, in a sparse map. Attributes other than the default are kept in
// a side map.
type elementStorage struct {
	dense  []Value
	sparse map[uint32]Value
	attrs  map[uint32]Attributes
	count  int
}

func newElementStorage(values []Value) *elementStorage {
	e := &elementStorage{dense: make([]Value, len(values))}
	copy(e.dense, values)
	for _, v := range values {
		if !v.isHole() {
			e.count++
		}
	}
	return e
}

func (e *elementStorage) attrsOf(i uint32) Attributes {
	if a, ok := e.attrs[i]; ok {
		return a
	}
	return AttrDefault
}

func (e *elementStorage) get(i uint32) (ownProperty, bool) {
	var v Value
	if int64(i) < int64(len(e.dense)) {
		v = e.dense[i]
		if v.isHole() {
			return ownProperty{}, false
		}
	} else {
		var ok bool
		if v, ok = e.sparse[i]; !ok {
			return ownProperty{}, false
		}
	}
	return ownProperty{value: v, attrs: e.attrsOf(i)}, true
}

func (e *elementStorage) has(i uint32) bool {
	_, ok := e.get(i)
	return ok
}

func (e *elementStorage) put(i uint32, p ownProperty) {
	if !e.has(i) {
		e.count++
	}
	switch {
	case int64(i) < int64(len(e.dense)):
		e.dense[i] = p.value
	case int64(i) <= int64(len(e.dense))+maxDenseGap:
		for int64(len(e.dense)) < int64(i) {
			fill := Hole
			if v, ok := e.sparse[uint32(len(e.dense))]; ok {
				delete(e.sparse, uint32(len(e.dense)))
				fill = v
			}
			e.dense = append(e.dense, fill)
		}
		delete(e.sparse, i)
		e.dense = append(e.dense, p.value)
		e.absorbSparse()
	default:
		if e.sparse == nil {
			e.sparse = make(map[uint32]Value)
		}
		e.sparse[i] = p.value
	}
	if p.attrs == AttrDefault {
		delete(e.attrs, i)
	} else {
		if e.attrs == nil {
			e.attrs = make(map[uint32]Attributes)
		}
		e.attrs[i] = p.attrs
	}
}

// absorbSparse moves sparse entries that now sit next to the dense end.
func (e *elementStorage) absorbSparse() {
	for len(e.sparse) > 0 {
		next := uint32(len(e.dense))
		v, ok := e.sparse[next]
		if !ok {
			return
		}
		delete(e.sparse, next)
		e.dense = append(e.dense, v)
	}
}

func (e *elementStorage) remove(i uint32) {
	if !e.has(i) {
		return
	}
	e.count--
	if int64(i) < int64(len(e.dense)) {
		e.dense[i] = Hole
		for n := len(e.dense); n > 0 && e.dense[n-1].isHole(); n-- {
			e.dense = e.dense[:n-1]
		}
	} else {
		delete(e.sparse, i)
	}
	delete(e.attrs, i)
}

// indices returns the present indices in ascending order.
func (e *elementStorage) indices() []uint32 {
	out := make([]uint32, 0, e.count)
	for i, v := range e.dense {
		if !v.isHole() {
			out = append(out, uint32(i))
		}
	}
	if len(e.sparse) > 0 {
		start := len(out)
		for i := range e.sparse {
			out = append(out, i)
		}
		slices.Sort(out[start:])
	}
	return out
}

// indicesFrom returns present indices >= from, descending.
func (e *elementStorage) indicesFrom(from uint32) []uint32 {
	var out []uint32
	for _, i := range e.indices() {
		if i >= from {
			out = append(out, i)
		}
	}
	slices.Reverse(out)
	return out
}

type arrayState struct {
	length         uint32
	lengthWritable bool
}

// NewArray creates an array exotic object holding values.
func (r *Realm) NewArray(values ...Value) *Object {
	o := r.allocObject(KindArray, r.ArrayPrototype, r.opts.InlineCapacity)
	o.elements = newElementStorage(values)
	o.array = &arrayState{length: uint32(len(values)), lengthWritable: true}
	return o
}

// ArrayLength returns the length of an array object.
func (o *Object) ArrayLength() uint32 {
	if o.array == nil {
		return 0
	}
	return o.array.length
}

func (o *Object) arrayLengthProperty() ownProperty {
	attrs := AttrNone
	if o.array.lengthWritable {
		attrs = AttrWritable
	}
	return ownProperty{value: NumberValue(float64(o.array.length)), attrs: attrs}
}

// arrayDefineOwnProperty is the array exotic [[DefineOwnProperty]].
func (r *Realm) arrayDefineOwnProperty(o *Object, key PropertyKey, desc PropertyDescriptor) (bool, error) {
	if key == keyLength {
		return r.arraySetLength(o, desc)
	}
	if !key.IsIndex() {
		return o.ordinaryDefine(key, desc)
	}
	idx := key.Index()
	if idx >= o.array.length && !o.array.lengthWritable {
		return false, nil
	}
	cur, exists := o.elements.get(idx)
	var curp *ownProperty
	if exists {
		curp = &cur
	}
	next, ok := validateAndApply(o.IsExtensible(), curp, desc)
	if !ok {
		return false, nil
	}
	o.elements.put(idx, next)
	if idx >= o.array.length {
		o.array.length = idx + 1
	}
	return true, nil
}

// arraySetLength implements ArraySetLength. Shrinking deletes from the top
// and stops at the first non-configurable element.
func (r *Realm) arraySetLength(o *Object, desc PropertyDescriptor) (bool, error) {
	current := o.arrayLengthProperty()
	if !desc.HasValue {
		next, ok := validateAndApply(true, &current, desc)
		if !ok {
			return false, nil
		}
		o.array.lengthWritable = next.attrs.Writable()
		return true, nil
	}

	num := desc.Value.ToNumber()
	newLen := toUint32(num)
	if float64(newLen) != num {
		return false, r.rangeError("Invalid array length")
	}

	lenDesc := desc
	lenDesc.Value = NumberValue(float64(newLen))
	oldLen := o.array.length
	if newLen >= oldLen {
		next, ok := validateAndApply(true, &current, lenDesc)
		if !ok {
			return false, nil
		}
		o.array.length = newLen
		o.array.lengthWritable = next.attrs.Writable()
		return true, nil
	}
	if !o.array.lengthWritable {
		return false, nil
	}

	makeReadOnly := desc.Writable == FlagFalse
	lenDesc.Writable = FlagUnset
	if _, ok := validateAndApply(true, &current, lenDesc); !ok {
		return false, nil
	}

	for _, idx := range o.elements.indicesFrom(newLen) {
		if p, _ := o.elements.get(idx); !p.attrs.Configurable() {
			o.array.length = idx + 1
			if makeReadOnly {
				o.array.lengthWritable = false
			}
			return false, nil
		}
		o.elements.remove(idx)
	}
	o.array.length = newLen
	if makeReadOnly {
		o.array.lengthWritable = false
	}
	return true, nil
}

// SetArrayLength is a convenience for `arr.length = n` in strict code.
func (r *Realm) SetArrayLength(o *Object, n float64) error {
	ok, err := r.arraySetLength(o, PropertyDescriptor{Value: NumberValue(n), HasValue: true})
	if err != nil {
		return err
	}
	if !ok {
		return r.typeError("Cannot assign to read only property 'length' of object '[object Array]'")
	}
	return nil
}
