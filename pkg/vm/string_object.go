package vm

import "unicode/utf16"

type stringState struct {
	value string
	units []uint16
}

// NewStringObject creates a String wrapper object. Code-unit indices below
// the UTF-16 length are read-only, enumerable and non-configurable.
func (r *Realm) NewStringObject(s string) *Object {
	o := r.allocObject(KindStringWrapper, r.StringPrototype, r.opts.InlineCapacity)
	o.str = &stringState{value: s, units: utf16.Encode([]rune(s))}
	o.addBuiltin(keyLength, NumberValue(float64(len(o.str.units))), AttrNone)
	return o
}

// StringValue returns the wrapped primitive.
func (o *Object) StringValue() string {
	if o.str == nil {
		return ""
	}
	return o.str.value
}

func (s *stringState) length() uint32 { return uint32(len(s.units)) }

// unit returns the code unit at i as a one-unit string. Lone surrogates
// decode to U+FFFD since Go strings cannot hold them.
func (s *stringState) unit(i uint32) Value {
	return NewString(string(utf16.Decode(s.units[i : i+1])))
}

func (s *stringState) getOwn(key PropertyKey) (ownProperty, bool) {
	if !key.IsIndex() || key.Index() >= s.length() {
		return ownProperty{}, false
	}
	return ownProperty{value: s.unit(key.Index()), attrs: AttrEnumerable}, true
}
