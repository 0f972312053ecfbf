package vm

import "strings"

// Attributes is the property attribute bitmask stored in shapes.
type Attributes uint8

const (
	AttrWritable Attributes = 1 << iota
	AttrEnumerable
	AttrConfigurable
	AttrAccessor // the slot holds an AccessorPair; AttrWritable is ignored

	AttrNone    Attributes = 0
	AttrDefault            = AttrWritable | AttrEnumerable | AttrConfigurable
	// AttrHidden is used for built-in own properties like a function's name.
	AttrHidden = AttrConfigurable
)

func (a Attributes) Writable() bool     { return a&AttrWritable != 0 && a&AttrAccessor == 0 }
func (a Attributes) Enumerable() bool   { return a&AttrEnumerable != 0 }
func (a Attributes) Configurable() bool { return a&AttrConfigurable != 0 }
func (a Attributes) IsAccessor() bool   { return a&AttrAccessor != 0 }

func (a Attributes) String() string {
	var b strings.Builder
	flag := func(set bool, c byte) {
		if set {
			b.WriteByte(c)
		} else {
			b.WriteByte('-')
		}
	}
	if a.IsAccessor() {
		b.WriteByte('a')
	} else {
		flag(a.Writable(), 'w')
	}
	flag(a.Enumerable(), 'e')
	flag(a.Configurable(), 'c')
	return b.String()
}

// Flag is a tri-state descriptor field: absent, true or false.
type Flag uint8

const (
	FlagUnset Flag = iota
	FlagTrue
	FlagFalse
)

// FlagOf converts a bool to a present Flag.
func FlagOf(b bool) Flag {
	if b {
		return FlagTrue
	}
	return FlagFalse
}

func (f Flag) IsSet() bool { return f != FlagUnset }
func (f Flag) Bool() bool  { return f == FlagTrue }

// PropertyDescriptor is a possibly partial property description, as passed
// to DefineOwnProperty. Absent fields keep the current value.
type PropertyDescriptor struct {
	Value Value
	Get   Value
	Set   Value

	HasValue bool
	HasGet   bool
	HasSet   bool

	Writable     Flag
	Enumerable   Flag
	Configurable Flag
}

// DataDescriptor returns a complete data descriptor.
func DataDescriptor(v Value, attrs Attributes) PropertyDescriptor {
	return PropertyDescriptor{
		Value:        v,
		HasValue:     true,
		Writable:     FlagOf(attrs&AttrWritable != 0),
		Enumerable:   FlagOf(attrs.Enumerable()),
		Configurable: FlagOf(attrs.Configurable()),
	}
}

// AccessorDescriptor returns a complete accessor descriptor.
func AccessorDescriptor(get, set Value, attrs Attributes) PropertyDescriptor {
	return PropertyDescriptor{
		Get:          get,
		Set:          set,
		HasGet:       true,
		HasSet:       true,
		Enumerable:   FlagOf(attrs.Enumerable()),
		Configurable: FlagOf(attrs.Configurable()),
	}
}

func (d PropertyDescriptor) IsAccessorDescriptor() bool { return d.HasGet || d.HasSet }
func (d PropertyDescriptor) IsDataDescriptor() bool     { return d.HasValue || d.Writable.IsSet() }
func (d PropertyDescriptor) IsGenericDescriptor() bool {
	return !d.IsAccessorDescriptor() && !d.IsDataDescriptor()
}

func (d PropertyDescriptor) isEmpty() bool {
	return d.IsGenericDescriptor() && !d.Enumerable.IsSet() && !d.Configurable.IsSet()
}

// Attributes returns the attribute bits the descriptor sets to true.
func (d PropertyDescriptor) Attributes() Attributes {
	var a Attributes
	if d.IsAccessorDescriptor() {
		a |= AttrAccessor
	} else if d.Writable.Bool() {
		a |= AttrWritable
	}
	if d.Enumerable.Bool() {
		a |= AttrEnumerable
	}
	if d.Configurable.Bool() {
		a |= AttrConfigurable
	}
	return a
}

// ownProperty is a materialised own property: the slot value (an accessor
// pair when attrs has AttrAccessor) and its attributes.
type ownProperty struct {
	value Value
	attrs Attributes
}

func (p ownProperty) descriptor() PropertyDescriptor {
	if p.attrs.IsAccessor() {
		pair := p.value.asAccessor()
		return AccessorDescriptor(pair.Get, pair.Set, p.attrs)
	}
	return DataDescriptor(p.value, p.attrs)
}

func (p ownProperty) getter() Value {
	if !p.attrs.IsAccessor() {
		return Undefined
	}
	return p.value.asAccessor().Get
}

func (p ownProperty) setter() Value {
	if !p.attrs.IsAccessor() {
		return Undefined
	}
	return p.value.asAccessor().Set
}

func orUndefined(v Value, present bool) Value {
	if present {
		return v
	}
	return Undefined
}

// validateAndApply implements ValidateAndApplyPropertyDescriptor over a
// materialised property. current is nil when the property does not exist.
// It returns the property to store and whether the definition is allowed.
// The result is a pure function of its inputs.
func validateAndApply(extensible bool, current *ownProperty, desc PropertyDescriptor) (ownProperty, bool) {
	if current == nil {
		if !extensible {
			return ownProperty{}, false
		}
		attrs := desc.Attributes()
		if desc.IsAccessorDescriptor() {
			return ownProperty{
				value: accessorValue(orUndefined(desc.Get, desc.HasGet), orUndefined(desc.Set, desc.HasSet)),
				attrs: attrs,
			}, true
		}
		return ownProperty{value: orUndefined(desc.Value, desc.HasValue), attrs: attrs}, true
	}

	cur := *current
	if desc.isEmpty() {
		return cur, true
	}

	if !cur.attrs.Configurable() {
		if desc.Configurable == FlagTrue {
			return cur, false
		}
		if desc.Enumerable.IsSet() && desc.Enumerable.Bool() != cur.attrs.Enumerable() {
			return cur, false
		}
		if !desc.IsGenericDescriptor() && desc.IsAccessorDescriptor() != cur.attrs.IsAccessor() {
			return cur, false
		}
		if cur.attrs.IsAccessor() {
			pair := cur.value.asAccessor()
			if desc.HasGet && !desc.Get.SameValue(pair.Get) {
				return cur, false
			}
			if desc.HasSet && !desc.Set.SameValue(pair.Set) {
				return cur, false
			}
		} else if !cur.attrs.Writable() {
			if desc.Writable == FlagTrue {
				return cur, false
			}
			if desc.HasValue && !desc.Value.SameValue(cur.value) {
				return cur, false
			}
		}
	}

	next := cur
	keep := cur.attrs & (AttrEnumerable | AttrConfigurable)
	switch {
	case cur.attrs.IsAccessor() && desc.IsDataDescriptor():
		next.value = orUndefined(desc.Value, desc.HasValue)
		next.attrs = keep
		if desc.Writable == FlagTrue {
			next.attrs |= AttrWritable
		}
	case !cur.attrs.IsAccessor() && desc.IsAccessorDescriptor():
		next.value = accessorValue(orUndefined(desc.Get, desc.HasGet), orUndefined(desc.Set, desc.HasSet))
		next.attrs = keep | AttrAccessor
	case cur.attrs.IsAccessor():
		pair := *cur.value.asAccessor()
		if desc.HasGet {
			pair.Get = desc.Get
		}
		if desc.HasSet {
			pair.Set = desc.Set
		}
		if desc.HasGet || desc.HasSet {
			next.value = accessorValue(pair.Get, pair.Set)
		}
	default:
		if desc.HasValue {
			next.value = desc.Value
		}
		if desc.Writable.IsSet() {
			next.attrs = next.attrs&^AttrWritable | flagBit(desc.Writable, AttrWritable)
		}
	}
	if desc.Enumerable.IsSet() {
		next.attrs = next.attrs&^AttrEnumerable | flagBit(desc.Enumerable, AttrEnumerable)
	}
	if desc.Configurable.IsSet() {
		next.attrs = next.attrs&^AttrConfigurable | flagBit(desc.Configurable, AttrConfigurable)
	}
	return next, true
}

func flagBit(f Flag, bit Attributes) Attributes {
	if f.Bool() {
		return bit
	}
	return 0
}

// isCompatibleDescriptor is validateAndApply without the result, used by
// proxy invariant checks.
func isCompatibleDescriptor(extensible bool, desc PropertyDescriptor, current *ownProperty) bool {
	_, ok := validateAndApply(extensible, current, desc)
	return ok
}
