package vm

// argumentsState links a mapped arguments object to the parameter
// registers of its frame. mapped[i] is true while index i aliases
// registers[i].
type argumentsState struct {
	registers []Value
	mapped    []bool
	strict    bool
}

// NewArguments creates an arguments object for a call with the given
// actual arguments. In sloppy mode the first min(len(registers),
// len(actual)) indices alias the caller's parameter registers; writes
// through either side are visible on the other until the index is unmapped.
// Strict arguments objects are unmapped and carry a throwing callee.
func (r *Realm) NewArguments(registers []Value, actual []Value, callee *Object, strict bool) *Object {
	o := r.allocObject(KindArguments, r.ArgumentsPrototype, r.opts.InlineCapacity)
	o.elements = newElementStorage(actual)
	st := &argumentsState{registers: registers, strict: strict}
	if !strict {
		n := min(len(registers), len(actual))
		st.mapped = make([]bool, n)
		for i := 0; i < n; i++ {
			st.mapped[i] = true
			registers[i] = actual[i]
		}
	}
	o.args = st

	// Built-in own properties: non-enumerable, so they never show up in
	// for-in and they do not disturb index ordering.
	o.addBuiltin(keyLength, NumberValue(float64(len(actual))), AttrWritable|AttrConfigurable)
	if strict {
		thrower := r.NewFunction("", func(r *Realm, this Value, args []Value) (Value, error) {
			return Undefined, r.typeError("'caller', 'callee', and 'arguments' properties may not be accessed on strict mode functions or the arguments objects for calls to them")
		})
		o.addBuiltin(keyCallee, accessorValue(ObjectValue(thrower), ObjectValue(thrower)), AttrAccessor)
	} else {
		o.addBuiltin(keyCallee, ObjectValue(callee), AttrWritable|AttrConfigurable)
	}
	return o
}

func (a *argumentsState) isMapped(i uint32) bool {
	return int64(i) < int64(len(a.mapped)) && a.mapped[i]
}

func (a *argumentsState) unmap(i uint32) {
	if a.isMapped(i) {
		a.mapped[i] = false
	}
}

// argumentsGetOwn overlays the aliased register value on the stored
// property.
func (o *Object) argumentsGetOwn(i uint32) (ownProperty, bool) {
	p, ok := o.elements.get(i)
	if !ok {
		return p, false
	}
	if o.args.isMapped(i) {
		p.value = o.args.registers[i]
	}
	return p, true
}

// argumentsDefineOwnProperty is the arguments exotic [[DefineOwnProperty]].
func (r *Realm) argumentsDefineOwnProperty(o *Object, key PropertyKey, desc PropertyDescriptor) (bool, error) {
	if !key.IsIndex() {
		return o.ordinaryDefine(key, desc)
	}
	i := key.Index()
	mapped := o.args.isMapped(i)
	newDesc := desc
	if mapped && desc.IsDataDescriptor() && !desc.HasValue && desc.Writable == FlagFalse {
		newDesc.Value = o.args.registers[i]
		newDesc.HasValue = true
	}

	cur, exists := o.argumentsGetOwn(i)
	var curp *ownProperty
	if exists {
		curp = &cur
	}
	next, ok := validateAndApply(o.IsExtensible(), curp, newDesc)
	if !ok {
		return false, nil
	}
	o.elements.put(i, next)

	if mapped {
		if desc.IsAccessorDescriptor() {
			o.args.unmap(i)
		} else {
			if desc.HasValue {
				o.args.registers[i] = desc.Value
			}
			if desc.Writable == FlagFalse {
				o.args.unmap(i)
			}
		}
	}
	return true, nil
}

// argumentsDelete removes an index and breaks its alias.
func (o *Object) argumentsDelete(i uint32) bool {
	p, ok := o.elements.get(i)
	if !ok {
		return true
	}
	if !p.attrs.Configurable() {
		return false
	}
	o.elements.remove(i)
	o.args.unmap(i)
	return true
}

// IsMappedArgument reports whether index i of an arguments object still
// aliases its parameter register.
func (o *Object) IsMappedArgument(i uint32) bool {
	return o.args != nil && o.args.isMapped(i)
}
