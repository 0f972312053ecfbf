package vm

import (
	"slices"
)

// exoticKey reports whether key is handled by o's kind-specific storage
// rather than its shape. Such accesses are never cached.
func (o *Object) exoticKey(key PropertyKey) bool {
	switch o.kind {
	case KindOrdinary, KindFunction:
		return false
	case KindArray:
		return key.IsIndex() || key == keyLength
	case KindArguments:
		return key.IsIndex()
	case KindTypedArray:
		_, ok := canonicalNumericIndex(key)
		return ok
	case KindStringWrapper:
		return key.IsIndex() && key.Index() < o.str.length()
	default:
		return true
	}
}

// --- internal methods ---

func (r *Realm) getPrototypeOf(o *Object) (*Object, error) {
	if o.kind == KindProxy {
		return r.proxyGetPrototypeOf(o)
	}
	return o.Shape().proto, nil
}

// setPrototypeOf is OrdinarySetPrototypeOf: it refuses cycles and
// non-extensible receivers.
func (r *Realm) setPrototypeOf(o *Object, proto *Object) (bool, error) {
	if o.kind == KindProxy {
		return r.proxySetPrototypeOf(o, proto)
	}
	s := o.Shape()
	if s.proto == proto {
		return true, nil
	}
	if !s.extensible {
		return false, nil
	}
	depth := 0
	for p := proto; p != nil; p = p.Shape().proto {
		if p == o {
			return false, nil
		}
		if p.kind == KindProxy {
			break
		}
		if depth++; depth > r.opts.MaxPrototypeChainDepth {
			return false, r.rangeError("Maximum prototype chain depth exceeded")
		}
	}
	o.setPrototypeRaw(proto)
	return true, nil
}

func (r *Realm) isExtensible(o *Object) (bool, error) {
	if o.kind == KindProxy {
		return r.proxyIsExtensible(o)
	}
	return o.Shape().extensible, nil
}

func (r *Realm) preventExtensions(o *Object) (bool, error) {
	if o.kind == KindProxy {
		return r.proxyPreventExtensions(o)
	}
	o.preventExtensionsRaw()
	return true, nil
}

func (r *Realm) getOwnProperty(o *Object, key PropertyKey) (ownProperty, bool, error) {
	switch o.kind {
	case KindArray:
		if key.IsIndex() {
			p, ok := o.elements.get(key.Index())
			return p, ok, nil
		}
		if key == keyLength {
			return o.arrayLengthProperty(), true, nil
		}
	case KindArguments:
		if key.IsIndex() {
			p, ok := o.argumentsGetOwn(key.Index())
			return p, ok, nil
		}
	case KindTypedArray:
		if n, ok := canonicalNumericIndex(key); ok {
			v, ok := o.typed.get(n)
			if !ok {
				return ownProperty{}, false, nil
			}
			return ownProperty{value: v, attrs: AttrDefault}, true, nil
		}
	case KindStringWrapper:
		if p, ok := o.str.getOwn(key); ok {
			return p, true, nil
		}
	case KindProxy:
		return r.proxyGetOwnProperty(o, key)
	}
	p, ok := o.ordinaryGetOwn(key)
	return p, ok, nil
}

func (r *Realm) defineOwnProperty(o *Object, key PropertyKey, desc PropertyDescriptor) (bool, error) {
	switch o.kind {
	case KindArray:
		return r.arrayDefineOwnProperty(o, key, desc)
	case KindArguments:
		return r.argumentsDefineOwnProperty(o, key, desc)
	case KindTypedArray:
		if n, ok := canonicalNumericIndex(key); ok {
			return o.typedArrayDefine(n, desc), nil
		}
	case KindStringWrapper:
		if cur, ok := o.str.getOwn(key); ok {
			return isCompatibleDescriptor(o.IsExtensible(), desc, &cur), nil
		}
	case KindProxy:
		return r.proxyDefineOwnProperty(o, key, desc)
	}
	return o.ordinaryDefine(key, desc)
}

func (r *Realm) deleteProperty(o *Object, key PropertyKey) (bool, error) {
	switch o.kind {
	case KindArray:
		if key.IsIndex() {
			p, ok := o.elements.get(key.Index())
			if !ok {
				return true, nil
			}
			if !p.attrs.Configurable() {
				return false, nil
			}
			o.elements.remove(key.Index())
			return true, nil
		}
		if key == keyLength {
			return false, nil
		}
	case KindArguments:
		if key.IsIndex() {
			return o.argumentsDelete(key.Index()), nil
		}
	case KindTypedArray:
		if n, ok := canonicalNumericIndex(key); ok {
			_, valid := o.typed.validIndex(n)
			return !valid, nil
		}
	case KindStringWrapper:
		if key.IsIndex() && key.Index() < o.str.length() {
			return false, nil
		}
	case KindProxy:
		return r.proxyDelete(o, key)
	}
	e, ok := o.Shape().Lookup(key)
	if !ok {
		return true, nil
	}
	if !e.Attrs.Configurable() {
		return false, nil
	}
	o.removeOwn(e)
	return true, nil
}

// ownPropertyKeys lists own keys: integer indices ascending, then string
// keys in insertion order, then symbols in insertion order.
func (r *Realm) ownPropertyKeys(o *Object) ([]PropertyKey, error) {
	if o.kind == KindProxy {
		return r.proxyOwnKeys(o)
	}
	entries := o.Shape().Properties()

	var indices []uint32
	switch o.kind {
	case KindArray, KindArguments:
		indices = o.elements.indices()
	case KindTypedArray:
		n := o.TypedArrayLength()
		indices = make([]uint32, n)
		for i := range indices {
			indices[i] = uint32(i)
		}
	case KindStringWrapper:
		indices = make([]uint32, o.str.length())
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	shapeIndexed := false
	for _, e := range entries {
		if e.Key.IsIndex() {
			indices = append(indices, e.Key.Index())
			shapeIndexed = true
		}
	}
	if shapeIndexed {
		slices.Sort(indices)
	}

	keys := make([]PropertyKey, 0, len(indices)+len(entries)+1)
	for _, i := range indices {
		keys = append(keys, IndexKey(i))
	}
	if o.kind == KindArray {
		keys = append(keys, keyLength)
	}
	for _, e := range entries {
		if e.Key.IsString() {
			keys = append(keys, e.Key)
		}
	}
	for _, e := range entries {
		if e.Key.IsSymbol() {
			keys = append(keys, e.Key)
		}
	}
	return keys, nil
}

func (r *Realm) hasProperty(o *Object, key PropertyKey) (bool, error) {
	for depth := 0; o != nil; depth++ {
		if depth > r.opts.MaxPrototypeChainDepth {
			return false, r.rangeError("Maximum prototype chain depth exceeded")
		}
		switch o.kind {
		case KindProxy:
			return r.proxyHas(o, key)
		case KindTypedArray:
			if n, ok := canonicalNumericIndex(key); ok {
				_, valid := o.typed.validIndex(n)
				return valid, nil
			}
		}
		_, ok, err := r.getOwnProperty(o, key)
		if err != nil || ok {
			return ok, err
		}
		o = o.Shape().proto
	}
	return false, nil
}

// get is [[Get]] with an explicit receiver.
func (r *Realm) get(o *Object, key PropertyKey, receiver Value) (Value, error) {
	for depth := 0; o != nil; depth++ {
		if depth > r.opts.MaxPrototypeChainDepth {
			return Undefined, r.rangeError("Maximum prototype chain depth exceeded")
		}
		switch o.kind {
		case KindProxy:
			return r.proxyGet(o, key, receiver)
		case KindTypedArray:
			if n, ok := canonicalNumericIndex(key); ok {
				v, _ := o.typed.get(n)
				return v, nil
			}
		}
		p, ok, err := r.getOwnProperty(o, key)
		if err != nil {
			return Undefined, err
		}
		if ok {
			return r.propertyValue(p, receiver)
		}
		o = o.Shape().proto
	}
	return Undefined, nil
}

func (r *Realm) propertyValue(p ownProperty, receiver Value) (Value, error) {
	if !p.attrs.IsAccessor() {
		return p.value, nil
	}
	return r.callGetter(p.value, receiver)
}

func (r *Realm) callGetter(pair Value, receiver Value) (Value, error) {
	g := pair.asAccessor().Get
	if g.IsUndefined() {
		return Undefined, nil
	}
	return r.Call(g, receiver)
}

func (r *Realm) callSetter(pair Value, receiver Value, v Value) (bool, error) {
	s := pair.asAccessor().Set
	if s.IsUndefined() {
		return false, nil
	}
	if _, err := r.Call(s, receiver, v); err != nil {
		return false, err
	}
	return true, nil
}

// set is OrdinarySet with kind dispatch. It returns false when the
// assignment is refused; the caller decides whether that throws.
func (r *Realm) set(o *Object, key PropertyKey, v Value, receiver Value) (bool, error) {
	for depth := 0; ; depth++ {
		if depth > r.opts.MaxPrototypeChainDepth {
			return false, r.rangeError("Maximum prototype chain depth exceeded")
		}
		switch o.kind {
		case KindProxy:
			return r.proxySet(o, key, v, receiver)
		case KindTypedArray:
			if n, ok := canonicalNumericIndex(key); ok {
				if receiver.AsObject() == o {
					o.typed.set(n, v)
					return true, nil
				}
				if _, valid := o.typed.validIndex(n); !valid {
					return true, nil
				}
			}
		}
		p, ok, err := r.getOwnProperty(o, key)
		if err != nil {
			return false, err
		}
		if !ok {
			if parent := o.Shape().proto; parent != nil {
				o = parent
				continue
			}
			p = ownProperty{value: Undefined, attrs: AttrDefault}
		}
		if p.attrs.IsAccessor() {
			return r.callSetter(p.value, receiver, v)
		}
		if !p.attrs.Writable() {
			return false, nil
		}
		recv := receiver.AsObject()
		if recv == nil {
			return false, nil
		}
		existing, has, err := r.getOwnProperty(recv, key)
		if err != nil {
			return false, err
		}
		if has {
			if existing.attrs.IsAccessor() || !existing.attrs.Writable() {
				return false, nil
			}
			return r.defineOwnProperty(recv, key, PropertyDescriptor{Value: v, HasValue: true})
		}
		return r.defineOwnProperty(recv, key, DataDescriptor(v, AttrDefault))
	}
}

// --- prototype chain walker and inline caches ---

// resolution is where a lookup found its property.
type resolution struct {
	holder    *Object // nil when the key is absent from the whole chain
	entry     PropertyEntry
	depth     int
	cacheable bool
}

// resolve walks the shape-described chain starting at o. It reports
// ok=false when an exotic object on the way claims the key; the caller must
// then use the generic path.
func (r *Realm) resolve(o *Object, key PropertyKey) (resolution, bool, error) {
	res := resolution{cacheable: !o.Shape().dictionary}
	for cur, depth := o, 0; cur != nil; depth++ {
		if depth > r.opts.MaxPrototypeChainDepth {
			return res, false, r.rangeError("Maximum prototype chain depth exceeded")
		}
		if cur.exoticKey(key) {
			return res, false, nil
		}
		s := cur.Shape()
		if e, ok := s.Lookup(key); ok {
			res.holder, res.entry, res.depth = cur, e, depth
			return res, true, nil
		}
		cur = s.proto
	}
	return res, true, nil
}

func lookupEntry(shape *Shape, res resolution, epoch uint64) PropCacheEntry {
	e := PropCacheEntry{shape: shape, epoch: epoch, offset: res.entry.Offset, attrs: res.entry.Attrs}
	accessor := res.entry.Attrs.IsAccessor()
	switch {
	case res.holder == nil:
		e.kind = cacheAbsent
	case res.depth == 0 && accessor:
		e.kind = cacheOwnAccessor
	case res.depth == 0:
		e.kind = cacheOwnData
	case accessor:
		e.kind, e.holder = cacheProtoAccessor, res.holder
	default:
		e.kind, e.holder = cacheProtoData, res.holder
	}
	return e
}

func (r *Realm) fillCache(site *PropInlineCache, e PropCacheEntry) {
	gen := r.generation.Load()
	e.shape.pinned.Store(gen)
	if e.next != nil {
		e.next.pinned.Store(gen)
	}
	if site.updateCache(e) {
		r.stats.sitesDemoted.Add(1)
		log.Debugf("inline cache site went megamorphic after %d misses", site.missCount)
	}
}

func (r *Realm) recordHit(site *PropInlineCache, e PropCacheEntry) {
	r.stats.cacheHits.Add(1)
	if site.state == CacheStateMonomorphic {
		r.stats.monomorphicHits.Add(1)
	} else {
		r.stats.polymorphicHits.Add(1)
	}
	if e.kind == cacheProtoData || e.kind == cacheProtoAccessor {
		r.stats.protoChainHits.Add(1)
	}
}

func (r *Realm) readCached(o *Object, e PropCacheEntry) (Value, error) {
	receiver := ObjectValue(o)
	switch e.kind {
	case cacheOwnData:
		return o.slot(e.offset), nil
	case cacheProtoData:
		return e.holder.slot(e.offset), nil
	case cacheOwnAccessor:
		return r.callGetter(o.slot(e.offset), receiver)
	case cacheProtoAccessor:
		return r.callGetter(e.holder.slot(e.offset), receiver)
	default:
		return Undefined, nil
	}
}

// GetById reads key from o. When site is non-nil the lookup goes through
// that site's inline cache; lookups never fail except for errors raised by
// accessors, proxy traps or the chain depth limit.
func (r *Realm) GetById(site *PropInlineCache, o *Object, key PropertyKey) (Value, error) {
	if site == nil || o.exoticKey(key) {
		return r.get(o, key, ObjectValue(o))
	}
	if site.state == CacheStateMegamorphic {
		r.stats.megamorphicOps.Add(1)
		return r.get(o, key, ObjectValue(o))
	}
	shape := o.Shape()
	epoch := r.epoch.Load()
	if e, ok := site.lookupInCache(shape, epoch); ok {
		r.recordHit(site, e)
		return r.readCached(o, e)
	}
	r.stats.cacheMisses.Add(1)

	res, ok, err := r.resolve(o, key)
	if err != nil {
		return Undefined, err
	}
	if !ok {
		return r.get(o, key, ObjectValue(o))
	}
	e := lookupEntry(shape, res, epoch)
	if res.cacheable {
		r.fillCache(site, e)
	}
	if res.holder == nil {
		return Undefined, nil
	}
	return r.readCached(o, e)
}

// PutById assigns v to key on o. In strict mode a refused assignment is a
// TypeError; otherwise it is silently ignored.
func (r *Realm) PutById(site *PropInlineCache, o *Object, key PropertyKey, v Value, strict bool) error {
	ok, err := r.putById(site, o, key, v)
	if err != nil {
		return err
	}
	if !ok && strict {
		if _, exists, _ := r.getOwnProperty(o, key); !exists && !o.IsExtensible() {
			return r.typeError("Cannot add property %s, object is not extensible", key)
		}
		return r.typeError("Cannot assign to read only property '%s' of object '%s'", key, o)
	}
	return nil
}

func (r *Realm) putById(site *PropInlineCache, o *Object, key PropertyKey, v Value) (bool, error) {
	if site == nil || o.exoticKey(key) {
		return r.set(o, key, v, ObjectValue(o))
	}
	if site.state == CacheStateMegamorphic {
		r.stats.megamorphicOps.Add(1)
		return r.set(o, key, v, ObjectValue(o))
	}
	shape := o.Shape()
	epoch := r.epoch.Load()
	if e, ok := site.lookupInCache(shape, epoch); ok {
		switch e.kind {
		case cacheOwnData:
			// Entries filled by reads may describe read-only properties.
			if e.attrs.Writable() {
				r.recordHit(site, e)
				o.setSlot(e.offset, v)
				return true, nil
			}
		case cacheAddTransition:
			r.recordHit(site, e)
			o.applyAddTransition(e.next, v)
			return true, nil
		case cacheOwnAccessor:
			r.recordHit(site, e)
			return r.callSetter(o.slot(e.offset), ObjectValue(o), v)
		case cacheProtoAccessor:
			r.recordHit(site, e)
			return r.callSetter(e.holder.slot(e.offset), ObjectValue(o), v)
		}
	}
	r.stats.cacheMisses.Add(1)

	res, ok, err := r.resolve(o, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return r.set(o, key, v, ObjectValue(o))
	}
	if res.holder != nil {
		if res.entry.Attrs.IsAccessor() {
			e := lookupEntry(shape, res, epoch)
			if res.cacheable {
				r.fillCache(site, e)
			}
			return r.callSetter(res.holder.slot(res.entry.Offset), ObjectValue(o), v)
		}
		if !res.entry.Attrs.Writable() {
			return false, nil
		}
		if res.depth == 0 {
			o.setSlot(res.entry.Offset, v)
			if res.cacheable {
				r.fillCache(site, lookupEntry(shape, res, epoch))
			}
			return true, nil
		}
	}

	// Absent, or shadowing a writable data property of a prototype.
	if !shape.extensible {
		return false, nil
	}
	if err := o.addOwn(key, v, AttrDefault); err != nil {
		return false, err
	}
	next := o.Shape()
	if res.cacheable && !next.dictionary && next.parentID == shape.id && next.kind == TransitionAdd && next.key == key {
		r.fillCache(site, PropCacheEntry{
			shape:  shape,
			kind:   cacheAddTransition,
			offset: next.offset,
			next:   next,
			epoch:  epoch,
		})
	}
	return true, nil
}

// applyAddTransition replays a cached Add transition.
func (o *Object) applyAddTransition(next *Shape, v Value) {
	o.beforeStructureChange("add", next.key)
	o.ensureCapacity(next.Capacity())
	o.setSlot(next.offset, v)
	o.shape.Store(next)
}

// --- public operations ---

// Get is [[Get]] with o as the receiver, without an inline cache.
func (r *Realm) Get(o *Object, key PropertyKey) (Value, error) {
	return r.get(o, key, ObjectValue(o))
}

// Set is an uncached PutById.
func (r *Realm) Set(o *Object, key PropertyKey, v Value, strict bool) error {
	return r.PutById(nil, o, key, v, strict)
}

// DeleteById removes an own property. Deleting a non-configurable property
// returns false, or a TypeError in strict mode.
func (r *Realm) DeleteById(o *Object, key PropertyKey, strict bool) (bool, error) {
	ok, err := r.deleteProperty(o, key)
	if err != nil {
		return false, err
	}
	if !ok && strict {
		return false, r.typeError("Cannot delete property '%s' of %s", key, o)
	}
	return ok, nil
}

// DefineOwnProperty applies desc to key. With throw set, a rejected
// definition is a TypeError (Object.defineProperty); otherwise false is
// returned (Reflect.defineProperty).
func (r *Realm) DefineOwnProperty(o *Object, key PropertyKey, desc PropertyDescriptor, throw bool) (bool, error) {
	ok, err := r.defineOwnProperty(o, key, desc)
	if err != nil {
		return false, err
	}
	if !ok && throw {
		if _, exists, _ := r.getOwnProperty(o, key); !exists {
			return false, r.typeError("Cannot define property %s, object is not extensible", key)
		}
		return false, r.typeError("Cannot redefine property: %s", key)
	}
	return ok, nil
}

// GetOwnProperty returns the complete descriptor of an own property.
func (r *Realm) GetOwnProperty(o *Object, key PropertyKey) (PropertyDescriptor, bool, error) {
	p, ok, err := r.getOwnProperty(o, key)
	if err != nil || !ok {
		return PropertyDescriptor{}, false, err
	}
	return p.descriptor(), true, nil
}

func (r *Realm) HasProperty(o *Object, key PropertyKey) (bool, error) {
	return r.hasProperty(o, key)
}

func (r *Realm) HasOwnProperty(o *Object, key PropertyKey) (bool, error) {
	_, ok, err := r.getOwnProperty(o, key)
	return ok, err
}

// KeyFilter selects which own keys OwnPropertyKeys returns.
type KeyFilter uint8

const (
	KeysStrings KeyFilter = 1 << iota // string and index keys
	KeysSymbols
	KeysEnumerableOnly

	KeysAll = KeysStrings | KeysSymbols
)

// OwnPropertyKeys returns o's own keys in enumeration order, filtered.
func (r *Realm) OwnPropertyKeys(o *Object, filter KeyFilter) ([]PropertyKey, error) {
	keys, err := r.ownPropertyKeys(o)
	if err != nil {
		return nil, err
	}
	out := keys[:0:0]
	for _, k := range keys {
		if k.IsSymbol() && filter&KeysSymbols == 0 {
			continue
		}
		if !k.IsSymbol() && filter&KeysStrings == 0 {
			continue
		}
		if filter&KeysEnumerableOnly != 0 {
			p, ok, err := r.getOwnProperty(o, k)
			if err != nil {
				return nil, err
			}
			if !ok || !p.attrs.Enumerable() {
				continue
			}
		}
		out = append(out, k)
	}
	return out, nil
}

func (r *Realm) GetPrototypeOf(o *Object) (*Object, error) {
	return r.getPrototypeOf(o)
}

// SetPrototypeOf changes o's prototype. Cycles and non-extensible objects
// are refused; with throw set the refusal is a TypeError.
func (r *Realm) SetPrototypeOf(o *Object, proto *Object, throw bool) (bool, error) {
	ok, err := r.setPrototypeOf(o, proto)
	if err != nil {
		return false, err
	}
	if !ok && throw {
		if ext, _ := r.isExtensible(o); !ext {
			return false, r.typeError("%s is not extensible", o)
		}
		return false, r.typeError("Cyclic __proto__ value")
	}
	return ok, nil
}

func (r *Realm) IsExtensible(o *Object) (bool, error) {
	return r.isExtensible(o)
}

func (r *Realm) PreventExtensions(o *Object, throw bool) (bool, error) {
	ok, err := r.preventExtensions(o)
	if err != nil {
		return false, err
	}
	if !ok && throw {
		return false, r.typeError("Cannot prevent extensions")
	}
	return ok, nil
}

type IntegrityLevel uint8

const (
	IntegritySealed IntegrityLevel = iota
	IntegrityFrozen
)

// SetIntegrityLevel seals or freezes o (Object.seal / Object.freeze).
func (r *Realm) SetIntegrityLevel(o *Object, level IntegrityLevel) error {
	ok, err := r.preventExtensions(o)
	if err != nil {
		return err
	}
	if !ok {
		return r.typeError("Cannot prevent extensions")
	}
	keys, err := r.ownPropertyKeys(o)
	if err != nil {
		return err
	}
	for _, k := range keys {
		desc := PropertyDescriptor{Configurable: FlagFalse}
		if level == IntegrityFrozen {
			p, exists, err := r.getOwnProperty(o, k)
			if err != nil {
				return err
			}
			if !exists {
				continue
			}
			if !p.attrs.IsAccessor() {
				desc.Writable = FlagFalse
			}
		}
		if _, err := r.DefineOwnProperty(o, k, desc, true); err != nil {
			if o.kind == KindTypedArray {
				return r.typeError("Cannot freeze array buffer views with elements")
			}
			return err
		}
	}
	return nil
}

// TestIntegrityLevel reports whether o is sealed or frozen.
func (r *Realm) TestIntegrityLevel(o *Object, level IntegrityLevel) (bool, error) {
	ext, err := r.isExtensible(o)
	if err != nil || ext {
		return false, err
	}
	keys, err := r.ownPropertyKeys(o)
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		p, ok, err := r.getOwnProperty(o, k)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		if p.attrs.Configurable() {
			return false, nil
		}
		if level == IntegrityFrozen && !p.attrs.IsAccessor() && p.attrs.Writable() {
			return false, nil
		}
	}
	return true, nil
}
