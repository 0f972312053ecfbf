package vm

// ProxyHandler is the trap table of a proxy. A nil trap forwards the
// operation to the target unchanged.
type ProxyHandler struct {
	GetPrototypeOf           func(target *Object) (*Object, error)
	SetPrototypeOf           func(target *Object, proto *Object) (bool, error)
	IsExtensible             func(target *Object) (bool, error)
	PreventExtensions        func(target *Object) (bool, error)
	GetOwnPropertyDescriptor func(target *Object, key PropertyKey) (desc PropertyDescriptor, found bool, err error)
	DefineProperty           func(target *Object, key PropertyKey, desc PropertyDescriptor) (bool, error)
	Has                      func(target *Object, key PropertyKey) (bool, error)
	Get                      func(target *Object, key PropertyKey, receiver Value) (Value, error)
	Set                      func(target *Object, key PropertyKey, value Value, receiver Value) (bool, error)
	DeleteProperty           func(target *Object, key PropertyKey) (bool, error)
	OwnKeys                  func(target *Object) ([]PropertyKey, error)
}

type proxyState struct {
	target  *Object
	handler *ProxyHandler // nil once revoked
}

// NewProxy creates a proxy for target. Results of every trap are checked
// against the target's invariants.
func (r *Realm) NewProxy(target *Object, handler *ProxyHandler) (*Object, error) {
	if target == nil || handler == nil {
		return nil, r.typeError("Cannot create proxy with a non-object as target or handler")
	}
	if target.kind == KindProxy && target.proxy.handler == nil {
		return nil, r.typeError("Cannot create proxy with a revoked proxy as target")
	}
	o := r.allocObject(KindProxy, nil, 0)
	o.proxy = &proxyState{target: target, handler: handler}
	o.call = target.call
	return o, nil
}

// RevokeProxy disables a proxy; every later operation on it throws.
func (r *Realm) RevokeProxy(p *Object) {
	if p.kind == KindProxy {
		p.proxy.handler = nil
		p.proxy.target = nil
	}
}

// ProxyTarget returns the target of a live proxy, or nil.
func (o *Object) ProxyTarget() *Object {
	if o.proxy == nil {
		return nil
	}
	return o.proxy.target
}

// proxyHandler enters one level of proxy forwarding; callers that get a
// nil error must leaveProxy when done. A proxy in a prototype chain can
// close a cycle the setPrototypeOf walk cannot see, so forwarding counts
// against the call depth bound.
func (r *Realm) proxyHandler(p *Object, trap string) (*ProxyHandler, *Object, error) {
	h := p.proxy.handler
	if h == nil {
		return nil, nil, r.typeError("Cannot perform '%s' on a proxy that has been revoked", trap)
	}
	if r.callDepth >= maxCallDepth {
		return nil, nil, r.rangeError("Maximum call stack size exceeded")
	}
	r.callDepth++
	return h, p.proxy.target, nil
}

func (r *Realm) leaveProxy() { r.callDepth-- }

func descriptorToOwn(d PropertyDescriptor) ownProperty {
	p, _ := validateAndApply(true, nil, d)
	return p
}

func (r *Realm) proxyGetPrototypeOf(p *Object) (*Object, error) {
	h, target, err := r.proxyHandler(p, "getPrototypeOf")
	if err != nil {
		return nil, err
	}
	defer r.leaveProxy()
	if h.GetPrototypeOf == nil {
		return r.getPrototypeOf(target)
	}
	proto, err := h.GetPrototypeOf(target)
	if err != nil {
		return nil, err
	}
	ext, err := r.isExtensible(target)
	if err != nil {
		return nil, err
	}
	if !ext {
		actual, err := r.getPrototypeOf(target)
		if err != nil {
			return nil, err
		}
		if actual != proto {
			return nil, r.typeError("'getPrototypeOf' on proxy: proxy target is non-extensible but the trap did not return its actual prototype")
		}
	}
	return proto, nil
}

func (r *Realm) proxySetPrototypeOf(p *Object, proto *Object) (bool, error) {
	h, target, err := r.proxyHandler(p, "setPrototypeOf")
	if err != nil {
		return false, err
	}
	defer r.leaveProxy()
	if h.SetPrototypeOf == nil {
		return r.setPrototypeOf(target, proto)
	}
	ok, err := h.SetPrototypeOf(target, proto)
	if err != nil || !ok {
		return false, err
	}
	ext, err := r.isExtensible(target)
	if err != nil {
		return false, err
	}
	if !ext {
		actual, err := r.getPrototypeOf(target)
		if err != nil {
			return false, err
		}
		if actual != proto {
			return false, r.typeError("'setPrototypeOf' on proxy: trap returned truish for setting a new prototype on the non-extensible proxy target")
		}
	}
	return true, nil
}

func (r *Realm) proxyIsExtensible(p *Object) (bool, error) {
	h, target, err := r.proxyHandler(p, "isExtensible")
	if err != nil {
		return false, err
	}
	defer r.leaveProxy()
	if h.IsExtensible == nil {
		return r.isExtensible(target)
	}
	res, err := h.IsExtensible(target)
	if err != nil {
		return false, err
	}
	te, err := r.isExtensible(target)
	if err != nil {
		return false, err
	}
	if res != te {
		return false, r.typeError("'isExtensible' on proxy: trap result does not reflect extensibility of proxy target (which is '%v')", te)
	}
	return res, nil
}

func (r *Realm) proxyPreventExtensions(p *Object) (bool, error) {
	h, target, err := r.proxyHandler(p, "preventExtensions")
	if err != nil {
		return false, err
	}
	defer r.leaveProxy()
	if h.PreventExtensions == nil {
		return r.preventExtensions(target)
	}
	res, err := h.PreventExtensions(target)
	if err != nil || !res {
		return false, err
	}
	te, err := r.isExtensible(target)
	if err != nil {
		return false, err
	}
	if te {
		return false, r.typeError("'preventExtensions' on proxy: trap returned truish but the proxy target is extensible")
	}
	return true, nil
}

func (r *Realm) proxyGetOwnProperty(p *Object, key PropertyKey) (ownProperty, bool, error) {
	h, target, err := r.proxyHandler(p, "getOwnPropertyDescriptor")
	if err != nil {
		return ownProperty{}, false, err
	}
	defer r.leaveProxy()
	if h.GetOwnPropertyDescriptor == nil {
		return r.getOwnProperty(target, key)
	}
	desc, found, err := h.GetOwnPropertyDescriptor(target, key)
	if err != nil {
		return ownProperty{}, false, err
	}
	targetProp, targetHas, err := r.getOwnProperty(target, key)
	if err != nil {
		return ownProperty{}, false, err
	}
	ext, err := r.isExtensible(target)
	if err != nil {
		return ownProperty{}, false, err
	}
	if !found {
		if !targetHas {
			return ownProperty{}, false, nil
		}
		if !targetProp.attrs.Configurable() {
			return ownProperty{}, false, r.typeError("'getOwnPropertyDescriptor' on proxy: trap returned undefined for property '%s' which is non-configurable in the proxy target", key)
		}
		if !ext {
			return ownProperty{}, false, r.typeError("'getOwnPropertyDescriptor' on proxy: trap returned undefined for property '%s' which exists in the non-extensible proxy target", key)
		}
		return ownProperty{}, false, nil
	}

	result := descriptorToOwn(desc)
	var cur *ownProperty
	if targetHas {
		cur = &targetProp
	}
	if !isCompatibleDescriptor(ext, result.descriptor(), cur) {
		return ownProperty{}, false, r.typeError("'getOwnPropertyDescriptor' on proxy: trap returned descriptor for property '%s' that is incompatible with the existing property in the proxy target", key)
	}
	if !result.attrs.Configurable() {
		if !targetHas {
			return ownProperty{}, false, r.typeError("'getOwnPropertyDescriptor' on proxy: trap reported non-configurability for property '%s' which is non-existent in the proxy target", key)
		}
		if targetProp.attrs.Configurable() {
			return ownProperty{}, false, r.typeError("'getOwnPropertyDescriptor' on proxy: trap reported non-configurability for property '%s' which is configurable in the proxy target", key)
		}
		if !result.attrs.IsAccessor() && !result.attrs.Writable() && targetProp.attrs.Writable() {
			return ownProperty{}, false, r.typeError("'getOwnPropertyDescriptor' on proxy: trap reported non-configurable and writable for property '%s' which is non-configurable, non-writable in the proxy target", key)
		}
	}
	return result, true, nil
}

func (r *Realm) proxyDefineOwnProperty(p *Object, key PropertyKey, desc PropertyDescriptor) (bool, error) {
	h, target, err := r.proxyHandler(p, "defineProperty")
	if err != nil {
		return false, err
	}
	defer r.leaveProxy()
	if h.DefineProperty == nil {
		return r.defineOwnProperty(target, key, desc)
	}
	ok, err := h.DefineProperty(target, key, desc)
	if err != nil || !ok {
		return false, err
	}
	targetProp, targetHas, err := r.getOwnProperty(target, key)
	if err != nil {
		return false, err
	}
	ext, err := r.isExtensible(target)
	if err != nil {
		return false, err
	}
	settingConfigFalse := desc.Configurable == FlagFalse
	if !targetHas {
		if !ext {
			return false, r.typeError("'defineProperty' on proxy: trap returned truish for adding property '%s' to the non-extensible proxy target", key)
		}
		if settingConfigFalse {
			return false, r.typeError("'defineProperty' on proxy: trap returned truish for defining non-configurable property '%s' which is either non-existent or configurable in the proxy target", key)
		}
		return true, nil
	}
	if !isCompatibleDescriptor(ext, desc, &targetProp) {
		return false, r.typeError("'defineProperty' on proxy: trap returned truish for adding property '%s' that is incompatible with the existing property in the proxy target", key)
	}
	if settingConfigFalse && targetProp.attrs.Configurable() {
		return false, r.typeError("'defineProperty' on proxy: trap returned truish for defining non-configurable property '%s' which is either non-existent or configurable in the proxy target", key)
	}
	if !targetProp.attrs.IsAccessor() && !targetProp.attrs.Configurable() && targetProp.attrs.Writable() && desc.Writable == FlagFalse {
		return false, r.typeError("'defineProperty' on proxy: trap returned truish for defining non-configurable property '%s' which cannot be non-writable, unless there exists a corresponding non-configurable, non-writable own property of the target object", key)
	}
	return true, nil
}

func (r *Realm) proxyHas(p *Object, key PropertyKey) (bool, error) {
	h, target, err := r.proxyHandler(p, "has")
	if err != nil {
		return false, err
	}
	defer r.leaveProxy()
	if h.Has == nil {
		return r.hasProperty(target, key)
	}
	res, err := h.Has(target, key)
	if err != nil || res {
		return res, err
	}
	targetProp, targetHas, err := r.getOwnProperty(target, key)
	if err != nil {
		return false, err
	}
	if targetHas {
		if !targetProp.attrs.Configurable() {
			return false, r.typeError("'has' on proxy: trap returned falsish for property '%s' which exists in the proxy target as non-configurable", key)
		}
		ext, err := r.isExtensible(target)
		if err != nil {
			return false, err
		}
		if !ext {
			return false, r.typeError("'has' on proxy: trap returned falsish for property '%s' but the proxy target is not extensible", key)
		}
	}
	return false, nil
}

func (r *Realm) proxyGet(p *Object, key PropertyKey, receiver Value) (Value, error) {
	h, target, err := r.proxyHandler(p, "get")
	if err != nil {
		return Undefined, err
	}
	defer r.leaveProxy()
	if h.Get == nil {
		return r.get(target, key, receiver)
	}
	v, err := h.Get(target, key, receiver)
	if err != nil {
		return Undefined, err
	}
	targetProp, targetHas, err := r.getOwnProperty(target, key)
	if err != nil {
		return Undefined, err
	}
	if targetHas && !targetProp.attrs.Configurable() {
		if !targetProp.attrs.IsAccessor() {
			if !targetProp.attrs.Writable() && !v.SameValue(targetProp.value) {
				return Undefined, r.typeError("'get' on proxy: property '%s' is a read-only and non-configurable data property on the proxy target but the proxy did not return its actual value (expected '%s' but got '%s')", key, targetProp.value.ToString(), v.ToString())
			}
		} else if targetProp.getter().IsUndefined() && !v.IsUndefined() {
			return Undefined, r.typeError("'get' on proxy: property '%s' is a non-configurable accessor property on the proxy target and does not have a getter function, but the trap did not return 'undefined' (got '%s')", key, v.ToString())
		}
	}
	return v, nil
}

func (r *Realm) proxySet(p *Object, key PropertyKey, value, receiver Value) (bool, error) {
	h, target, err := r.proxyHandler(p, "set")
	if err != nil {
		return false, err
	}
	defer r.leaveProxy()
	if h.Set == nil {
		return r.set(target, key, value, receiver)
	}
	ok, err := h.Set(target, key, value, receiver)
	if err != nil || !ok {
		return false, err
	}
	targetProp, targetHas, err := r.getOwnProperty(target, key)
	if err != nil {
		return false, err
	}
	if targetHas && !targetProp.attrs.Configurable() {
		if targetProp.attrs.IsAccessor() {
			if targetProp.setter().IsUndefined() {
				return false, r.typeError("'set' on proxy: trap returned truish for property '%s' which exists in the proxy target as a non-configurable and non-writable accessor property without a setter", key)
			}
		} else if !targetProp.attrs.Writable() && !value.SameValue(targetProp.value) {
			return false, r.typeError("'set' on proxy: trap returned truish for property '%s' which exists in the proxy target as a non-configurable and non-writable data property with a different value", key)
		}
	}
	return true, nil
}

func (r *Realm) proxyDelete(p *Object, key PropertyKey) (bool, error) {
	h, target, err := r.proxyHandler(p, "deleteProperty")
	if err != nil {
		return false, err
	}
	defer r.leaveProxy()
	if h.DeleteProperty == nil {
		return r.deleteProperty(target, key)
	}
	ok, err := h.DeleteProperty(target, key)
	if err != nil || !ok {
		return false, err
	}
	targetProp, targetHas, err := r.getOwnProperty(target, key)
	if err != nil {
		return false, err
	}
	if targetHas {
		if !targetProp.attrs.Configurable() {
			return false, r.typeError("'deleteProperty' on proxy: trap returned truish for property '%s' which is non-configurable in the proxy target", key)
		}
		ext, err := r.isExtensible(target)
		if err != nil {
			return false, err
		}
		if !ext {
			return false, r.typeError("'deleteProperty' on proxy: trap returned truish for property '%s' but the proxy target is non-extensible", key)
		}
	}
	return true, nil
}

func (r *Realm) proxyOwnKeys(p *Object) ([]PropertyKey, error) {
	h, target, err := r.proxyHandler(p, "ownKeys")
	if err != nil {
		return nil, err
	}
	defer r.leaveProxy()
	if h.OwnKeys == nil {
		return r.ownPropertyKeys(target)
	}
	keys, err := h.OwnKeys(target)
	if err != nil {
		return nil, err
	}
	keySet := make(map[PropertyKey]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := keySet[k]; dup {
			return nil, r.typeError("'ownKeys' on proxy: trap returned duplicate entries")
		}
		keySet[k] = struct{}{}
	}
	ext, err := r.isExtensible(target)
	if err != nil {
		return nil, err
	}
	targetKeys, err := r.ownPropertyKeys(target)
	if err != nil {
		return nil, err
	}
	for _, k := range targetKeys {
		if _, ok := keySet[k]; ok {
			delete(keySet, k)
			continue
		}
		if !ext {
			return nil, r.typeError("'ownKeys' on proxy: trap result did not include '%s'", k)
		}
		prop, has, err := r.getOwnProperty(target, k)
		if err != nil {
			return nil, err
		}
		if has && !prop.attrs.Configurable() {
			return nil, r.typeError("'ownKeys' on proxy: trap result did not include non-configurable '%s'", k)
		}
	}
	if !ext && len(keySet) > 0 {
		return nil, r.typeError("'ownKeys' on proxy: trap returned extra keys but proxy target is non-extensible")
	}
	return keys, nil
}
