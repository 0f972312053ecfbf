package vm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestProxyForwardsWithoutTraps(t *testing.T) {
	r := NewRealm()
	target := r.NewPlainObject()
	mustSet(t, r, target, "x", NumberValue(1))
	p, err := r.NewProxy(target, &ProxyHandler{})
	if err != nil {
		t.Fatal(err)
	}

	expectNumber(t, mustGet(t, r, p, "x"), 1)
	mustSet(t, r, p, "y", NumberValue(2))
	expectNumber(t, mustGet(t, r, target, "y"), 2)

	if ok, _ := r.DeleteById(p, k("x"), true); !ok {
		t.Errorf("delete through proxy failed")
	}
	if has, _ := r.HasOwnProperty(target, k("x")); has {
		t.Errorf("delete did not reach the target")
	}
	keys, _ := r.OwnPropertyKeys(p, KeysAll)
	if diff := cmp.Diff([]string{"y"}, keyNames(keys)); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
}

func TestProxyGetTrapReceivesReceiver(t *testing.T) {
	r := NewRealm()
	target := r.NewPlainObject()
	var gotReceiver Value
	p, _ := r.NewProxy(target, &ProxyHandler{
		Get: func(_ *Object, key PropertyKey, receiver Value) (Value, error) {
			gotReceiver = receiver
			return NewString("trapped " + key.String()), nil
		},
	})
	child := r.NewObject(p)

	// The proxy sits on the chain, so the lookup falls through to the trap
	// with the original receiver.
	site := r.NewSiteTable(1).Site(0)
	v, err := r.GetById(site, child, k("name"))
	if err != nil {
		t.Fatal(err)
	}
	if v.AsString() != "trapped name" {
		t.Errorf("got %s", v.Inspect())
	}
	if gotReceiver.AsObject() != child {
		t.Errorf("trap saw receiver %s, want the child", gotReceiver.Inspect())
	}
	if site.State() != CacheStateUninitialized {
		t.Errorf("lookups answered by a proxy must not be cached: %s", site)
	}
}

func TestProxyGetInvariant(t *testing.T) {
	r := NewRealm()
	target := r.NewPlainObject()
	r.DefineOwnProperty(target, k("fixed"), DataDescriptor(NumberValue(1), AttrNone), true)
	p, _ := r.NewProxy(target, &ProxyHandler{
		Get: func(*Object, PropertyKey, Value) (Value, error) { return NumberValue(2), nil },
	})
	_, err := r.Get(p, k("fixed"))
	expectTypeError(t, err)

	// A configurable property may be reported with any value.
	mustSet(t, r, target, "loose", NumberValue(1))
	v, err := r.Get(p, k("loose"))
	if err != nil {
		t.Fatal(err)
	}
	expectNumber(t, v, 2)
}

func TestProxySetAndDeleteInvariants(t *testing.T) {
	r := NewRealm()
	target := r.NewPlainObject()
	r.DefineOwnProperty(target, k("ro"), DataDescriptor(NumberValue(1), AttrNone), true)
	p, _ := r.NewProxy(target, &ProxyHandler{
		Set:            func(*Object, PropertyKey, Value, Value) (bool, error) { return true, nil },
		DeleteProperty: func(*Object, PropertyKey) (bool, error) { return true, nil },
	})

	expectTypeError(t, r.Set(p, k("ro"), NumberValue(5), false))
	if err := r.Set(p, k("ro"), NumberValue(1), false); err != nil {
		t.Errorf("setting the same value should satisfy the invariant: %v", err)
	}
	_, err := r.DeleteById(p, k("ro"), false)
	expectTypeError(t, err)
}

func TestProxyHasInvariant(t *testing.T) {
	r := NewRealm()
	target := r.NewPlainObject()
	mustSet(t, r, target, "a", True)
	p, _ := r.NewProxy(target, &ProxyHandler{
		Has: func(*Object, PropertyKey) (bool, error) { return false, nil },
	})
	if has, err := r.HasProperty(p, k("a")); has || err != nil {
		t.Errorf("configurable property may be hidden: %v %v", has, err)
	}
	r.PreventExtensions(target, true)
	_, err := r.HasProperty(p, k("a"))
	expectTypeError(t, err)
}

func TestProxyOwnKeysInvariants(t *testing.T) {
	r := NewRealm()
	target := r.NewPlainObject()
	r.DefineOwnProperty(target, k("fixed"), DataDescriptor(True, AttrNone), true)

	dup, _ := r.NewProxy(target, &ProxyHandler{
		OwnKeys: func(*Object) ([]PropertyKey, error) { return []PropertyKey{k("fixed"), k("fixed")}, nil },
	})
	_, err := r.OwnPropertyKeys(dup, KeysAll)
	expectTypeError(t, err)

	missing, _ := r.NewProxy(target, &ProxyHandler{
		OwnKeys: func(*Object) ([]PropertyKey, error) { return []PropertyKey{k("other")}, nil },
	})
	_, err = r.OwnPropertyKeys(missing, KeysAll)
	expectTypeError(t, err)

	extra, _ := r.NewProxy(target, &ProxyHandler{
		OwnKeys: func(*Object) ([]PropertyKey, error) { return []PropertyKey{k("fixed"), k("extra")}, nil },
	})
	keys, err := r.OwnPropertyKeys(extra, KeysAll)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"fixed", "extra"}, keyNames(keys)); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
}

func TestProxyDefinePropertyInvariant(t *testing.T) {
	r := NewRealm()
	target := r.NewPlainObject()
	p, _ := r.NewProxy(target, &ProxyHandler{
		DefineProperty: func(*Object, PropertyKey, PropertyDescriptor) (bool, error) { return true, nil },
	})
	// The trap claims success for a non-configurable property the target
	// does not have.
	_, err := r.DefineOwnProperty(p, k("a"), DataDescriptor(True, AttrNone), true)
	expectTypeError(t, err)

	ok, err := r.DefineOwnProperty(p, k("b"), DataDescriptor(True, AttrDefault), true)
	if !ok || err != nil {
		t.Errorf("configurable define should pass: %v %v", ok, err)
	}
}

func TestProxyPrototypeTraps(t *testing.T) {
	r := NewRealm()
	target := r.NewPlainObject()
	fake := r.NewPlainObject()
	p, _ := r.NewProxy(target, &ProxyHandler{
		GetPrototypeOf: func(*Object) (*Object, error) { return fake, nil },
		IsExtensible:   func(*Object) (bool, error) { return false, nil },
	})
	proto, err := r.GetPrototypeOf(p)
	if err != nil || proto != fake {
		t.Errorf("extensible target allows any prototype: %v %v", proto, err)
	}
	_, err = r.IsExtensible(p)
	expectTypeError(t, err)

	r.PreventExtensions(target, true)
	_, err = r.GetPrototypeOf(p)
	expectTypeError(t, err)
}

func TestProxyBreaksPrototypeCycleCheck(t *testing.T) {
	r := NewRealm()
	a := r.NewPlainObject()
	p, _ := r.NewProxy(a, &ProxyHandler{})
	b := r.NewObject(p)
	// The cycle walk stops at a proxy, so a -> b -> proxy(a) is accepted.
	if ok, err := r.SetPrototypeOf(a, b, true); !ok || err != nil {
		t.Errorf("SetPrototypeOf through a proxy: %v %v", ok, err)
	}

	// Lookups through the cycle hit the depth bound instead of the Go stack.
	_, err := r.Get(a, k("missing"))
	expectRangeError(t, err)
	expectRangeError(t, r.Set(b, k("missing"), True, true))
	_, err = r.HasProperty(p, k("missing"))
	expectRangeError(t, err)
	if r.callDepth != 0 {
		t.Errorf("call depth not unwound: %d", r.callDepth)
	}

	// Own properties are still found before the walk reaches the proxy.
	if ok, err := r.DefineOwnProperty(a, k("x"), DataDescriptor(NumberValue(1), AttrDefault), true); !ok || err != nil {
		t.Fatalf("DefineOwnProperty: %v %v", ok, err)
	}
	expectNumber(t, mustGet(t, r, b, "x"), 1)
}

func TestProxySelfPrototypeCycle(t *testing.T) {
	r := NewRealm()
	target := r.NewPlainObject()
	p, _ := r.NewProxy(target, &ProxyHandler{})
	if ok, err := r.SetPrototypeOf(target, p, true); !ok || err != nil {
		t.Fatalf("SetPrototypeOf(target, proxy): %v %v", ok, err)
	}
	_, err := r.Get(p, k("missing"))
	expectRangeError(t, err)
	expectRangeError(t, r.Set(p, k("missing"), True, true))
	_, err = r.HasProperty(target, k("missing"))
	expectRangeError(t, err)
}

func TestRevokedProxy(t *testing.T) {
	r := NewRealm()
	target := r.NewPlainObject()
	p, _ := r.NewProxy(target, &ProxyHandler{})
	r.RevokeProxy(p)
	if p.ProxyTarget() != nil {
		t.Errorf("revoked proxy should drop its target")
	}

	_, err := r.Get(p, k("x"))
	expectTypeError(t, err)
	expectTypeError(t, r.Set(p, k("x"), True, false))
	_, err = r.OwnPropertyKeys(p, KeysAll)
	expectTypeError(t, err)
	_, err = r.NewProxy(p, &ProxyHandler{})
	expectTypeError(t, err)
}

func TestNewProxyRejectsNil(t *testing.T) {
	r := NewRealm()
	_, err := r.NewProxy(nil, &ProxyHandler{})
	expectTypeError(t, err)
	_, err = r.NewProxy(r.NewPlainObject(), nil)
	expectTypeError(t, err)
}
