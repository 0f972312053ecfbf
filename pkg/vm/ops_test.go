package vm

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOwnPropertyKeysOrder(t *testing.T) {
	r := NewRealm()
	o := r.NewPlainObject()
	sym := NewSymbol("s")
	mustSet(t, r, o, "ok", True)
	if err := r.Set(o, SymbolKey(sym), True, true); err != nil {
		t.Fatal(err)
	}
	mustSet(t, r, o, "hey", True)
	mustSet(t, r, o, "2", True)
	mustSet(t, r, o, "0", True)
	mustSet(t, r, o, "10", True)

	keys, err := r.OwnPropertyKeys(o, KeysAll)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"0", "2", "10", "ok", "hey", "Symbol(s)"}
	if diff := cmp.Diff(want, keyNames(keys)); diff != "" {
		t.Errorf("OwnPropertyKeys (-want +got):\n%s", diff)
	}

	strs, _ := r.OwnPropertyKeys(o, KeysStrings)
	if diff := cmp.Diff(want[:5], keyNames(strs)); diff != "" {
		t.Errorf("string keys (-want +got):\n%s", diff)
	}
	syms, _ := r.OwnPropertyKeys(o, KeysSymbols)
	if len(syms) != 1 || syms[0] != SymbolKey(sym) {
		t.Errorf("symbol keys = %v", keyNames(syms))
	}
}

func TestOwnPropertyKeysEnumerableFilter(t *testing.T) {
	r := NewRealm()
	o := r.NewPlainObject()
	mustSet(t, r, o, "visible", True)
	r.DefineOwnProperty(o, k("hidden"), DataDescriptor(True, AttrWritable|AttrConfigurable), true)
	keys, _ := r.OwnPropertyKeys(o, KeysStrings|KeysEnumerableOnly)
	if diff := cmp.Diff([]string{"visible"}, keyNames(keys)); diff != "" {
		t.Errorf("enumerable keys (-want +got):\n%s", diff)
	}
}

func TestDefineOwnPropertyIdempotent(t *testing.T) {
	r := NewRealm()
	o := r.NewPlainObject()
	desc := DataDescriptor(NumberValue(1), AttrEnumerable)
	if ok, err := r.DefineOwnProperty(o, k("c"), desc, true); !ok || err != nil {
		t.Fatalf("first define: %v %v", ok, err)
	}
	s := o.Shape()
	if ok, err := r.DefineOwnProperty(o, k("c"), desc, true); !ok || err != nil {
		t.Errorf("redefining with an identical descriptor should succeed: %v %v", ok, err)
	}
	if o.Shape() != s {
		t.Errorf("an identical redefinition must not change the shape")
	}

	// Changing a non-configurable, non-writable value is rejected.
	ok, err := r.DefineOwnProperty(o, k("c"), PropertyDescriptor{Value: NumberValue(2), HasValue: true}, false)
	if ok || err != nil {
		t.Errorf("Reflect-style define should return false, got %v %v", ok, err)
	}
	_, err = r.DefineOwnProperty(o, k("c"), PropertyDescriptor{Value: NumberValue(2), HasValue: true}, true)
	expectTypeError(t, err)

	// SameValue, not ==: -0 differs from +0.
	r.DefineOwnProperty(o, k("z"), DataDescriptor(NumberValue(0), AttrNone), true)
	ok, _ = r.DefineOwnProperty(o, k("z"), PropertyDescriptor{Value: NumberValue(negativeZero()), HasValue: true}, false)
	if ok {
		t.Errorf("-0 must not replace +0 on a frozen property")
	}
	expectNumber(t, mustGet(t, r, o, "c"), 1)
}

func negativeZero() float64 {
	z := 0.0
	return -z
}

func TestDefineOwnPropertyConversions(t *testing.T) {
	r := NewRealm()
	o := r.NewPlainObject()
	getter := r.NewFunction("g", func(r *Realm, this Value, args []Value) (Value, error) {
		return NewString("got"), nil
	})
	mustSet(t, r, o, "p", NumberValue(1))
	if _, err := r.DefineOwnProperty(o, k("p"), PropertyDescriptor{Get: ObjectValue(getter), HasGet: true}, true); err != nil {
		t.Fatal(err)
	}
	d, ok, _ := r.GetOwnProperty(o, k("p"))
	if !ok || !d.IsAccessorDescriptor() || !d.HasSet || !d.Set.IsUndefined() {
		t.Fatalf("expected a complete accessor descriptor, got %+v", d)
	}
	if d.Enumerable != FlagTrue || d.Configurable != FlagTrue {
		t.Errorf("data to accessor conversion keeps enumerable/configurable: %+v", d)
	}
	if v := mustGet(t, r, o, "p"); v.AsString() != "got" {
		t.Errorf("getter result = %s", v.Inspect())
	}

	// And back to data; writable defaults to false.
	if _, err := r.DefineOwnProperty(o, k("p"), PropertyDescriptor{Value: NumberValue(5), HasValue: true}, true); err != nil {
		t.Fatal(err)
	}
	d, _, _ = r.GetOwnProperty(o, k("p"))
	if d.IsAccessorDescriptor() || d.Writable != FlagFalse {
		t.Errorf("accessor to data conversion: %+v", d)
	}
	expectNumber(t, mustGet(t, r, o, "p"), 5)
}

func TestDeleteNonConfigurable(t *testing.T) {
	r := NewRealm()
	o := r.NewPlainObject()
	r.DefineOwnProperty(o, k("fixed"), DataDescriptor(NumberValue(1), AttrWritable|AttrEnumerable), true)

	ok, err := r.DeleteById(o, k("fixed"), false)
	if ok || err != nil {
		t.Errorf("sloppy delete should return false, got %v %v", ok, err)
	}
	_, err = r.DeleteById(o, k("fixed"), true)
	expectTypeError(t, err)
	expectNumber(t, mustGet(t, r, o, "fixed"), 1)

	ok, err = r.DeleteById(o, k("missing"), true)
	if !ok || err != nil {
		t.Errorf("deleting an absent property succeeds, got %v %v", ok, err)
	}
}

func TestSetPrototypeOf(t *testing.T) {
	r := NewRealm()
	a, b := r.NewPlainObject(), r.NewPlainObject()
	if ok, err := r.SetPrototypeOf(b, a, true); !ok || err != nil {
		t.Fatalf("SetPrototypeOf(b, a): %v %v", ok, err)
	}
	if p, _ := r.GetPrototypeOf(b); p != a {
		t.Errorf("prototype not updated")
	}
	if b.Shape().TransitionKind() != TransitionSetPrototype {
		t.Errorf("expected a SetPrototype transition, got %s", b.Shape().TransitionKind())
	}

	ok, err := r.SetPrototypeOf(a, b, false)
	if ok || err != nil {
		t.Errorf("cycle should be refused quietly: %v %v", ok, err)
	}
	_, err = r.SetPrototypeOf(a, b, true)
	expectTypeError(t, err)

	// Same prototype is always accepted, even when non-extensible.
	r.PreventExtensions(b, true)
	if ok, _ := r.SetPrototypeOf(b, a, true); !ok {
		t.Errorf("setting the same prototype should succeed")
	}
	if ok, _ := r.SetPrototypeOf(b, nil, false); ok {
		t.Errorf("non-extensible objects keep their prototype")
	}

	if ok, _ := r.SetPrototypeOf(a, nil, true); !ok {
		t.Fatalf("null prototype should be accepted")
	}
	if p, _ := r.GetPrototypeOf(a); p != nil {
		t.Errorf("expected null prototype")
	}
}

func TestPrototypeChainDepthLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxPrototypeChainDepth = 8
	r := NewRealm(WithOptions(opts))
	o := r.NewObject(nil)
	for i := 0; i < 10; i++ {
		o = r.NewObject(o)
	}
	_, err := r.Get(o, k("missing"))
	expectRangeError(t, err)
	_, err = r.GetById(NewPropInlineCache(4), o, k("missing"))
	expectRangeError(t, err)
	_, err = r.HasProperty(o, k("missing"))
	expectRangeError(t, err)
}

func TestPreventExtensions(t *testing.T) {
	r := NewRealm()
	o := r.NewPlainObject()
	mustSet(t, r, o, "a", NumberValue(1))
	if ok, err := r.PreventExtensions(o, true); !ok || err != nil {
		t.Fatalf("PreventExtensions: %v %v", ok, err)
	}
	if ext, _ := r.IsExtensible(o); ext {
		t.Errorf("object should be non-extensible")
	}
	if o.Shape().TransitionKind() != TransitionPreventExtensions {
		t.Errorf("expected a PreventExtensions transition")
	}
	expectTypeError(t, r.Set(o, k("b"), True, true))
	if err := r.Set(o, k("b"), True, false); err != nil {
		t.Errorf("sloppy add to a non-extensible object is silent: %v", err)
	}
	if ok, _ := r.HasOwnProperty(o, k("b")); ok {
		t.Errorf("property must not be added")
	}
	// Existing properties stay writable.
	mustSet(t, r, o, "a", NumberValue(2))
	expectNumber(t, mustGet(t, r, o, "a"), 2)
}

func TestFreezeAndSeal(t *testing.T) {
	r := NewRealm()
	getter := r.NewFunction("g", func(r *Realm, this Value, args []Value) (Value, error) {
		return True, nil
	})

	o := r.NewPlainObject()
	mustSet(t, r, o, "a", NumberValue(1))
	r.DefineOwnProperty(o, k("g"), AccessorDescriptor(ObjectValue(getter), Undefined, AttrDefault), true)
	if err := r.SetIntegrityLevel(o, IntegrityFrozen); err != nil {
		t.Fatal(err)
	}
	if frozen, _ := r.TestIntegrityLevel(o, IntegrityFrozen); !frozen {
		t.Errorf("object should be frozen")
	}
	expectTypeError(t, r.Set(o, k("a"), NumberValue(2), true))
	expectNumber(t, mustGet(t, r, o, "a"), 1)
	if v := mustGet(t, r, o, "g"); !v.AsBoolean() {
		t.Errorf("frozen accessor should still work")
	}

	s := r.NewPlainObject()
	mustSet(t, r, s, "a", NumberValue(1))
	if err := r.SetIntegrityLevel(s, IntegritySealed); err != nil {
		t.Fatal(err)
	}
	sealed, _ := r.TestIntegrityLevel(s, IntegritySealed)
	frozen, _ := r.TestIntegrityLevel(s, IntegrityFrozen)
	if !sealed || frozen {
		t.Errorf("sealed=%v frozen=%v, want true/false", sealed, frozen)
	}
	mustSet(t, r, s, "a", NumberValue(2))
	expectNumber(t, mustGet(t, r, s, "a"), 2)
	_, err := r.DeleteById(s, k("a"), true)
	expectTypeError(t, err)

	// Objects sealed the same way share shapes.
	s2 := r.NewPlainObject()
	mustSet(t, r, s2, "a", NumberValue(3))
	r.SetIntegrityLevel(s2, IntegritySealed)
	if s2.Shape() != s.Shape() {
		t.Errorf("sealing should follow shared transitions")
	}
}

func TestStrictPutMessages(t *testing.T) {
	r := NewRealm()
	o := r.NewPlainObject()
	mustSet(t, r, o, "a", NumberValue(1))
	if err := r.SetIntegrityLevel(o, IntegrityFrozen); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		key  string
		want string
	}{
		{"a", "TypeError: Cannot assign to read only property 'a'"},
		{"b", "TypeError: Cannot add property b, object is not extensible"},
	}
	for _, tt := range tests {
		err := r.Set(o, k(tt.key), NumberValue(2), true)
		if err == nil || !strings.HasPrefix(err.Error(), tt.want) {
			t.Errorf("Set(%q) = %v, want %q", tt.key, err, tt.want)
		}
	}
}

func TestFreezeArray(t *testing.T) {
	r := NewRealm()
	a := r.NewArray(NumberValue(1), NumberValue(2))
	if err := r.SetIntegrityLevel(a, IntegrityFrozen); err != nil {
		t.Fatal(err)
	}
	if frozen, _ := r.TestIntegrityLevel(a, IntegrityFrozen); !frozen {
		t.Errorf("array should be frozen")
	}
	expectTypeError(t, r.Set(a, IndexKey(0), NumberValue(9), true))
	expectTypeError(t, r.Set(a, IndexKey(2), NumberValue(9), true))
	expectTypeError(t, r.SetArrayLength(a, 0))
	if a.ArrayLength() != 2 {
		t.Errorf("length changed to %d", a.ArrayLength())
	}
}

func TestCallDepthLimit(t *testing.T) {
	r := NewRealm()
	o := r.NewPlainObject()
	getter := r.NewFunction("loop", func(r *Realm, this Value, args []Value) (Value, error) {
		return r.Get(this.AsObject(), k("loop"))
	})
	r.DefineOwnProperty(o, k("loop"), AccessorDescriptor(ObjectValue(getter), Undefined, AttrDefault), true)
	_, err := r.Get(o, k("loop"))
	expectRangeError(t, err)
}

func TestThrowFromAccessor(t *testing.T) {
	r := NewRealm()
	o := r.NewPlainObject()
	getter := r.NewFunction("boom", func(r *Realm, this Value, args []Value) (Value, error) {
		return Undefined, r.Throw(NewString("boom"))
	})
	r.DefineOwnProperty(o, k("boom"), AccessorDescriptor(ObjectValue(getter), Undefined, AttrDefault), true)
	_, err := r.GetById(NewPropInlineCache(4), o, k("boom"))
	v, ok := ThrownValue(err)
	if !ok || v.AsString() != "boom" {
		t.Errorf("expected thrown \"boom\", got %v", err)
	}
}
