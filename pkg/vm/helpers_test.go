package vm

import (
	"testing"

	errorsPkg "structura/pkg/errors"
)

func k(s string) PropertyKey { return StringKey(s) }

func keyNames(keys []PropertyKey) []string {
	out := make([]string, len(keys))
	for i, key := range keys {
		out[i] = key.String()
	}
	return out
}

func mustGet(t *testing.T, r *Realm, o *Object, name string) Value {
	t.Helper()
	v, err := r.Get(o, k(name))
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", name, err)
	}
	return v
}

func mustSet(t *testing.T, r *Realm, o *Object, name string, v Value) {
	t.Helper()
	if err := r.Set(o, k(name), v, true); err != nil {
		t.Fatalf("Set(%q) failed: %v", name, err)
	}
}

func expectNumber(t *testing.T, v Value, want float64) {
	t.Helper()
	if !v.IsNumber() || v.AsNumber() != want {
		t.Errorf("expected %v, got %s", want, v.Inspect())
	}
}

func expectTypeError(t *testing.T, err error) {
	t.Helper()
	if !errorsPkg.IsTypeError(err) {
		t.Errorf("expected TypeError, got %v", err)
	}
}

func expectRangeError(t *testing.T, err error) {
	t.Helper()
	if !errorsPkg.IsRangeError(err) {
		t.Errorf("expected RangeError, got %v", err)
	}
}
