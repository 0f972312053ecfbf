package vm

import (
	stderrors "errors"

	errorsPkg "structura/pkg/errors"
)

// NewFunction creates a callable object backed by fn. Functions are
// ordinary objects apart from their call behaviour.
func (r *Realm) NewFunction(name string, fn NativeFunction) *Object {
	o := r.allocObject(KindFunction, r.FunctionPrototype, r.opts.InlineCapacity)
	o.call = fn
	o.funcName = name
	o.addBuiltin(keyName, NewString(name), AttrHidden)
	return o
}

// FunctionName returns the name a function was created with.
func (o *Object) FunctionName() string { return o.funcName }

const maxCallDepth = 2048

// Call invokes fn with the given receiver.
func (r *Realm) Call(fn Value, this Value, args ...Value) (Value, error) {
	f := fn.AsObject()
	if f == nil || f.call == nil {
		return Undefined, r.typeError("%s is not a function", fn.Inspect())
	}
	if r.callDepth >= maxCallDepth {
		return Undefined, r.rangeError("Maximum call stack size exceeded")
	}
	r.callDepth++
	defer func() { r.callDepth-- }()
	return f.call(r, this, args)
}

// Throw wraps a script value as a Go error, as native code does for
// `throw v`.
func (r *Realm) Throw(v Value) error {
	return &errorsPkg.ThrowError{Value: v, Text: v.Inspect()}
}

// ThrownValue extracts the script value carried by err, if any.
func ThrownValue(err error) (Value, bool) {
	var te *errorsPkg.ThrowError
	if stderrors.As(err, &te) {
		if v, ok := te.Value.(Value); ok {
			return v, true
		}
	}
	return Undefined, false
}
