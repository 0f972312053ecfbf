package vm

import (
	"encoding/binary"
	"math"
)

// TypedArrayKind represents the different typed array types
type TypedArrayKind uint8

const (
	TypedArrayInt8 TypedArrayKind = iota
	TypedArrayUint8
	TypedArrayUint8Clamped
	TypedArrayInt16
	TypedArrayUint16
	TypedArrayInt32
	TypedArrayUint32
	TypedArrayFloat32
	TypedArrayFloat64
)

// BytesPerElement returns the element size of the kind.
func (kind TypedArrayKind) BytesPerElement() int {
	switch kind {
	case TypedArrayInt8, TypedArrayUint8, TypedArrayUint8Clamped:
		return 1
	case TypedArrayInt16, TypedArrayUint16:
		return 2
	case TypedArrayInt32, TypedArrayUint32, TypedArrayFloat32:
		return 4
	case TypedArrayFloat64:
		return 8
	default:
		return 0
	}
}

// String returns the ECMAScript constructor name for this TypedArray kind
func (kind TypedArrayKind) String() string {
	switch kind {
	case TypedArrayInt8:
		return "Int8Array"
	case TypedArrayUint8:
		return "Uint8Array"
	case TypedArrayUint8Clamped:
		return "Uint8ClampedArray"
	case TypedArrayInt16:
		return "Int16Array"
	case TypedArrayUint16:
		return "Uint16Array"
	case TypedArrayInt32:
		return "Int32Array"
	case TypedArrayUint32:
		return "Uint32Array"
	case TypedArrayFloat32:
		return "Float32Array"
	case TypedArrayFloat64:
		return "Float64Array"
	default:
		return "TypedArray"
	}
}

// ParseTypedArrayKind maps a constructor name to its kind.
func ParseTypedArrayKind(name string) (TypedArrayKind, bool) {
	for k := TypedArrayInt8; k <= TypedArrayFloat64; k++ {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

// ArrayBuffer is a raw byte buffer shared by typed array views.
type ArrayBuffer struct {
	data     []byte
	detached bool
}

func NewArrayBuffer(size int) *ArrayBuffer {
	return &ArrayBuffer{data: make([]byte, size)}
}

// MaxByteLength is the largest buffer the engine allocates.
const MaxByteLength = 1 << 30

// AllocateArrayBuffer is the checked constructor used for script-supplied
// lengths.
func (r *Realm) AllocateArrayBuffer(size int) (*ArrayBuffer, error) {
	if size < 0 || size > MaxByteLength {
		return nil, r.rangeError("Invalid array buffer length")
	}
	return NewArrayBuffer(size), nil
}

// Bytes returns the underlying byte slice
func (ab *ArrayBuffer) Bytes() []byte { return ab.data }

func (ab *ArrayBuffer) ByteLength() int { return len(ab.data) }

// IsDetached returns whether the buffer has been detached
func (ab *ArrayBuffer) IsDetached() bool { return ab.detached }

// Detach detaches the buffer. Every view over it reads undefined from then on.
func (ab *ArrayBuffer) Detach() {
	ab.detached = true
	ab.data = nil
}

type typedArrayState struct {
	kind       TypedArrayKind
	buffer     *ArrayBuffer
	byteOffset int
	length     int // number of elements
}

// NewTypedArray creates a view of length elements over buffer starting at
// byteOffset.
func (r *Realm) NewTypedArray(kind TypedArrayKind, buffer *ArrayBuffer, byteOffset, length int) (*Object, error) {
	size := kind.BytesPerElement()
	if buffer.IsDetached() {
		return nil, r.typeError("Cannot construct %s on a detached ArrayBuffer", kind)
	}
	if byteOffset < 0 || byteOffset%size != 0 {
		return nil, r.rangeError("start offset of %s should be a multiple of %d", kind, size)
	}
	if length < 0 || byteOffset > buffer.ByteLength() || length > (buffer.ByteLength()-byteOffset)/size {
		return nil, r.rangeError("Invalid typed array length: %d", length)
	}
	o := r.allocObject(KindTypedArray, r.TypedArrayPrototype, r.opts.InlineCapacity)
	o.typed = &typedArrayState{kind: kind, buffer: buffer, byteOffset: byteOffset, length: length}
	return o, nil
}

// NewTypedArrayOfLength allocates a fresh buffer for length elements.
func (r *Realm) NewTypedArrayOfLength(kind TypedArrayKind, length int) (*Object, error) {
	if length < 0 || length > MaxByteLength/kind.BytesPerElement() {
		return nil, r.rangeError("Invalid typed array length: %d", length)
	}
	return r.NewTypedArray(kind, NewArrayBuffer(length*kind.BytesPerElement()), 0, length)
}

// TypedArrayBuffer returns the buffer behind a typed array object.
func (o *Object) TypedArrayBuffer() *ArrayBuffer {
	if o.typed == nil {
		return nil
	}
	return o.typed.buffer
}

// TypedArrayLength returns the element count, or 0 once detached.
func (o *Object) TypedArrayLength() int {
	if o.typed == nil || o.typed.buffer.IsDetached() {
		return 0
	}
	return o.typed.length
}

// validIndex implements IsValidIntegerIndex.
func (ta *typedArrayState) validIndex(n float64) (int, bool) {
	if ta.buffer.IsDetached() {
		return 0, false
	}
	if n != math.Trunc(n) || math.IsInf(n, 0) {
		return 0, false
	}
	if n == 0 && math.Signbit(n) {
		return 0, false
	}
	if n < 0 || n >= float64(ta.length) {
		return 0, false
	}
	return int(n), true
}

// get reads element index. Out-of-bounds and detached reads yield undefined.
func (ta *typedArrayState) get(n float64) (Value, bool) {
	index, ok := ta.validIndex(n)
	if !ok {
		return Undefined, false
	}
	data := ta.buffer.data[ta.byteOffset+index*ta.kind.BytesPerElement():]

	switch ta.kind {
	case TypedArrayInt8:
		return NumberValue(float64(int8(data[0]))), true
	case TypedArrayUint8, TypedArrayUint8Clamped:
		return NumberValue(float64(data[0])), true
	case TypedArrayInt16:
		return NumberValue(float64(int16(binary.LittleEndian.Uint16(data)))), true
	case TypedArrayUint16:
		return NumberValue(float64(binary.LittleEndian.Uint16(data))), true
	case TypedArrayInt32:
		return NumberValue(float64(int32(binary.LittleEndian.Uint32(data)))), true
	case TypedArrayUint32:
		return NumberValue(float64(binary.LittleEndian.Uint32(data))), true
	case TypedArrayFloat32:
		return NumberValue(float64(math.Float32frombits(binary.LittleEndian.Uint32(data)))), true
	case TypedArrayFloat64:
		return NumberValue(math.Float64frombits(binary.LittleEndian.Uint64(data))), true
	default:
		return Undefined, false
	}
}

// set converts value and stores it. Writes to invalid indices are no-ops.
func (ta *typedArrayState) set(n float64, value Value) {
	num := value.ToNumber()
	index, ok := ta.validIndex(n)
	if !ok {
		return
	}
	data := ta.buffer.data[ta.byteOffset+index*ta.kind.BytesPerElement():]

	switch ta.kind {
	case TypedArrayInt8, TypedArrayUint8:
		data[0] = byte(toUint32(num))
	case TypedArrayUint8Clamped:
		data[0] = clampUint8(num)
	case TypedArrayInt16, TypedArrayUint16:
		binary.LittleEndian.PutUint16(data, uint16(toUint32(num)))
	case TypedArrayInt32, TypedArrayUint32:
		binary.LittleEndian.PutUint32(data, toUint32(num))
	case TypedArrayFloat32:
		binary.LittleEndian.PutUint32(data, math.Float32bits(float32(num)))
	case TypedArrayFloat64:
		binary.LittleEndian.PutUint64(data, math.Float64bits(num))
	}
}

// clampUint8 implements ToUint8Clamp: NaN is 0, ties round to even.
func clampUint8(f float64) byte {
	switch {
	case math.IsNaN(f) || f <= 0:
		return 0
	case f >= 255:
		return 255
	default:
		return byte(math.RoundToEven(f))
	}
}

// typedArrayDefineOwnProperty is the typed array [[DefineOwnProperty]] for
// numeric keys.
func (o *Object) typedArrayDefine(n float64, desc PropertyDescriptor) bool {
	if _, ok := o.typed.validIndex(n); !ok {
		return false
	}
	if desc.Configurable == FlagFalse || desc.Enumerable == FlagFalse ||
		desc.IsAccessorDescriptor() || desc.Writable == FlagFalse {
		return false
	}
	if desc.HasValue {
		o.typed.set(n, desc.Value)
	}
	return true
}
