package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unsafe"
)

// cleanExponentialFormat removes leading zeros from exponent to match JS format
// e.g., "1e-07" -> "1e-7", "1e+25" -> "1e+25"
func cleanExponentialFormat(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == 'e' || s[i] == 'E' {
			if i+1 < len(s) && (s[i+1] == '+' || s[i+1] == '-') {
				sign := s[i+1]
				j := i + 2
				for j < len(s) && s[j] == '0' {
					j++
				}
				// If all zeros or no digits after sign, keep one zero
				if j >= len(s) {
					return s[:i+2] + "0"
				}
				return s[:i+1] + string(sign) + s[j:]
			}
			break
		}
	}
	return s
}

type ValueType uint8

const (
	TypeUndefined ValueType = iota
	TypeNull
	TypeBoolean
	TypeNumber
	TypeString
	TypeSymbol
	TypeObject

	// Internal types. They live in slots and element storage and never
	// escape through the public operations.
	TypeAccessor
	TypeHole
)

func (vt ValueType) String() string {
	switch vt {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeSymbol:
		return "symbol"
	case TypeObject:
		return "object"
	case TypeAccessor:
		return "accessor"
	case TypeHole:
		return "hole"
	default:
		return fmt.Sprintf("<unknown type: %d>", vt)
	}
}

// Value is the tagged value stored in object slots.
// Numbers and booleans live in payload; strings, symbols, objects and
// accessor pairs live behind obj.
type Value struct {
	typ     ValueType
	payload uint64
	obj     unsafe.Pointer
}

type stringBox struct {
	value string
}

// Symbol is a unique property key. Two symbols are the same key only when
// they are the same *Symbol.
type Symbol struct {
	description string
}

// NewSymbol creates a fresh symbol with a debug description.
func NewSymbol(description string) *Symbol {
	return &Symbol{description: description}
}

func (s *Symbol) Description() string { return s.description }

func (s *Symbol) String() string { return "Symbol(" + s.description + ")" }

// AccessorPair is the slot payload of an accessor property.
type AccessorPair struct {
	Get Value
	Set Value
}

var (
	Undefined = Value{typ: TypeUndefined}
	Null      = Value{typ: TypeNull}
	True      = Value{typ: TypeBoolean, payload: 1}
	False     = Value{typ: TypeBoolean, payload: 0}
	NaN       = NumberValue(math.NaN())

	// Hole marks an absent element in dense indexed storage.
	Hole = Value{typ: TypeHole}
)

func NumberValue(f float64) Value {
	return Value{typ: TypeNumber, payload: math.Float64bits(f)}
}

func IntegerValue(i int64) Value {
	return NumberValue(float64(i))
}

func BooleanValue(b bool) Value {
	if b {
		return True
	}
	return False
}

func NewString(s string) Value {
	return Value{typ: TypeString, obj: unsafe.Pointer(&stringBox{value: s})}
}

func SymbolValue(s *Symbol) Value {
	return Value{typ: TypeSymbol, obj: unsafe.Pointer(s)}
}

// ObjectValue wraps an object; a nil object becomes null.
func ObjectValue(o *Object) Value {
	if o == nil {
		return Null
	}
	return Value{typ: TypeObject, obj: unsafe.Pointer(o)}
}

func accessorValue(get, set Value) Value {
	return Value{typ: TypeAccessor, obj: unsafe.Pointer(&AccessorPair{Get: get, Set: set})}
}

// --- Type checks ---

func (v Value) Type() ValueType  { return v.typ }
func (v Value) IsUndefined() bool { return v.typ == TypeUndefined }
func (v Value) IsNull() bool      { return v.typ == TypeNull }
func (v Value) IsNullish() bool   { return v.typ == TypeUndefined || v.typ == TypeNull }
func (v Value) IsBoolean() bool   { return v.typ == TypeBoolean }
func (v Value) IsNumber() bool    { return v.typ == TypeNumber }
func (v Value) IsString() bool    { return v.typ == TypeString }
func (v Value) IsSymbol() bool    { return v.typ == TypeSymbol }
func (v Value) IsObject() bool    { return v.typ == TypeObject }
func (v Value) isAccessor() bool  { return v.typ == TypeAccessor }
func (v Value) isHole() bool      { return v.typ == TypeHole }

// IsCallable reports whether v is an object with a native call behaviour.
func (v Value) IsCallable() bool {
	o := v.AsObject()
	return o != nil && o.call != nil
}

// --- Accessors ---

func (v Value) AsNumber() float64 {
	if v.typ != TypeNumber {
		panic("value is not a number")
	}
	return math.Float64frombits(v.payload)
}

func (v Value) AsBoolean() bool {
	if v.typ != TypeBoolean {
		panic("value is not a boolean")
	}
	return v.payload != 0
}

func (v Value) AsString() string {
	if v.typ != TypeString {
		panic("value is not a string")
	}
	return (*stringBox)(v.obj).value
}

func (v Value) AsSymbol() *Symbol {
	if v.typ != TypeSymbol {
		panic("value is not a symbol")
	}
	return (*Symbol)(v.obj)
}

// AsObject returns the wrapped object, or nil for non-object values.
func (v Value) AsObject() *Object {
	if v.typ != TypeObject {
		return nil
	}
	return (*Object)(v.obj)
}

func (v Value) asAccessor() *AccessorPair {
	if v.typ != TypeAccessor {
		panic("value is not an accessor pair")
	}
	return (*AccessorPair)(v.obj)
}

// --- Conversions ---

// ToBoolean implements the ECMAScript ToBoolean conversion.
func (v Value) ToBoolean() bool {
	switch v.typ {
	case TypeUndefined, TypeNull, TypeHole:
		return false
	case TypeBoolean:
		return v.payload != 0
	case TypeNumber:
		f := v.AsNumber()
		return f != 0 && !math.IsNaN(f)
	case TypeString:
		return v.AsString() != ""
	default:
		return true
	}
}

// ToNumber converts primitives following ECMAScript ToNumber. Objects have
// no valueOf machinery in this engine and convert to NaN.
func (v Value) ToNumber() float64 {
	switch v.typ {
	case TypeNumber:
		return v.AsNumber()
	case TypeNull:
		return 0
	case TypeBoolean:
		if v.payload != 0 {
			return 1
		}
		return 0
	case TypeString:
		return stringToNumber(v.AsString())
	default:
		return math.NaN()
	}
}

// ToString converts a value to its display string.
func (v Value) ToString() string {
	switch v.typ {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		if v.payload != 0 {
			return "true"
		}
		return "false"
	case TypeNumber:
		return numberToString(v.AsNumber())
	case TypeString:
		return v.AsString()
	case TypeSymbol:
		return v.AsSymbol().String()
	case TypeObject:
		return v.AsObject().String()
	case TypeAccessor:
		return "[accessor]"
	case TypeHole:
		return "<hole>"
	default:
		return fmt.Sprintf("<unknown value type: %d>", v.typ)
	}
}

// Inspect renders v for diagnostics: strings are quoted.
func (v Value) Inspect() string {
	if v.typ == TypeString {
		return strconv.Quote(v.AsString())
	}
	return v.ToString()
}

func (v Value) String() string { return v.Inspect() }

func numberToString(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	// Handle -0 (convert to 0)
	if f == 0 {
		return "0"
	}
	absF := math.Abs(f)
	if absF < 1e-6 || absF >= 1e21 {
		return cleanExponentialFormat(strconv.FormatFloat(f, 'e', -1, 64))
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// stringToNumber handles hex (0x), octal (0o), binary (0b), and decimal
// (including scientific notation and Infinity).
func stringToNumber(s string) float64 {
	str := strings.TrimSpace(s)
	if str == "" {
		return 0
	}

	if len(str) > 2 && str[0] == '0' {
		base := 0
		switch str[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			if i, err := strconv.ParseUint(str[2:], base, 64); err == nil {
				return float64(i)
			}
			return math.NaN()
		}
	}

	// Infinity is case-sensitive (unlike Go's ParseFloat)
	switch str {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}

	// ParseFloat accepts forms ECMAScript rejects ("inf", "1_0", hex floats);
	// only sign, digits, '.', and an exponent are allowed.
	for i := 0; i < len(str); i++ {
		c := str[i]
		if (c < '0' || c > '9') && c != '.' && c != 'e' && c != 'E' && c != '+' && c != '-' {
			return math.NaN()
		}
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

// --- Equality ---

// SameValue implements the ECMAScript SameValue algorithm: NaN equals NaN
// and +0 differs from -0. Descriptor validation depends on it.
func (v Value) SameValue(other Value) bool {
	if v.typ == TypeNumber && other.typ == TypeNumber {
		a, b := v.AsNumber(), other.AsNumber()
		if math.IsNaN(a) && math.IsNaN(b) {
			return true
		}
		if a == 0 && b == 0 {
			return math.Signbit(a) == math.Signbit(b)
		}
		return a == b
	}
	return v.sameNonNumber(other)
}

// Is implements SameValueZero: like SameValue but +0 equals -0.
func (v Value) Is(other Value) bool {
	if v.typ == TypeNumber && other.typ == TypeNumber {
		a, b := v.AsNumber(), other.AsNumber()
		if math.IsNaN(a) && math.IsNaN(b) {
			return true
		}
		return a == b
	}
	return v.sameNonNumber(other)
}

func (v Value) sameNonNumber(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeUndefined, TypeNull, TypeHole:
		return true
	case TypeBoolean:
		return v.payload == other.payload
	case TypeString:
		return v.AsString() == other.AsString()
	case TypeAccessor:
		a, b := v.asAccessor(), other.asAccessor()
		return a == b || (a.Get.SameValue(b.Get) && a.Set.SameValue(b.Set))
	default:
		return v.obj == other.obj
	}
}

// --- Integer conversions used by arrays and typed arrays ---

// toIntegerOrInfinity truncates toward zero, mapping NaN to 0.
func toIntegerOrInfinity(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	if math.IsInf(f, 0) {
		return f
	}
	return math.Trunc(f) + 0 // +0 normalises -0
}

// toUint32 implements ECMAScript ToUint32 (modular).
func toUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return 0
	}
	m := math.Mod(math.Trunc(f), 4294967296)
	if m < 0 {
		m += 4294967296
	}
	return uint32(m)
}
