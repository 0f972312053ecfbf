package vm

import (
	"math"
	"strconv"
	"unique"
)

type KeyKind uint8

const (
	KeyKindString KeyKind = iota
	KeyKindIndex
	KeyKindSymbol
)

// MaxArrayIndex is the largest canonical array index, 2^32 - 2.
const MaxArrayIndex = math.MaxUint32 - 1

// PropertyKey is a property name: an interned string, an array index, or a
// symbol. Keys are comparable and serve directly as map keys; two keys are
// equal exactly when they name the same property.
type PropertyKey struct {
	kind  KeyKind
	index uint32
	name  unique.Handle[string]
	sym   *Symbol
}

var (
	keyLength = StringKey("length")
	keyCallee = StringKey("callee")
	keyName   = StringKey("name")
)

// StringKey interns s. Canonical array index strings ("0", "17", but not
// "017" or "4294967295") become index keys so "1" and 1 name one property.
func StringKey(s string) PropertyKey {
	if idx, ok := parseArrayIndex(s); ok {
		return PropertyKey{kind: KeyKindIndex, index: idx}
	}
	return PropertyKey{kind: KeyKindString, name: unique.Make(s)}
}

// IndexKey returns the key for an integer index. 2^32-1 is not an array
// index and becomes an ordinary string key.
func IndexKey(i uint32) PropertyKey {
	if i > MaxArrayIndex {
		return PropertyKey{kind: KeyKindString, name: unique.Make(strconv.FormatUint(uint64(i), 10))}
	}
	return PropertyKey{kind: KeyKindIndex, index: i}
}

func SymbolKey(s *Symbol) PropertyKey {
	return PropertyKey{kind: KeyKindSymbol, sym: s}
}

// KeyFromValue implements ToPropertyKey for primitive values.
func KeyFromValue(v Value) PropertyKey {
	switch v.Type() {
	case TypeSymbol:
		return SymbolKey(v.AsSymbol())
	case TypeNumber:
		f := v.AsNumber()
		if f >= 0 && f <= MaxArrayIndex && f == math.Trunc(f) && !(f == 0 && math.Signbit(f)) {
			return IndexKey(uint32(f))
		}
		return StringKey(numberToString(f))
	default:
		return StringKey(v.ToString())
	}
}

func (k PropertyKey) Kind() KeyKind  { return k.kind }
func (k PropertyKey) IsIndex() bool  { return k.kind == KeyKindIndex }
func (k PropertyKey) IsString() bool { return k.kind == KeyKindString }
func (k PropertyKey) IsSymbol() bool { return k.kind == KeyKindSymbol }

// Index returns the array index of an index key.
func (k PropertyKey) Index() uint32 { return k.index }

// Symbol returns the symbol of a symbol key, or nil.
func (k PropertyKey) Symbol() *Symbol { return k.sym }

// Name returns the string form of a string or index key. Symbol keys
// have no name and return "".
func (k PropertyKey) Name() string {
	switch k.kind {
	case KeyKindIndex:
		return strconv.FormatUint(uint64(k.index), 10)
	case KeyKindString:
		if k.name == (unique.Handle[string]{}) {
			return ""
		}
		return k.name.Value()
	default:
		return ""
	}
}

func (k PropertyKey) String() string {
	if k.kind == KeyKindSymbol {
		if k.sym == nil {
			return "Symbol()"
		}
		return k.sym.String()
	}
	return k.Name()
}

// Value converts the key back to a script value (a string or a symbol).
func (k PropertyKey) Value() Value {
	if k.kind == KeyKindSymbol {
		return SymbolValue(k.sym)
	}
	return NewString(k.Name())
}

// parseArrayIndex accepts canonical decimal strings in [0, 2^32-2].
func parseArrayIndex(s string) (uint32, bool) {
	if len(s) == 0 || len(s) > 10 {
		return 0, false
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, false
	}
	var n uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + uint64(c-'0')
	}
	if n > MaxArrayIndex {
		return 0, false
	}
	return uint32(n), true
}

// canonicalNumericIndex implements CanonicalNumericIndexString for the key:
// index keys are numeric, "-0" is -0, and any other string is numeric when
// it round-trips through ToString(ToNumber(s)).
func canonicalNumericIndex(k PropertyKey) (float64, bool) {
	switch k.kind {
	case KeyKindIndex:
		return float64(k.index), true
	case KeyKindString:
		s := k.Name()
		if s == "-0" {
			return math.Copysign(0, -1), true
		}
		n := stringToNumber(s)
		if numberToString(n) == s {
			return n, true
		}
	}
	return 0, false
}
