package variant

import (
	"fmt"
	"math"
	"strconv"

	cerrors "github.com/LLNL/caliper-go/pkg/errors"
)

// Value is the tagged union over empty, unsigned/signed 64-bit, double,
// bool, pointer-sized address, string, opaque blob and type-of-attribute.
//
// Fixed-size values are inlined in scalar; variable-length values
// (string, blob) carry their bytes in data. data is unowned by the
// Value itself for the lifetime of a single call; the context tree
// copies it into node storage when a reference-entry value is interned.
type Value struct {
	typ    Type
	scalar uint64
	data   []byte // only set for TypeString / TypeUsr
}

// Empty is the zero Value.
var Empty = Value{}

// IsEmpty reports whether v carries no data at all.
func (v Value) IsEmpty() bool {
	return v.typ == TypeInvalid
}

// Type returns the concrete representation of v.
func (v Value) Type() Type {
	return v.typ
}

// Size returns the payload size in bytes: 8 for every fixed-size type,
// len(data) for string/blob, 0 for empty.
func (v Value) Size() int {
	switch v.typ {
	case TypeInvalid:
		return 0
	case TypeString, TypeUsr:
		return len(v.data)
	default:
		return 8
	}
}

// --- Constructors ---

func FromInt(i int64) Value    { return Value{typ: TypeInt, scalar: uint64(i)} }
func FromUint(u uint64) Value  { return Value{typ: TypeUint, scalar: u} }
func FromDouble(f float64) Value {
	return Value{typ: TypeDouble, scalar: math.Float64bits(f)}
}
func FromBool(b bool) Value {
	var s uint64
	if b {
		s = 1
	}
	return Value{typ: TypeBool, scalar: s}
}
func FromAddr(a uint64) Value { return Value{typ: TypeAddr, scalar: a} }
func FromType(t Type) Value   { return Value{typ: TypeType, scalar: uint64(t)} }

// FromString makes a string Value. The returned Value borrows s's
// bytes; callers that need to retain the Value past the lifetime of a
// mutable buffer should copy first (the context tree does this itself
// when interning reference-entry values).
func FromString(s string) Value {
	return Value{typ: TypeString, data: []byte(s)}
}

// FromBlob makes an opaque "usr"-typed Value over b.
func FromBlob(b []byte) Value {
	return Value{typ: TypeUsr, data: b}
}

// FromBytes constructs a Value of the given type directly from a byte
// payload, mirroring the C API's cali_make_variant(type, ptr, size).
// For fixed-size types, data must be exactly 8 bytes (little-endian).
func FromBytes(t Type, data []byte) (Value, error) {
	if t.isVariableLength() {
		cp := make([]byte, len(data))
		copy(cp, data)
		return Value{typ: t, data: cp}, nil
	}
	if t == TypeInvalid {
		return Empty, nil
	}
	if len(data) != 8 {
		return Empty, cerrors.New(cerrors.CodeInvalidType, "variant", "FromBytes",
			fmt.Sprintf("fixed-size type %s requires an 8-byte payload, got %d", t, len(data)))
	}
	var u uint64
	for i := 0; i < 8; i++ {
		u |= uint64(data[i]) << (8 * uint(i))
	}
	return Value{typ: t, scalar: u}, nil
}

// ParseText is the inverse of Format: it reconstructs a Value of the
// given type from its formatted text, as used by the stream codec
// when reading a node/ctx/globals record's textual data field back
// into a typed Value. TypeUsr round-trips through the "0x%x" hex form
// Format produces for it.
func ParseText(t Type, s string) (Value, error) {
	switch t {
	case TypeInvalid:
		return Empty, nil
	case TypeInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Empty, cerrors.New(cerrors.CodeInvalidType, "variant", "ParseText", "not an int: "+s)
		}
		return FromInt(n), nil
	case TypeUint:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Empty, cerrors.New(cerrors.CodeInvalidType, "variant", "ParseText", "not a uint: "+s)
		}
		return FromUint(n), nil
	case TypeDouble:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Empty, cerrors.New(cerrors.CodeInvalidType, "variant", "ParseText", "not a double: "+s)
		}
		return FromDouble(f), nil
	case TypeBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Empty, cerrors.New(cerrors.CodeInvalidType, "variant", "ParseText", "not a bool: "+s)
		}
		return FromBool(b), nil
	case TypeAddr:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Empty, cerrors.New(cerrors.CodeInvalidType, "variant", "ParseText", "not an addr: "+s)
		}
		return FromAddr(n), nil
	case TypeString:
		return FromString(s).Clone(), nil
	case TypeType:
		typ, ok := ParseType(s)
		if !ok {
			return Empty, cerrors.New(cerrors.CodeInvalidType, "variant", "ParseText", "not a type name: "+s)
		}
		return FromType(typ), nil
	case TypeUsr:
		var b []byte
		if _, err := fmt.Sscanf(s, "0x%x", &b); err != nil {
			return Empty, cerrors.New(cerrors.CodeInvalidType, "variant", "ParseText", "not a blob: "+s)
		}
		return FromBlob(b), nil
	default:
		return Empty, cerrors.New(cerrors.CodeInvalidType, "variant", "ParseText", "unknown type tag")
	}
}

// --- Introspection / conversion ---

func (v Value) AsInt() (int64, bool) {
	switch v.typ {
	case TypeInt:
		return int64(v.scalar), true
	case TypeUint:
		if v.scalar > math.MaxInt64 {
			return 0, false
		}
		return int64(v.scalar), true
	case TypeDouble:
		f := math.Float64frombits(v.scalar)
		if f < math.MinInt64 || f > math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	case TypeBool:
		return int64(v.scalar), true
	case TypeAddr:
		if v.scalar > math.MaxInt64 {
			return 0, false
		}
		return int64(v.scalar), true
	default:
		return 0, false
	}
}

func (v Value) AsUint() (uint64, bool) {
	switch v.typ {
	case TypeUint, TypeAddr:
		return v.scalar, true
	case TypeInt:
		if int64(v.scalar) < 0 {
			return 0, false
		}
		return v.scalar, true
	case TypeDouble:
		f := math.Float64frombits(v.scalar)
		if f < 0 || f > math.MaxUint64 {
			return 0, false
		}
		return uint64(f), true
	case TypeBool:
		return v.scalar, true
	default:
		return 0, false
	}
}

func (v Value) AsDouble() (float64, bool) {
	switch v.typ {
	case TypeDouble:
		return math.Float64frombits(v.scalar), true
	case TypeInt:
		return float64(int64(v.scalar)), true
	case TypeUint, TypeAddr:
		return float64(v.scalar), true
	case TypeBool:
		return float64(v.scalar), true
	default:
		return 0, false
	}
}

// AsTypeTag unwraps a TypeType value back into the Type it encodes
// (as produced by FromType), used when a node's value describes
// another attribute's type.
func (v Value) AsTypeTag() (Type, bool) {
	if v.typ != TypeType {
		return TypeInvalid, false
	}
	return Type(v.scalar), true
}

func (v Value) AsBool() (bool, bool) {
	switch v.typ {
	case TypeBool:
		return v.scalar != 0, true
	case TypeInt, TypeUint, TypeAddr:
		return v.scalar != 0, true
	default:
		return false, false
	}
}

// AsString converts to a string. Per contract, conversions between a
// string and anything other than a string fail; this returns the exact
// string bytes for TypeString and false for every other type.
func (v Value) AsString() (string, bool) {
	if v.typ != TypeString {
		return "", false
	}
	return string(v.data), true
}

func (v Value) AsBlob() ([]byte, bool) {
	if v.typ != TypeUsr {
		return nil, false
	}
	return v.data, true
}

// Format renders v the way the stream codec and formatters print it:
// plain decimal/float for numerics, "true"/"false" for bool, the raw
// string for TypeString, and a hex dump for opaque blobs.
func (v Value) Format() string {
	switch v.typ {
	case TypeInvalid:
		return ""
	case TypeInt:
		return strconv.FormatInt(int64(v.scalar), 10)
	case TypeUint, TypeAddr:
		return strconv.FormatUint(v.scalar, 10)
	case TypeDouble:
		return strconv.FormatFloat(math.Float64frombits(v.scalar), 'g', -1, 64)
	case TypeBool:
		return strconv.FormatBool(v.scalar != 0)
	case TypeString:
		return string(v.data)
	case TypeType:
		return Type(v.scalar).String()
	case TypeUsr:
		return fmt.Sprintf("0x%x", v.data)
	default:
		return ""
	}
}

func (v Value) String() string { return v.Format() }

// Clone returns a Value that owns its own copy of any variable-length
// payload, safe to retain past the lifetime of a borrowed buffer. The
// context tree calls this when interning a value into a node.
func (v Value) Clone() Value {
	if !v.typ.isVariableLength() || v.data == nil {
		return v
	}
	cp := make([]byte, len(v.data))
	copy(cp, v.data)
	return Value{typ: v.typ, data: cp}
}

// Equal reports value equality: same type and same payload.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	if v.typ.isVariableLength() {
		return string(v.data) == string(o.data)
	}
	return v.scalar == o.scalar
}

// Compare imposes the total order used for sorting: values of
// different types compare by type tag, so sorting mixed-type columns
// is stable but arbitrary. Within a type, numerics compare
// numerically, strings/blobs lexicographically, bool false < true.
func (v Value) Compare(o Value) int {
	if v.typ != o.typ {
		if v.typ < o.typ {
			return -1
		}
		return 1
	}
	switch v.typ {
	case TypeInvalid:
		return 0
	case TypeInt:
		a, b := int64(v.scalar), int64(o.scalar)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	case TypeUint, TypeAddr:
		switch {
		case v.scalar < o.scalar:
			return -1
		case v.scalar > o.scalar:
			return 1
		default:
			return 0
		}
	case TypeDouble:
		a, b := math.Float64frombits(v.scalar), math.Float64frombits(o.scalar)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	case TypeBool:
		switch {
		case v.scalar == o.scalar:
			return 0
		case v.scalar < o.scalar:
			return -1
		default:
			return 1
		}
	case TypeType:
		switch {
		case v.scalar < o.scalar:
			return -1
		case v.scalar > o.scalar:
			return 1
		default:
			return 0
		}
	case TypeString, TypeUsr:
		return compareBytes(v.data, o.data)
	default:
		return 0
	}
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
