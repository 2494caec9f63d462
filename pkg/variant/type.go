// Package variant implements the tagged value type used throughout the
// context tree, blackboard and snapshot record: a single representation
// for empty, numeric, boolean, address, string and blob data that knows
// how to compare, convert and pack/unpack itself.
package variant

// Type identifies the concrete representation held by a Value. The
// numeric values match the wire tag used by Pack/Unpack and by the
// stream codec, and are ordered the way cross-type comparisons sort:
// by type tag first, then by value.
type Type uint8

const (
	TypeInvalid Type = 0
	TypeUsr     Type = 1 // opaque blob, unowned pointer + length
	TypeInt     Type = 2 // signed 64-bit
	TypeUint    Type = 3 // unsigned 64-bit
	TypeString  Type = 4
	TypeAddr    Type = 5 // pointer-sized address
	TypeDouble  Type = 6
	TypeBool    Type = 7
	TypeType    Type = 8 // a Type value describing an attribute's type
)

// String renders the type name the way the query language and
// formatters expect it to appear (e.g. in `cali.attribute.type` nodes).
func (t Type) String() string {
	switch t {
	case TypeInvalid:
		return "inv"
	case TypeUsr:
		return "usr"
	case TypeInt:
		return "int"
	case TypeUint:
		return "uint"
	case TypeString:
		return "string"
	case TypeAddr:
		return "addr"
	case TypeDouble:
		return "double"
	case TypeBool:
		return "bool"
	case TypeType:
		return "type"
	default:
		return "unknown"
	}
}

// ParseType maps a type name back to its Type, as used when declaring
// attributes from a config file or CLI flag.
func ParseType(s string) (Type, bool) {
	switch s {
	case "inv":
		return TypeInvalid, true
	case "usr":
		return TypeUsr, true
	case "int":
		return TypeInt, true
	case "uint":
		return TypeUint, true
	case "string":
		return TypeString, true
	case "addr":
		return TypeAddr, true
	case "double":
		return TypeDouble, true
	case "bool":
		return TypeBool, true
	case "type":
		return TypeType, true
	default:
		return TypeInvalid, false
	}
}

// isVariableLength reports whether the type's payload is carried as a
// byte slice (string, blob) rather than inlined in the scalar union.
func (t Type) isVariableLength() bool {
	return t == TypeString || t == TypeUsr
}
