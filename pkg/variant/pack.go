package variant

import (
	cerrors "github.com/LLNL/caliper-go/pkg/errors"
)

// Pack encodes v as (vlq type+size)(vlq payload) for fixed-size types,
// or (vlq type+size)(raw bytes) for string/blob — the scheme used both
// by the in-memory inter-process snapshot buffers (signal-safe path)
// and, via the stream codec, by the on-disk node "data" field.
func (v Value) Pack(dst []byte) []byte {
	typeAndSize := uint64(v.typ) | uint64(v.Size())<<8
	dst = appendVLQ(dst, typeAndSize)
	if v.typ.isVariableLength() {
		return append(dst, v.data...)
	}
	if v.typ == TypeInvalid {
		return dst
	}
	return appendVLQ(dst, v.scalar)
}

// Unpack decodes a Value from the front of buf and returns the number
// of bytes consumed. Fails with CodeTruncatedInput if buf runs out
// before a complete value has been read.
func Unpack(buf []byte) (Value, int, error) {
	typeAndSize, n1, err := readVLQ(buf)
	if err != nil {
		return Empty, 0, err
	}
	typ := Type(typeAndSize & 0xFF)
	size := int(typeAndSize >> 8)
	rest := buf[n1:]

	if typ.isVariableLength() {
		if len(rest) < size {
			return Empty, 0, cerrors.New(cerrors.CodeTruncatedInput, "variant", "Unpack",
				"buffer ends before variable-length payload")
		}
		data := make([]byte, size)
		copy(data, rest[:size])
		return Value{typ: typ, data: data}, n1 + size, nil
	}

	if typ == TypeInvalid {
		return Empty, n1, nil
	}

	scalar, n2, err := readVLQ(rest)
	if err != nil {
		return Empty, 0, err
	}
	return Value{typ: typ, scalar: scalar}, n1 + n2, nil
}

// appendVLQ appends v's little-endian base-128 varint encoding to dst.
func appendVLQ(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// readVLQ decodes a varint from the front of buf, returning the value
// and the number of bytes consumed.
func readVLQ(buf []byte) (uint64, int, error) {
	var v uint64
	var shift uint
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		v |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, 0, cerrors.New(cerrors.CodeTruncatedInput, "variant", "readVLQ", "varint too long")
		}
	}
	return 0, 0, cerrors.New(cerrors.CodeTruncatedInput, "variant", "readVLQ", "buffer ends mid-varint")
}
