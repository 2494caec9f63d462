package variant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackUnpackIdentity(t *testing.T) {
	values := []Value{
		Empty,
		FromInt(-42),
		FromUint(1 << 40),
		FromDouble(3.14159),
		FromBool(true),
		FromBool(false),
		FromAddr(0xdeadbeef),
		FromString("phase=init"),
		FromBlob([]byte{0x00, 0x01, 0xff, 0xfe}),
		FromType(TypeDouble),
	}

	for _, v := range values {
		buf := v.Pack(nil)
		got, n, err := Unpack(buf)
		require.NoError(t, err)
		require.Equal(t, len(buf), n)
		require.True(t, v.Equal(got), "round-trip mismatch for %#v", v)
	}
}

func TestUnpackTruncated(t *testing.T) {
	v := FromString("a long enough string to span the header")
	buf := v.Pack(nil)

	_, _, err := Unpack(buf[:1])
	require.Error(t, err)

	_, _, err = Unpack(buf[:len(buf)-1])
	require.Error(t, err)
}

func TestConversions(t *testing.T) {
	i, ok := FromInt(10).AsInt()
	require.True(t, ok)
	require.Equal(t, int64(10), i)

	_, ok = FromUint(1 << 63).AsInt()
	require.False(t, ok, "uint too large for int64 must fail conversion")

	_, ok = FromString("x").AsInt()
	require.False(t, ok, "string-to-numeric conversion must fail")

	_, ok = FromInt(1).AsString()
	require.False(t, ok, "numeric-to-string conversion must fail")

	s, ok := FromString("hello").AsString()
	require.True(t, ok)
	require.Equal(t, "hello", s)
}

func TestCompareCrossType(t *testing.T) {
	require.Negative(t, FromInt(100).Compare(FromString("a")))
	require.Positive(t, FromString("a").Compare(FromInt(100)))
	require.Zero(t, FromInt(5).Compare(FromInt(5)))
	require.Negative(t, FromInt(4).Compare(FromInt(5)))
}

func TestEqualAndFormat(t *testing.T) {
	require.True(t, FromDouble(1.5).Equal(FromDouble(1.5)))
	require.False(t, FromDouble(1.5).Equal(FromInt(1)))
	require.Equal(t, "true", FromBool(true).Format())
	require.Equal(t, "init", FromString("init").Format())
}
